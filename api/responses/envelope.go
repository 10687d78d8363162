package responses

// Success bodies are always wrapped in {"data": ...}.
type SuccessEnvelope struct {
	Data any `json:"data"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the single error shape returned by every route.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

package errors

import (
	stdErrors "errors"
	"net/http"
)

// Code is the stable machine-readable error identifier returned to callers.
type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodePersistence   Code = "PERSISTENCE_ERROR"
	// CodeRolledBack means processor side effects were undone after the
	// local write failed; the membership is unchanged.
	CodeRolledBack Code = "ROLLED_BACK"
)

// Metadata is how a code is presented over HTTP.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	final     = false
	retryable = true
	hidden    = false
	shown     = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:    {http.StatusBadRequest, final, "validation failed", shown},
	CodeUnauthorized:  {http.StatusUnauthorized, final, "authentication required", hidden},
	CodeForbidden:     {http.StatusForbidden, final, "access denied", hidden},
	CodeNotFound:      {http.StatusNotFound, final, "resource not found", hidden},
	CodeConflict:      {http.StatusConflict, final, "conflict detected", hidden},
	CodeStateConflict: {http.StatusUnprocessableEntity, final, "membership state does not allow this", shown},
	CodeIdempotency:   {http.StatusConflict, final, "idempotency key reused", shown},
	CodeRateLimit:     {http.StatusTooManyRequests, retryable, "rate limit exceeded", hidden},
	CodeInternal:      {http.StatusInternalServerError, retryable, "internal server error", hidden},
	CodeDependency:    {http.StatusServiceUnavailable, retryable, "payment processor or datastore unavailable", shown},
	CodePersistence:   {http.StatusInternalServerError, retryable, "could not save changes", hidden},
	CodeRolledBack:    {http.StatusConflict, retryable, "operation rolled back", shown},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error with an optional public message, details and cause.
// Nil receivers are safe.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err; a nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets details in place and returns e for chaining.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return string(e.code) + ": " + e.message + ": " + e.cause.Error()
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

// IsRetryable reports whether a caller may retry the same request.
func IsRetryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}

func As(err error) *Error {
	var typed *Error
	if err != nil && stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

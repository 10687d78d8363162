package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
)

type sampleBody struct {
	Type   string `json:"type" validate:"required,oneof=dues enrollment_fee"`
	Months int    `json:"months_credited" validate:"min=0,max=24"`
}

func TestDecodeJSONBodyReportsFieldsByJSONName(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"tip","months_credited":30}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["type"] != "must be one of [dues enrollment_fee]" {
		t.Fatalf("unexpected type message %q", details["type"])
	}
	if details["months_credited"] != "must be at most 24" {
		t.Fatalf("unexpected months message %q", details["months_credited"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"dues","extra":1}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryDate(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?asOf=2026-03-20", nil)
	day, ok, err := ParseQueryDate(req, "asOf")
	if err != nil || !ok {
		t.Fatalf("expected date, got ok=%v err=%v", ok, err)
	}
	if !day.Equal(time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day %s", day)
	}

	if _, ok, err := ParseQueryDate(httptest.NewRequest(http.MethodGet, "/", nil), "asOf"); ok || err != nil {
		t.Fatalf("missing parameter should be absent, got ok=%v err=%v", ok, err)
	}
	if _, _, err := ParseQueryDate(httptest.NewRequest(http.MethodGet, "/?asOf=20-03-2026", nil), "asOf"); err == nil {
		t.Fatal("expected error for malformed date")
	}
}

func TestParseQueryBool(t *testing.T) {
	if v, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?force=true", nil), "force"); err != nil || !v {
		t.Fatalf("expected true, got %v %v", v, err)
	}
	if _, err := ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?force=maybe", nil), "force"); err == nil {
		t.Fatal("expected error")
	}
}

func TestParseQueryInt(t *testing.T) {
	if v, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit=10", nil), "limit"); err != nil || v != 10 {
		t.Fatalf("expected 10, got %v %v", v, err)
	}
	if v, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit"); err != nil || v != 0 {
		t.Fatalf("expected 0, got %v %v", v, err)
	}
	for _, raw := range []string{"-1", "ten"} {
		if _, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit="+raw, nil), "limit"); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("membershipId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "membershipId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "paymentId"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

type frequencyBody struct {
	BillingFrequency string `json:"billing_frequency" validate:"required,billing_frequency"`
	Method           string `json:"method" validate:"required,payment_method"`
}

func TestDecodeJSONBodyEnumTags(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"billing_frequency":"weekly","method":"venmo"}`))
	var body frequencyBody
	typed := pkgerrors.As(DecodeJSONBody(req, &body))
	if typed == nil {
		t.Fatal("expected validation error")
	}
	details := typed.Details().(map[string]string)
	if details["billing_frequency"] != "is not a supported billing frequency" {
		t.Fatalf("unexpected frequency message %q", details["billing_frequency"])
	}
	if details["method"] != "is not a supported payment method" {
		t.Fatalf("unexpected method message %q", details["method"])
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"billing_frequency":"biannual","method":"zelle"}`))
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("expected valid body, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsEmptyAndTrailing(t *testing.T) {
	var body sampleBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &body)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body required" {
		t.Fatalf("expected empty body error, got %v", err)
	}
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"type":"dues"}{"type":"dues"}`)), &body)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected trailing object to be rejected, got %v", err)
	}
	huge := `{"type":"dues","notes":"` + strings.Repeat("x", maxBodyBytes) + `"}`
	err = DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(huge)), &body)
	if typed := pkgerrors.As(err); typed == nil || typed.Message() != "request body too large" {
		t.Fatalf("expected size error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  chk #1042\x00\x07 ", 0); got != "chk #1042" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
	if got := SanitizeString("line one\nline two", 0); got != "line one\nline two" {
		t.Fatalf("newlines should survive, got %q", got)
	}
	if got := SanitizeString("café", 4); got != "caf" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
}

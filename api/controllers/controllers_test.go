package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/duesengine/api/middleware"
	"github.com/angelmondragon/duesengine/internal/memberships"
	"github.com/angelmondragon/duesengine/internal/onboarding"
	"github.com/angelmondragon/duesengine/internal/overdue"
	"github.com/angelmondragon/duesengine/internal/payers"
	"github.com/angelmondragon/duesengine/internal/payments"
	"github.com/angelmondragon/duesengine/pkg/config"
	"github.com/angelmondragon/duesengine/pkg/enums"
	pkgerrors "github.com/angelmondragon/duesengine/pkg/errors"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func serve(t *testing.T, routes func(chi.Router), method, path, body string, orgID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Use(middleware.OrganizationContext(nil))
	routes(r)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if orgID != uuid.Nil {
		req.Header.Set("X-Organization-Id", orgID.String())
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

type fakePayments struct {
	payments.Service
	recorded []payments.RecordInput
	previews []payments.PreviewInput
	err      error
}

func (f *fakePayments) Preview(ctx context.Context, input payments.PreviewInput) (*payments.Calculation, error) {
	f.previews = append(f.previews, input)
	return &payments.Calculation{}, nil
}

func (f *fakePayments) Record(ctx context.Context, input payments.RecordInput) (*payments.RecordResult, error) {
	f.recorded = append(f.recorded, input)
	if f.err != nil {
		return nil, f.err
	}
	return &payments.RecordResult{NewStatus: enums.MembershipStatusWaitingPeriod}, nil
}

func TestPaymentRecordMapsRequest(t *testing.T) {
	svc := &fakePayments{}
	orgID, membershipID := uuid.New(), uuid.New()
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payments", PaymentRecord(svc, nil))
	}, http.MethodPost, "/memberships/"+membershipID.String()+"/payments",
		`{"type":"dues","method":"check","amount_cents":5000,"months_credited":1,"reference":"  1042  "}`, orgID)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.recorded, 1)
	got := svc.recorded[0]
	assert.Equal(t, orgID, got.OrganizationID)
	assert.Equal(t, membershipID, got.MembershipID)
	assert.Equal(t, enums.PaymentMethodCheck, got.Method)
	assert.Equal(t, "1042", got.Reference)
}

func TestPaymentRecordValidatesBody(t *testing.T) {
	svc := &fakePayments{}
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payments", PaymentRecord(svc, nil))
	}, http.MethodPost, "/memberships/"+uuid.NewString()+"/payments", `{"type":"tip","method":"check"}`, uuid.New())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.Details, "type")
	assert.Empty(t, svc.recorded)
}

func TestPaymentRoutesAcceptBackDues(t *testing.T) {
	svc := &fakePayments{}
	membershipID := uuid.NewString()
	routes := func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payments", PaymentRecord(svc, nil))
		r.Post("/memberships/{membershipId}/payments/preview", PaymentPreview(svc, nil))
	}
	body := `{"type":"back_dues","method":"cash","amount_cents":15000,"months_credited":3}`

	rec := serve(t, routes, http.MethodPost, "/memberships/"+membershipID+"/payments", body, uuid.New())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.recorded, 1)
	assert.Equal(t, enums.PaymentTypeBackDues, svc.recorded[0].Type)
	assert.Equal(t, 3, svc.recorded[0].MonthsCredited)

	rec = serve(t, routes, http.MethodPost, "/memberships/"+membershipID+"/payments/preview", body, uuid.New())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.previews, 1)
	assert.Equal(t, enums.PaymentTypeBackDues, svc.previews[0].Type)
}

func TestPaymentRecordRequiresOrganization(t *testing.T) {
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payments", PaymentRecord(&fakePayments{}, nil))
	}, http.MethodPost, "/memberships/"+uuid.NewString()+"/payments", `{}`, uuid.Nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestPaymentRecordSurfacesStateConflict(t *testing.T) {
	svc := &fakePayments{err: pkgerrors.New(pkgerrors.CodeStateConflict, "payment already settled")}
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payments", PaymentRecord(svc, nil))
	}, http.MethodPost, "/memberships/"+uuid.NewString()+"/payments", `{"type":"dues","method":"cash","months_credited":1}`, uuid.New())
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

type fakePayers struct {
	payers.Service
	err error
}

func (f *fakePayers) Assign(ctx context.Context, orgID, membershipID, payerMemberID uuid.UUID) (*payers.AssignResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &payers.AssignResult{Path: payers.PathSubscription, SubscriptionCreated: true, SubscriptionID: "sub_1"}, nil
}

func TestPayerAssignRolledBack(t *testing.T) {
	svc := &fakePayers{err: pkgerrors.New(pkgerrors.CodeRolledBack, "rolled back").WithDetails(map[string]any{"subscription_id": "sub_1"})}
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payer", PayerAssign(svc, nil))
	}, http.MethodPost, "/memberships/"+uuid.NewString()+"/payer", `{"payer_member_id":"`+uuid.NewString()+`"}`, uuid.New())

	assert.Equal(t, http.StatusConflict, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, string(pkgerrors.CodeRolledBack), env.Error.Code)
	assert.Equal(t, "sub_1", env.Error.Details["subscription_id"])
}

func TestPayerAssignRequiresPayer(t *testing.T) {
	rec := serve(t, func(r chi.Router) {
		r.Post("/memberships/{membershipId}/payer", PayerAssign(&fakePayers{}, nil))
	}, http.MethodPost, "/memberships/"+uuid.NewString()+"/payer", `{}`, uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeOnboarding struct {
	onboarding.Service
	result *onboarding.Result
}

func (f *fakeOnboarding) Start(ctx context.Context, input onboarding.StartInput) (*onboarding.Result, error) {
	return f.result, nil
}

func TestOnboardingStartReportsFailedStep(t *testing.T) {
	svc := &fakeOnboarding{result: &onboarding.Result{Steps: []onboarding.StepResult{
		{Step: enums.OnboardingStepCreateInvite, Status: onboarding.StepSucceeded},
		{Step: enums.OnboardingStepPaymentSetup, Status: onboarding.StepFailed, Error: "processor down"},
	}}}
	rec := serve(t, func(r chi.Router) {
		r.Post("/onboarding/invites", OnboardingStart(svc, nil))
	}, http.MethodPost, "/onboarding/invites", `{"membership_id":"`+uuid.NewString()+`","method":"stripe"}`, uuid.New())
	assert.Equal(t, http.StatusAccepted, rec.Code)

	svc.result = &onboarding.Result{Steps: []onboarding.StepResult{{Step: enums.OnboardingStepCreateInvite, Status: onboarding.StepSucceeded}}}
	rec = serve(t, func(r chi.Router) {
		r.Post("/onboarding/invites", OnboardingStart(svc, nil))
	}, http.MethodPost, "/onboarding/invites", `{"membership_id":"`+uuid.NewString()+`","method":"manual"}`, uuid.New())
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestOnboardingRetryRejectsUnknownStep(t *testing.T) {
	rec := serve(t, func(r chi.Router) {
		r.Post("/onboarding/invites/{inviteId}/steps/{step}", OnboardingRetryStep(&fakeOnboarding{}, nil))
	}, http.MethodPost, "/onboarding/invites/"+uuid.NewString()+"/steps/notify_board", ``, uuid.New())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeMemberships struct {
	memberships.Service
}

func (f *fakeMemberships) Get(ctx context.Context, orgID, membershipID uuid.UUID) (*memberships.View, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "membership not found")
}

func TestMembershipGetNotFound(t *testing.T) {
	rec := serve(t, func(r chi.Router) {
		r.Get("/memberships/{membershipId}", MembershipGet(&fakeMemberships{}, nil))
	}, http.MethodGet, "/memberships/"+uuid.NewString(), ``, uuid.New())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type fakeSweeper struct {
	calls []time.Time
}

func (f *fakeSweeper) Sweep(ctx context.Context, asOf time.Time) (*overdue.SweepResult, error) {
	f.calls = append(f.calls, asOf)
	return &overdue.SweepResult{AsOf: asOf, Processed: 3}, nil
}

type memoryCache struct {
	byDay map[string]*overdue.SweepResult
}

func (m *memoryCache) Lookup(ctx context.Context, day time.Time) (*overdue.SweepResult, error) {
	return m.byDay[day.Format("2006-01-02")], nil
}

func (m *memoryCache) Remember(ctx context.Context, result *overdue.SweepResult) error {
	m.byDay[result.AsOf.Format("2006-01-02")] = result
	return nil
}

func TestBillingSweepCachesPerDay(t *testing.T) {
	sweeper := &fakeSweeper{}
	cache := &memoryCache{byDay: map[string]*overdue.SweepResult{}}
	handler := BillingSweep(sweeper, cache, func() time.Time { return time.Date(2026, 3, 21, 8, 0, 0, 0, time.UTC) }, nil)
	call := func(query string) envelope {
		req := httptest.NewRequest(http.MethodPost, "/sweep"+query, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode(t, rec)
	}

	call("?asOf=2026-03-20")
	second := call("?asOf=2026-03-20")
	var body struct {
		Cached    bool `json:"cached"`
		Processed int  `json:"processed"`
	}
	require.NoError(t, json.Unmarshal(second.Data, &body))
	assert.True(t, body.Cached)
	assert.Equal(t, 3, body.Processed)
	require.Len(t, sweeper.calls, 1)
	assert.True(t, sweeper.calls[0].Equal(time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)))

	call("?asOf=2026-03-20&force=true")
	assert.Len(t, sweeper.calls, 2)

	call("")
	require.Len(t, sweeper.calls, 3)
	assert.Equal(t, 21, sweeper.calls[2].Day())
}

func TestBillingSweepRejectsBadDate(t *testing.T) {
	handler := BillingSweep(&fakeSweeper{}, nil, nil, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sweep?asOf=yesterday", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthReady(t *testing.T) {
	cfg := &config.Config{App: config.AppConfig{Env: "test"}}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	HealthReady(cfg, nil, ok, ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "test", rec.Header().Get(envHeader))

	rec = httptest.NewRecorder()
	HealthReady(cfg, nil, ok, down).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

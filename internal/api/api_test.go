package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BTreeMap/StepFlow/internal/identity"
	"github.com/BTreeMap/StepFlow/internal/models"
	"github.com/BTreeMap/StepFlow/internal/store"
	"github.com/BTreeMap/StepFlow/internal/testutil"
)

type testFlow struct {
	models.FlowSnapshot
	Result json.RawMessage `json:"result"`
}

type testEnv struct {
	t        *testing.T
	srv      *Server
	provider *identity.MockProvider
	st       *store.InMemoryStore
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	provider := identity.NewMockProvider()
	st := store.NewInMemoryStore()
	srv := NewServer(provider, st, append([]Option{WithInstantTransitions()}, opts...)...)
	t.Cleanup(srv.Sessions().CloseAll)
	return &testEnv{t: t, srv: srv, provider: provider, st: st}
}

func (e *testEnv) do(method, path string, body any) (int, testutil.Response) {
	e.t.Helper()
	rr := testutil.Serve(e.srv.Handler(), testutil.CreateHTTPRequest(e.t, method, path, body))
	return rr.Code, testutil.DecodeResponse(e.t, rr)
}

func (e *testEnv) flow(resp testutil.Response) testFlow {
	e.t.Helper()
	var f testFlow
	require.NoError(e.t, json.Unmarshal(resp.Result, &f))
	return f
}

func (e *testEnv) create(body createFlowRequest) testFlow {
	e.t.Helper()
	code, resp := e.do(http.MethodPost, "/flows", body)
	require.Equal(e.t, http.StatusCreated, code, resp.Message)
	return e.flow(resp)
}

func (e *testEnv) set(id, field, action, value string) {
	e.t.Helper()
	code, resp := e.do(http.MethodPost, "/flows/"+id+"/data", dataRequest{Field: field, Action: action, Value: value})
	require.Equal(e.t, http.StatusOK, code, resp.Message)
}

func (e *testEnv) advance(id string) testFlow {
	e.t.Helper()
	code, resp := e.do(http.MethodPost, "/flows/"+id+"/advance", nil)
	require.Equal(e.t, http.StatusOK, code, resp.Message)
	return e.flow(resp)
}

// completeOnboarding answers every onboarding step and returns the flow id.
func (e *testEnv) completeOnboarding() string {
	e.t.Helper()
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})
	id := f.ID
	e.set(id, "", "", "Ada Lovelace")
	e.advance(id)
	e.set(id, "", "select", "female")
	e.advance(id)
	e.set(id, "", "", "Run a marathon")
	e.advance(id)
	e.set(id, "", "select", "10")
	e.advance(id)
	e.set(id, "", "select", "beginner")
	e.advance(id)
	e.set(id, "", "toggle", "endurance")
	e.set(id, "", "toggle", "flexibility")
	e.advance(id)
	e.set(id, "", "select", "4-5_times")
	done := e.advance(id)
	require.True(e.t, done.Completed)
	return id
}

func TestCreateFlow(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})
	assert.NotEmpty(t, f.ID)
	assert.Equal(t, models.FlowKindOnboarding, f.Kind)
	assert.Equal(t, models.FieldOnboardingFullName, f.Step.ID)
	assert.False(t, f.CanAdvance)
	assert.Equal(t, 7, f.Progress.TotalSteps)

	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth})
	assert.Equal(t, models.AuthModeSignup, auth.Mode)
	assert.Equal(t, models.StepWelcome, auth.Step.ID)
	require.NotNil(t, auth.Cooldown)
	assert.True(t, auth.Cooldown.CanTrigger())
}

func TestCreateFlow_Rejections(t *testing.T) {
	e := newTestEnv(t)
	onboarding := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})

	tests := []struct {
		name string
		body createFlowRequest
		want int
	}{
		{"unknown kind", createFlowRequest{Kind: "survey"}, http.StatusBadRequest},
		{"unknown mode", createFlowRequest{Kind: models.FlowKindAuth, Mode: "sso"}, http.StatusBadRequest},
		{"onboarding link on onboarding", createFlowRequest{Kind: models.FlowKindOnboarding, OnboardingID: onboarding.ID}, http.StatusBadRequest},
		{"unknown onboarding link", createFlowRequest{Kind: models.FlowKindAuth, OnboardingID: "f_missing"}, http.StatusBadRequest},
		{"incomplete onboarding link", createFlowRequest{Kind: models.FlowKindAuth, OnboardingID: onboarding.ID}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := e.do(http.MethodPost, "/flows", tt.body)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, string(models.APIStatusError), resp.Status)
		})
	}
}

func TestAdvance_IncompleteStepIsRejected(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})

	code, resp := e.do(http.MethodPost, "/flows/"+f.ID+"/advance", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, string(models.APIStatusRejected), resp.Status)
	got := e.flow(resp)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.FieldOnboardingFullName, got.Error.Field)
	assert.Equal(t, 0, got.StepIndex)

	// Typing into the field clears its error.
	code, resp = e.do(http.MethodPost, "/flows/"+f.ID+"/data", dataRequest{Value: "Ada"})
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, e.flow(resp).Error)
}

func TestData_Errors(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})

	code, _ := e.do(http.MethodPost, "/flows/"+f.ID+"/data", dataRequest{Field: "nope", Value: "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPost, "/flows/"+f.ID+"/data", dataRequest{Field: models.FieldGender, Action: "select", Value: "robot"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPost, "/flows/"+f.ID+"/data", dataRequest{Field: models.FieldGender, Value: "text"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPost, "/flows/"+f.ID+"/data", dataRequest{Action: "shout"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPost, "/flows/f_missing/data", dataRequest{Value: "x"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestBackAndJump(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})
	e.set(f.ID, "", "", "Ada Lovelace")
	got := e.advance(f.ID)
	assert.Equal(t, models.FieldGender, got.Step.ID)

	code, resp := e.do(http.MethodPost, "/flows/"+f.ID+"/back", nil)
	require.Equal(t, http.StatusOK, code)
	got = e.flow(resp)
	assert.Equal(t, models.FieldOnboardingFullName, got.Step.ID)
	assert.Equal(t, "Ada Lovelace", got.Values[models.FieldOnboardingFullName].Text, "onboarding back keeps answers")

	code, resp = e.do(http.MethodPost, "/flows/"+f.ID+"/jump", jumpRequest{Step: models.FieldGoals})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, models.FieldGoals, e.flow(resp).Step.ID)

	code, _ = e.do(http.MethodPost, "/flows/"+f.ID+"/jump", jumpRequest{Step: "nowhere"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = e.do(http.MethodPost, "/flows/"+f.ID+"/jump", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSignupWithOnboarding_SavesProfile(t *testing.T) {
	e := newTestEnv(t)
	onboardingID := e.completeOnboarding()

	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth, Mode: models.AuthModeSignup, OnboardingID: onboardingID})
	e.advance(auth.ID)
	e.set(auth.ID, "", "", " Ada@Example.com ")
	got := e.advance(auth.ID)
	require.Equal(t, models.StepVerification, got.Step.ID)
	require.NotNil(t, got.Cooldown)
	assert.False(t, got.Cooldown.CanTrigger(), "cooldown starts on entering verification")
	require.Equal(t, 1, e.provider.SendCount())
	assert.Equal(t, onboardingID, e.provider.SendCalls[0].Opts.Metadata["onboarding_flow_id"])

	e.set(auth.ID, "", "", "123456")
	done := e.advance(auth.ID)
	require.True(t, done.Completed)

	var result models.AuthResult
	require.NoError(t, json.Unmarshal(done.Result, &result))
	assert.Equal(t, "access-ada@example.com", result.Session.AccessToken)

	code, resp := e.do(http.MethodGet, "/profiles?email=ada@example.com", nil)
	require.Equal(t, http.StatusOK, code)
	var profile models.ProfileRecord
	require.NoError(t, json.Unmarshal(resp.Result, &profile))
	assert.Equal(t, "user-ada@example.com", profile.UserID)
	assert.Equal(t, "Ada Lovelace", profile.FullName, "falls back to the onboarding answer")
	assert.True(t, profile.OnboardingCompleted)
	assert.Equal(t, "female", profile.Answers["gender"])
	assert.Equal(t, []any{"endurance", "flexibility"}, profile.Answers["goals"])
}

func TestLogin_DoesNotSaveProfile(t *testing.T) {
	e := newTestEnv(t)
	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth, Mode: models.AuthModeLogin})
	e.advance(auth.ID)
	e.set(auth.ID, "", "", "grace@example.com")
	e.advance(auth.ID)
	e.set(auth.ID, "", "", "654321")
	done := e.advance(auth.ID)
	require.True(t, done.Completed)

	code, _ := e.do(http.MethodGet, "/profiles?email=grace@example.com", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSignupConflict_ContinueAnyway(t *testing.T) {
	e := newTestEnv(t)
	e.provider.SetSendErr(identity.NewProviderError(identity.KindUserAlreadyExists, 422, "User already registered"))

	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth})
	e.advance(auth.ID)
	e.set(auth.ID, "", "", "ada@example.com")

	code, resp := e.do(http.MethodPost, "/flows/"+auth.ID+"/advance", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	got := e.flow(resp)
	require.NotNil(t, got.Error)
	assert.True(t, got.Error.ContinueAnyway)
	assert.Equal(t, models.StepEmail, got.Step.ID)

	e.provider.SetSendErr(nil)
	code, resp = e.do(http.MethodPost, "/flows/"+auth.ID+"/continue-anyway", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	got = e.flow(resp)
	assert.Equal(t, models.AuthModeLogin, got.Mode)
	assert.Equal(t, models.StepVerification, got.Step.ID)

	code, _ = e.do(http.MethodPost, "/flows/"+auth.ID+"/continue-anyway", nil)
	assert.Equal(t, http.StatusConflict, code)
}

func TestResend(t *testing.T) {
	e := newTestEnv(t)
	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth})

	code, _ := e.do(http.MethodPost, "/flows/"+auth.ID+"/resend", nil)
	assert.Equal(t, http.StatusConflict, code, "no code sent yet")

	e.advance(auth.ID)
	e.set(auth.ID, "", "", "ada@example.com")
	e.advance(auth.ID)

	code, _ = e.do(http.MethodPost, "/flows/"+auth.ID+"/resend", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, 1, e.provider.SendCount(), "cooldown blocks the provider call")

	onboarding := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})
	code, _ = e.do(http.MethodPost, "/flows/"+onboarding.ID+"/resend", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestResend_AfterCooldown(t *testing.T) {
	e := newTestEnv(t, WithResendCooldown(0))
	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth})
	e.advance(auth.ID)
	e.set(auth.ID, "", "", "ada@example.com")
	e.advance(auth.ID)

	code, resp := e.do(http.MethodPost, "/flows/"+auth.ID+"/resend", nil)
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Equal(t, 2, e.provider.SendCount())
}

func TestProviderOutage_IsFlowError(t *testing.T) {
	e := newTestEnv(t)
	e.provider.SetSendErr(identity.NewProviderError(identity.KindUnavailable, 503, "service unavailable"))
	auth := e.create(createFlowRequest{Kind: models.FlowKindAuth})
	e.advance(auth.ID)
	e.set(auth.ID, "", "", "ada@example.com")

	code, resp := e.do(http.MethodPost, "/flows/"+auth.ID+"/advance", nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	got := e.flow(resp)
	require.NotNil(t, got.Error)
	assert.Equal(t, models.ScopeFlow, got.Error.Scope)

	code, resp = e.do(http.MethodPost, "/flows/"+auth.ID+"/dismiss", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Nil(t, e.flow(resp).Error)
}

func TestDeleteFlow(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})

	code, _ := e.do(http.MethodDelete, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = e.do(http.MethodGet, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = e.do(http.MethodDelete, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDefinitionHandler(t *testing.T) {
	srv := NewServer(identity.NewMockProvider(), nil)
	e := &testEnv{t: t, srv: srv}

	code, resp := e.do(http.MethodGet, "/definitions/onboarding", nil)
	require.Equal(t, http.StatusOK, code)
	var def definitionView
	require.NoError(t, json.Unmarshal(resp.Result, &def))
	assert.Len(t, def.Steps, 7)
	assert.Equal(t, int64(150), def.FadeOutMS)
	assert.Equal(t, int64(200), def.FadeInMS)

	code, resp = e.do(http.MethodGet, "/definitions/auth", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(resp.Result, &def))
	assert.Len(t, def.Steps, 3)
	require.Len(t, def.Extra, 1)
	assert.Equal(t, models.FieldFullName, def.Extra[0].FieldKey())

	code, _ = e.do(http.MethodGet, "/definitions/survey", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProfileHandler_Validation(t *testing.T) {
	e := newTestEnv(t)
	code, _ := e.do(http.MethodGet, "/profiles?email=not-an-email", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSessions_ReapIdle(t *testing.T) {
	e := newTestEnv(t)
	f := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})
	keep := e.create(createFlowRequest{Kind: models.FlowKindOnboarding})

	sessions := e.srv.Sessions()
	now := time.Now()
	sessions.now = func() time.Time { return now }
	idle, ok := sessions.Peek(f.ID)
	require.True(t, ok)
	idle.touch(now.Add(-time.Hour))
	fresh, ok := sessions.Peek(keep.ID)
	require.True(t, ok)
	fresh.touch(now)

	assert.Equal(t, 1, sessions.ReapIdle(30*time.Minute))
	assert.Equal(t, 1, sessions.Len())
	assert.True(t, idle.Snapshot().Closed)

	code, _ := e.do(http.MethodGet, "/flows/"+f.ID, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrProfileNotFound))
}

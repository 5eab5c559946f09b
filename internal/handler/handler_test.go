package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/otp"
	"github.com/breezeauth/riskgate/internal/repository"
	"github.com/breezeauth/riskgate/internal/service"
)

// memEvents is an in-memory service.EventStore
type memEvents struct {
	mu     sync.Mutex
	events []*model.Event
}

func (m *memEvents) Append(_ context.Context, e *model.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memEvents) List(_ context.Context, f repository.EventFilter) ([]*model.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Event
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		if f.SessionID != "" && e.SessionID != f.SessionID {
			continue
		}
		if len(f.Kinds) > 0 && !slices.Contains(f.Kinds, e.Kind) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (m *memEvents) Stats(context.Context) (*repository.EventStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &repository.EventStats{}
	for _, e := range m.events {
		if e.RiskScore >= repository.HighRiskScore {
			s.HighRiskEvents++
		}
		switch e.Kind {
		case model.EventOTPAttempt:
			s.OTPAttempts++
			if e.OTP.IsValid {
				s.OTPSucceeded++
			} else {
				s.OTPFailed++
			}
		case model.EventShopActivity:
			s.ShopActivities++
			s.ProductViews += len(e.Shop.ProductViews)
		case model.EventRiskAssessment:
			s.RiskAssessments++
		}
	}
	return s, nil
}

func (m *memEvents) CountSessions(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]struct{}{}
	for _, e := range m.events {
		seen[e.SessionID] = struct{}{}
	}
	return len(seen), nil
}

func (m *memEvents) all() []*model.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.events)
}

// memAnalytics is an in-memory service.AnalyticsStore
type memAnalytics struct {
	mu   sync.Mutex
	rows []*model.UserAnalytics
}

func (m *memAnalytics) Create(_ context.Context, a *model.UserAnalytics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, a)
	return nil
}

func (m *memAnalytics) List(_ context.Context, limit int) ([]*model.UserAnalytics, error) {
	return m.ListBySession(context.Background(), "", limit)
}

func (m *memAnalytics) ListBySession(_ context.Context, sessionID string, limit int) ([]*model.UserAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.UserAnalytics
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if sessionID == "" || m.rows[i].SessionID == sessionID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *memAnalytics) AverageTypingSpeed(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rows) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range m.rows {
		sum += r.TypingWPM
	}
	return sum / float64(len(m.rows)), nil
}

type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

type testEnv struct {
	h         *Handler
	events    *memEvents
	analytics *memAnalytics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := logger.Nop()

	issuer, err := otp.NewStaticIssuer("123456")
	require.NoError(t, err)
	gate := otp.NewGate(otp.NewMemoryStore(), issuer, nil, otp.Config{Threshold: 70}, log)

	events := &memEvents{}
	analytics := &memAnalytics{}
	attemptLog := service.NewAttemptLog(events, nil, time.Second, log)

	h := New(log,
		service.NewRiskService(gate, attemptLog, log),
		service.NewOTPService(gate, attemptLog, log),
		service.NewActivityService(events, analytics, attemptLog, nil, time.Second, 100, log),
		nil,
		map[string]HealthChecker{"postgres": stubChecker{}},
	)
	return &testEnv{h: h, events: events, analytics: analytics}
}

func post(h http.HandlerFunc, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestValidateOTP_StaticCodeRecordsOneValidAttempt(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"123456","riskScore":85}`,
		"X-Forwarded-For", "203.0.113.7, 10.0.0.1", "User-Agent", "test-agent")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "OTP validated successfully", body["message"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.NotEmpty(t, body["timestamp"])
	assert.EqualValues(t, 2000, body["dismissAfterMs"])

	events := env.events.all()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, model.EventOTPAttempt, e.Kind)
	assert.True(t, e.OTP.IsValid)
	assert.Equal(t, 85, e.RiskScore)
	require.NotNil(t, e.IPAddress)
	assert.Equal(t, "203.0.113.7", *e.IPAddress)
	require.NotNil(t, e.UserAgent)
	assert.Equal(t, "test-agent", *e.UserAgent)
}

func TestValidateOTP_MissingFields(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing risk score", `{"sessionId":"s1","otpCode":"123456"}`},
		{"missing code", `{"sessionId":"s1","riskScore":85}`},
		{"missing session", `{"otpCode":"123456","riskScore":85}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(env.h.ValidateOTP, tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, "Missing required fields: sessionId, otpCode, riskScore", body["error"])
		})
	}
	assert.Empty(t, env.events.all())
}

func TestValidateOTP_ZeroRiskScoreIsPresent(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"123456","riskScore":0}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.events.all(), 1)
}

func TestValidateOTP_OutOfRangeRiskScoreConsumesNothing(t *testing.T) {
	for _, score := range []string{"150", "-5", "101"} {
		t.Run(score, func(t *testing.T) {
			env := newTestEnv(t)

			rec := post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"123456","riskScore":`+score+`}`)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, "Invalid risk score", body["error"])
			assert.Equal(t, "riskScore must be between 0 and 100.", body["message"])
			assert.Empty(t, env.events.all())

			rec = post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"000000","riskScore":85}`)
			assert.EqualValues(t, 2, decode(t, rec)["attemptsRemaining"])
		})
	}
}

func TestValidateOTP_BoundaryRiskScoresAccepted(t *testing.T) {
	env := newTestEnv(t)

	for i, score := range []string{"0", "100"} {
		rec := post(env.h.ValidateOTP, `{"sessionId":"s`+score+`","otpCode":"123456","riskScore":`+score+`}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, env.events.all(), i+1)
	}
}

func TestValidateOTP_InvalidFormatConsumesNothing(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"12ab56","riskScore":85}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid OTP format", decode(t, rec)["error"])
	assert.Empty(t, env.events.all())

	// the full attempt budget is still available
	rec = post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"000000","riskScore":85}`)
	assert.EqualValues(t, 2, decode(t, rec)["attemptsRemaining"])
}

func TestValidateOTP_WrongCodesLockChallenge(t *testing.T) {
	env := newTestEnv(t)
	body := `{"sessionId":"s1","otpCode":"000000","riskScore":85}`

	rec := post(env.h.ValidateOTP, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, "Invalid OTP code", got["error"])
	assert.Equal(t, "The OTP code you entered is incorrect. Please try again.", got["message"])
	assert.EqualValues(t, 2, got["attemptsRemaining"])

	rec = post(env.h.ValidateOTP, body)
	assert.EqualValues(t, 1, decode(t, rec)["attemptsRemaining"])

	rec = post(env.h.ValidateOTP, body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	got = decode(t, rec)
	assert.Equal(t, "OTP challenge locked", got["error"])
	assert.Equal(t, true, got["locked"])
	assert.EqualValues(t, 0, got["attemptsRemaining"])
	assert.EqualValues(t, 3000, got["dismissAfterMs"])

	// a correct code no longer helps
	rec = post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"123456","riskScore":85}`)
	assert.Equal(t, true, decode(t, rec)["locked"])

	assert.Len(t, env.events.all(), 4)
}

func TestValidateOTP_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.ValidateOTP, `{not json`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Internal server error", body["error"])
	assert.NotEmpty(t, body["message"])
}

func TestRiskScore_HighRiskOpensChallenge(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.RiskScore, `{
		"sessionId": "s1",
		"typing": {"keystrokes": 100, "backspaces": 40, "wpm": 150, "accuracy": 60},
		"mouse": {"clicks": 150, "averageSpeed": 1500},
		"sessionDuration": 30000,
		"pageUrl": "https://shop.example.com/",
		"timestamp": "2025-06-01T12:00:00Z"
	}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.EqualValues(t, 80, body["riskScore"])
	assert.Equal(t, "high", body["riskLevel"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.Equal(t, true, body["otpRequired"])
	assert.EqualValues(t, 3, body["attemptsRemaining"])
	assert.Equal(t, map[string]interface{}{
		"typing": "analyzed",
		"mouse":  "analyzed",
		"focus":  "not available",
		"scroll": "not available",
	}, body["factors"])

	events := env.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventRiskAssessment, events[0].Kind)
	assert.True(t, events[0].Risk.OTPRequired)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/challenge", nil)
	req.SetPathValue("sessionId", "s1")
	crec := httptest.NewRecorder()
	env.h.GetChallenge(crec, req)
	require.Equal(t, http.StatusOK, crec.Code)
	challenge := decode(t, crec)["challenge"].(map[string]interface{})
	assert.Equal(t, "pending", challenge["state"])
}

func TestRiskScore_LowRiskOmitsOTPRequired(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.RiskScore, `{"sessionId":"s1","sessionDuration":120000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.EqualValues(t, 0, body["riskScore"])
	assert.Equal(t, "low", body["riskLevel"])
	assert.NotContains(t, body, "otpRequired")
}

func TestRiskScore_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.RiskScore, `[]`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Failed to calculate risk score", body["error"])
}

func TestResendAndDismiss(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.ResendOTP, `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = post(env.h.ResendOTP, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// open a challenge through a failed attempt
	post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"000000","riskScore":85}`)

	rec = post(env.h.ResendOTP, `{"sessionId":"s1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode(t, rec)["attemptsRemaining"])

	rec = post(env.h.DismissOTP, `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = post(env.h.ResendOTP, `{"sessionId":"s1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordAnalytics(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.RecordAnalytics, `{"mouseClicks":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(env.h.RecordAnalytics, `{"sessionId":"s1","mouseClicks":3,"typingKeystrokes":7,"typingWpm":40}`, "User-Agent", "ua")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["persisted"])

	require.Len(t, env.analytics.rows, 1)
	row := env.analytics.rows[0]
	assert.Equal(t, 10, row.InteractionsCount)
	require.NotNil(t, row.UserAgent)
	assert.Equal(t, "ua", *row.UserAgent)
}

func TestRecordShopActivity(t *testing.T) {
	env := newTestEnv(t)

	rec := post(env.h.RecordShopActivity, `{"sessionId":"s1"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No shop activity to record", decode(t, rec)["error"])

	rec = post(env.h.RecordShopActivity, `{"sessionId":"s1","productViews":[3,4],"cartActions":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	events := env.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventShopActivity, events[0].Kind)
	assert.Equal(t, []int{3, 4}, events[0].Shop.ProductViews)
}

func TestAdminViews(t *testing.T) {
	env := newTestEnv(t)

	post(env.h.ValidateOTP, `{"sessionId":"s1","otpCode":"123456","riskScore":85}`)
	post(env.h.RecordShopActivity, `{"sessionId":"s1","productViews":[3]}`)
	post(env.h.RecordAnalytics, `{"sessionId":"s1","typingWpm":50,"mouseClicks":2}`)

	req := httptest.NewRequest(http.MethodGet, "/sessions/s1/activity", nil)
	req.SetPathValue("sessionId", "s1")
	rec := httptest.NewRecorder()
	env.h.GetSessionActivity(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Len(t, data["otpAttempts"], 1)
	assert.Len(t, data["riskEvents"], 1)
	assert.EqualValues(t, 2, data["totalInteractions"])

	rec = httptest.NewRecorder()
	env.h.ListOTPAttempts(rec, httptest.NewRequest(http.MethodGet, "/otp-attempts?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["count"])

	rec = httptest.NewRecorder()
	env.h.Dashboard(rec, httptest.NewRequest(http.MethodGet, "/dashboard", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)["data"].(map[string]interface{})
	assert.EqualValues(t, 1, stats["totalSessions"])
	assert.EqualValues(t, 1, stats["otpSucceeded"])
	assert.EqualValues(t, 1, stats["productViews"])
	assert.EqualValues(t, 50, stats["avgTypingSpeed"])
}

func TestLiveFeedDisabled(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.h.LiveFeed(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := httptest.NewRecorder()
	env.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, map[string]interface{}{"threshold": float64(70), "maxAttempts": float64(3)}, body["gate"])
	assert.NotContains(t, body, "liveClients")

	env.h.checks["redis"] = stubChecker{err: errors.New("down")}

	rec = httptest.NewRecorder()
	env.h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unhealthy", body["services"].(map[string]interface{})["redis"])

	rec = httptest.NewRecorder()
	env.h.Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

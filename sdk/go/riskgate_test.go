package riskgate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL + "/"}), &calls
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

func TestSubmitMetrics(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/risk-score", r.URL.Path)
		assert.Equal(t, "riskgate-go", r.Header.Get("User-Agent"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeBody(w, http.StatusOK, `{"success":true,"riskScore":80,"riskLevel":"high","sessionId":"s1",
			"factors":{"typing":"analyzed","mouse":"analyzed","focus":"not available","scroll":"not available"},
			"otpRequired":true,"attemptsRemaining":3}`)
	})

	res, err := c.SubmitMetrics(context.Background(), "s1", BehaviorMetrics{
		Typing:          &TypingMetrics{Keystrokes: 10, WPM: 150},
		SessionDuration: 30_000,
	}, "https://shop.example.com/")
	require.NoError(t, err)

	assert.Equal(t, 80, res.RiskScore)
	assert.Equal(t, RiskLevel("high"), res.RiskLevel)
	assert.True(t, res.OTPRequired)
	require.NotNil(t, res.AttemptsRemaining)
	assert.Equal(t, 3, *res.AttemptsRemaining)
	assert.Equal(t, "analyzed", res.Factors.Typing)

	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, "https://shop.example.com/", got["pageUrl"])
	assert.EqualValues(t, 30000, got["sessionDuration"])
	assert.EqualValues(t, 150, got["typing"].(map[string]interface{})["wpm"])
	assert.NotEmpty(t, got["timestamp"])
}

func TestSubmitMetrics_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusInternalServerError, `{"success":false,"error":"Failed to calculate risk score","message":"boom"}`)
	})

	_, err := c.SubmitMetrics(context.Background(), "s1", BehaviorMetrics{}, "")
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Failed to calculate risk score", apiErr.Code)
	assert.Equal(t, "boom", apiErr.Message)
}

func TestValidateOTP_RejectsMalformedCodeLocally(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"success":true}`)
	})

	for _, code := range []string{"", "12345", "1234567", "12a456", "١٢٣٤٥٦"} {
		_, err := c.ValidateOTP(context.Background(), "s1", code, 80)
		assert.ErrorIs(t, err, ErrInvalidCode, code)
	}
	_, err := c.ValidateOTP(context.Background(), "", "123456", 80)
	assert.ErrorIs(t, err, ErrMissingSession)

	assert.Zero(t, calls.Load())
}

func TestValidateOTP_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		valid     bool
		locked    bool
		remaining int
	}{
		{"validated", http.StatusOK, `{"success":true,"message":"OTP validated successfully","sessionId":"s1","dismissAfterMs":2000}`, true, false, -1},
		{"rejected", http.StatusBadRequest, `{"success":false,"error":"Invalid OTP code","sessionId":"s1","attemptsRemaining":2}`, false, false, 2},
		{"locked", http.StatusBadRequest, `{"success":false,"error":"OTP challenge locked","sessionId":"s1","attemptsRemaining":0,"locked":true,"dismissAfterMs":3000}`, false, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req map[string]interface{}
			c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/validate-otp", r.URL.Path)
				json.NewDecoder(r.Body).Decode(&req)
				writeBody(w, tt.status, tt.body)
			})

			res, err := c.ValidateOTP(context.Background(), "s1", "123456", 85)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid())
			assert.Equal(t, tt.locked, res.Locked)
			if tt.remaining >= 0 {
				require.NotNil(t, res.AttemptsRemaining)
				assert.Equal(t, tt.remaining, *res.AttemptsRemaining)
			}
			assert.Equal(t, map[string]interface{}{"sessionId": "s1", "otpCode": "123456", "riskScore": float64(85)}, req)
		})
	}
}

func TestValidateOTP_MissingFieldsIsAnError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusBadRequest, `{"success":false,"error":"Missing required fields: sessionId, otpCode, riskScore"}`)
	})

	_, err := c.ValidateOTP(context.Background(), "s1", "123456", 85)
	apiErr, ok := IsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestResendOTP(t *testing.T) {
	var open atomic.Bool
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !open.Load() {
			writeBody(w, http.StatusNotFound, `{"success":false,"error":"No active OTP challenge"}`)
			return
		}
		writeBody(w, http.StatusOK, `{"success":true,"sessionId":"s1","attemptsRemaining":2,"expiresAt":"2025-06-01T12:10:00Z"}`)
	})

	_, err := c.ResendOTP(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrNoChallenge)

	open.Store(true)
	res, err := c.ResendOTP(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.AttemptsRemaining)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 10, 0, 0, time.UTC), res.ExpiresAt)
}

func TestRateLimited(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusTooManyRequests, `{"success":false,"error":"Too many requests"}`)
	})

	err := c.DismissOTP(context.Background(), "s1")
	assert.True(t, errors.Is(err, ErrRateLimited))
}

func TestRecordShopActivity(t *testing.T) {
	var got map[string]interface{}
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/shop-activity", r.URL.Path)
		json.NewDecoder(r.Body).Decode(&got)
		writeBody(w, http.StatusOK, `{"success":true}`)
	})

	require.NoError(t, c.RecordShopActivity(context.Background(), "s1", ShopActivity{ProductViews: []int{7}, CartActions: 1}))
	assert.Equal(t, "s1", got["sessionId"])
	assert.Equal(t, []interface{}{float64(7)}, got["productViews"])
}

func TestContextCancellation(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.SubmitMetrics(ctx, "s1", BehaviorMetrics{}, "")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package riskgate

import (
	"time"

	"github.com/breezeauth/riskgate/internal/model"
)

// Metric groups as collected by internal/collector and scored by the service.
type (
	BehaviorMetrics = model.BehaviorMetrics
	TypingMetrics   = model.TypingMetrics
	MouseMetrics    = model.MouseMetrics
	ScrollMetrics   = model.ScrollMetrics
	FocusMetrics    = model.FocusMetrics
	Snapshot        = model.Snapshot
	ShopActivity    = model.ShopActivity
	RiskLevel       = model.RiskLevel
	RiskFactors     = model.RiskFactors
)

// riskScoreRequest is the body posted to /risk-score.
type riskScoreRequest struct {
	BehaviorMetrics
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
	PageURL   string    `json:"pageUrl,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
}

// RiskScore is the service's assessment of one snapshot.
type RiskScore struct {
	Success     bool        `json:"success"`
	RiskScore   int         `json:"riskScore"`
	RiskLevel   RiskLevel   `json:"riskLevel"`
	Timestamp   time.Time   `json:"timestamp"`
	SessionID   string      `json:"sessionId"`
	Factors     RiskFactors `json:"factors"`
	OTPRequired bool        `json:"otpRequired"`
	// AttemptsRemaining is set when a challenge is open for the session.
	AttemptsRemaining *int `json:"attemptsRemaining,omitempty"`
}

// validateOTPRequest is the body posted to /validate-otp.
type validateOTPRequest struct {
	SessionID string `json:"sessionId"`
	OTPCode   string `json:"otpCode"`
	RiskScore int    `json:"riskScore"`
}

// OTPResult is the outcome of one code submission. Wrong and locked outcomes
// are results, not errors.
type OTPResult struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message"`
	Error             string    `json:"error"`
	SessionID         string    `json:"sessionId"`
	Timestamp         time.Time `json:"timestamp"`
	AttemptsRemaining *int      `json:"attemptsRemaining"`
	Locked            bool      `json:"locked"`
	DismissAfterMs    int64     `json:"dismissAfterMs"`
}

// Valid reports whether the code was accepted.
func (r *OTPResult) Valid() bool {
	return r.Success
}

// DismissAfter is how long the prompt should stay open before closing itself.
func (r *OTPResult) DismissAfter() time.Duration {
	return time.Duration(r.DismissAfterMs) * time.Millisecond
}

// ResendResult describes the challenge after a resend.
type ResendResult struct {
	SessionID         string    `json:"sessionId"`
	AttemptsRemaining int       `json:"attemptsRemaining"`
	ExpiresAt         time.Time `json:"expiresAt"`
}

// shopActivityRequest is the body posted to /shop-activity.
type shopActivityRequest struct {
	SessionID string `json:"sessionId"`
	ShopActivity
}

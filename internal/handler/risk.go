package handler

import (
	"net/http"
	"time"

	"github.com/breezeauth/riskgate/internal/model"
)

// riskScoreRequest is a behavior snapshot as posted by the page
type riskScoreRequest struct {
	model.BehaviorMetrics
	SessionID string `json:"sessionId"`
	PageURL   string `json:"pageUrl,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

type riskScoreResponse struct {
	Success     bool              `json:"success"`
	RiskScore   int               `json:"riskScore"`
	RiskLevel   model.RiskLevel   `json:"riskLevel"`
	Timestamp   time.Time         `json:"timestamp"`
	SessionID   string            `json:"sessionId"`
	Factors     model.RiskFactors `json:"factors"`
	OTPRequired bool              `json:"otpRequired,omitempty"`
	// AttemptsRemaining is set when a challenge is open for the session
	AttemptsRemaining *int `json:"attemptsRemaining,omitempty"`
}

// RiskScore scores a behavior snapshot and opens a challenge when it is risky
func (h *Handler) RiskScore(w http.ResponseWriter, r *http.Request) {
	var req riskScoreRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to calculate risk score", err.Error())
		return
	}

	res := h.riskSvc.Assess(r.Context(), req.SessionID, req.BehaviorMetrics, requestMeta(r))

	resp := riskScoreResponse{
		Success:     true,
		RiskScore:   res.Score,
		RiskLevel:   res.Level,
		Timestamp:   res.Timestamp,
		SessionID:   req.SessionID,
		Factors:     res.Factors,
		OTPRequired: res.OTPRequired,
	}
	if res.Challenge != nil {
		n := res.Challenge.AttemptsRemaining
		resp.AttemptsRemaining = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

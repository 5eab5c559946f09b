package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/otp"
	"github.com/breezeauth/riskgate/internal/risk"
)

type validateOTPRequest struct {
	SessionID string `json:"sessionId"`
	OTPCode   string `json:"otpCode"`
	// RiskScore is a pointer so an explicit 0 is told apart from a missing field.
	RiskScore *int `json:"riskScore"`
}

type validateOTPResponse struct {
	Success           bool      `json:"success"`
	Message           string    `json:"message,omitempty"`
	Error             string    `json:"error,omitempty"`
	SessionID         string    `json:"sessionId"`
	Timestamp         time.Time `json:"timestamp,omitzero"`
	AttemptsRemaining *int      `json:"attemptsRemaining,omitempty"`
	Locked            bool      `json:"locked,omitempty"`
	// DismissAfterMs tells the prompt how long to stay open before closing itself.
	DismissAfterMs int64 `json:"dismissAfterMs,omitempty"`
}

type sessionRequest struct {
	SessionID string `json:"sessionId"`
}

// ValidateOTP checks a submitted code against the session's challenge
func (h *Handler) ValidateOTP(w http.ResponseWriter, r *http.Request) {
	var req validateOTPRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}

	if req.SessionID == "" || req.OTPCode == "" || req.RiskScore == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields: sessionId, otpCode, riskScore", "")
		return
	}
	// otp_attempts rejects scores outside the scorer's range
	if *req.RiskScore < risk.MinScore || *req.RiskScore > risk.MaxScore {
		writeError(w, http.StatusBadRequest, "Invalid risk score", "riskScore must be between 0 and 100.")
		return
	}

	res, err := h.otpSvc.Validate(r.Context(), req.SessionID, req.OTPCode, *req.RiskScore, requestMeta(r))
	if err != nil {
		if errors.Is(err, otp.ErrInvalidCodeFormat) {
			writeJSON(w, http.StatusBadRequest, validateOTPResponse{
				Error:     "Invalid OTP format",
				Message:   "The OTP code must be exactly 6 digits.",
				SessionID: req.SessionID,
			})
			return
		}
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to validate otp")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to validate OTP")
		return
	}

	switch res.Outcome {
	case model.OutcomeValidated:
		writeJSON(w, http.StatusOK, validateOTPResponse{
			Success:        true,
			Message:        "OTP validated successfully",
			SessionID:      req.SessionID,
			Timestamp:      time.Now().UTC(),
			DismissAfterMs: res.DismissAfter.Milliseconds(),
		})
	case model.OutcomeLocked:
		remaining := 0
		writeJSON(w, http.StatusBadRequest, validateOTPResponse{
			Error:             "OTP challenge locked",
			Message:           "Too many incorrect attempts. Please try again later.",
			SessionID:         req.SessionID,
			AttemptsRemaining: &remaining,
			Locked:            true,
			DismissAfterMs:    res.DismissAfter.Milliseconds(),
		})
	default:
		remaining := res.AttemptsRemaining
		writeJSON(w, http.StatusBadRequest, validateOTPResponse{
			Error:             "Invalid OTP code",
			Message:           "The OTP code you entered is incorrect. Please try again.",
			SessionID:         req.SessionID,
			AttemptsRemaining: &remaining,
		})
	}
}

// ResendOTP re-delivers the outstanding code for a session
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readJSON(w, r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: sessionId", "")
		return
	}

	c, err := h.otpSvc.Resend(r.Context(), req.SessionID, requestMeta(r))
	if err != nil {
		switch {
		case errors.Is(err, otp.ErrChallengeNotFound):
			writeError(w, http.StatusNotFound, "No active OTP challenge", "")
		case errors.Is(err, otp.ErrChallengeLocked):
			writeError(w, http.StatusConflict, "OTP challenge locked", "Too many incorrect attempts. Please try again later.")
		default:
			h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to resend otp")
			writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to resend OTP")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"message":           "OTP code resent",
		"sessionId":         req.SessionID,
		"attemptsRemaining": c.AttemptsRemaining,
		"expiresAt":         c.ExpiresAt,
	})
}

// DismissOTP closes the session's prompt. A locked challenge stays locked.
func (h *Handler) DismissOTP(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := readJSON(w, r, &req); err != nil || req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "Missing required field: sessionId", "")
		return
	}

	if err := h.otpSvc.Dismiss(r.Context(), req.SessionID); err != nil {
		h.log.Error().Err(err).Str("session_id", req.SessionID).Msg("failed to dismiss otp")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to dismiss OTP")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"sessionId": req.SessionID,
	})
}

// GetChallenge reports the session's open challenge, if any
func (h *Handler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	c, err := h.otpSvc.Gate().Get(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, otp.ErrChallengeNotFound) {
			writeError(w, http.StatusNotFound, "No active OTP challenge", "")
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to load challenge")
		writeError(w, http.StatusInternalServerError, "Internal server error", "Failed to load challenge")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"challenge": c,
	})
}

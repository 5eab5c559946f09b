package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/otp"
)

// OTPService runs code submissions through the gate and records each one
type OTPService struct {
	gate       *otp.Gate
	attemptLog *AttemptLog
	log        *logger.Logger
}

// NewOTPService creates a new OTPService
func NewOTPService(gate *otp.Gate, attemptLog *AttemptLog, log *logger.Logger) *OTPService {
	return &OTPService{
		gate:       gate,
		attemptLog: attemptLog,
		log:        log.WithComponent("otp_service"),
	}
}

// Validate submits code for sessionID. Every format-valid submission that
// reaches an outcome is appended to the attempt log exactly once.
func (s *OTPService) Validate(ctx context.Context, sessionID, code string, riskScore int, meta RequestMeta) (*otp.Result, error) {
	res, err := s.gate.Submit(ctx, sessionID, code, riskScore, meta.Recipient)
	if err != nil {
		if errors.Is(err, otp.ErrInvalidCodeFormat) {
			metrics.OTPAttemptsTotal.WithLabelValues("invalid_format").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("failed to submit code: %w", err)
	}

	metrics.OTPAttemptsTotal.WithLabelValues(res.Outcome).Inc()
	s.log.OTPAttempt(sessionID, res.Outcome, res.AttemptsRemaining, riskScore, meta.IPAddress)
	s.attemptLog.RecordOTPAttempt(ctx, sessionID, code, riskScore, res.Outcome, res.AttemptsRemaining, meta)

	return res, nil
}

// Resend re-delivers the outstanding code for sessionID
func (s *OTPService) Resend(ctx context.Context, sessionID string, meta RequestMeta) (*model.Challenge, error) {
	c, err := s.gate.Resend(ctx, sessionID, meta.Recipient)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("session_id", sessionID).Int("resends", c.Resends).Msg("otp code resent")
	return c, nil
}

// Dismiss closes the session's prompt
func (s *OTPService) Dismiss(ctx context.Context, sessionID string) error {
	if err := s.gate.Dismiss(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to dismiss challenge: %w", err)
	}
	return nil
}

// Gate exposes the gate's settings to handlers
func (s *OTPService) Gate() *otp.Gate {
	return s.gate
}

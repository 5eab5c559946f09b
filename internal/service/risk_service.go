package service

import (
	"context"
	"time"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/otp"
	"github.com/breezeauth/riskgate/internal/risk"
)

// AssessResult is a scored snapshot plus the gate's reaction to it
type AssessResult struct {
	model.RiskAssessment
	// OTPRequired is set when a challenge is open for the session after scoring.
	OTPRequired bool
	Challenge   *model.Challenge
}

// RiskService scores behavior snapshots and opens challenges for risky ones
type RiskService struct {
	gate       *otp.Gate
	attemptLog *AttemptLog
	log        *logger.Logger
	now        func() time.Time
}

// NewRiskService creates a new RiskService
func NewRiskService(gate *otp.Gate, attemptLog *AttemptLog, log *logger.Logger) *RiskService {
	return &RiskService{
		gate:       gate,
		attemptLog: attemptLog,
		log:        log.WithComponent("risk_service"),
		now:        time.Now,
	}
}

// Assess scores m for sessionID. Scoring never fails; gate and log errors are
// logged and leave OTPRequired reflecting the score alone.
func (s *RiskService) Assess(ctx context.Context, sessionID string, m model.BehaviorMetrics, meta RequestMeta) *AssessResult {
	a := risk.Assess(sessionID, m, s.now())

	metrics.RiskAssessmentsTotal.WithLabelValues(string(a.Level)).Inc()
	metrics.RiskScore.Observe(float64(a.Score))
	for _, name := range a.Triggered {
		metrics.RiskRuleHitsTotal.WithLabelValues(name).Inc()
	}
	s.log.Assessment(sessionID, a.Score, string(a.Level), a.Triggered)

	res := &AssessResult{RiskAssessment: a}
	if sessionID == "" {
		// anonymous scoring: nothing to gate or log against
		return res
	}

	if s.gate.Requires(a.Score) {
		res.OTPRequired = true
		c, created, err := s.gate.Trigger(ctx, sessionID, a.Score, meta.Recipient)
		if err != nil {
			s.log.Error().Err(err).Str("session_id", sessionID).Msg("failed to open challenge")
		} else {
			if created {
				metrics.ChallengesIssuedTotal.Inc()
			}
			res.Challenge = c
		}
	}

	s.attemptLog.RecordAssessment(ctx, &res.RiskAssessment, res.OTPRequired, meta)
	return res
}

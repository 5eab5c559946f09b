// Package otp implements the one-time-code gate that high-risk sessions must pass.
//
// A session is idle until Trigger (or a first Submit) opens a pending
// challenge. A correct code validates and discards the challenge; running out
// of attempts locks it until it expires. Code generation and delivery are
// delegated to an Issuer and a Deliverer.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
)

// CodeLength is the number of digits in every code
const CodeLength = 6

// Gate errors
var (
	ErrInvalidCodeFormat  = errors.New("code must be exactly 6 digits")
	ErrChallengeNotFound  = errors.New("no active challenge for session")
	ErrChallengeLocked    = errors.New("challenge is locked")
	ErrMissingSecret      = errors.New("challenge has no issuer secret")
	ErrNoDeliveryAddress  = errors.New("recipient has no delivery address")
	ErrChallengeNotNeeded = errors.New("risk score does not require a challenge")
)

// Config holds gate settings
type Config struct {
	Threshold      int
	MaxAttempts    int
	TTL            time.Duration
	LockRetention  time.Duration
	SuccessDismiss time.Duration
	LockDismiss    time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.LockRetention <= 0 {
		c.LockRetention = 15 * time.Minute
	}
	if c.SuccessDismiss <= 0 {
		c.SuccessDismiss = 2 * time.Second
	}
	if c.LockDismiss <= 0 {
		c.LockDismiss = 3 * time.Second
	}
}

// Result describes the outcome of one submitted code
type Result struct {
	Outcome           string
	AttemptsRemaining int
	// DismissAfter is how long the client keeps the challenge on screen before closing it
	DismissAfter time.Duration
	Challenge    *model.Challenge
}

// Valid reports whether the code was accepted
func (r *Result) Valid() bool {
	return r.Outcome == model.OutcomeValidated
}

// Gate drives challenges through pending, validated and locked
type Gate struct {
	store     Store
	issuer    Issuer
	deliverer Deliverer
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

// NewGate creates a Gate
func NewGate(store Store, issuer Issuer, deliverer Deliverer, cfg Config, log *logger.Logger) *Gate {
	cfg.applyDefaults()
	if deliverer == nil {
		deliverer = NopDeliverer{}
	}
	return &Gate{
		store:     store,
		issuer:    issuer,
		deliverer: deliverer,
		cfg:       cfg,
		log:       log.WithComponent("otp_gate"),
		now:       time.Now,
	}
}

// Config returns the effective gate settings
func (g *Gate) Config() Config {
	return g.cfg
}

// Requires reports whether a score opens a challenge
func (g *Gate) Requires(riskScore int) bool {
	return riskScore > g.cfg.Threshold
}

// Trigger opens a challenge when riskScore is above the threshold. It returns
// the active challenge and whether it was created by this call.
func (g *Gate) Trigger(ctx context.Context, sessionID string, riskScore int, to model.Recipient) (*model.Challenge, bool, error) {
	if !g.Requires(riskScore) {
		return nil, false, ErrChallengeNotNeeded
	}

	c, err := g.Get(ctx, sessionID)
	if err == nil {
		return c, false, nil
	}
	if !errors.Is(err, ErrChallengeNotFound) {
		return nil, false, err
	}
	return g.open(ctx, sessionID, riskScore, to)
}

// Get returns the active challenge with AttemptsRemaining computed
func (g *Gate) Get(ctx context.Context, sessionID string) (*model.Challenge, error) {
	c, err := g.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.IsExpired(g.now()) {
		_ = g.store.Delete(ctx, sessionID)
		return nil, ErrChallengeNotFound
	}
	c.AttemptsRemaining = max(g.cfg.MaxAttempts-c.Failures, 0)
	if c.AttemptsRemaining == 0 {
		c.State = model.ChallengeLocked
	}
	return c, nil
}

func (g *Gate) open(ctx context.Context, sessionID string, riskScore int, to model.Recipient) (*model.Challenge, bool, error) {
	now := g.now()
	c := &model.Challenge{
		SessionID:         sessionID,
		RiskScore:         riskScore,
		State:             model.ChallengePending,
		AttemptsRemaining: g.cfg.MaxAttempts,
		CreatedAt:         now,
		ExpiresAt:         now.Add(g.cfg.TTL),
	}
	if err := g.issuer.Prepare(c); err != nil {
		return nil, false, fmt.Errorf("failed to prepare challenge: %w", err)
	}

	created, err := g.store.Create(ctx, c, g.cfg.TTL)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// another request opened it first
		existing, err := g.Get(ctx, sessionID)
		return existing, false, err
	}

	g.log.Info().
		Str("session_id", sessionID).
		Int("risk_score", riskScore).
		Str("issuer", g.issuer.Name()).
		Msg("otp challenge opened")

	g.deliver(ctx, c, to)
	return c, true, nil
}

// deliver sends the current code. Delivery failures do not fail the gate;
// the user can ask for a resend.
func (g *Gate) deliver(ctx context.Context, c *model.Challenge, to model.Recipient) {
	code, err := g.issuer.Code(c, g.now())
	if err != nil {
		g.log.Error().Err(err).Str("session_id", c.SessionID).Msg("failed to derive challenge code")
		return
	}
	if err := g.deliverer.Deliver(ctx, to, code, c); err != nil {
		if errors.Is(err, ErrNoDeliveryAddress) {
			g.log.Debug().Str("session_id", c.SessionID).Msg("challenge code not delivered, no address")
			return
		}
		g.log.Error().Err(err).Str("session_id", c.SessionID).Msg("failed to deliver challenge code")
	}
}

// Submit checks a code against the session's challenge, opening one first if
// the session is idle. Codes that are not six digits are rejected with
// ErrInvalidCodeFormat and do not consume an attempt.
func (g *Gate) Submit(ctx context.Context, sessionID, code string, riskScore int, to model.Recipient) (*Result, error) {
	if err := ValidateCodeFormat(code); err != nil {
		return nil, err
	}

	c, err := g.Get(ctx, sessionID)
	if errors.Is(err, ErrChallengeNotFound) {
		c, _, err = g.open(ctx, sessionID, riskScore, to)
	}
	if err != nil {
		return nil, err
	}

	if c.State == model.ChallengeLocked {
		return &Result{
			Outcome:           model.OutcomeLocked,
			AttemptsRemaining: 0,
			DismissAfter:      g.cfg.LockDismiss,
			Challenge:         c,
		}, nil
	}

	if g.issuer.Verify(c, code, g.now()) {
		if err := g.store.Delete(ctx, sessionID); err != nil {
			g.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to discard validated challenge")
		}
		c.State = model.ChallengeValidated
		return &Result{
			Outcome:           model.OutcomeValidated,
			AttemptsRemaining: c.AttemptsRemaining,
			DismissAfter:      g.cfg.SuccessDismiss,
			Challenge:         c,
		}, nil
	}

	failures, err := g.store.RecordFailure(ctx, sessionID, g.cfg.TTL)
	if err != nil {
		return nil, err
	}
	c.Failures = failures
	c.AttemptsRemaining = max(g.cfg.MaxAttempts-failures, 0)

	if c.AttemptsRemaining > 0 {
		return &Result{
			Outcome:           model.OutcomeRejected,
			AttemptsRemaining: c.AttemptsRemaining,
			Challenge:         c,
		}, nil
	}

	c.State = model.ChallengeLocked
	c.ExpiresAt = g.now().Add(g.cfg.LockRetention)
	if err := g.store.Save(ctx, c, g.cfg.LockRetention); err != nil {
		g.log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to persist locked challenge")
	}
	g.log.Warn().Str("session_id", sessionID).Msg("otp challenge locked")

	return &Result{
		Outcome:           model.OutcomeLocked,
		AttemptsRemaining: 0,
		DismissAfter:      g.cfg.LockDismiss,
		Challenge:         c,
	}, nil
}

// Resend delivers the outstanding code again. The code is not rotated and the
// remaining attempts are unchanged.
func (g *Gate) Resend(ctx context.Context, sessionID string, to model.Recipient) (*model.Challenge, error) {
	c, err := g.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if c.State == model.ChallengeLocked {
		return nil, ErrChallengeLocked
	}

	ttl := c.ExpiresAt.Sub(g.now())
	if ttl <= 0 {
		return nil, ErrChallengeNotFound
	}
	c.Resends++
	if err := g.store.Save(ctx, c, ttl); err != nil {
		return nil, err
	}
	g.deliver(ctx, c, to)
	return c, nil
}

// Dismiss discards a pending challenge when the user closes it. Locked
// challenges are kept so closing the prompt does not restore attempts.
func (g *Gate) Dismiss(ctx context.Context, sessionID string) error {
	c, err := g.Get(ctx, sessionID)
	if errors.Is(err, ErrChallengeNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if c.State == model.ChallengeLocked {
		return nil
	}
	return g.store.Delete(ctx, sessionID)
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/realtime"
	"github.com/breezeauth/riskgate/internal/repository"
)

// EventStore is the persistence the attempt log writes to and reads from.
// Implemented by repository.EventRepository.
type EventStore interface {
	Append(ctx context.Context, e *model.Event) error
	List(ctx context.Context, f repository.EventFilter) ([]*model.Event, error)
	Stats(ctx context.Context) (*repository.EventStats, error)
	CountSessions(ctx context.Context) (int, error)
}

// RequestMeta carries who and where a request came from
type RequestMeta struct {
	IPAddress string
	UserAgent string
	Recipient model.Recipient
}

// AttemptLog appends events to the append-only log. Appends are best effort:
// a failed write is logged and counted but never fails the caller.
type AttemptLog struct {
	store   EventStore
	pub     realtime.Publisher
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time
}

// NewAttemptLog creates a new AttemptLog. pub may be nil.
func NewAttemptLog(store EventStore, pub realtime.Publisher, writeTimeout time.Duration, log *logger.Logger) *AttemptLog {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	return &AttemptLog{
		store:   store,
		pub:     pub,
		timeout: writeTimeout,
		log:     log.WithComponent("attempt_log"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Append stores e and reports whether it was persisted. The write is detached
// from ctx cancellation so a client hanging up does not lose the record.
func (l *AttemptLog) Append(ctx context.Context, e *model.Event) bool {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.store.Append(wctx, e); err != nil {
		metrics.AttemptLogWritesTotal.WithLabelValues(string(e.Kind), "error").Inc()
		l.log.Error().
			Err(err).
			Str("kind", string(e.Kind)).
			Str("session_id", e.SessionID).
			Msg("failed to append attempt log event")
		return false
	}
	metrics.AttemptLogWritesTotal.WithLabelValues(string(e.Kind), "ok").Inc()

	l.notify(wctx, e)
	return true
}

// RecordOTPAttempt appends the otp_attempt event for one submission
func (l *AttemptLog) RecordOTPAttempt(ctx context.Context, sessionID, code string, riskScore int, outcome string, attemptsRemaining int, meta RequestMeta) bool {
	e := l.newEvent(model.EventOTPAttempt, sessionID, riskScore, meta)
	e.OTP = &model.OTPAttempt{
		Code:              code,
		IsValid:           outcome == model.OutcomeValidated,
		AttemptsRemaining: attemptsRemaining,
		Outcome:           outcome,
	}
	return l.Append(ctx, e)
}

// RecordAssessment appends the risk_assessment event for one scoring call
func (l *AttemptLog) RecordAssessment(ctx context.Context, a *model.RiskAssessment, otpRequired bool, meta RequestMeta) bool {
	e := l.newEvent(model.EventRiskAssessment, a.SessionID, a.Score, meta)
	e.Risk = &model.RiskEvent{
		Level:       a.Level,
		Triggered:   a.Triggered,
		OTPRequired: otpRequired,
	}
	return l.Append(ctx, e)
}

// RecordShopActivity appends a shop_activity event
func (l *AttemptLog) RecordShopActivity(ctx context.Context, sessionID string, activity *model.ShopActivity, meta RequestMeta) bool {
	e := l.newEvent(model.EventShopActivity, sessionID, 0, meta)
	e.Shop = activity
	return l.Append(ctx, e)
}

func (l *AttemptLog) newEvent(kind model.EventKind, sessionID string, riskScore int, meta RequestMeta) *model.Event {
	return &model.Event{
		Kind:      kind,
		SessionID: sessionID,
		UserID:    meta.Recipient.UserID,
		RiskScore: riskScore,
		IPAddress: optional(meta.IPAddress),
		UserAgent: optional(meta.UserAgent),
	}
}

func (l *AttemptLog) notify(ctx context.Context, e *model.Event) {
	if l.pub == nil {
		return
	}
	t := realtime.EventAnalytics
	switch e.Kind {
	case model.EventOTPAttempt:
		t = realtime.EventOTPAttempts
	case model.EventRiskAssessment:
		t = realtime.EventRiskData
	}
	if err := l.pub.Publish(ctx, &realtime.Event{Type: t, SessionID: e.SessionID, Data: e}); err != nil {
		l.log.Warn().Err(err).Str("type", string(t)).Msg("failed to publish realtime event")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

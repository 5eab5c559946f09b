package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/metrics"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/realtime"
	"github.com/breezeauth/riskgate/internal/repository"
)

// Activity service errors
var (
	ErrEmptyActivity  = errors.New("shop activity carries no interactions")
	ErrMissingSession = errors.New("session id is required")
)

// AnalyticsStore is the persistence for behavior snapshots.
// Implemented by repository.AnalyticsRepository.
type AnalyticsStore interface {
	Create(ctx context.Context, a *model.UserAnalytics) error
	List(ctx context.Context, limit int) ([]*model.UserAnalytics, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.UserAnalytics, error)
	AverageTypingSpeed(ctx context.Context) (float64, error)
}

// SessionActivity is everything recorded for one session
type SessionActivity struct {
	SessionID         string                 `json:"sessionId"`
	LatestAnalytics   *model.UserAnalytics   `json:"latestAnalytics"`
	TotalInteractions int                    `json:"totalInteractions"`
	Analytics         []*model.UserAnalytics `json:"analytics"`
	RiskEvents        []*model.Event         `json:"riskEvents"`
	OTPAttempts       []*model.Event         `json:"otpAttempts"`
	ShopActivities    []ShopEntry            `json:"shopActivities"`
	ShopSummary       *ShopEntry             `json:"shopSummary,omitempty"`
}

// DashboardStats aggregates the attempt log and analytics for admins
type DashboardStats struct {
	TotalSessions       int `json:"totalSessions"`
	HighRiskEvents      int `json:"highRiskEvents"`
	RiskAssessments     int `json:"riskAssessments"`
	OTPAttempts         int `json:"otpAttempts"`
	OTPSucceeded        int `json:"otpSucceeded"`
	OTPFailed           int `json:"otpFailed"`
	TotalShopActivities int `json:"totalShopActivities"`
	ProductViews        int `json:"productViews"`
	AvgTypingSpeed      int `json:"avgTypingSpeed"`
}

// ActivityService records analytics and shop activity and serves admin views
type ActivityService struct {
	events     EventStore
	analytics  AnalyticsStore
	attemptLog *AttemptLog
	pub        realtime.Publisher
	timeout    time.Duration
	listLimit  int
	log        *logger.Logger
	now        func() time.Time
}

// NewActivityService creates a new ActivityService. pub may be nil.
func NewActivityService(
	events EventStore,
	analytics AnalyticsStore,
	attemptLog *AttemptLog,
	pub realtime.Publisher,
	writeTimeout time.Duration,
	listLimit int,
	log *logger.Logger,
) *ActivityService {
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	if listLimit <= 0 {
		listLimit = 100
	}
	return &ActivityService{
		events:     events,
		analytics:  analytics,
		attemptLog: attemptLog,
		pub:        pub,
		timeout:    writeTimeout,
		listLimit:  listLimit,
		log:        log.WithComponent("activity_service"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// ListLimit clamps a requested page size to the configured maximum
func (s *ActivityService) ListLimit(requested int) int {
	if requested <= 0 || requested > s.listLimit {
		return s.listLimit
	}
	return requested
}

// RecordAnalytics stores a behavior snapshot. Storage failures are logged and
// reported as false, never as an error.
func (s *ActivityService) RecordAnalytics(ctx context.Context, a *model.UserAnalytics, meta RequestMeta) (bool, error) {
	if a.SessionID == "" {
		return false, ErrMissingSession
	}

	now := s.now()
	a.ID = uuid.New().String()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.UserID == nil {
		a.UserID = meta.Recipient.UserID
	}
	if a.UserAgent == nil {
		a.UserAgent = optional(meta.UserAgent)
	}
	if a.Metadata.Email == "" {
		a.Metadata.Email = meta.Recipient.Email
	}
	a.InteractionsCount = a.Interactions()

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.analytics.Create(wctx, a); err != nil {
		metrics.AttemptLogWritesTotal.WithLabelValues("analytics", "error").Inc()
		s.log.Error().Err(err).Str("session_id", a.SessionID).Msg("failed to store analytics")
		return false, nil
	}
	metrics.AttemptLogWritesTotal.WithLabelValues("analytics", "ok").Inc()

	if s.pub != nil {
		if err := s.pub.Publish(wctx, &realtime.Event{Type: realtime.EventAnalytics, SessionID: a.SessionID}); err != nil {
			s.log.Warn().Err(err).Msg("failed to publish analytics update")
		}
	}
	return true, nil
}

// RecordShopActivity appends a shop_activity event for the session
func (s *ActivityService) RecordShopActivity(ctx context.Context, sessionID string, activity *model.ShopActivity, meta RequestMeta) (bool, error) {
	if sessionID == "" {
		return false, ErrMissingSession
	}
	if activity == nil || activity.IsEmpty() {
		return false, ErrEmptyActivity
	}
	return s.attemptLog.RecordShopActivity(ctx, sessionID, activity, meta), nil
}

// SessionActivity assembles one session's analytics and events
func (s *ActivityService) SessionActivity(ctx context.Context, sessionID string) (*SessionActivity, error) {
	if sessionID == "" {
		return nil, ErrMissingSession
	}

	rows, err := s.analytics.ListBySession(ctx, sessionID, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load session analytics: %w", err)
	}
	events, err := s.events.List(ctx, repository.EventFilter{SessionID: sessionID, Limit: s.listLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load session events: %w", err)
	}

	out := &SessionActivity{
		SessionID:      sessionID,
		Analytics:      nonNil(rows),
		RiskEvents:     []*model.Event{},
		OTPAttempts:    []*model.Event{},
		ShopActivities: ShopEntries(events, rows),
	}
	if len(rows) > 0 {
		out.LatestAnalytics = rows[0]
		out.TotalInteractions = rows[0].Interactions()
	}
	for _, e := range events {
		switch e.Kind {
		case model.EventRiskAssessment:
			out.RiskEvents = append(out.RiskEvents, e)
		case model.EventOTPAttempt:
			out.OTPAttempts = append(out.OTPAttempts, e)
			if e.RiskScore > 0 {
				out.RiskEvents = append(out.RiskEvents, e)
			}
		}
	}
	if merged := MergeShopEntries(out.ShopActivities); len(merged) > 0 {
		out.ShopSummary = &merged[0]
	}
	if out.ShopActivities == nil {
		out.ShopActivities = []ShopEntry{}
	}
	return out, nil
}

// ListSecurityEvents returns OTP attempts and risk assessments, minute-deduplicated
func (s *ActivityService) ListSecurityEvents(ctx context.Context, limit int) ([]*model.Event, error) {
	events, err := s.events.List(ctx, repository.EventFilter{
		Kinds: []model.EventKind{model.EventOTPAttempt, model.EventRiskAssessment},
		Limit: s.ListLimit(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return nonNil(DedupEvents(events)), nil
}

// ListAnalytics returns the newest analytics rows, minute-deduplicated
func (s *ActivityService) ListAnalytics(ctx context.Context, limit int) ([]*model.UserAnalytics, error) {
	rows, err := s.analytics.List(ctx, s.ListLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics: %w", err)
	}
	return nonNil(DedupAnalytics(rows)), nil
}

// ListShopActivity returns merged shop activity per session
func (s *ActivityService) ListShopActivity(ctx context.Context, limit int) ([]ShopEntry, error) {
	n := s.ListLimit(limit)
	events, err := s.events.List(ctx, repository.EventFilter{
		Kinds: []model.EventKind{model.EventShopActivity},
		Limit: n,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list shop activity: %w", err)
	}
	rows, err := s.analytics.List(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics: %w", err)
	}
	merged := MergeShopEntries(ShopEntries(DedupEvents(events), DedupAnalytics(rows)))
	if merged == nil {
		merged = []ShopEntry{}
	}
	return merged, nil
}

// Dashboard aggregates counts across both tables
func (s *ActivityService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	stats, err := s.events.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load event stats: %w", err)
	}
	sessions, err := s.events.CountSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	wpm, err := s.analytics.AverageTypingSpeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to average typing speed: %w", err)
	}

	return &DashboardStats{
		TotalSessions:       sessions,
		HighRiskEvents:      stats.HighRiskEvents,
		RiskAssessments:     stats.RiskAssessments,
		OTPAttempts:         stats.OTPAttempts,
		OTPSucceeded:        stats.OTPSucceeded,
		OTPFailed:           stats.OTPFailed,
		TotalShopActivities: stats.ShopActivities,
		ProductViews:        stats.ProductViews,
		AvgTypingSpeed:      int(math.Round(wpm)),
	}, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

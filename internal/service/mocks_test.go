package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/otp"
	"github.com/breezeauth/riskgate/internal/realtime"
	"github.com/breezeauth/riskgate/internal/repository"
)

type mockEventStore struct {
	mock.Mock
}

func (m *mockEventStore) Append(ctx context.Context, e *model.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockEventStore) List(ctx context.Context, f repository.EventFilter) ([]*model.Event, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Event), args.Error(1)
}

func (m *mockEventStore) Stats(ctx context.Context) (*repository.EventStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.EventStats), args.Error(1)
}

func (m *mockEventStore) CountSessions(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockAnalyticsStore struct {
	mock.Mock
}

func (m *mockAnalyticsStore) Create(ctx context.Context, a *model.UserAnalytics) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAnalyticsStore) List(ctx context.Context, limit int) ([]*model.UserAnalytics, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.UserAnalytics), args.Error(1)
}

func (m *mockAnalyticsStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.UserAnalytics, error) {
	args := m.Called(ctx, sessionID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.UserAnalytics), args.Error(1)
}

func (m *mockAnalyticsStore) AverageTypingSpeed(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*realtime.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e *realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []realtime.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]realtime.EventType, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

func newStaticGate(t *testing.T) *otp.Gate {
	t.Helper()
	issuer, err := otp.NewStaticIssuer("123456")
	require.NoError(t, err)
	return otp.NewGate(otp.NewMemoryStore(), issuer, otp.NopDeliverer{}, otp.Config{Threshold: 70}, logger.Nop())
}

func eventOfKind(kind model.EventKind) any {
	return mock.MatchedBy(func(e *model.Event) bool { return e.Kind == kind })
}

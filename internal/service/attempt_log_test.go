package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/realtime"
)

func TestAttemptLog_AppendFillsIdentityAndPublishes(t *testing.T) {
	store := new(mockEventStore)
	pub := &recordingPublisher{}
	l := NewAttemptLog(store, pub, time.Second, logger.Nop())

	var stored *model.Event
	store.On("Append", mock.Anything, eventOfKind(model.EventOTPAttempt)).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*model.Event) }).
		Return(nil).Once()

	ok := l.RecordOTPAttempt(context.Background(), "s1", "123456", 85, model.OutcomeValidated, 3, RequestMeta{
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})

	assert.True(t, ok)
	store.AssertExpectations(t)
	if assert.NotNil(t, stored) {
		assert.NotEmpty(t, stored.ID)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.Equal(t, 85, stored.RiskScore)
		assert.True(t, stored.OTP.IsValid)
		assert.Equal(t, "123456", stored.OTP.Code)
		assert.Equal(t, "203.0.113.7", *stored.IPAddress)
		assert.Nil(t, stored.UserID)
	}
	assert.Equal(t, []realtime.EventType{realtime.EventOTPAttempts}, pub.types())
}

func TestAttemptLog_StoreFailureIsSwallowed(t *testing.T) {
	store := new(mockEventStore)
	pub := &recordingPublisher{}
	l := NewAttemptLog(store, pub, time.Second, logger.Nop())

	store.On("Append", mock.Anything, mock.Anything).Return(errors.New("connection refused")).Once()

	ok := l.RecordShopActivity(context.Background(), "s1", &model.ShopActivity{CartActions: 1}, RequestMeta{})
	assert.False(t, ok)
	assert.Empty(t, pub.types())
}

func TestAttemptLog_WriteSurvivesCanceledRequest(t *testing.T) {
	store := new(mockEventStore)
	l := NewAttemptLog(store, nil, time.Second, logger.Nop())

	store.On("Append", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &model.RiskAssessment{SessionID: "s1", Score: 90, Level: model.RiskLevelHigh}
	assert.True(t, l.RecordAssessment(ctx, a, true, RequestMeta{}))
	store.AssertExpectations(t)
}

func TestAttemptLog_PublishesByKind(t *testing.T) {
	store := new(mockEventStore)
	pub := &recordingPublisher{}
	l := NewAttemptLog(store, pub, time.Second, logger.Nop())
	store.On("Append", mock.Anything, mock.Anything).Return(nil)

	ctx := context.Background()
	l.RecordAssessment(ctx, &model.RiskAssessment{SessionID: "s1"}, false, RequestMeta{})
	l.RecordShopActivity(ctx, "s1", &model.ShopActivity{Searches: 1}, RequestMeta{})

	assert.Equal(t, []realtime.EventType{realtime.EventRiskData, realtime.EventAnalytics}, pub.types())
}

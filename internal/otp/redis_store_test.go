package otp

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/database"
	"github.com/breezeauth/riskgate/internal/logger"
	"github.com/breezeauth/riskgate/internal/model"
)

func setupTestRedis(t *testing.T) *database.Redis {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	return &database.Redis{Client: client}
}

func TestRedisStore_Lifecycle(t *testing.T) {
	store := NewRedisStore(setupTestRedis(t))
	ctx := context.Background()

	_, err := store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	c := &model.Challenge{SessionID: "s1", RiskScore: 80, State: model.ChallengePending, Secret: "JBSWY3DPEHPK3PXP"}
	created, err := store.Create(ctx, c, time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.Create(ctx, c, time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	n, err := store.RecordFailure(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.RecordFailure(ctx, "s1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Failures)
	assert.Equal(t, 80, got.RiskScore)
	assert.Equal(t, "JBSWY3DPEHPK3PXP", got.Secret)

	require.NoError(t, store.Delete(ctx, "s1"))
	_, err = store.Get(ctx, "s1")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestRedisStore_GateEndToEnd(t *testing.T) {
	issuer, err := NewStaticIssuer("123456")
	require.NoError(t, err)

	gate := NewGate(NewRedisStore(setupTestRedis(t)), issuer, nil, Config{Threshold: 70}, logger.Nop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r, err := gate.Submit(ctx, "s1", "000000", 90, model.Recipient{})
		require.NoError(t, err)
		assert.Equal(t, model.OutcomeRejected, r.Outcome)
	}
	r, err := gate.Submit(ctx, "s1", "123456", 90, model.Recipient{})
	require.NoError(t, err)
	assert.True(t, r.Valid())
	assert.Equal(t, 1, r.AttemptsRemaining)
}

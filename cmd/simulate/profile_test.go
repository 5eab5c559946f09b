package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breezeauth/riskgate/internal/collector"
	"github.com/breezeauth/riskgate/internal/model"
	"github.com/breezeauth/riskgate/internal/risk"
)

func collect(t *testing.T, name string) []model.Snapshot {
	t.Helper()
	var snaps []model.Snapshot
	err := simulate(context.Background(), profiles[name], 10*time.Second, collector.DefaultIdleThreshold, func(s model.Snapshot) error {
		snaps = append(snaps, s)
		return nil
	})
	require.NoError(t, err)
	return snaps
}

func TestHumanProfileScoresLow(t *testing.T) {
	snaps := collect(t, "human")
	require.Len(t, snaps, 18)

	last := snaps[len(snaps)-1]
	assert.EqualValues(t, 180_000, last.SessionDuration)
	assert.Equal(t, 360, last.Typing.Keystrokes)
	assert.Equal(t, 18, last.Typing.Backspaces)
	assert.EqualValues(t, 24, last.Typing.WPM)

	a := risk.Score(last.BehaviorMetrics)
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, model.RiskLevelLow, a.Level)
}

func TestBotProfileScoresHigh(t *testing.T) {
	snaps := collect(t, "bot")
	require.Len(t, snaps, 4)

	last := snaps[len(snaps)-1]
	assert.EqualValues(t, 40_000, last.SessionDuration)
	assert.Equal(t, 400, last.Mouse.Clicks)

	a := risk.Score(last.BehaviorMetrics)
	assert.Equal(t, 80, a.Score)
	assert.Equal(t, model.RiskLevelHigh, a.Level)
	assert.ElementsMatch(t, []string{
		"typing_fast", "typing_inaccurate", "typing_corrections",
		"mouse_fast", "mouse_clicks", "session_short",
	}, a.Triggered)
	assert.True(t, risk.RequiresChallenge(a.Score, 70))
}

func TestSimulateKeepsOneSession(t *testing.T) {
	snaps := collect(t, "bot")
	for _, s := range snaps[1:] {
		assert.Equal(t, snaps[0].SessionID, s.SessionID)
	}
}

func TestSimulateStopsOnEmitError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := simulate(context.Background(), profiles["bot"], 10*time.Second, time.Second, func(model.Snapshot) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestSimulateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := simulate(ctx, profiles["human"], 10*time.Second, time.Second, func(model.Snapshot) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProfileNames(t *testing.T) {
	assert.Equal(t, []string{"bot", "human"}, profileNames())
}

// Package risk scores behavior metrics with a fixed rule table.
//
// Scoring is memoryless: every call is independent and there is no per-user
// baseline. Each rule adds its points when its predicate holds and the total is
// clamped to [0, 100].
package risk

import (
	"time"

	"github.com/breezeauth/riskgate/internal/model"
)

// Score bounds and level cutoffs
const (
	MinScore = 0
	MaxScore = 100

	MediumCutoff = 40
	HighCutoff   = 70
)

// Rule is one weighted predicate over the metrics
type Rule struct {
	Name   string
	Points int
	Match  func(m *model.BehaviorMetrics) bool
}

// Rules is the scoring table, evaluated in order
var Rules = []Rule{
	{"typing_fast", 10, func(m *model.BehaviorMetrics) bool {
		return m.Typing != nil && m.Typing.WPM > 100
	}},
	{"typing_inaccurate", 15, func(m *model.BehaviorMetrics) bool {
		t := m.Typing
		// accuracy 0 with no keystrokes is an absent field, not a perfect miss
		return t != nil && (t.Keystrokes > 0 || t.Accuracy > 0) && t.Accuracy < 80
	}},
	{"typing_corrections", 10, func(m *model.BehaviorMetrics) bool {
		return m.Typing != nil && float64(m.Typing.Backspaces) > float64(m.Typing.Keystrokes)*0.3
	}},
	{"mouse_fast", 15, func(m *model.BehaviorMetrics) bool {
		return m.Mouse != nil && m.Mouse.AverageSpeed > 1000
	}},
	{"mouse_clicks", 10, func(m *model.BehaviorMetrics) bool {
		return m.Mouse != nil && m.Mouse.Clicks > 100
	}},
	{"mouse_idle", 20, func(m *model.BehaviorMetrics) bool {
		return m.Mouse != nil && m.Mouse.IdleTime > 300_000
	}},
	{"tab_switches", 15, func(m *model.BehaviorMetrics) bool {
		return m.Focus != nil && m.Focus.TabSwitches > 20
	}},
	{"focus_imbalance", 10, func(m *model.BehaviorMetrics) bool {
		return m.Focus != nil && m.Focus.BlurEvents > m.Focus.FocusEvents
	}},
	{"scroll_fast", 10, func(m *model.BehaviorMetrics) bool {
		return m.Scroll != nil && m.Scroll.ScrollSpeed > 5000
	}},
	{"session_short", 20, func(m *model.BehaviorMetrics) bool {
		return m.SessionDuration > 0 && m.SessionDuration < 60_000
	}},
	{"session_long", 10, func(m *model.BehaviorMetrics) bool {
		return m.SessionDuration > 3_600_000
	}},
}

// Score evaluates the rule table and returns the clamped score, its level and
// the names of the rules that fired. SessionID and Timestamp are left empty;
// use Assess to stamp them.
func Score(m model.BehaviorMetrics) model.RiskAssessment {
	total := 0
	triggered := make([]string, 0, len(Rules))
	for _, r := range Rules {
		if r.Match(&m) {
			total += r.Points
			triggered = append(triggered, r.Name)
		}
	}

	score := Clamp(total)
	return model.RiskAssessment{
		Score:     score,
		Level:     LevelFor(score),
		Factors:   FactorsFor(m),
		Triggered: triggered,
	}
}

// Assess scores m for a session at the given time
func Assess(sessionID string, m model.BehaviorMetrics, now time.Time) model.RiskAssessment {
	a := Score(m)
	a.SessionID = sessionID
	a.Timestamp = now.UTC()
	return a
}

// Clamp bounds a raw rule total to [MinScore, MaxScore]
func Clamp(total int) int {
	if total < MinScore {
		return MinScore
	}
	if total > MaxScore {
		return MaxScore
	}
	return total
}

// LevelFor maps a score to its risk level
func LevelFor(score int) model.RiskLevel {
	switch {
	case score >= HighCutoff:
		return model.RiskLevelHigh
	case score >= MediumCutoff:
		return model.RiskLevelMedium
	default:
		return model.RiskLevelLow
	}
}

// FactorsFor reports which metric groups were supplied
func FactorsFor(m model.BehaviorMetrics) model.RiskFactors {
	return model.RiskFactors{
		Typing: availability(m.Typing != nil),
		Mouse:  availability(m.Mouse != nil),
		Focus:  availability(m.Focus != nil),
		Scroll: availability(m.Scroll != nil),
	}
}

// RequiresChallenge reports whether a score opens an OTP challenge
func RequiresChallenge(score, threshold int) bool {
	return score > threshold
}

func availability(present bool) string {
	if present {
		return model.FactorAnalyzed
	}
	return model.FactorNotAvailable
}

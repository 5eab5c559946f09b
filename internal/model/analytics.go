package model

import "time"

// UserAnalytics is one stored behavior snapshot for a session
type UserAnalytics struct {
	ID                string            `json:"id"`
	SessionID         string            `json:"sessionId"`
	UserID            *string           `json:"userId,omitempty"`
	PageURL           *string           `json:"pageUrl,omitempty"`
	UserAgent         *string           `json:"userAgent,omitempty"`
	TypingWPM         float64           `json:"typingWpm"`
	TypingKeystrokes  int               `json:"typingKeystrokes"`
	TypingPauses      int               `json:"typingPauses"`
	TypingCorrections int               `json:"typingCorrections"`
	MouseClicks       int               `json:"mouseClicks"`
	MouseMovements    int               `json:"mouseMovements"`
	MouseVelocity     float64           `json:"mouseVelocity"`
	MouseIdleTime     int64             `json:"mouseIdleTime"`
	ScrollDepth       float64           `json:"scrollDepth"`
	ScrollSpeed       float64           `json:"scrollSpeed"`
	ScrollEvents      int               `json:"scrollEvents"`
	FocusChanges      int               `json:"focusChanges"`
	FocusTime         int64             `json:"focusTime"`
	TabSwitches       int               `json:"tabSwitches"`
	SessionDuration   int64             `json:"sessionDuration"`
	PageViews         int               `json:"pageViews"`
	InteractionsCount int               `json:"interactionsCount"`
	Metadata          AnalyticsMetadata `json:"metadata"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// AnalyticsMetadata is the free-form part of an analytics row
type AnalyticsMetadata struct {
	Email       string        `json:"email,omitempty"`
	ShopMetrics *ShopActivity `json:"shopMetrics,omitempty"`
	Category    string        `json:"category,omitempty"`
	SearchTerm  string        `json:"searchTerm,omitempty"`
}

// Interactions totals the raw interactions recorded in the row
func (a *UserAnalytics) Interactions() int {
	return a.MouseClicks + a.TypingKeystrokes + a.ScrollEvents + a.FocusChanges
}

// AnalyticsFromMetrics flattens a metrics snapshot into a storable row
func AnalyticsFromMetrics(sessionID string, m BehaviorMetrics) *UserAnalytics {
	a := &UserAnalytics{
		SessionID:       sessionID,
		SessionDuration: m.SessionDuration,
		PageViews:       1,
	}
	if t := m.Typing; t != nil {
		a.TypingWPM = t.WPM
		a.TypingKeystrokes = t.Keystrokes
		a.TypingCorrections = t.Backspaces
	}
	if mo := m.Mouse; mo != nil {
		a.MouseClicks = mo.Clicks
		a.MouseMovements = mo.Movements
		a.MouseVelocity = mo.AverageSpeed
		a.MouseIdleTime = mo.IdleTime
	}
	if s := m.Scroll; s != nil {
		a.ScrollDepth = s.MaxDepth
		a.ScrollSpeed = s.ScrollSpeed
		a.ScrollEvents = s.Events
	}
	if f := m.Focus; f != nil {
		a.FocusChanges = f.FocusEvents + f.BlurEvents
		a.FocusTime = f.TotalFocusTime
		a.TabSwitches = f.TabSwitches
	}
	a.InteractionsCount = a.Interactions()
	return a
}

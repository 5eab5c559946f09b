package model

// TypingMetrics summarises keyboard activity
type TypingMetrics struct {
	Keystrokes int     `json:"keystrokes"`
	Backspaces int     `json:"backspaces"`
	WPM        float64 `json:"wpm"`
	Accuracy   float64 `json:"accuracy"`
	// AverageInterval is the mean inter-keystroke interval in milliseconds.
	AverageInterval float64 `json:"averageInterval,omitempty"`
}

// MouseMetrics summarises pointer activity
type MouseMetrics struct {
	Clicks        int     `json:"clicks"`
	Movements     int     `json:"movements,omitempty"`
	TotalDistance float64 `json:"totalDistance"`
	AverageSpeed  float64 `json:"averageSpeed"` // px/s over the trailing sample window
	IdleTime      int64   `json:"idleTime"`     // ms
}

// ScrollMetrics summarises scrolling
type ScrollMetrics struct {
	Events              int     `json:"events,omitempty"`
	MaxDepth            float64 `json:"maxDepth"` // percent of the scrollable height
	TotalScrollDistance float64 `json:"totalScrollDistance"`
	ScrollSpeed         float64 `json:"scrollSpeed"` // px/s over the trailing sample window
}

// FocusMetrics summarises window focus and tab visibility
type FocusMetrics struct {
	FocusEvents    int   `json:"focusEvents"`
	BlurEvents     int   `json:"blurEvents"`
	TabSwitches    int   `json:"tabSwitches"`
	TotalFocusTime int64 `json:"totalFocusTime"` // ms
}

// BehaviorMetrics is the per-session interaction summary submitted for scoring.
// A nil group means the client did not collect it.
type BehaviorMetrics struct {
	Typing          *TypingMetrics `json:"typing,omitempty"`
	Mouse           *MouseMetrics  `json:"mouse,omitempty"`
	Scroll          *ScrollMetrics `json:"scroll,omitempty"`
	Focus           *FocusMetrics  `json:"focus,omitempty"`
	SessionDuration int64          `json:"sessionDuration,omitempty"` // ms
}

// Snapshot is a collector export: metrics plus the session they belong to.
type Snapshot struct {
	SessionID string `json:"sessionId"`
	BehaviorMetrics
}

// Package collector aggregates raw interaction events into BehaviorMetrics.
//
// A Collector is owned by whoever needs telemetry: it is created with New,
// started and stopped explicitly, and can be reset between sessions. Event
// methods may be called from any goroutine.
package collector

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/breezeauth/riskgate/internal/model"
)

// Interval bounds for the periodic snapshot callback
const (
	DefaultInterval      = 10 * time.Second
	MinInterval          = 8 * time.Second
	MaxInterval          = 30 * time.Second
	DefaultIdleThreshold = time.Second

	// minMouseStep filters pointer jitter, in pixels
	minMouseStep = 5.0
	backspaceKey = "Backspace"
)

var (
	ErrAlreadyRunning = errors.New("collector already running")
)

// SnapshotFunc receives periodic metric snapshots
type SnapshotFunc func(model.Snapshot)

// Option configures a Collector
type Option func(*Collector)

// WithInterval sets the snapshot period. Values outside [MinInterval, MaxInterval] are clamped.
func WithInterval(d time.Duration) Option {
	return func(c *Collector) {
		switch {
		case d < MinInterval:
			d = MinInterval
		case d > MaxInterval:
			d = MaxInterval
		}
		c.interval = d
	}
}

// WithIdleThreshold sets the minimum pointer gap counted as idle time
func WithIdleThreshold(d time.Duration) Option {
	return func(c *Collector) {
		if d > 0 {
			c.idleThreshold = d
		}
	}
}

// WithSessionID overrides the generated session identifier
func WithSessionID(id string) Option {
	return func(c *Collector) {
		if id != "" {
			c.sessionID = id
		}
	}
}

// WithOnSnapshot registers the periodic snapshot callback
func WithOnSnapshot(fn SnapshotFunc) Option {
	return func(c *Collector) { c.onSnapshot = fn }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// Collector accumulates interaction aggregates for one session
type Collector struct {
	sessionID     string
	interval      time.Duration
	idleThreshold time.Duration
	onSnapshot    SnapshotFunc
	now           func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	// emitting is set while the loop is inside onSnapshot
	emitting bool

	startedAt time.Time

	keys        int
	backspaces  int
	lastKeyAt   time.Time
	intervalSum float64
	intervals   int

	hasPointer bool
	prevX      float64
	prevY      float64
	lastMoveAt time.Time
	distance   float64
	movements  int
	clicks     int
	idle       time.Duration
	mouseSpeed ring

	lastScrollPos float64
	lastScrollAt  time.Time
	maxDepth      float64
	scrollTotal   float64
	scrollEvents  int
	scrollSpeed   ring

	focused     bool
	focusStart  time.Time
	focusTime   time.Duration
	focusEvents int
	blurEvents  int
	tabSwitches int
}

// New creates a stopped collector with a fresh session ID
func New(opts ...Option) *Collector {
	c := &Collector{
		sessionID:     uuid.NewString(),
		interval:      DefaultInterval,
		idleThreshold: DefaultIdleThreshold,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.resetLocked()
	return c
}

// SessionID returns the session identifier
func (c *Collector) SessionID() string {
	return c.sessionID
}

// Start begins accepting events and, when a callback is registered, emits a
// snapshot every interval until ctx is done or Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}
	c.running = true

	if c.onSnapshot == nil {
		return nil
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx, c.interval, c.done)
	return nil
}

// Stop stops event collection. A final snapshot is delivered to the callback.
// Stop is a no-op on a stopped collector. It waits for the snapshot loop to
// exit, except while a periodic callback is running, so the callback itself
// may call Stop.
func (c *Collector) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	inCallback := c.emitting
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		if !inCallback {
			<-done
		}
	}
	if c.onSnapshot != nil {
		c.onSnapshot(c.Snapshot())
	}
}

// Running reports whether the collector accepts events
func (c *Collector) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Reset clears every aggregate and restarts the session clock. The session ID is kept.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
}

func (c *Collector) resetLocked() {
	now := c.now()
	c.startedAt = now

	c.keys, c.backspaces = 0, 0
	c.lastKeyAt = time.Time{}
	c.intervalSum, c.intervals = 0, 0

	c.hasPointer = false
	c.prevX, c.prevY = 0, 0
	c.lastMoveAt = now
	c.distance = 0
	c.movements, c.clicks = 0, 0
	c.idle = 0
	c.mouseSpeed.reset()

	c.lastScrollPos = 0
	c.lastScrollAt = now
	c.maxDepth, c.scrollTotal = 0, 0
	c.scrollEvents = 0
	c.scrollSpeed.reset()

	c.focused = true
	c.focusStart = now
	c.focusTime = 0
	c.focusEvents, c.blurEvents, c.tabSwitches = 0, 0, 0
}

func (c *Collector) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.emit(ctx)
		}
	}
}

func (c *Collector) emit(ctx context.Context) {
	snap := c.Snapshot()

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	c.emitting = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.emitting = false
		c.mu.Unlock()
	}()
	c.onSnapshot(snap)
}

// KeyDown records a key press. key uses DOM key names ("Backspace").
func (c *Collector) KeyDown(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	now := c.now()
	c.keys++
	if key == backspaceKey {
		c.backspaces++
	}
	if !c.lastKeyAt.IsZero() {
		c.intervalSum += float64(now.Sub(c.lastKeyAt).Milliseconds())
		c.intervals++
	}
	c.lastKeyAt = now
}

// MouseMove records a pointer position in client coordinates
func (c *Collector) MouseMove(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	if !c.hasPointer {
		c.hasPointer = true
		c.prevX, c.prevY = x, y
		return
	}

	step := math.Hypot(x-c.prevX, y-c.prevY)
	c.prevX, c.prevY = x, y
	if step <= minMouseStep {
		return
	}

	now := c.now()
	gap := now.Sub(c.lastMoveAt)
	if gap > c.idleThreshold {
		c.idle += gap
	}
	if gap > 0 {
		c.mouseSpeed.push(step / gap.Seconds())
	}
	c.distance += step
	c.movements++
	c.lastMoveAt = now
}

// Click records a pointer click
func (c *Collector) Click() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.clicks++
	}
}

// Scroll records the vertical scroll offset against the document and viewport heights
func (c *Collector) Scroll(offset, documentHeight, viewportHeight float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}

	now := c.now()
	c.scrollEvents++

	if scrollable := documentHeight - viewportHeight; scrollable > 0 {
		depth := math.Min(math.Max(offset/scrollable*100, 0), 100)
		c.maxDepth = math.Max(c.maxDepth, depth)
	}

	moved := math.Abs(offset - c.lastScrollPos)
	c.lastScrollPos = offset
	c.scrollTotal += moved

	if elapsed := now.Sub(c.lastScrollAt); elapsed > 0 && moved > 0 {
		c.scrollSpeed.push(moved / elapsed.Seconds())
	}
	c.lastScrollAt = now
}

// Focus records the window gaining focus
func (c *Collector) Focus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.focusEvents++
	c.gainFocusLocked()
}

// Blur records the window losing focus
func (c *Collector) Blur() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.blurEvents++
	c.loseFocusLocked()
}

// VisibilityChange records the tab being shown or hidden. Each change of
// visibility counts as a tab switch.
func (c *Collector) VisibilityChange(visible bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || visible == c.focused {
		return
	}

	c.tabSwitches++
	if visible {
		c.focusEvents++
		c.gainFocusLocked()
	} else {
		c.blurEvents++
		c.loseFocusLocked()
	}
}

func (c *Collector) gainFocusLocked() {
	c.focused = true
	c.focusStart = c.now()
}

func (c *Collector) loseFocusLocked() {
	if c.focused {
		c.focusTime += c.now().Sub(c.focusStart)
	}
	c.focused = false
}

// Snapshot returns the current metrics. It is valid whether or not the collector is running.
func (c *Collector) Snapshot() model.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	elapsed := now.Sub(c.startedAt)

	accuracy := 100.0
	if c.keys > 0 {
		accuracy = 100 * float64(c.keys-c.backspaces) / float64(c.keys)
	}

	var wpm float64
	if minutes := elapsed.Minutes(); minutes > 0 {
		wpm = math.Round(float64(c.keys) / 5 / minutes)
	}

	var avgInterval float64
	if c.intervals > 0 {
		avgInterval = c.intervalSum / float64(c.intervals)
	}

	idle := c.idle
	if open := now.Sub(c.lastMoveAt); open > c.idleThreshold {
		idle += open
	}

	focusTime := c.focusTime
	if c.focused {
		focusTime += now.Sub(c.focusStart)
	}

	return model.Snapshot{
		SessionID: c.sessionID,
		BehaviorMetrics: model.BehaviorMetrics{
			Typing: &model.TypingMetrics{
				Keystrokes:      c.keys,
				Backspaces:      c.backspaces,
				WPM:             wpm,
				Accuracy:        accuracy,
				AverageInterval: avgInterval,
			},
			Mouse: &model.MouseMetrics{
				Clicks:        c.clicks,
				Movements:     c.movements,
				TotalDistance: c.distance,
				AverageSpeed:  c.mouseSpeed.mean(),
				IdleTime:      idle.Milliseconds(),
			},
			Scroll: &model.ScrollMetrics{
				Events:              c.scrollEvents,
				MaxDepth:            c.maxDepth,
				TotalScrollDistance: c.scrollTotal,
				ScrollSpeed:         c.scrollSpeed.mean(),
			},
			Focus: &model.FocusMetrics{
				FocusEvents:    c.focusEvents,
				BlurEvents:     c.blurEvents,
				TabSwitches:    c.tabSwitches,
				TotalFocusTime: focusTime.Milliseconds(),
			},
			SessionDuration: elapsed.Milliseconds(),
		},
	}
}

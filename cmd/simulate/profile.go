package main

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/breezeauth/riskgate/internal/collector"
	"github.com/breezeauth/riskgate/internal/model"
)

// tick is the virtual time between two simulated input steps.
const tick = 100 * time.Millisecond

// profile scripts the input a session produces on each tick.
type profile struct {
	duration time.Duration
	step     func(c *collector.Collector, i int)
}

var profiles = map[string]profile{
	"human": {duration: 3 * time.Minute, step: humanStep},
	"bot":   {duration: 40 * time.Second, step: botStep},
}

func profileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// humanStep types about 24 wpm with the odd correction, moves the pointer
// slowly and scrolls once a second.
func humanStep(c *collector.Collector, i int) {
	c.MouseMove(float64(20*i), 300)
	if i%5 == 0 {
		key := "e"
		if i%100 == 0 {
			key = "Backspace"
		}
		c.KeyDown(key)
	}
	if i%10 == 0 {
		c.Scroll(float64(100*(i/10)), 20000, 800)
	}
	if i%50 == 0 {
		c.Click()
	}
}

// botStep types and erases on every tick while sweeping the pointer and
// clicking.
func botStep(c *collector.Collector, i int) {
	c.KeyDown("a")
	c.KeyDown("Backspace")
	c.MouseMove(float64(300*i), 300)
	c.Click()
}

// virtualClock is advanced by the simulation instead of the wall clock.
type virtualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newVirtualClock(start time.Time) *virtualClock {
	return &virtualClock{now: start}
}

func (v *virtualClock) Now() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.now
}

func (v *virtualClock) Advance(d time.Duration) {
	v.mu.Lock()
	v.now = v.now.Add(d)
	v.mu.Unlock()
}

// simulate replays p through a collector and hands emit a snapshot every
// interval of virtual time, plus one at the end of the session.
func simulate(ctx context.Context, p profile, interval, idle time.Duration, emit func(model.Snapshot) error) error {
	interval = min(max(interval, collector.MinInterval), collector.MaxInterval)

	clock := newVirtualClock(time.Now())
	c := collector.New(
		collector.WithClock(clock.Now),
		collector.WithIdleThreshold(idle),
	)
	if err := c.Start(ctx); err != nil {
		return fmt.Errorf("failed to start collector: %w", err)
	}
	defer c.Stop()

	steps := int(p.duration / tick)
	next := interval
	var elapsed time.Duration
	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		clock.Advance(tick)
		elapsed += tick
		p.step(c, i)

		if elapsed >= next || i == steps {
			if err := emit(c.Snapshot()); err != nil {
				return err
			}
			next += interval
		}
	}
	return nil
}

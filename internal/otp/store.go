package otp

import (
	"context"
	"sync"
	"time"

	"github.com/breezeauth/riskgate/internal/model"
)

// Store persists challenges. Failure counts are kept apart from the challenge
// body so that concurrent submits are counted atomically.
type Store interface {
	// Get returns the challenge for a session with Failures populated,
	// or ErrChallengeNotFound.
	Get(ctx context.Context, sessionID string) (*model.Challenge, error)
	// Create stores c unless the session already has a challenge.
	Create(ctx context.Context, c *model.Challenge, ttl time.Duration) (bool, error)
	// Save overwrites the challenge body.
	Save(ctx context.Context, c *model.Challenge, ttl time.Duration) error
	// RecordFailure increments the failure count and returns the new total.
	RecordFailure(ctx context.Context, sessionID string, ttl time.Duration) (int, error)
	// Delete removes the challenge and its failure count.
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	challenge model.Challenge
	failures  int
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node development
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) live(sessionID string) (*memoryEntry, bool) {
	e, ok := s.entries[sessionID]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && s.now().After(e.expiresAt) {
		delete(s.entries, sessionID)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (*model.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok {
		return nil, ErrChallengeNotFound
	}
	c := e.challenge
	c.Failures = e.failures
	return &c, nil
}

func (s *MemoryStore) Create(_ context.Context, c *model.Challenge, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.live(c.SessionID); ok {
		return false, nil
	}
	s.entries[c.SessionID] = &memoryEntry{challenge: *c, expiresAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Save(_ context.Context, c *model.Challenge, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(c.SessionID)
	if !ok {
		e = &memoryEntry{}
		s.entries[c.SessionID] = e
	}
	e.challenge = *c
	e.expiresAt = s.expiry(ttl)
	return nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, sessionID string, _ time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.live(sessionID)
	if !ok {
		return 0, ErrChallengeNotFound
	}
	e.failures++
	return e.failures, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}

package kvstore

import (
	"context"
	"sync"

	"github.com/citydoctorae/leadchat/pkg/logging"
)

// FallbackStore wraps a primary store and degrades to in-memory storage for
// the rest of the session once the primary fails. A storage outage must
// never break the widget; it only costs persistence across reloads.
type FallbackStore struct {
	primary Store
	memory  *MemoryStore
	logger  *logging.Logger

	mu       sync.Mutex
	degraded bool
}

// NewFallbackStore wraps primary. A nil primary starts degraded immediately.
func NewFallbackStore(primary Store, logger *logging.Logger) *FallbackStore {
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackStore{
		primary:  primary,
		memory:   NewMemoryStore(),
		logger:   logger,
		degraded: primary == nil,
	}
}

// Degraded reports whether the store has fallen back to memory.
func (s *FallbackStore) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *FallbackStore) Get(ctx context.Context, key string) (string, bool, error) {
	if s.isDegraded() {
		return s.memory.Get(ctx, key)
	}
	val, ok, err := s.primary.Get(ctx, key)
	if err != nil {
		s.degrade("get", err)
		return s.memory.Get(ctx, key)
	}
	return val, ok, nil
}

func (s *FallbackStore) Set(ctx context.Context, key, value string) error {
	if s.isDegraded() {
		return s.memory.Set(ctx, key, value)
	}
	if err := s.primary.Set(ctx, key, value); err != nil {
		s.degrade("set", err)
		return s.memory.Set(ctx, key, value)
	}
	return nil
}

func (s *FallbackStore) Remove(ctx context.Context, key string) error {
	if s.isDegraded() {
		return s.memory.Remove(ctx, key)
	}
	if err := s.primary.Remove(ctx, key); err != nil {
		s.degrade("remove", err)
		return s.memory.Remove(ctx, key)
	}
	return nil
}

func (s *FallbackStore) isDegraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

func (s *FallbackStore) degrade(op string, err error) {
	s.mu.Lock()
	already := s.degraded
	s.degraded = true
	s.mu.Unlock()
	if !already {
		s.logger.Warn("kvstore: durable backend failed, continuing in memory",
			"op", op,
			"error", err,
		)
	}
}

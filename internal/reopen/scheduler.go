// Package reopen re-surfaces the chat widget to visitors who closed it
// before finishing the conversation, at exponentially backed-off intervals.
// A converted visitor is never interrupted again.
package reopen

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/citydoctorae/leadchat/internal/clock"
	"github.com/citydoctorae/leadchat/internal/kvstore"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

// Backoff intervals indexed by min(closeCount-1, len-1).
var backoffIntervals = []time.Duration{
	10 * time.Second,
	30 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
}

// firstVisitDelay is how long after the first-ever page view the widget
// opens on its own. Independent of the backoff table.
const firstVisitDelay = 5 * time.Second

// Durable keys. closeCount and lastClose are always written together.
const (
	keyCloseCount = "close_count"
	keyLastClose  = "last_close_ms"
	keyAutoOpened = "auto_opened"
)

// Open triggers, reported to the open callback and to metrics.
const (
	TriggerFirstVisit = "first_visit"
	TriggerBackoff    = "backoff"
)

// Scheduler owns the auto-open timing for one visitor.
type Scheduler struct {
	store  kvstore.Store
	clk    clock.Clock
	logger *logging.Logger
	open   func(trigger string)

	mu       sync.Mutex
	timer    clock.Timer
	complete bool
	stopped  bool
}

// New creates a scheduler. open is invoked (from a timer goroutine) when the
// widget should surface; the callback must tolerate the widget already being
// open.
func New(store kvstore.Store, clk clock.Clock, logger *logging.Logger, open func(trigger string)) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		store:  store,
		clk:    clk,
		logger: logger,
		open:   open,
	}
}

// Attach computes the next auto-open from persisted state and arms a timer.
// Called when a visitor session starts (page load or navigation).
func (s *Scheduler) Attach(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete || s.stopped {
		return
	}

	count := s.readInt(ctx, keyCloseCount)
	lastCloseMS, hasLastClose := s.readTimestamp(ctx, keyLastClose)
	autoOpened := s.readBool(ctx, keyAutoOpened)

	if count == 0 && !hasLastClose {
		if autoOpened {
			return
		}
		s.arm(firstVisitDelay, TriggerFirstVisit)
		return
	}

	interval := backoffFor(count)
	if hasLastClose {
		elapsed := s.clk.Now().Sub(time.UnixMilli(lastCloseMS))
		if elapsed >= interval {
			s.arm(0, TriggerBackoff)
			return
		}
		s.arm(interval-elapsed, TriggerBackoff)
		return
	}
	// Close count without a timestamp (partial legacy state): schedule the
	// full interval from now.
	s.arm(interval, TriggerBackoff)
}

// RecordClose persists a close-before-completion and arms the next reopen.
func (s *Scheduler) RecordClose(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.complete || s.stopped {
		return
	}

	count := s.readInt(ctx, keyCloseCount) + 1
	now := s.clk.Now().UnixMilli()
	if err := s.store.Set(ctx, keyCloseCount, strconv.Itoa(count)); err != nil {
		s.logger.Warn("reopen: persist close count failed", "error", err)
	}
	if err := s.store.Set(ctx, keyLastClose, strconv.FormatInt(now, 10)); err != nil {
		s.logger.Warn("reopen: persist close time failed", "error", err)
	}

	s.arm(backoffFor(count), TriggerBackoff)
}

// MarkComplete permanently suppresses auto-open for this visitor session and
// clears the persisted counters, so future visits behave as if the widget
// was never closed.
func (s *Scheduler) MarkComplete(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = true
	s.cancelTimer()
	s.clearCounters(ctx)
}

// Reset clears the counters but keeps scheduling active, used when the
// visitor restarts the conversation.
func (s *Scheduler) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete = false
	s.cancelTimer()
	s.clearCounters(ctx)
}

// Stop cancels any armed timer. Used on session teardown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.cancelTimer()
}

// CloseCount reports the persisted close counter.
func (s *Scheduler) CloseCount(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readInt(ctx, keyCloseCount)
}

func (s *Scheduler) arm(d time.Duration, trigger string) {
	s.cancelTimer()
	s.timer = s.clk.AfterFunc(d, func() {
		s.fire(trigger)
	})
}

func (s *Scheduler) fire(trigger string) {
	s.mu.Lock()
	if s.complete || s.stopped {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if trigger == TriggerFirstVisit {
		if err := s.store.Set(context.Background(), keyAutoOpened, "true"); err != nil {
			s.logger.Warn("reopen: persist auto-opened flag failed", "error", err)
		}
	}
	open := s.open
	s.mu.Unlock()

	if open != nil {
		open(trigger)
	}
}

func (s *Scheduler) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) clearCounters(ctx context.Context) {
	if err := s.store.Remove(ctx, keyCloseCount); err != nil {
		s.logger.Warn("reopen: clear close count failed", "error", err)
	}
	if err := s.store.Remove(ctx, keyLastClose); err != nil {
		s.logger.Warn("reopen: clear close time failed", "error", err)
	}
}

func (s *Scheduler) readInt(ctx context.Context, key string) int {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}

func (s *Scheduler) readTimestamp(ctx context.Context, key string) (int64, bool) {
	raw, ok, err := s.store.Get(ctx, key)
	if err != nil || !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return ms, true
}

func (s *Scheduler) readBool(ctx context.Context, key string) bool {
	raw, ok, err := s.store.Get(ctx, key)
	return err == nil && ok && raw == "true"
}

func backoffFor(closeCount int) time.Duration {
	idx := closeCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffIntervals) {
		idx = len(backoffIntervals) - 1
	}
	return backoffIntervals[idx]
}

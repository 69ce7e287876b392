package webchat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydoctorae/leadchat/internal/chatbot"
	"github.com/citydoctorae/leadchat/internal/clock"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

type noopSubmitter struct {
	mu    sync.Mutex
	calls int
}

func (s *noopSubmitter) Submit(context.Context, leads.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return nil
}

func newTestManager(clk *clock.Fake) *Manager {
	return NewManager(ManagerConfig{
		Flow:       chatbot.SymptomsFlow(),
		Clock:      clk,
		Logger:     logging.New("error"),
		Submitter:  &noopSubmitter{},
		IdleTTL:    10 * time.Minute,
		SweepEvery: time.Minute,
	})
}

func TestEnsureReusesSession(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	first, created := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	require.True(t, created)
	require.NotNil(t, first)

	again, created := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	assert.False(t, created)
	assert.Same(t, first, again)
	assert.Equal(t, 1, m.Len())
}

func TestFirstVisitAutoOpensAfterDelay(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	sess, _ := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	require.False(t, sess.Engine().State().Open)

	clk.Advance(4 * time.Second)
	assert.False(t, sess.Engine().State().Open)

	clk.Advance(time.Second)
	assert.True(t, sess.Engine().State().Open)
}

func TestAutoOpenOncePerVisitor(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	sess, _ := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	clk.Advance(5 * time.Second)
	require.True(t, sess.Engine().State().Open)

	// Same visitor, new tab: the auto-opened flag is durable.
	next, _ := m.Ensure(context.Background(), StartParams{SessionID: "s2", VisitorID: "v1"})
	clk.Advance(time.Hour)
	assert.False(t, next.Engine().State().Open)
}

func TestSeparateVisitorsDoNotShareState(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	a, _ := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	b, _ := m.Ensure(context.Background(), StartParams{SessionID: "s2", VisitorID: "v2"})
	clk.Advance(5 * time.Second)
	assert.True(t, a.Engine().State().Open)
	assert.True(t, b.Engine().State().Open)
}

func TestJanitorEvictsIdleSessions(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	m.StartJanitor()
	require.Equal(t, 1, m.Len())

	clk.Advance(9 * time.Minute)
	assert.Equal(t, 1, m.Len())

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 0, m.Len())
}

func TestJanitorKeepsActiveSessions(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)
	defer m.Stop()

	sess, _ := m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	m.StartJanitor()

	clk.Advance(9 * time.Minute)
	sess.touch(clk.Now())
	clk.Advance(9 * time.Minute)
	assert.Equal(t, 1, m.Len(), "recent traffic resets the idle clock")
}

func TestStopTearsDownSessions(t *testing.T) {
	clk := clock.NewFake()
	m := newTestManager(clk)

	m.Ensure(context.Background(), StartParams{SessionID: "s1", VisitorID: "v1"})
	m.Stop()

	assert.Equal(t, 0, m.Len())
	sess, created := m.Ensure(context.Background(), StartParams{SessionID: "s2", VisitorID: "v2"})
	assert.Nil(t, sess)
	assert.False(t, created)
}

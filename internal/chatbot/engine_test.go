package chatbot

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/citydoctorae/leadchat/internal/clock"
	"github.com/citydoctorae/leadchat/internal/kvstore"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/internal/reopen"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

type recordSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *recordSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (s *recordSink) last(t EventType) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == t {
			return s.events[i], true
		}
	}
	return Event{}, false
}

type stubSubmitter struct {
	mu    sync.Mutex
	calls []leads.LeadRecord
	err   error
}

func (s *stubSubmitter) Submit(_ context.Context, record leads.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, record)
	return s.err
}

func (s *stubSubmitter) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubSubmitter) lastCall() leads.LeadRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

// gatedSubmitter blocks Submit until the gate is closed.
type gatedSubmitter struct {
	stubSubmitter
	gate chan struct{}
}

func (g *gatedSubmitter) Submit(_ context.Context, record leads.LeadRecord) error {
	g.mu.Lock()
	g.calls = append(g.calls, record)
	g.mu.Unlock()
	<-g.gate
	return nil
}

func newTestEngine(flow *Flow, sub leads.Submitter) (*Engine, *clock.Fake, *recordSink) {
	clk := clock.NewFake()
	sink := &recordSink{}
	eng := NewEngine(Config{
		Flow:      flow,
		SessionID: "sess-1",
		PageURL:   "https://citydoctor.ae/",
		Clock:     clk,
		Rand:      rand.New(rand.NewSource(1)),
		Logger:    logging.New("error"),
		Sink:      sink,
		Submitter: sub,
	})
	return eng, clk, sink
}

func texts(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content.Text)
	}
	return out
}

func waitSettled(t *testing.T, eng *Engine) {
	t.Helper()
	require.Eventually(t, func() bool {
		return !eng.State().Submitting
	}, time.Second, time.Millisecond)
}

func TestEngineGreetingThenFirstQuestion(t *testing.T) {
	eng, clk, _ := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	eng.Start()

	st := eng.State()
	require.Len(t, st.Transcript, 1, "only the greeting lands immediately")
	require.NotNil(t, st.Input)
	assert.False(t, st.Input.Enabled, "input waits for the question to be asked")

	clk.Advance(5 * time.Second)

	st = eng.State()
	require.Len(t, st.Transcript, 2)
	assert.Contains(t, st.Transcript[0].Content.Text, "Welcome to City Doctor")
	assert.Equal(t, "May I know your name?", st.Transcript[1].Content.Text)
	require.NotNil(t, st.Input)
	assert.Equal(t, FieldName, st.Input.Field)
	assert.True(t, st.Input.Enabled)
}

func TestEngineRejectsBadInput(t *testing.T) {
	eng, clk, _ := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	eng.Start()
	clk.Advance(5 * time.Second)

	assert.ErrorIs(t, eng.HandleInput(FieldPhone, "0501234567"), ErrUnexpectedField)
	assert.ErrorIs(t, eng.HandleInput(FieldName, "A"), ErrInvalidInput)

	st := eng.State()
	assert.Len(t, st.Transcript, 2, "rejected input leaves the transcript alone")
}

func TestEngineFullConversationSubmitsOnce(t *testing.T) {
	sub := &stubSubmitter{}
	eng, clk, sink := newTestEngine(SymptomsFlow(), sub)
	eng.Open()
	eng.Start()
	clk.Advance(5 * time.Second)

	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)
	st := eng.State()
	require.NotNil(t, st.Input)
	require.Equal(t, FieldPhone, st.Input.Field)
	assert.Contains(t, texts(st.Transcript), "Nice to meet you, Omar! 😊")

	require.NoError(t, eng.HandleInput(FieldPhone, "+971 50 123 4567"))
	clk.Advance(10 * time.Second)
	st = eng.State()
	require.NotNil(t, st.Input)
	require.Equal(t, FieldSymptoms, st.Input.Field)

	require.NoError(t, eng.HandleInput(FieldSymptoms, "fever and chills"))
	waitSettled(t, eng)

	require.Equal(t, 1, sub.callCount())
	record := sub.lastCall()
	assert.Equal(t, "Omar", record.Name)
	assert.Equal(t, "971501234567", record.Phone)
	assert.Equal(t, "fever and chills", record.Symptoms)
	assert.Equal(t, "https://citydoctor.ae/", record.PageURL)
	assert.NotEmpty(t, record.LeadID)

	clk.Advance(20 * time.Second)

	st = eng.State()
	assert.True(t, st.Submitted)
	assert.Nil(t, st.Input, "a complete conversation offers no input")
	assert.ErrorIs(t, eng.HandleInput(FieldSymptoms, "more"), ErrConversationComplete)

	joined := strings.Join(texts(st.Transcript), "\n")
	assert.Contains(t, joined, "Perfect! Let me process this for you...")

	last := st.Transcript[len(st.Transcript)-1]
	require.NotNil(t, last.Content.Card)
	assert.Contains(t, last.Content.Card.Body, "30-45 minutes")

	redirect, ok := sink.last(EventRedirect)
	require.True(t, ok)
	assert.Equal(t, "/thank-you?session=sess-1", redirect.URL)
}

func TestEngineSubmissionFailureKeepsAnswers(t *testing.T) {
	sub := &stubSubmitter{err: leads.ErrSubmissionFailed}
	eng, clk, _ := newTestEngine(SymptomsFlow(), sub)
	eng.Start()
	clk.Advance(5 * time.Second)

	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)
	require.NoError(t, eng.HandleInput(FieldPhone, "0501234567"))
	clk.Advance(10 * time.Second)

	require.NoError(t, eng.HandleInput(FieldSymptoms, "back pain"))
	waitSettled(t, eng)
	clk.Advance(15 * time.Second)

	st := eng.State()
	assert.False(t, st.Submitted)
	require.NotNil(t, st.Input)
	assert.Equal(t, FieldSymptoms, st.Input.Field)
	assert.True(t, st.Input.Enabled, "the visitor can retry after a failure")

	joined := strings.Join(texts(st.Transcript), "\n")
	assert.Equal(t, 1, strings.Count(joined, "Something went wrong"), "exactly one error message")

	// Retry succeeds and reuses the same lead id.
	firstID := sub.lastCall().LeadID
	sub.setErr(nil)
	require.NoError(t, eng.HandleInput(FieldSymptoms, "back pain"))
	waitSettled(t, eng)
	clk.Advance(20 * time.Second)

	require.Equal(t, 2, sub.callCount())
	record := sub.lastCall()
	assert.Equal(t, firstID, record.LeadID)
	assert.Equal(t, "Omar", record.Name, "earlier answers survive the failure")
	assert.Equal(t, "0501234567", record.Phone)
	assert.True(t, eng.State().Submitted)
}

func TestEngineAtMostOneSubmissionInFlight(t *testing.T) {
	sub := &gatedSubmitter{gate: make(chan struct{})}
	eng, clk, _ := newTestEngine(SymptomsFlow(), sub)
	eng.Start()
	clk.Advance(5 * time.Second)

	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)
	require.NoError(t, eng.HandleInput(FieldPhone, "0501234567"))
	clk.Advance(10 * time.Second)

	require.NoError(t, eng.HandleInput(FieldSymptoms, "fever"))
	require.Eventually(t, func() bool { return sub.callCount() == 1 }, time.Second, time.Millisecond)

	// Extra submits while the first is in flight are silently dropped.
	require.NoError(t, eng.HandleInput(FieldSymptoms, "fever"))
	require.NoError(t, eng.HandleInput(FieldSymptoms, "fever again"))

	close(sub.gate)
	waitSettled(t, eng)
	assert.Equal(t, 1, sub.callCount())
	assert.True(t, eng.State().Submitted)
}

func TestEngineCloseWithProgressNeedsConfirmation(t *testing.T) {
	eng, clk, sink := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	store := kvstore.NewMemoryStore()
	sched := reopen.New(store, clk, logging.New("error"), eng.AutoOpen)
	eng.reopen = sched

	eng.Open()
	eng.Start()
	clk.Advance(5 * time.Second)
	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)

	require.True(t, eng.RequestClose(), "progress without completion needs confirmation")
	assert.Equal(t, 1, sink.count(EventConfirmClose))

	eng.ConfirmClose(false)
	assert.True(t, eng.State().Open, "declining keeps the widget open")
	st := eng.State()
	require.NotNil(t, st.Input)
	assert.Equal(t, FieldPhone, st.Input.Field)

	require.True(t, eng.RequestClose())
	eng.ConfirmClose(true)
	assert.False(t, eng.State().Open)
	assert.Equal(t, 1, sched.CloseCount(context.Background()))

	// First close backs off 10s before reopening.
	clk.Advance(9 * time.Second)
	assert.False(t, eng.State().Open)
	clk.Advance(time.Second)
	assert.True(t, eng.State().Open)
	opened, ok := sink.last(EventOpen)
	require.True(t, ok)
	assert.Equal(t, reopen.TriggerBackoff, opened.Trigger)
}

func TestEngineCloseWithoutProgressIsImmediate(t *testing.T) {
	eng, clk, sink := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	eng.Open()
	eng.Start()
	clk.Advance(5 * time.Second)

	require.False(t, eng.RequestClose())
	assert.False(t, eng.State().Open)
	assert.Equal(t, 0, sink.count(EventConfirmClose))
	assert.Equal(t, 1, sink.count(EventClosed))
}

func TestEngineAutoOpenSuppressedAfterCompletion(t *testing.T) {
	sub := &stubSubmitter{}
	eng, clk, sink := newTestEngine(SymptomsFlow(), sub)
	eng.Start()
	clk.Advance(5 * time.Second)
	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)
	require.NoError(t, eng.HandleInput(FieldPhone, "0501234567"))
	clk.Advance(10 * time.Second)
	require.NoError(t, eng.HandleInput(FieldSymptoms, "fever"))
	waitSettled(t, eng)
	clk.Advance(20 * time.Second)
	require.True(t, eng.State().Submitted)

	before := sink.count(EventOpen)
	eng.AutoOpen(reopen.TriggerBackoff)
	assert.False(t, eng.State().Open)
	assert.Equal(t, before, sink.count(EventOpen), "a converted visitor is never reopened")
}

func TestEngineResetRestartsConversation(t *testing.T) {
	eng, clk, _ := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	store := kvstore.NewMemoryStore()
	sched := reopen.New(store, clk, logging.New("error"), eng.AutoOpen)
	eng.reopen = sched

	eng.Open()
	eng.Start()
	clk.Advance(5 * time.Second)
	require.NoError(t, eng.HandleInput(FieldName, "Omar"))
	clk.Advance(10 * time.Second)
	require.True(t, eng.RequestClose())
	eng.ConfirmClose(true)
	require.Equal(t, 1, sched.CloseCount(context.Background()))

	eng.Reset()
	clk.Advance(5 * time.Second)

	st := eng.State()
	require.Len(t, st.Transcript, 2, "greeting and first question replay")
	require.NotNil(t, st.Input)
	assert.Equal(t, FieldName, st.Input.Field)
	assert.Equal(t, 0, sched.CloseCount(context.Background()), "counters cleared on restart")
}

func TestEngineDestroyCancelsEverything(t *testing.T) {
	eng, clk, sink := newTestEngine(SymptomsFlow(), &stubSubmitter{})
	eng.Start()

	eng.Destroy()
	before := sink.count(EventMessage)
	clk.Advance(time.Minute)

	assert.Equal(t, before, sink.count(EventMessage), "no messages after teardown")
	assert.ErrorIs(t, eng.HandleInput(FieldName, "Omar"), ErrConversationComplete)
	assert.Zero(t, clk.PendingTimers())
}

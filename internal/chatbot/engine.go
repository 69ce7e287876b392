package chatbot

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/citydoctorae/leadchat/internal/clock"
	"github.com/citydoctorae/leadchat/internal/handoff"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/internal/observability/metrics"
	"github.com/citydoctorae/leadchat/internal/reopen"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

var (
	// ErrConversationComplete is returned for input after the lead was sent.
	ErrConversationComplete = errors.New("chatbot: conversation already complete")

	// ErrUnexpectedField is returned when input targets a step that is not
	// the currently displayed one.
	ErrUnexpectedField = errors.New("chatbot: input for unexpected field")

	// ErrInvalidInput is returned when a value fails the step guard. No
	// transcript message is produced; the widget keeps its submit disabled.
	ErrInvalidInput = errors.New("chatbot: input failed validation")
)

// EventType enumerates engine events pushed to the widget.
type EventType string

const (
	EventMessage      EventType = "message"
	EventTyping       EventType = "typing"
	EventInput        EventType = "input"
	EventOpen         EventType = "open"
	EventClosed       EventType = "closed"
	EventConfirmClose EventType = "confirm_close"
	EventRedirect     EventType = "redirect"
)

// StepView describes the input affordance the widget should render.
type StepView struct {
	Field   Field    `json:"field"`
	Kind    StepKind `json:"kind"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options,omitempty"`
	Enabled bool     `json:"enabled"`
}

// Event is pushed to the transport sink as conversation state changes.
type Event struct {
	Type    EventType `json:"type"`
	Message *Message  `json:"message,omitempty"`
	Input   *StepView `json:"input,omitempty"`
	Trigger string    `json:"trigger,omitempty"`
	URL     string    `json:"url,omitempty"`
}

// Sink receives engine events. Publish is called with the engine lock held
// and must not call back into the engine.
type Sink interface {
	Publish(Event)
}

// TranscriptStore persists transcript entries beyond the session lifetime.
type TranscriptStore interface {
	Append(ctx context.Context, sessionID string, msg Message) error
	List(ctx context.Context, sessionID string, limit int64) ([]Message, error)
}

// Attribution carries ad-click ids captured by the host page.
type Attribution struct {
	GCLID  string
	FBCLID string
}

// Config wires an engine instance.
type Config struct {
	Flow        *Flow
	SessionID   string
	PageURL     string
	ThankYouURL string
	Attribution Attribution

	Clock  clock.Clock
	Rand   *rand.Rand
	Logger *logging.Logger
	Sink   Sink

	Submitter  leads.Submitter
	Archive    leads.Repository
	Reopen     *reopen.Scheduler
	Tickets    *handoff.TicketStore
	Transcript TranscriptStore
	Metrics    *metrics.WidgetMetrics
}

// Engine drives one visitor's conversation. All state mutation happens under
// one lock, entered from HTTP/WebSocket handlers, timer callbacks, and the
// submission completion callback, mirroring a serialized UI event loop.
type Engine struct {
	mu sync.Mutex

	flow      *Flow
	sessionID string
	conv      *Conversation

	clk    clock.Clock
	rng    *rand.Rand
	logger *logging.Logger
	sink   Sink

	submitter  leads.Submitter
	archive    leads.Repository
	reopen     *reopen.Scheduler
	tickets    *handoff.TicketStore
	transcript TranscriptStore
	metrics    *metrics.WidgetMetrics

	thankYouURL string
	attribution Attribution

	queue          *typingQueue
	timers         map[int]clock.Timer
	timerSeq       int
	asked          map[Field]bool
	open           bool
	pendingConfirm bool
	destroyed      bool
}

// NewEngine creates an engine. Start must be called to begin the greeting.
func NewEngine(cfg Config) *Engine {
	if cfg.Flow == nil {
		cfg.Flow = SymptomsFlow()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ThankYouURL == "" {
		cfg.ThankYouURL = "/thank-you"
	}
	e := &Engine{
		flow:        cfg.Flow,
		sessionID:   cfg.SessionID,
		conv:        NewConversation(cfg.Flow, cfg.PageURL),
		clk:         cfg.Clock,
		rng:         cfg.Rand,
		logger:      cfg.Logger,
		sink:        cfg.Sink,
		submitter:   cfg.Submitter,
		archive:     cfg.Archive,
		reopen:      cfg.Reopen,
		tickets:     cfg.Tickets,
		transcript:  cfg.Transcript,
		metrics:     cfg.Metrics,
		thankYouURL: cfg.ThankYouURL,
		attribution: cfg.Attribution,
		timers:      make(map[int]clock.Timer),
		asked:       make(map[Field]bool),
	}
	e.queue = newTypingQueue(e.clk, e.showTyping, e.deliverBot, e.locked)
	return e
}

// Start appends the greeting and schedules the first question.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.startLocked()
}

func (e *Engine) startLocked() {
	e.appendBot(TextContent(e.flow.Greeting))
	first := e.flow.Steps[0]
	e.afterFunc(2*time.Second+e.jitter(800*time.Millisecond), func() {
		e.appendBot(TextContent(first.Prompt))
		e.asked[first.Field] = true
		e.publishInput()
	})
}

// Open surfaces the widget on a manual toggle.
func (e *Engine) Open() {
	e.openWith("manual")
}

// AutoOpen is the reopen scheduler callback. It must never surface a
// completed conversation, even when a timer was already in flight.
func (e *Engine) AutoOpen(trigger string) {
	e.openWith(trigger)
}

func (e *Engine) openWith(trigger string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || e.open || e.conv.Complete() {
		return
	}
	e.open = true
	e.metrics.ObserveOpen(trigger)
	e.publish(Event{Type: EventOpen, Trigger: trigger})
}

// RequestClose handles the close button. It reports whether a confirmation
// prompt is required before the close is honored.
func (e *Engine) RequestClose() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || !e.open {
		return false
	}
	if e.conv.HasProgress() {
		e.pendingConfirm = true
		e.publish(Event{Type: EventConfirmClose})
		return true
	}
	e.closeLocked()
	return false
}

// ConfirmClose resolves a pending close confirmation. Declining leaves the
// widget open with state untouched.
func (e *Engine) ConfirmClose(accept bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed || !e.pendingConfirm {
		return
	}
	e.pendingConfirm = false
	if accept {
		e.closeLocked()
	}
}

func (e *Engine) closeLocked() {
	e.open = false
	if !e.conv.Complete() && e.reopen != nil {
		e.reopen.RecordClose(context.Background())
	}
	e.metrics.ObserveClose(e.conv.Complete())
	e.publish(Event{Type: EventClosed})
}

// HandleInput processes a visitor answer for the given field.
func (e *Engine) HandleInput(field Field, raw string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return ErrConversationComplete
	}
	if e.conv.submitting {
		// At most one submission in flight; extra submits are no-ops.
		return nil
	}
	step, complete := e.conv.CurrentStep()
	if complete {
		return ErrConversationComplete
	}
	if step.Field != field {
		return ErrUnexpectedField
	}
	value := step.Normalize(raw)
	if !step.Accepts(value) {
		return ErrInvalidInput
	}

	if step.Field == e.flow.FinalStep().Field {
		e.beginSubmit(step, value)
		return nil
	}

	e.conv.SetField(step.Field, value)
	e.appendUser(value)
	e.publishInput()

	ack := step.AckFor(value)
	e.afterFunc(600*time.Millisecond+e.jitter(400*time.Millisecond), func() {
		if ack != "" {
			e.acknowledge(TextContent(ack), e.askCurrentStep)
			return
		}
		e.askCurrentStep()
	})
	return nil
}

// askCurrentStep sends the prompt for the projected step and enables its
// input once delivered.
func (e *Engine) askCurrentStep() {
	step, complete := e.conv.CurrentStep()
	if complete {
		return
	}
	e.queue.push(TextContent(step.Prompt), typingDelay(e.rng, TextContent(step.Prompt)), func() {
		e.asked[step.Field] = true
		e.publishInput()
	})
}

// acknowledge sends a short confirmation and runs then 500ms after the
// acknowledgment's typing delay elapses.
func (e *Engine) acknowledge(content Content, then func()) {
	d := ackDelay(e.rng, content)
	e.queue.push(content, d, nil)
	e.afterFunc(d+followUpGap, then)
}

func (e *Engine) beginSubmit(finalStep Step, value string) {
	e.conv.submitting = true
	e.appendUser(value)
	e.publishInput()

	e.afterFunc(600*time.Millisecond+e.jitter(400*time.Millisecond), func() {
		e.queue.push(TextContent("Perfect! Let me process this for you..."), 1500*time.Millisecond+e.jitter(500*time.Millisecond), nil)
	})

	record := e.buildLead(finalStep.Field, value)
	started := e.clk.Now()
	go func() {
		err := e.submitter.Submit(context.Background(), record)
		e.locked(func() {
			e.finishSubmit(finalStep, value, record, err, started)
		})
	}()
}

func (e *Engine) buildLead(finalField Field, finalValue string) leads.LeadRecord {
	get := func(f Field) string {
		if f == finalField {
			return finalValue
		}
		v, _ := e.conv.Field(f)
		return v
	}
	return leads.LeadRecord{
		LeadID:   e.conv.LeadID(),
		Name:     get(FieldName),
		Phone:    get(FieldPhone),
		Emirates: get(FieldEmirate),
		Symptoms: e.symptomsSummary(finalField, finalValue),
		PageURL:  e.conv.pageURL,
		GCLID:    e.attribution.GCLID,
		FBCLID:   e.attribution.FBCLID,
	}
}

// symptomsSummary fills the sheet's symptoms column: the free-text concern
// when the flow collects one, otherwise the selected service and urgency.
func (e *Engine) symptomsSummary(finalField Field, finalValue string) string {
	get := func(f Field) string {
		if f == finalField {
			return finalValue
		}
		v, _ := e.conv.Field(f)
		return v
	}
	if v := get(FieldSymptoms); v != "" {
		return v
	}
	service := get(FieldService)
	urgent := get(FieldUrgent)
	switch {
	case service != "" && urgent != "":
		return service + " (" + urgent + ")"
	case service != "":
		return service
	default:
		return urgent
	}
}

// finishSubmit runs under the engine lock once the network call returns.
// A completion arriving after Destroy is dropped by locked().
func (e *Engine) finishSubmit(finalStep Step, value string, record leads.LeadRecord, err error, started time.Time) {
	e.conv.submitting = false
	elapsed := e.clk.Now().Sub(started).Seconds()

	if err != nil {
		e.metrics.ObserveSubmission("failure", elapsed)
		e.logger.Error("chatbot: lead submission failed",
			"error", err,
			"session_id", e.sessionID,
			"lead_id", record.LeadID,
		)
		e.afterFunc(1200*time.Millisecond, func() {
			content := TextContent("Something went wrong. Please try again or contact us directly.")
			e.queue.push(content, typingDelay(e.rng, content), e.publishInput)
		})
		return
	}

	e.conv.SetField(finalStep.Field, value)
	e.conv.submitted = true
	e.metrics.ObserveSubmission("success", elapsed)
	e.logger.Info("chatbot: lead submitted",
		"session_id", e.sessionID,
		"lead_id", record.LeadID,
	)

	if e.reopen != nil {
		e.reopen.MarkComplete(context.Background())
	}

	summary := e.conv.Summary()
	sessionID := e.sessionID
	now := e.clk.Now()
	archive := e.archive
	tickets := e.tickets
	logger := e.logger
	go func() {
		if archive != nil {
			rec := record
			if err := archive.Archive(context.Background(), &rec); err != nil {
				logger.Warn("chatbot: lead archive failed", "error", err, "lead_id", rec.LeadID)
			}
		}
		if tickets != nil {
			if err := tickets.Put(context.Background(), sessionID, summary, now); err != nil {
				logger.Warn("chatbot: handoff ticket store failed", "error", err, "session_id", sessionID)
			}
		}
	}()

	e.afterFunc(1500*time.Millisecond+e.jitter(500*time.Millisecond), func() {
		card := Content{Card: &Card{
			Title: "Thank you for your inquiry!",
			Body:  "Our medical team will contact you shortly to assist with booking your service. We typically respond within 30-45 minutes.",
		}}
		e.queue.push(card, 2000*time.Millisecond, func() {
			e.afterFunc(2500*time.Millisecond, func() {
				e.publish(Event{Type: EventRedirect, URL: e.thankYouURL + "?session=" + e.sessionID})
			})
		})
	})
}

// Reset discards the conversation and replays the greeting.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.cancelTimersLocked()
	e.queue.close()
	e.queue = newTypingQueue(e.clk, e.showTyping, e.deliverBot, e.locked)
	e.conv.reset()
	e.asked = make(map[Field]bool)
	e.pendingConfirm = false
	if e.reopen != nil {
		e.reopen.Reset(context.Background())
	}
	e.startLocked()
}

// Destroy tears the session down: every pending timer is cancelled and any
// late submission callback is ignored.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	e.destroyed = true
	e.cancelTimersLocked()
	e.queue.close()
	if e.reopen != nil {
		e.reopen.Stop()
	}
}

// State is a consistent snapshot for reconnect/replay.
type State struct {
	SessionID  string    `json:"session_id"`
	Open       bool      `json:"open"`
	Submitting bool      `json:"submitting"`
	Submitted  bool      `json:"submitted"`
	Transcript []Message `json:"transcript"`
	Input      *StepView `json:"input,omitempty"`
}

// State returns the current widget state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		SessionID:  e.sessionID,
		Open:       e.open,
		Submitting: e.conv.submitting,
		Submitted:  e.conv.submitted,
		Transcript: e.conv.Transcript(),
		Input:      e.stepViewLocked(),
	}
}

// Transcript returns a copy of the conversation transcript.
func (e *Engine) Transcript() []Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.conv.Transcript()
}

func (e *Engine) stepViewLocked() *StepView {
	step, complete := e.conv.CurrentStep()
	if complete {
		return nil
	}
	return &StepView{
		Field:   step.Field,
		Kind:    step.Kind,
		Prompt:  step.Prompt,
		Options: step.Options,
		Enabled: e.asked[step.Field] && !e.conv.submitting && !e.conv.submitted,
	}
}

func (e *Engine) publishInput() {
	e.publish(Event{Type: EventInput, Input: e.stepViewLocked()})
}

// locked runs f under the engine lock unless the engine is destroyed. Timer
// and network callbacks come through here so callbacks firing after teardown
// never touch dead state.
func (e *Engine) locked(f func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.destroyed {
		return
	}
	f()
}

func (e *Engine) afterFunc(d time.Duration, f func()) {
	e.timerSeq++
	id := e.timerSeq
	e.timers[id] = e.clk.AfterFunc(d, func() {
		e.locked(func() {
			delete(e.timers, id)
			f()
		})
	})
}

func (e *Engine) cancelTimersLocked() {
	for id, t := range e.timers {
		t.Stop()
		delete(e.timers, id)
	}
}

func (e *Engine) jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(e.rng.Int63n(int64(max)))
}

func (e *Engine) appendBot(content Content) {
	msg := Message{Role: RoleBot, Content: content, CreatedAt: e.clk.Now()}
	e.conv.append(msg)
	e.metrics.ObserveMessage(string(RoleBot))
	e.persist(msg)
	e.publish(Event{Type: EventMessage, Message: &msg})
}

func (e *Engine) appendUser(value string) {
	msg := Message{Role: RoleUser, Content: TextContent(value), CreatedAt: e.clk.Now()}
	e.conv.append(msg)
	e.metrics.ObserveMessage(string(RoleUser))
	e.persist(msg)
	e.publish(Event{Type: EventMessage, Message: &msg})
}

// showTyping appends the transient typing placeholder.
func (e *Engine) showTyping() {
	msg := Message{Role: RoleTyping, CreatedAt: e.clk.Now()}
	e.conv.append(msg)
	e.publish(Event{Type: EventTyping})
}

// deliverBot replaces the outstanding typing placeholder with the real
// message in one transcript mutation.
func (e *Engine) deliverBot(content Content) {
	msg := Message{Role: RoleBot, Content: content, CreatedAt: e.clk.Now()}
	e.conv.replaceTyping(msg)
	e.metrics.ObserveMessage(string(RoleBot))
	e.persist(msg)
	e.publish(Event{Type: EventMessage, Message: &msg})
}

func (e *Engine) persist(msg Message) {
	if e.transcript == nil {
		return
	}
	store, sessionID, logger := e.transcript, e.sessionID, e.logger
	go func() {
		if err := store.Append(context.Background(), sessionID, msg); err != nil {
			logger.Debug("chatbot: transcript persist failed", "error", err)
		}
	}()
}

func (e *Engine) publish(ev Event) {
	if e.sink != nil {
		e.sink.Publish(ev)
	}
}

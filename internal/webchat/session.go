package webchat

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/net/websocket"

	"github.com/citydoctorae/leadchat/internal/chatbot"
	"github.com/citydoctorae/leadchat/internal/clock"
	"github.com/citydoctorae/leadchat/internal/handoff"
	"github.com/citydoctorae/leadchat/internal/kvstore"
	"github.com/citydoctorae/leadchat/internal/leads"
	"github.com/citydoctorae/leadchat/internal/observability/metrics"
	"github.com/citydoctorae/leadchat/internal/reopen"
	"github.com/citydoctorae/leadchat/pkg/logging"
)

// ManagerConfig wires the per-session dependencies.
type ManagerConfig struct {
	Flow         *chatbot.Flow
	Clock        clock.Clock
	Logger       *logging.Logger
	Submitter    leads.Submitter
	Archive      leads.Repository
	Tickets      *handoff.TicketStore
	Transcript   chatbot.TranscriptStore
	VisitorState kvstore.Store
	Metrics      *metrics.WidgetMetrics
	ThankYouURL  string

	// IdleTTL is how long a session without traffic survives before the
	// janitor tears it down. SweepEvery is the janitor interval.
	IdleTTL    time.Duration
	SweepEvery time.Duration
}

// Manager owns the live chat sessions: one engine per visitor tab, created
// on first contact and destroyed after IdleTTL without traffic.
type Manager struct {
	cfg    ManagerConfig
	clk    clock.Clock
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	janitor  clock.Timer
	stopped  bool
}

// NewManager creates a session manager. Call StartJanitor to begin idle
// eviction and Stop on shutdown.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Flow == nil {
		cfg.Flow = chatbot.SymptomsFlow()
	}
	if cfg.VisitorState == nil {
		cfg.VisitorState = kvstore.NewMemoryStore()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 30 * time.Minute
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = time.Minute
	}
	return &Manager{
		cfg:      cfg,
		clk:      cfg.Clock,
		logger:   cfg.Logger,
		sessions: make(map[string]*Session),
	}
}

// StartParams identifies the visitor behind a new or resumed session.
type StartParams struct {
	SessionID string
	VisitorID string
	PageURL   string
	GCLID     string
	FBCLID    string
}

// Ensure returns the session for the given id, creating and starting it when
// none exists. The second return reports whether the session is new.
func (m *Manager) Ensure(ctx context.Context, p StartParams) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, false
	}
	if sess, ok := m.sessions[p.SessionID]; ok {
		sess.touch(m.clk.Now())
		return sess, false
	}

	sess := &Session{
		ID:        p.SessionID,
		VisitorID: p.VisitorID,
		lastSeen:  m.clk.Now(),
	}
	visitorStore := kvstore.Namespaced(m.cfg.VisitorState, "visitor:"+p.VisitorID)
	sched := reopen.New(visitorStore, m.clk, m.logger, sess.autoOpen)
	sess.engine = chatbot.NewEngine(chatbot.Config{
		Flow:        m.cfg.Flow,
		SessionID:   p.SessionID,
		PageURL:     p.PageURL,
		ThankYouURL: m.cfg.ThankYouURL,
		Attribution: chatbot.Attribution{GCLID: p.GCLID, FBCLID: p.FBCLID},
		Clock:       m.clk,
		Rand:        rand.New(rand.NewSource(m.clk.Now().UnixNano())),
		Logger:      m.logger,
		Sink:        sess,
		Submitter:   m.cfg.Submitter,
		Archive:     m.cfg.Archive,
		Reopen:      sched,
		Tickets:     m.cfg.Tickets,
		Transcript:  m.cfg.Transcript,
		Metrics:     m.cfg.Metrics,
	})
	sess.scheduler = sched

	m.sessions[p.SessionID] = sess
	m.logger.Info("webchat: session started",
		"session_id", p.SessionID,
		"visitor_id", p.VisitorID,
		"page_url", p.PageURL,
	)

	// The transcript begins before the widget is opened; the scheduler
	// decides when it surfaces.
	sess.engine.Start()
	sched.Attach(ctx)
	return sess, true
}

// Session returns the live session for the id, if any.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	return sess, ok
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// StartJanitor arms the periodic idle sweep.
func (m *Manager) StartJanitor() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped || m.janitor != nil {
		return
	}
	m.janitor = m.clk.AfterFunc(m.cfg.SweepEvery, m.sweep)
}

func (m *Manager) sweep() {
	m.mu.Lock()
	now := m.clk.Now()
	var evicted []*Session
	for id, sess := range m.sessions {
		if now.Sub(sess.seen()) >= m.cfg.IdleTTL {
			evicted = append(evicted, sess)
			delete(m.sessions, id)
		}
	}
	if !m.stopped {
		m.janitor = m.clk.AfterFunc(m.cfg.SweepEvery, m.sweep)
	}
	m.mu.Unlock()

	for _, sess := range evicted {
		m.logger.Info("webchat: session evicted", "session_id", sess.ID)
		sess.engine.Destroy()
	}
}

// Stop destroys every session and halts the janitor.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	if m.janitor != nil {
		m.janitor.Stop()
		m.janitor = nil
	}
	sessions := make([]*Session, 0, len(m.sessions))
	for id, sess := range m.sessions {
		sessions = append(sessions, sess)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, sess := range sessions {
		sess.engine.Destroy()
	}
}

// Session is one visitor tab: an engine plus, at most, one attached
// WebSocket connection. Events published while no connection is attached are
// dropped; a reconnect replays state from the engine snapshot.
type Session struct {
	ID        string
	VisitorID string

	engine    *chatbot.Engine
	scheduler *reopen.Scheduler

	mu       sync.Mutex
	conn     *websocket.Conn
	lastSeen time.Time
}

// Engine exposes the session's conversation engine.
func (s *Session) Engine() *chatbot.Engine { return s.engine }

// Publish implements chatbot.Sink by forwarding engine events to the
// attached connection.
func (s *Session) Publish(ev chatbot.Event) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	_ = websocket.JSON.Send(conn, OutboundMessage{
		Type:    string(ev.Type),
		Message: ev.Message,
		Input:   ev.Input,
		Trigger: ev.Trigger,
		URL:     ev.URL,
	})
}

// Attach makes conn the session's live connection, displacing any previous
// one.
func (s *Session) Attach(conn *websocket.Conn, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.lastSeen = now
}

// Detach clears the connection if it is still the attached one.
func (s *Session) Detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
}

func (s *Session) seen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) autoOpen(trigger string) {
	s.engine.AutoOpen(trigger)
}

package chatbot

import (
	"math/rand"
	"time"

	"github.com/citydoctorae/leadchat/internal/clock"
)

const (
	perCharDelay   = 100 * time.Millisecond
	minTypingDelay = 1500 * time.Millisecond
	maxTypingDelay = 4000 * time.Millisecond
	richBaseDelay  = 2000 * time.Millisecond
	minAckDelay    = 800 * time.Millisecond
	followUpGap    = 500 * time.Millisecond
)

// typingDelay computes how long the typing indicator shows before a bot
// message lands: text scales with length, clamped to [1.5s, 4s] with ±500ms
// jitter; rich content takes 2s plus up to 1s.
func typingDelay(rng *rand.Rand, c Content) time.Duration {
	if c.IsRich() {
		return richBaseDelay + time.Duration(rng.Int63n(int64(time.Second)))
	}
	base := time.Duration(len(c.Text)) * perCharDelay
	if base < minTypingDelay {
		base = minTypingDelay
	}
	if base > maxTypingDelay {
		base = maxTypingDelay
	}
	jitter := time.Duration(rng.Int63n(int64(time.Second))) - 500*time.Millisecond
	return base + jitter
}

// ackDelay is the typing delay for an acknowledgment: shorter than a normal
// message but never under 800ms.
func ackDelay(rng *rand.Rand, c Content) time.Duration {
	d := time.Duration(float64(typingDelay(rng, c)) * 0.6)
	if d < minAckDelay {
		d = minAckDelay
	}
	return d
}

type queuedSend struct {
	content Content
	delay   time.Duration
	after   func()
}

// typingQueue serializes bot sends so at most one typing indicator is ever
// outstanding: a send enqueued while another is pending waits its turn.
// All methods must be called with the engine lock held; timer callbacks
// re-enter through the engine which reacquires it.
type typingQueue struct {
	clk     clock.Clock
	busy    bool
	closed  bool
	backlog []queuedSend
	timer   clock.Timer

	// engine hooks
	showTyping func()
	deliver    func(Content)
	locked     func(func())
}

func newTypingQueue(clk clock.Clock, showTyping func(), deliver func(Content), locked func(func())) *typingQueue {
	return &typingQueue{
		clk:        clk,
		showTyping: showTyping,
		deliver:    deliver,
		locked:     locked,
	}
}

// push schedules a bot message. after runs (still under the engine lock)
// once the message has been delivered.
func (q *typingQueue) push(content Content, delay time.Duration, after func()) {
	if q.closed {
		return
	}
	if q.busy {
		q.backlog = append(q.backlog, queuedSend{content: content, delay: delay, after: after})
		return
	}
	q.start(queuedSend{content: content, delay: delay, after: after})
}

func (q *typingQueue) start(item queuedSend) {
	q.busy = true
	q.showTyping()
	q.timer = q.clk.AfterFunc(item.delay, func() {
		q.locked(func() {
			q.fire(item)
		})
	})
}

func (q *typingQueue) fire(item queuedSend) {
	if q.closed {
		return
	}
	q.busy = false
	q.timer = nil
	q.deliver(item.content)
	if item.after != nil {
		item.after()
	}
	if len(q.backlog) > 0 && !q.busy && !q.closed {
		next := q.backlog[0]
		q.backlog = q.backlog[1:]
		q.start(next)
	}
}

// close drops pending sends and stops the in-flight timer.
func (q *typingQueue) close() {
	q.closed = true
	q.backlog = nil
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}

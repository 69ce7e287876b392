package chatbot

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleBot    Role = "bot"
	RoleUser   Role = "user"
	RoleTyping Role = "typing"
)

// Card is rich bot content, rendered by the widget as a styled block.
type Card struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Content is either plain text or a card.
type Content struct {
	Text string `json:"text,omitempty"`
	Card *Card  `json:"card,omitempty"`
}

// IsRich reports whether the content is non-text.
func (c Content) IsRich() bool { return c.Card != nil }

// TextContent wraps a plain string.
func TextContent(s string) Content { return Content{Text: s} }

// Message is one transcript entry.
type Message struct {
	Role      Role      `json:"role"`
	Content   Content   `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Conversation holds the mutable state of one widget conversation. It is not
// safe for concurrent use; the engine serializes access.
type Conversation struct {
	flow       *Flow
	leadID     string
	pageURL    string
	fields     map[Field]string
	transcript []Message
	submitting bool
	submitted  bool
}

// NewConversation starts an empty conversation for the given flow.
func NewConversation(flow *Flow, pageURL string) *Conversation {
	return &Conversation{
		flow:    flow,
		leadID:  uuid.NewString(),
		pageURL: pageURL,
		fields:  make(map[Field]string),
	}
}

// LeadID is stable across submission retries within this conversation.
func (c *Conversation) LeadID() string { return c.leadID }

// Flow returns the flow driving this conversation.
func (c *Conversation) Flow() *Flow { return c.flow }

// Field returns a collected answer.
func (c *Conversation) Field(f Field) (string, bool) {
	v, ok := c.fields[f]
	return v, ok
}

// SetField records an answer. Answers are write-once: a second write for the
// same field is ignored so a collected value never changes mid-conversation.
func (c *Conversation) SetField(f Field, value string) {
	if _, ok := c.fields[f]; ok {
		return
	}
	c.fields[f] = value
}

// CurrentStep projects the active step from collected fields and the
// submission flags. The step is never tracked separately, so the displayed
// input can't drift from what has actually been collected.
func (c *Conversation) CurrentStep() (Step, bool) {
	if c.submitted || c.submitting {
		return Step{}, true
	}
	for _, s := range c.flow.Steps {
		if _, ok := c.fields[s.Field]; !ok {
			return s, false
		}
	}
	return Step{}, true
}

// Complete reports whether the lead has been successfully submitted.
func (c *Conversation) Complete() bool { return c.submitted }

// HasProgress reports whether any answer has been collected. Closing with
// progress but no completion requires confirmation.
func (c *Conversation) HasProgress() bool {
	return len(c.fields) > 0 && !c.submitted
}

// Summary collects the flow's summary field values for the handoff message.
func (c *Conversation) Summary() []string {
	var out []string
	for _, f := range c.flow.SummaryFields {
		if v, ok := c.fields[f]; ok && v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Transcript returns a copy of the transcript.
func (c *Conversation) Transcript() []Message {
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

func (c *Conversation) append(m Message) {
	c.transcript = append(c.transcript, m)
}

// replaceTyping removes every typing placeholder and appends the delivered
// message, as a single transcript mutation.
func (c *Conversation) replaceTyping(m Message) {
	kept := c.transcript[:0]
	for _, msg := range c.transcript {
		if msg.Role != RoleTyping {
			kept = append(kept, msg)
		}
	}
	c.transcript = append(kept, m)
}

// reset clears everything and issues a fresh lead id.
func (c *Conversation) reset() {
	c.leadID = uuid.NewString()
	c.fields = make(map[Field]string)
	c.transcript = nil
	c.submitting = false
	c.submitted = false
}

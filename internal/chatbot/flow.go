// Package chatbot implements the scripted lead-capture conversation: a
// fixed sequence of questions defined as data, a paced bot transcript, and
// the submission of the collected answers as a lead.
package chatbot

import (
	"fmt"
	"strings"
)

// Field names a collected answer.
type Field string

const (
	FieldName     Field = "name"
	FieldUrgent   Field = "urgent"
	FieldService  Field = "service"
	FieldEmirate  Field = "emirates"
	FieldPhone    Field = "phone"
	FieldSymptoms Field = "symptoms"
)

// StepKind selects the input affordance and validation rule for a step.
type StepKind string

const (
	StepText    StepKind = "text"
	StepOptions StepKind = "options"
	StepPhone   StepKind = "phone"
)

const (
	minNameLength  = 2
	minPhoneDigits = 10
)

// Step is one question in a flow. Ack may contain {value}, replaced with the
// visitor's answer when the acknowledgment is sent.
type Step struct {
	Field   Field    `json:"field"`
	Kind    StepKind `json:"kind"`
	Prompt  string   `json:"prompt"`
	Ack     string   `json:"ack,omitempty"`
	Options []string `json:"options,omitempty"`
	MinLen  int      `json:"-"`
}

// Normalize prepares raw input for validation and storage.
func (s Step) Normalize(raw string) string {
	if s.Kind == StepPhone {
		return normalizePhone(raw)
	}
	return strings.TrimSpace(raw)
}

// Accepts reports whether the normalized value passes this step's guard.
// It mirrors the client-side disable logic; the submission service still
// validates independently.
func (s Step) Accepts(value string) bool {
	switch s.Kind {
	case StepPhone:
		return len(value) >= minPhoneDigits
	case StepOptions:
		for _, opt := range s.Options {
			if value == opt {
				return true
			}
		}
		return false
	default:
		min := s.MinLen
		if min <= 0 {
			min = minNameLength
		}
		return len([]rune(value)) >= min
	}
}

// AckFor renders the acknowledgment for a given answer.
func (s Step) AckFor(value string) string {
	return strings.ReplaceAll(s.Ack, "{value}", value)
}

// normalizePhone strips formatting characters so length checks count digits.
func normalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Flow is an ordered question sequence. The set of steps is configuration,
// not control flow: the engine walks whatever steps the flow defines.
type Flow struct {
	Name          string
	Greeting      string
	Steps         []Step
	SummaryFields []Field
}

// Step returns the step collecting the given field.
func (f *Flow) Step(field Field) (Step, bool) {
	for _, s := range f.Steps {
		if s.Field == field {
			return s, true
		}
	}
	return Step{}, false
}

// FinalStep is the step whose submission completes the conversation.
func (f *Flow) FinalStep() Step {
	return f.Steps[len(f.Steps)-1]
}

// SymptomsFlow asks name, phone, then a free-text health concern.
func SymptomsFlow() *Flow {
	return &Flow{
		Name:     "symptoms",
		Greeting: "Hello! 👋 Welcome to City Doctor. I'm here to help you book medical services at your home, hotel, or office. How can I assist you today?",
		Steps: []Step{
			{
				Field:  FieldName,
				Kind:   StepText,
				Prompt: "May I know your name?",
				Ack:    "Nice to meet you, {value}! 😊",
				MinLen: minNameLength,
			},
			{
				Field:  FieldPhone,
				Kind:   StepPhone,
				Prompt: "📞 Please provide your phone number so our medical team can contact you.",
				Ack:    "Thank you! Now, please describe your symptoms or health concern.",
			},
			{
				Field:  FieldSymptoms,
				Kind:   StepText,
				Prompt: "What symptoms or health issues would you like to discuss?",
				MinLen: 2,
			},
		},
		SummaryFields: []Field{FieldSymptoms},
	}
}

// TriageFlow asks name, urgency, service, emirate, then phone.
func TriageFlow() *Flow {
	return &Flow{
		Name:     "triage",
		Greeting: "Hello! 👋 Welcome to City Doctor. I'm here to help you book medical services at your home, hotel, or office. How can I assist you today?",
		Steps: []Step{
			{
				Field:  FieldName,
				Kind:   StepText,
				Prompt: "May I know your name?",
				Ack:    "Nice to meet you, {value}! 😊",
				MinLen: minNameLength,
			},
			{
				Field:   FieldUrgent,
				Kind:    StepOptions,
				Prompt:  "How urgent is your request?",
				Ack:     "Got it, thank you.",
				Options: []string{"Immediately", "Within a few hours", "Today", "Just exploring"},
			},
			{
				Field:  FieldService,
				Kind:   StepOptions,
				Prompt: "Which service do you need?",
				Ack:    "Great choice! We'll arrange that for you.",
				Options: []string{
					"Doctor Home Visit",
					"IV Drip at Home",
					"Lab Tests at Home",
					"Physiotherapy at Home",
					"Nurse Care at Home",
				},
			},
			{
				Field:   FieldEmirate,
				Kind:    StepOptions,
				Prompt:  "Which emirate are you located in?",
				Ack:     "Perfect, we cover {value}.",
				Options: []string{"Dubai", "Abu Dhabi", "Sharjah", "Ajman", "Ras Al Khaimah", "Fujairah", "Umm Al Quwain"},
			},
			{
				Field:  FieldPhone,
				Kind:   StepPhone,
				Prompt: "📞 Please provide your phone number so our medical team can contact you.",
			},
		},
		SummaryFields: []Field{FieldService},
	}
}

// ByName resolves a configured flow name.
func ByName(name string) (*Flow, error) {
	switch name {
	case "", "symptoms":
		return SymptomsFlow(), nil
	case "triage":
		return TriageFlow(), nil
	default:
		return nil, fmt.Errorf("chatbot: unknown flow %q", name)
	}
}

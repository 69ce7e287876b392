package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepAcceptsName(t *testing.T) {
	step, ok := SymptomsFlow().Step(FieldName)
	require.True(t, ok)

	assert.True(t, step.Accepts(step.Normalize("Al")))
	assert.True(t, step.Accepts(step.Normalize("  Omar  ")))
	assert.False(t, step.Accepts(step.Normalize("A")), "single rune is too short")
	assert.False(t, step.Accepts(step.Normalize(" A ")), "whitespace does not count toward length")
	assert.False(t, step.Accepts(step.Normalize("   ")))
}

func TestStepAcceptsPhone(t *testing.T) {
	step, ok := SymptomsFlow().Step(FieldPhone)
	require.True(t, ok)

	assert.Equal(t, "0501234567", step.Normalize("050 123-4567"))
	assert.True(t, step.Accepts(step.Normalize("+971 50 123 4567")))
	assert.True(t, step.Accepts("0501234567"))
	assert.False(t, step.Accepts(step.Normalize("050 123 456")), "nine digits is short")
	assert.False(t, step.Accepts(step.Normalize("not a number")))
}

func TestStepAcceptsOptions(t *testing.T) {
	step, ok := TriageFlow().Step(FieldService)
	require.True(t, ok)

	assert.True(t, step.Accepts("IV Drip at Home"))
	assert.False(t, step.Accepts("iv drip at home"), "options match exactly")
	assert.False(t, step.Accepts("Something else"))
	assert.False(t, step.Accepts(""))
}

func TestAckForReplacesValue(t *testing.T) {
	step, ok := SymptomsFlow().Step(FieldName)
	require.True(t, ok)
	assert.Equal(t, "Nice to meet you, Layla! 😊", step.AckFor("Layla"))

	emirate, ok := TriageFlow().Step(FieldEmirate)
	require.True(t, ok)
	assert.Equal(t, "Perfect, we cover Sharjah.", emirate.AckFor("Sharjah"))
}

func TestFinalStep(t *testing.T) {
	assert.Equal(t, FieldSymptoms, SymptomsFlow().FinalStep().Field)
	assert.Equal(t, FieldPhone, TriageFlow().FinalStep().Field)
}

func TestByName(t *testing.T) {
	f, err := ByName("")
	require.NoError(t, err)
	assert.Equal(t, "symptoms", f.Name)

	f, err = ByName("triage")
	require.NoError(t, err)
	assert.Equal(t, "triage", f.Name)

	_, err = ByName("concierge")
	assert.Error(t, err)
}

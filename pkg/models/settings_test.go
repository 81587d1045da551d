package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettings_ReservedHighPriority(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		maxTasks int
		split    int
		want     int
	}{
		{"half of hundred", 100, 50, 50},
		{"rounds down", 7, 50, 3},
		{"no split", 100, 0, 0},
		{"no capacity", 0, 50, 0},
		{"clamped to max", 10, 150, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := Settings{MaxTasks: tt.maxTasks, HighPrioritySplit: tt.split}
			assert.Equal(t, tt.want, s.ReservedHighPriority())
		})
	}
}

func TestSettings_ShouldSkipOnUnsubscribe(t *testing.T) {
	s := DefaultSettings()

	assert.True(t, s.ShouldSkipOnUnsubscribe(UnsubscribeTriggerAutomatedMail, NodeTypeAutomatedMail))
	assert.False(t, s.ShouldSkipOnUnsubscribe(UnsubscribeTriggerAutomatedMail, NodeTypeMail))
	assert.True(t, s.ShouldSkipOnUnsubscribe(UnsubscribeTriggerSemiAutomatedMail, NodeTypeMail))
	assert.False(t, s.ShouldSkipOnUnsubscribe(UnsubscribeTriggerSemiAutomatedMail, NodeTypeCall))
	assert.True(t, s.ShouldSkipOnUnsubscribe("", NodeTypeReplyTo))
	assert.False(t, s.ShouldSkipOnUnsubscribe("", NodeTypeLinkedinMessage))

	s.UnsubscribeSkip[UnsubscribeTriggerAutomatedMail] = append(s.UnsubscribeSkip[UnsubscribeTriggerAutomatedMail], NodeTypeCall)
	assert.True(t, s.ShouldSkipOnUnsubscribe(UnsubscribeTriggerAutomatedMail, NodeTypeCall))
}

func TestUnsubscribeTriggerFor(t *testing.T) {
	trigger, ok := UnsubscribeTriggerFor(NodeTypeAutomatedReplyTo)
	assert.True(t, ok)
	assert.Equal(t, UnsubscribeTriggerAutomatedMail, trigger)

	trigger, ok = UnsubscribeTriggerFor(NodeTypeReplyTo)
	assert.True(t, ok)
	assert.Equal(t, UnsubscribeTriggerSemiAutomatedMail, trigger)

	_, ok = UnsubscribeTriggerFor(NodeTypeCall)
	assert.False(t, ok)
}

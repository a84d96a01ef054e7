package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]ProcessingState{
		{StatePending, StateProcessing},
		{StateFailed, StateProcessing},
		{StateProcessing, StateExtracted},
		{StateProcessing, StateFailed},
		{StateExtracted, StateValidated},
		{StateExtracted, StatePending},
		{StateFailed, StatePending},
		{StateValidated, StatePending},
	}
	allowedSet := map[[2]ProcessingState]bool{}
	for _, tr := range allowed {
		allowedSet[tr] = true
	}

	states := []ProcessingState{StatePending, StateProcessing, StateExtracted, StateFailed, StateValidated}
	for _, from := range states {
		for _, to := range states {
			got := CanTransition(from, to)
			assert.Equal(t, allowedSet[[2]ProcessingState{from, to}], got,
				"transition %s -> %s", from, to)
		}
	}
}

func TestIsValidState(t *testing.T) {
	assert.True(t, IsValidState(StateExtracted))
	assert.False(t, IsValidState("EXTRACTING"))
	assert.False(t, IsValidState(""))
}

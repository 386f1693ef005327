package mcpserver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionHappyPathTransitions(t *testing.T) {
	s := NewSession()
	assert.Equal(t, StateNew, s.State())

	require.NoError(t, s.Transition(StateInitialized))
	require.NoError(t, s.Transition(StateReady))
	require.NoError(t, s.MustBeAtLeastReady())

	require.NoError(t, s.Transition(StateServing))
	require.NoError(t, s.MustBeAtLeastReady())

	require.NoError(t, s.Transition(StateReady))
	require.NoError(t, s.Transition(StateClosing))
	require.NoError(t, s.Transition(StateClosed))
}

func TestSessionRejectsInvalidTransition(t *testing.T) {
	s := NewSession()
	err := s.Transition(StateServing)
	assert.Error(t, err)
}

func TestSessionRejectsToolCallBeforeReady(t *testing.T) {
	s := NewSession()
	err := s.MustBeAtLeastReady()
	assert.Error(t, err)
}

func TestSessionNoTransitionsOutOfClosed(t *testing.T) {
	s := NewSession()
	require.NoError(t, s.Transition(StateInitialized))
	require.NoError(t, s.Transition(StateReady))
	require.NoError(t, s.Transition(StateClosing))
	require.NoError(t, s.Transition(StateClosed))

	assert.Error(t, s.Transition(StateReady))
}

package turn

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPath(t *testing.T) {
	var seen []State
	m := NewMachine(1, ObserverFunc(func(e Event) {
		assert.Equal(t, 1, e.Turn)
		seen = append(seen, e.To)
	}))
	path := []State{Recording, Uploading, AnalyzingFace, Transcribing, Polling, GeneratingFeedback, Delivered}
	for _, s := range path {
		require.NoError(t, m.Advance(s))
	}
	assert.Equal(t, path, seen)
	assert.True(t, m.State().Terminal())
	assert.NoError(t, m.Err())
}

func TestIllegalTransitions(t *testing.T) {
	m := NewMachine(1)
	assert.Error(t, m.Advance(Uploading), "skip recording")
	assert.Error(t, m.Fail(errors.New("x")), "idle cannot fail")

	require.NoError(t, m.Advance(Recording))
	assert.Error(t, m.Advance(Polling))
	assert.Error(t, m.Advance(Failed), "failure goes through Fail")
	assert.Equal(t, Recording, m.State())
}

func TestFailFromEveryActiveState(t *testing.T) {
	path := []State{Recording, Uploading, AnalyzingFace, Transcribing, Polling, GeneratingFeedback}
	for i := range path {
		m := NewMachine(2)
		for _, s := range path[:i+1] {
			require.NoError(t, m.Advance(s))
		}
		cause := errors.New("boom")
		require.NoError(t, m.Fail(cause), "fail from %s", path[i])
		assert.Equal(t, Failed, m.State())
		assert.Same(t, cause, m.Err())
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	m := NewMachine(3)
	require.NoError(t, m.Advance(Recording))
	require.NoError(t, m.Fail(errors.New("denied")))
	assert.Error(t, m.Advance(Uploading))
	assert.Error(t, m.Fail(errors.New("again")))

	assert.False(t, Failed.Busy())
	assert.False(t, Delivered.Busy())
	assert.False(t, Idle.Busy())
	assert.True(t, Polling.Busy())
}

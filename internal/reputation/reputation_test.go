package reputation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFreshAgentScoresHalf(t *testing.T) {
	m := New()
	rep := m.Get("fresh")
	assert.Equal(t, 0.5, rep.Score())
}

func TestCompletionThenFailureSmoothsToHalf(t *testing.T) {
	m := New()
	m.RecordCompletion("worker")
	rep := m.RecordFailure("worker")

	assert.Equal(t, int64(1), rep.Completed)
	assert.Equal(t, int64(1), rep.Failed)
	assert.InDelta(t, 0.5, rep.Score(), 1e-9)
}

func TestScoreBounded(t *testing.T) {
	m := New()
	for i := 0; i < 50; i++ {
		m.RecordCompletion("star")
	}
	rep := m.Get("star")
	assert.Greater(t, rep.Score(), 0.9)
	assert.LessOrEqual(t, rep.Score(), 1.0)
}

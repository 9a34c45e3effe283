package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestArmFiresAfterDuration(t *testing.T) {
	var fired int32
	s := New(func(jobID string) {
		atomic.AddInt32(&fired, 1)
	})

	s.Arm("job-1", 20*time.Millisecond)
	assert.True(t, s.IsArmed("job-1"))
	assert.Equal(t, 1, s.Count())

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.False(t, s.IsArmed("job-1"))
}

func TestDisarmPreventsFire(t *testing.T) {
	var fired int32
	s := New(func(jobID string) {
		atomic.AddInt32(&fired, 1)
	})

	s.Arm("job-1", 20*time.Millisecond)
	s.Disarm("job-1")

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.Equal(t, 0, s.Count())
}

func TestRearmReplacesPreviousTimer(t *testing.T) {
	var fired int32
	s := New(func(jobID string) {
		atomic.AddInt32(&fired, 1)
	})

	s.Arm("job-1", 10*time.Millisecond)
	s.Arm("job-1", 100*time.Millisecond)

	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired), "first timer must have been cancelled")
	assert.Equal(t, 1, s.Count())
}

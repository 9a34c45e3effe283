package ledgertape

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeClock() func() int64 {
	n := int64(1000)
	return func() int64 {
		n++
		return n
	}
}

func TestAppendChainsHashes(t *testing.T) {
	v := NewVault(fakeClock())

	first := v.Append("job-1", "award", "awarded to worker", nil)
	second := v.Append("job-1", "submit", "worker submitted", nil)

	assert.NotEmpty(t, first.ChainHash)
	assert.NotEmpty(t, second.ChainHash)
	assert.NotEqual(t, first.ChainHash, second.ChainHash)
}

func TestRingCapsAt500(t *testing.T) {
	v := NewVault(fakeClock())
	for i := 0; i < 600; i++ {
		v.Append("job-1", "kind", "detail", nil)
	}
	assert.Len(t, v.All(), 500)
}

func TestRecentFiltersByJob(t *testing.T) {
	v := NewVault(fakeClock())
	v.Append("job-1", "k", "d", nil)
	v.Append("job-2", "k", "d", nil)
	v.Append("job-1", "k", "d", nil)

	assert.Len(t, v.Recent("job-1", 0), 2)
	assert.Len(t, v.Recent("job-2", 0), 1)
}

func TestBusPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch := b.Subscribe()

	b.EmitAgentAuthed("agent_1")

	select {
	case ev := <-ch:
		require.Equal(t, TapeAgentAuthed, ev.Kind)
	default:
		t.Fatal("expected buffered event")
	}

	b.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
}

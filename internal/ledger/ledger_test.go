package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveAndReleaseLock(t *testing.T) {
	l := New()
	l.EnsureAccount("a", 1000)

	require.NoError(t, l.ReserveLock("a", 25))
	acct, ok := l.Snapshot("a")
	require.True(t, ok)
	assert.Equal(t, int64(1000), acct.Credits)
	assert.Equal(t, int64(25), acct.Locked)
	assert.Equal(t, int64(975), acct.Spendable())

	require.NoError(t, l.ReleaseLock("a", 25))
	acct, _ = l.Snapshot("a")
	assert.Equal(t, int64(0), acct.Locked)
}

func TestReserveLockRejectsOverdraw(t *testing.T) {
	l := New()
	l.EnsureAccount("a", 10)

	err := l.ReserveLock("a", 11)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	acct, _ := l.Snapshot("a")
	assert.Equal(t, int64(0), acct.Locked, "rejected reservation must not partially apply")
}

func TestPayMovesLockedCreditsToRecipient(t *testing.T) {
	l := New()
	l.EnsureAccount("requester", 1000)
	l.EnsureAccount("worker", 1000)

	require.NoError(t, l.ReserveLock("requester", 25))
	require.NoError(t, l.Pay("requester", "worker", 25))

	req, _ := l.Snapshot("requester")
	wrk, _ := l.Snapshot("worker")
	assert.Equal(t, int64(975), req.Credits)
	assert.Equal(t, int64(0), req.Locked)
	assert.Equal(t, int64(1025), wrk.Credits)
}

func TestSlashSplitsStakeBetweenWorkerAndRequester(t *testing.T) {
	l := New()
	l.EnsureAccount("requester", 1000)
	l.EnsureAccount("worker", 1000)

	require.NoError(t, l.ReserveLock("worker", 10))
	require.NoError(t, l.Slash("worker", "requester", 10, 5))

	wrk, _ := l.Snapshot("worker")
	req, _ := l.Snapshot("requester")
	assert.Equal(t, int64(995), wrk.Credits)
	assert.Equal(t, int64(0), wrk.Locked)
	assert.Equal(t, int64(1005), req.Credits)
}

func TestApplyRejectsUnknownAccount(t *testing.T) {
	l := New()
	err := l.ReserveLock("ghost", 1)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

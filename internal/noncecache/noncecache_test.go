package noncecache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeemInMemoryRejectsReplay(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	first, err := c.Redeem(context.Background(), "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := c.Redeem(context.Background(), "n1", time.Minute)
	require.NoError(t, err)
	assert.False(t, second)
}

func TestRedeemInMemoryEvictsExpired(t *testing.T) {
	c, err := New("")
	require.NoError(t, err)

	first, err := c.Redeem(context.Background(), "n1", time.Millisecond)
	require.NoError(t, err)
	assert.True(t, first)

	time.Sleep(5 * time.Millisecond)

	second, err := c.Redeem(context.Background(), "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, second, "expired nonce should be redeemable again")
}

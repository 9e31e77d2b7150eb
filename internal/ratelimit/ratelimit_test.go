package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanSendPerUser(t *testing.T) {
	l := New(100 * time.Millisecond)

	const u1, u2 int64 = 1, 2

	l.RecordSend(u1)

	ok, wait := l.CanSend(u1)
	require.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	assert.LessOrEqual(t, wait, 100*time.Millisecond)

	ok2, _ := l.CanSend(u2)
	assert.True(t, ok2)

	time.Sleep(110 * time.Millisecond)
	ok3, _ := l.CanSend(u1)
	assert.True(t, ok3)
}

func TestHandleFloodWaitShadowsEveryUser(t *testing.T) {
	l := New(10 * time.Millisecond)
	l.HandleFloodWait(1) // buffer = 1/10 + 5 = 5, total 6s is too long for a test

	ok, wait := l.CanSend(42)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, wait, time.Second)
}

func TestBackoffTimeCaps(t *testing.T) {
	l := New(time.Second)
	assert.Equal(t, time.Second, l.BackoffTime(0))
	assert.Equal(t, 2*time.Second, l.BackoffTime(1))
	assert.Equal(t, 64*time.Second, l.BackoffTime(6))
	assert.Equal(t, 64*time.Second, l.BackoffTime(100))
}

package watchdog

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoft_ExpiresWhenStarved(t *testing.T) {
	var expired atomic.Bool
	w := NewSoft(20*time.Millisecond, func() { expired.Store(true) }, nil)
	defer w.Close()

	require.Eventually(t, expired.Load, time.Second, time.Millisecond)
}

func TestSoft_FeedKeepsAlive(t *testing.T) {
	var expired atomic.Bool
	w := NewSoft(50*time.Millisecond, func() { expired.Store(true) }, nil)
	defer w.Close()

	for i := 0; i < 10; i++ {
		time.Sleep(10 * time.Millisecond)
		require.NoError(t, w.Feed())
	}
	assert.False(t, expired.Load())
}

func TestSoft_CloseDisarms(t *testing.T) {
	var expired atomic.Bool
	w := NewSoft(10*time.Millisecond, func() { expired.Store(true) }, nil)
	require.NoError(t, w.Close())
	require.NoError(t, w.Feed())

	time.Sleep(40 * time.Millisecond)
	assert.False(t, expired.Load())
}

func TestOpenDevice_Missing(t *testing.T) {
	_, err := OpenDevice("/nonexistent/watchdog", time.Minute, nil)
	assert.Error(t, err)
}

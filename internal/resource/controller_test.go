package resource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_SearchSlot(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireSearch(t.Context()))
	assert.Equal(t, int64(1), c.Searching())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.AcquireSearch(ctx), context.DeadlineExceeded)
	assert.Zero(t, c.SearchQueue())

	c.ReleaseSearch()
	assert.Zero(t, c.Searching())
	require.NoError(t, c.AcquireSearch(t.Context()))
	c.ReleaseSearch()
}

func TestController_SearchSerialized(t *testing.T) {
	c := NewController(Config{})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		running int
		peak    int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.AcquireSearch(context.Background()); err != nil {
				return
			}
			defer c.ReleaseSearch()
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, peak)
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.Equal(t, int64(2), c.Usage().Background)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.AcquireBackground(ctx), context.DeadlineExceeded)

	c.ReleaseBackground()
	require.NoError(t, c.AcquireBackground(t.Context()))
	c.ReleaseBackground()
	c.ReleaseBackground()
	assert.Zero(t, c.Usage().Background)
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1 << 20})
	require.NoError(t, c.AcquireIO(t.Context(), 5))
	require.NoError(t, c.AcquireIO(t.Context(), 7))
	assert.Equal(t, int64(12), c.Usage().IOBytes)

	unlimited := NewController(Config{})
	require.NoError(t, unlimited.AcquireIO(t.Context(), 1<<30))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	slow := NewController(Config{IOLimitBytesPerSec: 1})
	assert.Error(t, slow.AcquireIO(ctx, 10))
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireSearch(t.Context()))
	c.ReleaseSearch()
	require.NoError(t, c.AcquireBackground(t.Context()))
	c.ReleaseBackground()
	require.NoError(t, c.AcquireIO(t.Context(), 10))
	assert.Equal(t, Usage{}, c.Usage())
}

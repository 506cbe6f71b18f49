package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config sets the limits of one mesh. The search slot is not configurable:
// exactly one search runs at a time.
type Config struct {
	// MaxBackgroundWorkers bounds concurrent region loads and saves.
	// Zero means one.
	MaxBackgroundWorkers int64

	// IOLimitBytesPerSec paces region reads and writes. Zero is unlimited.
	IOLimitBytesPerSec int64
}

// Usage is a point-in-time view of a Controller.
type Usage struct {
	Searching  int64 // searches holding the slot
	Queued     int64 // searches waiting for it
	Background int64 // region jobs holding a worker
	IOBytes    int64 // bytes charged against the IO limit
}

// Controller hands out search slots, background workers and IO budget. A
// nil Controller imposes no limits.
type Controller struct {
	searches *semaphore.Weighted
	workers  *semaphore.Weighted
	io       *rate.Limiter

	searching  atomic.Int64
	queued     atomic.Int64
	background atomic.Int64
	ioBytes    atomic.Int64
}

// NewController creates a Controller with cfg's limits.
func NewController(cfg Config) *Controller {
	c := &Controller{
		searches: semaphore.NewWeighted(1),
		workers:  semaphore.NewWeighted(max(1, cfg.MaxBackgroundWorkers)),
	}
	if n := cfg.IOLimitBytesPerSec; n > 0 {
		c.io = rate.NewLimiter(rate.Limit(n), int(n))
	}
	return c
}

// AcquireSearch waits for the search slot. It fails only when ctx is done
// first.
func (c *Controller) AcquireSearch(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.queued.Add(1)
	err := c.searches.Acquire(ctx, 1)
	c.queued.Add(-1)
	if err != nil {
		return err
	}
	c.searching.Add(1)
	return nil
}

// ReleaseSearch returns the search slot.
func (c *Controller) ReleaseSearch() {
	if c == nil {
		return
	}
	c.searching.Add(-1)
	c.searches.Release(1)
}

// Searching returns the number of searches holding a slot.
func (c *Controller) Searching() int64 {
	return c.Usage().Searching
}

// SearchQueue returns the number of searches waiting for a slot.
func (c *Controller) SearchQueue() int64 {
	return c.Usage().Queued
}

// AcquireBackground waits for a region I/O worker.
func (c *Controller) AcquireBackground(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return err
	}
	c.background.Add(1)
	return nil
}

// ReleaseBackground returns a region I/O worker.
func (c *Controller) ReleaseBackground() {
	if c == nil {
		return
	}
	c.background.Add(-1)
	c.workers.Release(1)
}

// AcquireIO waits until n bytes fit the IO limit. Requests larger than the
// burst are charged in burst-sized pieces.
func (c *Controller) AcquireIO(ctx context.Context, n int) error {
	if c == nil {
		return nil
	}
	c.ioBytes.Add(int64(n))
	if c.io == nil {
		return nil
	}
	burst := c.io.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.io.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Usage returns the current counters. A nil Controller reports zeros.
func (c *Controller) Usage() Usage {
	if c == nil {
		return Usage{}
	}
	return Usage{
		Searching:  c.searching.Load(),
		Queued:     c.queued.Load(),
		Background: c.background.Load(),
		IOBytes:    c.ioBytes.Load(),
	}
}

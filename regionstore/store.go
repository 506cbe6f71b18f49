// Package regionstore persists the edge table one region at a time and
// loads regions back on first access.
package regionstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/hupe1980/navgraph/blobstore"
	"github.com/hupe1980/navgraph/clearance"
	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/future"
	"github.com/hupe1980/navgraph/internal/resource"
)

const (
	// DefaultParallelism is the number of regions written at once by Save.
	DefaultParallelism = 4
	// DefaultPageLimit is the number of resident regions PageOut keeps.
	DefaultPageLimit = 100
	// DefaultPageIdle is how long a region must go untouched before PageOut
	// may evict it.
	DefaultPageIdle = time.Minute
)

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("regionstore: closed")

// Observer receives persistence events, typically to feed metrics.
type Observer interface {
	RegionSaved(r handle.RegionHandle, nodes, bytes int, elapsed time.Duration, err error)
	RegionLoaded(r handle.RegionHandle, nodes int, elapsed time.Duration, err error)
}

// Frontier is the queue persisted by SaveFrontier and LoadFrontier.
type Frontier interface {
	Snapshot() []handle.NodeHandle
	Restore(hs []handle.NodeHandle) int
}

// LoadResult describes one region load.
type LoadResult struct {
	Region handle.RegionHandle
	Nodes  int
	// Missing is set when no file existed for the region.
	Missing bool
	// Upgraded is set when the file used the legacy layout.
	Upgraded bool
	// Err is the I/O or decode error that left the region empty.
	Err error
}

// SaveStats describes one Save call.
type SaveStats struct {
	Regions int
	Failed  int
	Nodes   int
	Bytes   int
	Elapsed time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithController bounds background I/O with a resource controller.
func WithController(rc *resource.Controller) Option {
	return func(s *Store) { s.rc = rc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithObserver sets the persistence observer.
func WithObserver(o Observer) Option {
	return func(s *Store) { s.observer = o }
}

// WithParallelism sets how many regions Save writes at once.
func WithParallelism(n int) Option {
	return func(s *Store) { s.parallelism = n }
}

// WithVerify reads every written region back and compares it before the
// region counts as saved.
func WithVerify(v bool) Option {
	return func(s *Store) { s.verify = v }
}

// WithClock overrides the clock used by PageOut.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store connects an edge table to a blob store. It registers itself as the
// table's region loader, so touching an unknown region schedules its load.
type Store struct {
	table       *edges.Table
	blobs       blobstore.Store
	rc          *resource.Controller
	logger      *slog.Logger
	observer    Observer
	parallelism int
	verify      bool
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	loads map[handle.RegionHandle]*future.Future[LoadResult]

	saveMu   sync.Mutex
	frontier singleflight.Group
}

// New creates a Store for table backed by blobs.
func New(table *edges.Table, blobs blobstore.Store, opts ...Option) *Store {
	s := &Store{
		table:       table,
		blobs:       blobs,
		parallelism: DefaultParallelism,
		now:         time.Now,
		loads:       make(map[handle.RegionHandle]*future.Future[LoadResult]),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.parallelism = max(1, s.parallelism)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	table.SetLoader(s)
	return s
}

// Blobs returns the backing blob store.
func (s *Store) Blobs() blobstore.Store { return s.blobs }

// RegionNeeded implements edges.RegionLoader.
func (s *Store) RegionNeeded(r handle.RegionHandle) {
	s.RequestRegion(r)
}

// RequestRegion returns the memoized load of region r, starting it in the
// background on first request.
func (s *Store) RequestRegion(r handle.RegionHandle) *future.Future[LoadResult] {
	s.mu.Lock()
	if f, ok := s.loads[r]; ok {
		s.mu.Unlock()
		return f
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return future.Resolved(LoadResult{Region: r}, ErrClosed)
	}
	f := future.New[LoadResult]()
	s.loads[r] = f
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		res, err := s.load(s.ctx, r)
		f.Resolve(res, err)
	}()
	return f
}

// Loaded reports whether region r has finished loading.
func (s *Store) Loaded(r handle.RegionHandle) bool {
	s.mu.Lock()
	f, ok := s.loads[r]
	s.mu.Unlock()
	return ok && f.IsDone()
}

// loadOf returns the load of region r, or nil if it was never requested.
func (s *Store) loadOf(r handle.RegionHandle) *future.Future[LoadResult] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loads[r]
}

// pending returns the load of region r if it is still running.
func (s *Store) pending(r handle.RegionHandle) *future.Future[LoadResult] {
	if f := s.loadOf(r); f != nil && !f.IsDone() {
		return f
	}
	return nil
}

// Load requests region r and waits for it.
func (s *Store) Load(ctx context.Context, r handle.RegionHandle) (LoadResult, error) {
	return s.RequestRegion(r).Wait(ctx)
}

// WaitRegion waits until region r is resident. I/O failures leave the region
// empty and are not reported here.
func (s *Store) WaitRegion(ctx context.Context, r handle.RegionHandle) error {
	_, err := s.Load(ctx, r)
	return err
}

func (s *Store) load(ctx context.Context, r handle.RegionHandle) (LoadResult, error) {
	res := LoadResult{Region: r}
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return res, err
	}
	defer s.rc.ReleaseBackground()

	start := time.Now()
	data, err := s.blobs.Get(ctx, Name(r))
	switch {
	case errors.Is(err, blobstore.ErrNotFound):
		res.Missing = true
		s.logger.DebugContext(ctx, "region file not found", "region", uint32(r))
		s.observe(r, 0, time.Since(start), nil)
		return res, nil
	case err != nil:
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		res.Err = err
		s.logger.WarnContext(ctx, "region load failed", "region", uint32(r), "error", err)
		s.observe(r, 0, time.Since(start), err)
		return res, nil
	}
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return res, err
	}

	d, err := Decode(data)
	if err != nil {
		res.Err = err
		s.logger.WarnContext(ctx, "region file unreadable", "region", uint32(r), "error", err)
		s.observe(r, 0, time.Since(start), err)
		return res, nil
	}

	s.table.LoadRecords(d.Handles, d.Records)
	res.Nodes = len(d.Handles)
	if d.Legacy {
		res.Upgraded = true
		clearance.Rebuild(s.table, r)
		s.table.MarkDirty(r)
	}
	elapsed := time.Since(start)
	s.logger.DebugContext(ctx, "region loaded",
		"region", uint32(r),
		"nodes", res.Nodes,
		"upgraded", res.Upgraded,
		"elapsed", elapsed,
	)
	s.observe(r, res.Nodes, elapsed, nil)
	return res, nil
}

func (s *Store) observe(r handle.RegionHandle, nodes int, elapsed time.Duration, err error) {
	if s.observer != nil {
		s.observer.RegionLoaded(r, nodes, elapsed, err)
	}
}

// Save writes every dirty region. Each region is cleared from the dirty set
// before it is written and marked dirty again if the write fails, so a
// failed region is retried by the next Save and a region modified during
// the write is saved again. The returned error joins the per-region
// failures; it never aborts the remaining regions.
func (s *Store) Save(ctx context.Context) (SaveStats, error) {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	start := time.Now()
	var (
		mu    sync.Mutex
		stats SaveStats
		errs  []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for _, r := range s.table.DirtyRegions() {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			nodes, n, err := s.saveRegion(gctx, r)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				stats.Failed++
				errs = append(errs, fmt.Errorf("region %d: %w", uint32(r), err))
			case n > 0:
				stats.Regions++
				stats.Nodes += nodes
				stats.Bytes += n
			}
			return nil
		})
	}
	_ = g.Wait()
	stats.Elapsed = time.Since(start)

	if ctx.Err() != nil {
		return stats, ctx.Err()
	}
	if stats.Regions > 0 || stats.Failed > 0 {
		s.logger.InfoContext(ctx, "regions saved",
			"regions", stats.Regions,
			"failed", stats.Failed,
			"nodes", stats.Nodes,
			"bytes", stats.Bytes,
			"elapsed", stats.Elapsed,
		)
	}
	return stats, errors.Join(errs...)
}

// SaveRegion writes region r if it is dirty.
func (s *Store) SaveRegion(ctx context.Context, r handle.RegionHandle) error {
	_, _, err := s.saveRegion(ctx, r)
	return err
}

// saveRegion returns the node count and bytes written, 0 bytes if there was
// nothing to write.
func (s *Store) saveRegion(ctx context.Context, r handle.RegionHandle) (int, int, error) {
	// Records written before the region finished loading are only part of
	// it; writing them now would replace the persisted file. A load that was
	// canceled leaves the region partial and it stays dirty.
	if f := s.loadOf(r); f != nil {
		if _, err := f.Wait(ctx); err != nil {
			return 0, 0, err
		}
	}
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return 0, 0, err
	}
	defer s.rc.ReleaseBackground()

	if !s.table.TakeDirty(r) {
		return 0, 0, nil
	}
	start := time.Now()
	hs, recs := s.table.RegionRecords(r)
	if hs == nil {
		// Not resident. Dirty regions are never dropped, so nothing is unsaved.
		return 0, 0, nil
	}

	data := Encode(hs, recs)
	err := s.write(ctx, r, data)
	if s.observer != nil {
		s.observer.RegionSaved(r, len(hs), len(data), time.Since(start), err)
	}
	if err != nil {
		s.table.MarkDirty(r)
		s.logger.WarnContext(ctx, "region save skipped", "region", uint32(r), "error", err)
		return 0, 0, err
	}
	return len(hs), len(data), nil
}

func (s *Store) write(ctx context.Context, r handle.RegionHandle, data []byte) error {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	name := Name(r)
	if err := s.blobs.Put(ctx, name, data); err != nil {
		return err
	}
	if !s.verify {
		return nil
	}
	back, err := s.blobs.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if !bytes.Equal(back, data) {
		return errors.New("verify: content mismatch")
	}
	return nil
}

// SaveFrontier writes the frontier queue.
func (s *Store) SaveFrontier(ctx context.Context, f Frontier) error {
	data := EncodeFrontier(f.Snapshot())
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	if err := s.blobs.Put(ctx, FrontierName, data); err != nil {
		s.logger.WarnContext(ctx, "frontier save skipped", "error", err)
		return err
	}
	return nil
}

// LoadFrontier appends the persisted frontier to f and returns the number
// of nodes restored. A missing file restores nothing. Concurrent calls share
// one read.
func (s *Store) LoadFrontier(ctx context.Context, f Frontier) (int, error) {
	v, err, _ := s.frontier.Do(FrontierName, func() (any, error) {
		data, err := s.blobs.Get(ctx, FrontierName)
		if errors.Is(err, blobstore.ErrNotFound) {
			return []handle.NodeHandle(nil), nil
		}
		if err != nil {
			return nil, err
		}
		return DecodeFrontier(data)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "frontier load failed", "error", err)
		return 0, err
	}
	return f.Restore(v.([]handle.NodeHandle)), nil
}

// PageOut evicts least recently used regions that have been idle for at
// least idle until at most limit regions stay resident. Dirty regions are
// saved first; a region whose save fails or whose load is still running
// stays resident. It returns the number of evicted regions.
func (s *Store) PageOut(ctx context.Context, limit int, idle time.Duration) int {
	infos := s.table.Regions()
	resident := len(infos)
	cutoff := s.now().Add(-idle)
	evicted := 0

	for _, info := range infos {
		if resident <= limit || info.LastUsed.After(cutoff) {
			break
		}
		r := info.Region

		if s.pending(r) != nil {
			continue
		}
		if s.table.IsDirty(r) {
			if err := s.SaveRegion(ctx, r); err != nil {
				continue
			}
		}
		// A write that lands after the save keeps the region dirty and
		// resident. Dropping under s.mu makes the next touch load it again.
		s.mu.Lock()
		dropped := s.table.DropRegion(r)
		if dropped {
			delete(s.loads, r)
		}
		s.mu.Unlock()
		if !dropped {
			continue
		}

		resident--
		evicted++
		s.logger.DebugContext(ctx, "region paged out", "region", uint32(r), "nodes", info.Nodes)
	}
	return evicted
}

// Run saves every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval time.Duration) error {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// Consume the initial token so the first save happens after one interval.
	limiter.Allow()
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if _, err := s.Save(ctx); err != nil && ctx.Err() == nil {
			s.logger.WarnContext(ctx, "periodic save incomplete", "error", err)
		}
	}
}

// Regions lists the regions that have a file in the blob store.
func (s *Store) Regions(ctx context.Context) ([]handle.RegionHandle, error) {
	names, err := s.blobs.List(ctx, "")
	if err != nil {
		return nil, err
	}
	out := make([]handle.RegionHandle, 0, len(names))
	for _, name := range names {
		if r, ok := ParseName(name); ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// Migrate loads every persisted region, upgrading legacy files, and saves
// the upgraded ones in the current layout. It returns the number of
// upgraded regions.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	regions, err := s.Regions(ctx)
	if err != nil {
		return 0, err
	}
	upgraded := 0
	for _, r := range regions {
		res, err := s.Load(ctx, r)
		if err != nil {
			return upgraded, err
		}
		if res.Err != nil {
			return upgraded, fmt.Errorf("region %d: %w", uint32(r), res.Err)
		}
		if res.Upgraded {
			if err := s.SaveRegion(ctx, r); err != nil {
				return upgraded, fmt.Errorf("region %d: %w", uint32(r), err)
			}
			upgraded++
		}
	}
	return upgraded, nil
}

// Close cancels pending loads and waits for them to finish. It does not
// save; callers Save before Close.
func (s *Store) Close() error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

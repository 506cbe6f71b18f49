package navgraph

import (
	"log/slog"
	"time"

	"github.com/hupe1980/navgraph/blobstore"
	"github.com/hupe1980/navgraph/growth"
	"github.com/hupe1980/navgraph/internal/resource"
	"github.com/hupe1980/navgraph/regionstore"
	"github.com/hupe1980/navgraph/world"
)

const (
	// DefaultSaveInterval is how often Tick starts a background save.
	DefaultSaveInterval = 33 * time.Second
	// DefaultGrowBudget is the per-tick growth budget before the frame time
	// is subtracted.
	DefaultGrowBudget = 35 * time.Millisecond
	// MinGrowBudget is the smallest per-tick growth budget.
	MinGrowBudget = 15 * time.Millisecond
	// DefaultObstacleRadius is the radius around the path start searched for
	// dynamic obstacles.
	DefaultObstacleRadius = 50
)

type options struct {
	blobs            blobstore.Store
	prober           world.Prober
	snapper          world.GroundSnapper
	obstacles        world.ObstacleFeed
	doors            world.DoorFeed
	limits           resource.Config
	metricsCollector MetricsCollector
	logger           *Logger
	saveInterval     time.Duration
	growBudget       time.Duration
	pageLimit        int
	pageIdle         time.Duration
	verify           bool
	growth           []growth.Option
}

// Option configures Open.
type Option func(*options)

// WithStore sets the blob store regions are persisted to. Without it the
// mesh lives in memory only.
func WithStore(s blobstore.Store) Option {
	return func(o *options) {
		o.blobs = s
	}
}

// WithDirectory persists regions as files under dir.
func WithDirectory(dir string) Option {
	return func(o *options) {
		o.blobs = blobstore.NewLocalStore(dir)
	}
}

// WithWorld sets every collaborator w implements: world.Prober,
// world.GroundSnapper, world.ObstacleFeed and world.DoorFeed.
func WithWorld(w any) Option {
	return func(o *options) {
		if p, ok := w.(world.Prober); ok {
			o.prober = p
		}
		if s, ok := w.(world.GroundSnapper); ok {
			o.snapper = s
		}
		if f, ok := w.(world.ObstacleFeed); ok {
			o.obstacles = f
		}
		if d, ok := w.(world.DoorFeed); ok {
			o.doors = d
		}
	}
}

// WithProber sets the line-of-sight probe.
func WithProber(p world.Prober) Option {
	return func(o *options) {
		o.prober = p
	}
}

// WithGroundSnapper sets the ground height service.
func WithGroundSnapper(s world.GroundSnapper) Option {
	return func(o *options) {
		o.snapper = s
	}
}

// WithObstacleFeed sets the dynamic obstacle feed consulted by path
// requests that avoid obstacles.
func WithObstacleFeed(f world.ObstacleFeed) Option {
	return func(o *options) {
		o.obstacles = f
	}
}

// WithDoorFeed sets the feed of doors growth may pass through.
func WithDoorFeed(d world.DoorFeed) Option {
	return func(o *options) {
		o.doors = d
	}
}

// WithResourceLimits bounds background region I/O workers and persistence
// throughput in bytes per second (0 means unlimited). Searches always run
// one at a time.
func WithResourceLimits(workers int, ioBytesPerSec int64) Option {
	return func(o *options) {
		o.limits.MaxBackgroundWorkers = int64(workers)
		o.limits.IOLimitBytesPerSec = ioBytesPerSec
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &navgraph.BasicMetricsCollector{}
//	mesh, _ := navgraph.Open(ctx, navgraph.WithWorld(w), navgraph.WithMetricsCollector(metrics))
//	// ... tick ...
//	stats := metrics.GetStats()
//	fmt.Printf("Grown: %d, Paths: %d\n", stats.GrownNodes, stats.PathCount)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSaveInterval sets how often Tick starts a background save. Zero
// disables periodic saving.
func WithSaveInterval(d time.Duration) Option {
	return func(o *options) {
		o.saveInterval = d
	}
}

// WithGrowBudget sets the per-tick growth budget. The frame time passed to
// Tick is subtracted from it, down to MinGrowBudget.
func WithGrowBudget(d time.Duration) Option {
	return func(o *options) {
		o.growBudget = d
	}
}

// WithPageOut keeps at most limit regions in memory, evicting those idle
// for longer than idle. A limit of 0 disables paging.
func WithPageOut(limit int, idle time.Duration) Option {
	return func(o *options) {
		o.pageLimit = limit
		o.pageIdle = idle
	}
}

// WithVerifiedWrites reads every region back after writing it.
func WithVerifiedWrites(v bool) Option {
	return func(o *options) {
		o.verify = v
	}
}

// WithGrowthOptions passes options through to the growth engine.
func WithGrowthOptions(opts ...growth.Option) Option {
	return func(o *options) {
		o.growth = append(o.growth, opts...)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		limits:           resource.Config{MaxBackgroundWorkers: 4},
		saveInterval:     DefaultSaveInterval,
		growBudget:       DefaultGrowBudget,
		pageLimit:        regionstore.DefaultPageLimit,
		pageIdle:         regionstore.DefaultPageIdle,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.blobs == nil {
		o.blobs = blobstore.NewMemoryStore()
	}
	return o
}

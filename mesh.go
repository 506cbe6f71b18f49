package navgraph

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/navgraph/clearance"
	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/growth"
	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/resource"
	"github.com/hupe1980/navgraph/pathfind"
	"github.com/hupe1980/navgraph/regionstore"
	"github.com/hupe1980/navgraph/smooth"
)

const (
	// BlockRadiusSq is the squared distance around a position within which
	// BlockAround removes nodes.
	BlockRadiusSq = 0.75

	blockFloodNodes = 30
	blockFloodDepth = 30
)

// Mesh owns one navigation graph: the edge table, its region store, the
// growth engine and the path service. Tick drives it from a single
// real-time loop; path requests may be submitted from any goroutine.
type Mesh struct {
	table  *edges.Table
	store  *regionstore.Store
	grower *growth.Engine
	paths  *pathfind.Service
	rc     *resource.Controller

	opts    options
	logger  *Logger
	metrics MetricsCollector

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	lastSave time.Time
	wg       sync.WaitGroup

	agent       atomic.Uint64
	maintaining atomic.Bool
}

// TickInput describes the agent for one tick.
type TickInput struct {
	// Position is the agent position in world space.
	Position handle.Vec3
	// FrameTime is the duration of the previous frame. It is subtracted from
	// the growth budget.
	FrameTime time.Duration
}

// TickResult describes what one tick did.
type TickResult struct {
	// Node is the node under the agent.
	Node handle.NodeHandle
	// Tracked is true when the step from the previous node added an edge.
	Tracked bool
	Grow    growth.Stats
	// Maintenance is true when the tick started a background save.
	Maintenance bool
}

// PathOptions configures one path request.
type PathOptions struct {
	// ClearanceFloor skips nodes with a lower clearance.
	ClearanceFloor int
	// Budget is the search time limit; zero means pathfind.DefaultBudget.
	Budget time.Duration
	// AvoidObstacles blocks nodes covered by obstacles from the feed.
	AvoidObstacles bool
	// ObstacleRadius is the radius around the start searched for obstacles;
	// zero means DefaultObstacleRadius.
	ObstacleRadius float32
	// Blocked nodes are avoided in addition to obstacles.
	Blocked []handle.NodeHandle
}

// Open creates a Mesh and restores the persisted frontier. Regions load on
// first access. A prober and a ground snapper are required.
func Open(ctx context.Context, optFns ...Option) (*Mesh, error) {
	o := applyOptions(optFns)
	if o.prober == nil {
		return nil, ErrNoProber
	}
	if o.snapper == nil {
		return nil, ErrNoSnapper
	}

	rc := resource.NewController(o.limits)
	table := edges.New()
	store := regionstore.New(table, o.blobs,
		regionstore.WithController(rc),
		regionstore.WithLogger(o.logger.WithComponent("regionstore").Logger),
		regionstore.WithObserver(storeObserver{o.metricsCollector}),
		regionstore.WithVerify(o.verify),
	)

	growOpts := []growth.Option{growth.WithLogger(o.logger.WithComponent("growth").Logger)}
	if o.doors != nil {
		growOpts = append(growOpts, growth.WithDoors(o.doors))
	}
	grower := growth.New(table, o.prober, o.snapper, nil, append(growOpts, o.growth...)...)

	paths := pathfind.NewService(table,
		pathfind.WithController(rc),
		pathfind.WithRegionWaiter(store),
		pathfind.WithLogger(o.logger.WithComponent("pathfind").Logger),
	)

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m := &Mesh{
		table:    table,
		store:    store,
		grower:   grower,
		paths:    paths,
		rc:       rc,
		opts:     o,
		logger:   o.logger,
		metrics:  o.metricsCollector,
		ctx:      base,
		cancel:   cancel,
		lastSave: time.Now(),
	}

	n, err := store.LoadFrontier(ctx, grower.Frontier())
	m.logger.LogFrontier(ctx, "load", n, err)
	if err != nil && ctx.Err() != nil {
		m.shutdown()
		return nil, ctx.Err()
	}
	return m, nil
}

// Table returns the edge table.
func (m *Mesh) Table() *edges.Table { return m.table }

// Store returns the region store.
func (m *Mesh) Store() *regionstore.Store { return m.store }

// Grower returns the growth engine.
func (m *Mesh) Grower() *growth.Engine { return m.grower }

// Paths returns the path service.
func (m *Mesh) Paths() *pathfind.Service { return m.paths }

// Agent returns the node the agent stood on at the last tick.
func (m *Mesh) Agent() handle.NodeHandle {
	return handle.NodeHandle(m.agent.Load())
}

// NodeAt returns the node under pos after snapping it to the ground.
func (m *Mesh) NodeAt(pos handle.Vec3) handle.NodeHandle {
	return handle.Handle(m.opts.snapper.SnapToGround(pos, growth.DefaultSnapOffset))
}

// Tick runs one real-time step: it records the edge the agent walked since
// the previous tick, grows the graph around the agent (or from the frontier
// once the agent's node is grown) within the frame budget, and starts a
// background save and page-out when one is due.
func (m *Mesh) Tick(ctx context.Context, in TickInput) (TickResult, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return TickResult{}, ErrClosed
	}
	m.mu.Unlock()

	node := m.NodeAt(in.Position)
	res := TickResult{Node: node}

	prev := handle.NodeHandle(m.agent.Swap(uint64(node)))
	res.Tracked = m.grower.TrackAgent(prev, node)

	budget := max(MinGrowBudget, m.opts.growBudget-in.FrameTime)
	start := node
	if m.table.IsGrown(node) {
		start = handle.Invalid
	}
	res.Grow = m.grower.Grow(ctx, start, in.Position, budget)
	m.metrics.RecordGrow(res.Grow.Grown, res.Grow.Frontier, res.Grow.Elapsed)

	if m.maintenanceDue() {
		res.Maintenance = m.startMaintenance()
	}
	return res, nil
}

func (m *Mesh) maintenanceDue() bool {
	m.mu.Lock()
	last := m.lastSave
	m.mu.Unlock()
	if m.opts.saveInterval > 0 && time.Since(last) >= m.opts.saveInterval {
		return true
	}
	return m.opts.pageLimit > 0 && m.table.RegionCount() > m.opts.pageLimit
}

func (m *Mesh) startMaintenance() bool {
	if !m.maintaining.CompareAndSwap(false, true) {
		return false
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.maintaining.Store(false)
		return false
	}
	m.lastSave = time.Now()
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer m.maintaining.Store(false)
		m.maintain(m.ctx)
	}()
	return true
}

// maintain saves dirty regions and the frontier, then pages out idle
// regions.
func (m *Mesh) maintain(ctx context.Context) {
	_, _ = m.save(ctx)
	if ctx.Err() != nil || m.opts.pageLimit <= 0 {
		return
	}
	n := m.store.PageOut(ctx, m.opts.pageLimit, m.opts.pageIdle)
	m.metrics.RecordPageOut(n)
	m.logger.LogPageOut(ctx, n, m.table.RegionCount())
}

// Save writes every dirty region and the frontier.
func (m *Mesh) Save(ctx context.Context) (regionstore.SaveStats, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return regionstore.SaveStats{}, ErrClosed
	}
	return m.save(ctx)
}

func (m *Mesh) save(ctx context.Context) (regionstore.SaveStats, error) {
	stats, err := m.store.Save(ctx)
	m.logger.LogSave(ctx, stats, err)
	if ctx.Err() != nil {
		return stats, ctx.Err()
	}

	f := m.grower.Frontier()
	ferr := m.store.SaveFrontier(ctx, f)
	m.logger.LogFrontier(ctx, "save", f.Len(), ferr)
	return stats, errors.Join(err, ferr)
}

// RequestPath submits a path search between two world positions, both
// snapped to the ground. Invalid positions fail the request immediately.
// The returned request resolves asynchronously.
func (m *Mesh) RequestPath(ctx context.Context, start, target handle.Vec3, po PathOptions) (*pathfind.Request, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	m.wg.Add(1)
	m.mu.Unlock()

	q := pathfind.Query{
		Start:          m.NodeAt(start),
		Target:         m.NodeAt(target),
		Budget:         po.Budget,
		ClearanceFloor: po.ClearanceFloor,
	}
	if len(po.Blocked) > 0 {
		q.Blocked = pathfind.NewBlockedSet(po.Blocked...)
	}

	var req *pathfind.Request
	if po.AvoidObstacles && m.opts.obstacles != nil {
		radius := po.ObstacleRadius
		if radius <= 0 {
			radius = DefaultObstacleRadius
		}
		radius = max(radius, start.Sub(target).Len())
		req = m.paths.Submit(ctx, q, m.opts.obstacles.Obstacles(ctx, start, radius))
	} else {
		req = m.paths.Submit(ctx, q, nil)
	}

	go func() {
		defer m.wg.Done()
		<-req.Done()
		m.metrics.RecordPath(req.Status(), req.Progress().Expanded(), req.Elapsed())
		m.logger.LogPath(m.ctx, req)
	}()
	return req, nil
}

// FindPath submits a path request and waits for it.
func (m *Mesh) FindPath(ctx context.Context, start, target handle.Vec3, po PathOptions) (*pathfind.Path, error) {
	req, err := m.RequestPath(ctx, start, target, po)
	if err != nil {
		return nil, err
	}
	return req.Wait(ctx)
}

// Smooth reduces a path to the way-points an agent steers through.
func (m *Mesh) Smooth(ctx context.Context, p *pathfind.Path, opts ...smooth.Option) *smooth.SmoothPath {
	return smooth.FromNodes(ctx, m.opts.prober, p.All(), opts...)
}

// Block removes the node under pos from the graph for good: its edges and
// every edge into it are dropped and it is marked grown so growth never
// reconnects it.
func (m *Mesh) Block(ctx context.Context, pos handle.Vec3) error {
	h := m.NodeAt(pos)
	if h == handle.Invalid {
		return &ErrInvalidPosition{Position: pos}
	}
	m.block(h)
	m.logger.LogBlock(ctx, h, 1)
	return nil
}

// BlockAround blocks every node within BlockRadiusSq of the node under pos,
// except the node the agent stands on. It returns the number of nodes
// blocked.
func (m *Mesh) BlockAround(ctx context.Context, pos handle.Vec3) (int, error) {
	center := m.NodeAt(pos)
	if center == handle.Invalid {
		return 0, &ErrInvalidPosition{Position: pos}
	}
	agent := m.Agent()

	blocked := 0
	err := pathfind.Flood(ctx, center, blockFloodNodes, blockFloodDepth, func(h handle.NodeHandle, _ int) bool {
		if h != agent && handle.DistanceSq(h, center) < BlockRadiusSq {
			m.block(h)
			blocked++
		}
		return true
	})
	m.logger.LogBlock(ctx, center, blocked)
	return blocked, err
}

func (m *Mesh) block(h handle.NodeHandle) {
	clearance.PropagateFrom(m.table, h, 1)
	for _, n := range handle.PossibleEdges(h) {
		if m.table.HasEdge(n, h) {
			m.table.RemoveEdge(n, h)
		}
	}
	m.table.Block(h)
}

// Stats is a point-in-time view of a Mesh.
type Stats struct {
	Nodes       int
	Regions     int
	Dirty       int
	Frontier    int
	GrowthRate  float64
	ActivePaths int
	Searching   int64
	Queued      int64
	IOJobs      int64
	IOBytes     int64
}

// Stats returns current counters.
func (m *Mesh) Stats() Stats {
	u := m.rc.Usage()
	return Stats{
		Nodes:       m.table.Len(),
		Regions:     m.table.RegionCount(),
		Dirty:       m.table.DirtyCount(),
		Frontier:    m.grower.Frontier().Len(),
		GrowthRate:  m.grower.GrowthRate(),
		ActivePaths: len(m.paths.Active()),
		Searching:   u.Searching,
		Queued:      u.Queued,
		IOJobs:      u.Background,
		IOBytes:     u.IOBytes,
	}
}

// Close cancels outstanding path requests and background work, saves every
// dirty region and the frontier, and releases the store.
func (m *Mesh) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.paths.Close()
	m.cancel()
	m.wg.Wait()

	_, err := m.save(ctx)
	return errors.Join(err, m.store.Close())
}

func (m *Mesh) shutdown() {
	m.paths.Close()
	m.cancel()
	_ = m.store.Close()
}

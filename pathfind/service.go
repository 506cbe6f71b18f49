package pathfind

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/navgraph/handle"
	"github.com/hupe1980/navgraph/internal/future"
	"github.com/hupe1980/navgraph/internal/resource"
	"github.com/hupe1980/navgraph/world"
)

// DefaultRecent is the number of finished requests kept for diagnostics.
const DefaultRecent = 20

// ErrPending is returned by Request.Result while the request runs.
var ErrPending = errors.New("pathfind: request pending")

// Status is the lifecycle state of a Request.
type Status int32

// Request states.
const (
	StatusQueued Status = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusQueued:
		return "queued"
	case StatusRunning:
		return "running"
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	case StatusCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Done reports whether s is terminal.
func (s Status) Done() bool { return s >= StatusSucceeded }

// RegionWaiter blocks until a region's persisted records are in memory.
type RegionWaiter interface {
	WaitRegion(ctx context.Context, r handle.RegionHandle) error
}

// Request is one asynchronous path query. Its result is written once.
type Request struct {
	ID     uuid.UUID
	Start  handle.NodeHandle
	Target handle.NodeHandle

	query    Query
	progress Progress
	fut      *future.Future[*Path]
	cancel   context.CancelFunc

	status     atomic.Int32
	substitute atomic.Uint64
	blocked    atomic.Int64
	submitted  time.Time
	finished   atomic.Int64
}

func newRequest(q Query) *Request {
	return &Request{
		ID:        uuid.New(),
		Start:     q.Start,
		Target:    q.Target,
		query:     q,
		fut:       future.New[*Path](),
		cancel:    func() {},
		submitted: time.Now(),
	}
}

// Wait blocks until the request finishes or ctx is done.
func (r *Request) Wait(ctx context.Context) (*Path, error) {
	return r.fut.Wait(ctx)
}

// Done is closed when the request finishes.
func (r *Request) Done() <-chan struct{} { return r.fut.Done() }

// Status returns the current state.
func (r *Request) Status() Status { return Status(r.status.Load()) }

// Result returns the outcome without blocking, or ErrPending.
func (r *Request) Result() (*Path, error) {
	if !r.fut.IsDone() {
		return nil, ErrPending
	}
	return r.fut.Wait(context.Background())
}

// Err returns the failure of a finished request, nil otherwise.
func (r *Request) Err() error {
	if !r.fut.IsDone() {
		return nil
	}
	_, err := r.fut.Wait(context.Background())
	return err
}

// Cancel stops the request at its next check.
func (r *Request) Cancel() { r.cancel() }

// Progress returns the live search progress.
func (r *Request) Progress() *Progress { return &r.progress }

// EffectiveTarget returns the target searched for, which differs from
// Target when a substitute was chosen.
func (r *Request) EffectiveTarget() handle.NodeHandle {
	if s := handle.NodeHandle(r.substitute.Load()); s != handle.Invalid {
		return s
	}
	return r.Target
}

// Blocked returns the number of nodes blocked by obstacles.
func (r *Request) Blocked() int { return int(r.blocked.Load()) }

// Elapsed returns the running time, or the total time once finished.
func (r *Request) Elapsed() time.Duration {
	if f := r.finished.Load(); f != 0 {
		return time.Unix(0, f).Sub(r.submitted)
	}
	return time.Since(r.submitted)
}

func (r *Request) String() string {
	s := fmt.Sprintf("[%s] %s->%s %s blocked=%d in %s", r.ID.String()[:8], r.Start, r.EffectiveTarget(), r.Status(), r.Blocked(), r.Elapsed().Round(time.Millisecond))
	if p, err := r.Result(); err == nil {
		s += " " + p.String()
	} else if !errors.Is(err, ErrPending) {
		s += " " + err.Error()
	}
	return s
}

func (r *Request) finish(p *Path, err error) {
	st := StatusSucceeded
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		st = StatusCanceled
	case err != nil:
		st = StatusFailed
	}
	r.finished.Store(time.Now().UnixNano())
	r.status.Store(int32(st))
	r.fut.Resolve(p, err)
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	controller *resource.Controller
	waiter     RegionWaiter
	logger     *slog.Logger
	recent     int
}

// WithController shares a resource controller. Services sharing one
// controller run a single search at a time between them.
func WithController(rc *resource.Controller) ServiceOption {
	return func(o *serviceOptions) { o.controller = rc }
}

// WithRegionWaiter makes requests wait for the start and target regions to
// load before searching.
func WithRegionWaiter(w RegionWaiter) ServiceOption {
	return func(o *serviceOptions) { o.waiter = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(o *serviceOptions) { o.logger = l }
}

// WithRecent sets how many finished requests are kept.
func WithRecent(n int) ServiceOption {
	return func(o *serviceOptions) { o.recent = n }
}

// Service runs path requests. Any number may be pending; searches run one
// at a time.
type Service struct {
	graph  Graph
	rc     *resource.Controller
	waiter RegionWaiter
	logger *slog.Logger

	mu        sync.Mutex
	active    map[uuid.UUID]*Request
	recent    []*Request
	maxRecent int
	wg        sync.WaitGroup
}

// NewService creates a Service over g.
func NewService(g Graph, optFns ...ServiceOption) *Service {
	opts := serviceOptions{recent: DefaultRecent}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.controller == nil {
		opts.controller = resource.NewController(resource.Config{})
	}
	if opts.logger == nil {
		opts.logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		graph:     g,
		rc:        opts.controller,
		waiter:    opts.waiter,
		logger:    opts.logger,
		active:    make(map[uuid.UUID]*Request),
		maxRecent: max(0, opts.recent),
	}
}

// Submit starts a request. Invalid handles fail synchronously. obstacles,
// if non-nil, is rasterized into the blocked set before searching.
func (s *Service) Submit(ctx context.Context, q Query, obstacles iter.Seq[world.Obstacle]) *Request {
	req := newRequest(q)
	switch {
	case q.Start == handle.Invalid:
		req.finish(nil, ErrInvalidStart)
		s.remember(req)
		return req
	case q.Target == handle.Invalid:
		req.finish(nil, ErrInvalidTarget)
		s.remember(req)
		return req
	}

	ctx, cancel := context.WithCancel(ctx)
	req.cancel = cancel

	s.mu.Lock()
	s.active[req.ID] = req
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		p, err := s.run(ctx, req, obstacles)
		req.finish(p, err)

		s.mu.Lock()
		delete(s.active, req.ID)
		s.mu.Unlock()
		s.remember(req)
		s.log(ctx, req, err)
	}()
	return req
}

func (s *Service) run(ctx context.Context, req *Request, obstacles iter.Seq[world.Obstacle]) (*Path, error) {
	q := req.query

	if s.waiter != nil {
		regions := []handle.RegionHandle{handle.Region(q.Start)}
		if r := handle.Region(q.Target); r != regions[0] {
			regions = append(regions, r)
		}
		for _, r := range regions {
			if err := s.waiter.WaitRegion(ctx, r); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				s.logger.WarnContext(ctx, "region prefetch failed", "request", req.ID, "region", r, "error", err)
			}
		}
	}

	blocked := NewBlockedSet()
	blocked.Union(q.Blocked)
	if obstacles != nil {
		obs, err := RasterizeObstacles(ctx, obstacles)
		if err != nil {
			return nil, err
		}
		blocked.Union(obs)
	}
	q.Blocked = blocked
	req.blocked.Store(int64(blocked.Len()))

	if blocked.Contains(q.Target) || !s.graph.Get(q.Target).HasEdges() {
		sub, err := Substitute(ctx, s.graph, q.Target, blocked)
		if err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "substituted path target",
			"request", req.ID,
			"target", q.Target,
			"substitute", sub,
			"distance", handle.Distance(q.Target, sub),
		)
		req.substitute.Store(uint64(sub))
		q.Target = sub
	}

	if err := s.rc.AcquireSearch(ctx); err != nil {
		return nil, err
	}
	defer s.rc.ReleaseSearch()

	req.status.Store(int32(StatusRunning))
	q.Progress = &req.progress
	return FindPath(ctx, s.graph, q)
}

func (s *Service) log(ctx context.Context, req *Request, err error) {
	attrs := []any{
		"request", req.ID,
		"start", req.Start,
		"target", req.EffectiveTarget(),
		"expanded", req.progress.Expanded(),
		"elapsed", req.Elapsed(),
	}
	switch req.Status() {
	case StatusSucceeded:
		p, _ := req.Result()
		s.logger.DebugContext(ctx, "path found", append(attrs, "steps", p.Steps())...)
	case StatusCanceled:
		s.logger.DebugContext(ctx, "path request canceled", attrs...)
	default:
		s.logger.InfoContext(ctx, "path request failed", append(attrs, "error", err)...)
	}
}

func (s *Service) remember(req *Request) {
	if s.maxRecent == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) >= s.maxRecent {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:len(s.recent)-1]
	}
	s.recent = append(s.recent, req)
}

// Active returns the requests not yet finished.
func (s *Service) Active() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Request, 0, len(s.active))
	for _, r := range s.active {
		out = append(out, r)
	}
	return out
}

// Recent returns the most recently finished requests, oldest first.
func (s *Service) Recent() []*Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Request(nil), s.recent...)
}

// CancelAll cancels every unfinished request and returns how many there
// were.
func (s *Service) CancelAll() int {
	active := s.Active()
	for _, r := range active {
		r.Cancel()
	}
	return len(active)
}

// Close cancels outstanding requests and waits for them to finish.
func (s *Service) Close() {
	s.CancelAll()
	s.wg.Wait()
}

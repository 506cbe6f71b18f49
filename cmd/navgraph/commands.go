package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hupe1980/navgraph"
	"github.com/hupe1980/navgraph/edges"
	"github.com/hupe1980/navgraph/growth"
	"github.com/hupe1980/navgraph/handle"
	navprom "github.com/hupe1980/navgraph/metrics/prometheus"
	"github.com/hupe1980/navgraph/pathfind"
	"github.com/hupe1980/navgraph/regionstore"
	"github.com/hupe1980/navgraph/world"
	"github.com/hupe1980/navgraph/world/sim"
)

var (
	simTicks int
	simFrame time.Duration

	pathBudget    time.Duration
	pathClearance int

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Walk an agent through a synthetic world and persist the grown mesh",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}

	inspectCmd = &cobra.Command{
		Use:   "inspect",
		Short: "List stored regions and the persisted frontier",
		Args:  cobra.NoArgs,
		RunE:  runInspect,
	}

	pathCmd = &cobra.Command{
		Use:   "path X1 Y1 Z1 X2 Y2 Z2",
		Short: "Search a path between two world positions over stored regions",
		Args:  cobra.ExactArgs(6),
		RunE:  runPath,
	}

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy region files in the current layout",
		Args:  cobra.NoArgs,
		RunE:  runMigrate,
	}
)

func init() {
	simulateCmd.Flags().IntVar(&simTicks, "ticks", 160, "number of agent ticks")
	simulateCmd.Flags().DurationVar(&simFrame, "frame", 16*time.Millisecond, "simulated frame time")

	pathCmd.Flags().DurationVar(&pathBudget, "budget", pathfind.DefaultBudget, "search time limit")
	pathCmd.Flags().IntVar(&pathClearance, "clearance", 0, "minimum clearance of entered nodes")
}

const (
	simGround = 10
	simOrigin = 20
	simSide   = 10
	simStep   = 0.5
)

// demoWorld is flat ground with a wall inside the agent's patrol square, a
// door in the east side and a crate west of it.
func demoWorld() *sim.World {
	w := sim.NewFlatWorld(simGround)
	w.AddWall(handle.Vec3{24.9, 22, simGround - 1}, handle.Vec3{25.1, 28, simGround + 4})
	w.AddDoor(handle.Vec3{29.8, 24, simGround}, handle.Vec3{30.2, 26, simGround + 2.5}, 1)
	w.AddObstacle(world.Obstacle{
		Pose:   mgl32.Translate3D(22, 27, simGround),
		Min:    handle.Vec3{-0.4, -0.4, 0},
		Max:    handle.Vec3{0.4, 0.4, 0.8},
		Entity: 2,
	})
	return w
}

// patrol returns the agent position at tick i, walking the square with its
// south-west corner at (simOrigin, simOrigin) counter-clockwise.
func patrol(i int) handle.Vec3 {
	perimeter := int(4 * simSide / simStep)
	side := int(simSide / simStep)
	i %= perimeter
	d := float32(i%side) * simStep
	x, y := float32(simOrigin), float32(simOrigin)
	switch i / side {
	case 0:
		x += d
	case 1:
		x, y = x+simSide, y+d
	case 2:
		x, y = x+simSide-d, y+simSide
	default:
		y += simSide - d
	}
	return handle.Vec3{x, y, simGround}
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	opts := append(e.cfg.meshOptions(e.blobs, e.logger),
		navgraph.WithWorld(demoWorld()),
		navgraph.WithGrowthOptions(growth.WithMaxRange(e.cfg.Mesh.GrowRange)),
	)
	if e.cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		opts = append(opts, navgraph.WithMetricsCollector(navprom.New(reg, "navgraph")))
		stop := serveMetrics(e.cfg.Metrics.Listen, reg, e.logger)
		defer stop()
	}

	mesh, err := navgraph.Open(ctx, opts...)
	if err != nil {
		return err
	}
	// The final save runs even after an interrupt.
	defer func() { _ = mesh.Close(context.WithoutCancel(ctx)) }()

	grown := 0
	for i := range simTicks {
		res, err := mesh.Tick(ctx, navgraph.TickInput{Position: patrol(i), FrameTime: simFrame})
		if err != nil {
			return err
		}
		grown += res.Grow.Grown
		if ctx.Err() != nil {
			break
		}
	}
	fmt.Fprintf(out, "ticks: %d, grown: %d\n", simTicks, grown)

	from := patrol(0)
	to := handle.Vec3{simOrigin + simSide, simOrigin + simSide, simGround}
	p, err := mesh.FindPath(ctx, from, to, navgraph.PathOptions{AvoidObstacles: true})
	switch {
	case err != nil:
		fmt.Fprintf(out, "path: %v\n", err)
	default:
		steer := mesh.Smooth(ctx, p)
		fmt.Fprintf(out, "path: %d steps, %d waypoints\n", p.Steps(), steer.Len())
	}

	st := mesh.Stats()
	fmt.Fprintf(out, "nodes: %d, regions: %d, frontier: %d, io: %d bytes\n", st.Nodes, st.Regions, st.Frontier, st.IOBytes)

	if err := mesh.Close(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("save mesh: %w", err)
	}
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *navgraph.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func runInspect(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()

	ctx := cmd.Context()
	table := edges.New()
	store := regionstore.New(table, e.blobs,
		regionstore.WithLogger(e.logger.WithComponent("regionstore").Logger))
	defer func() { _ = store.Close() }()

	regions, err := store.Regions(ctx)
	if err != nil {
		return fmt.Errorf("list regions: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tFILE\tNODES\tGROWN\tLEGACY\tSTATUS")
	total := 0
	for _, r := range regions {
		res, err := store.Load(ctx, r)
		if err != nil {
			return err
		}
		status := "ok"
		if res.Err != nil {
			status = res.Err.Error()
		}
		_, recs := table.RegionRecords(r)
		grown := 0
		for _, rec := range recs {
			if rec.Grown() {
				grown++
			}
		}
		total += res.Nodes
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%t\t%s\n", uint32(r), regionstore.Name(r), res.Nodes, grown, res.Upgraded, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	n, err := store.LoadFrontier(ctx, growth.NewFrontier())
	if err != nil {
		return fmt.Errorf("load frontier: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "regions: %d, nodes: %d, frontier: %d\n", len(regions), total, n)
	return nil
}

func runPath(cmd *cobra.Command, args []string) error {
	var coords [6]float32
	for i, a := range args {
		v, err := strconv.ParseFloat(a, 32)
		if err != nil {
			return fmt.Errorf("coordinate %d: %w", i+1, err)
		}
		coords[i] = float32(v)
	}
	from := handle.Vec3{coords[0], coords[1], coords[2]}
	to := handle.Vec3{coords[3], coords[4], coords[5]}

	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()

	ctx := cmd.Context()
	table := edges.New()
	store := regionstore.New(table, e.blobs,
		regionstore.WithLogger(e.logger.WithComponent("regionstore").Logger))
	defer func() { _ = store.Close() }()

	svc := pathfind.NewService(table,
		pathfind.WithRegionWaiter(store),
		pathfind.WithLogger(e.logger.WithComponent("pathfind").Logger))
	defer svc.Close()

	req := svc.Submit(ctx, pathfind.Query{
		Start:          handle.Handle(from),
		Target:         handle.Handle(to),
		Budget:         pathBudget,
		ClearanceFloor: pathClearance,
	}, nil)
	p, err := req.Wait(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for i, pos := range p.Positions() {
		fmt.Fprintf(out, "%d\t%.2f\t%.2f\t%.2f\n", i, pos[0], pos[1], pos[2])
	}
	fmt.Fprintf(out, "steps: %d, expanded: %d, elapsed: %s\n", p.Steps(), req.Progress().Expanded(), req.Elapsed())
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.close() }()

	store := regionstore.New(edges.New(), e.blobs,
		regionstore.WithLogger(e.logger.WithComponent("regionstore").Logger),
		regionstore.WithVerify(e.cfg.Storage.Verify))
	defer func() { _ = store.Close() }()

	n, err := store.Migrate(cmd.Context())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "upgraded: %d\n", n)
	return nil
}

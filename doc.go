// Package navgraph builds and searches a navigation graph over 3-D world
// space for a single agent.
//
// The graph is a spatial hash: every node is a 0.5 x 0.5 x 0.25 grid cell
// identified by a 64-bit handle, and every edge is one bit in the 64-bit
// record of its source node. Nodes are discovered lazily by probing the
// world around the agent, persisted region by region, and loaded back the
// first time a region is touched.
//
// # Quick Start
//
//	mesh, _ := navgraph.Open(ctx,
//	    navgraph.WithWorld(w),            // Prober + GroundSnapper (+ feeds)
//	    navgraph.WithDirectory("./mesh"), // region files
//	)
//	defer mesh.Close(ctx)
//
//	for frame := range frames {
//	    mesh.Tick(ctx, navgraph.TickInput{Position: agentPos, FrameTime: frame.Elapsed})
//	}
//
// # Paths
//
// Path requests run asynchronously, one search at a time:
//
//	req, _ := mesh.RequestPath(ctx, from, to, navgraph.PathOptions{AvoidObstacles: true})
//	path, err := req.Wait(ctx)
//	steer := mesh.Smooth(ctx, path)
//	target := steer.Next(agentPos, 1)
//
// A request whose target is blocked or unconnected is redirected to the
// nearest reachable node. Failures are typed (see package pathfind);
// cancellation is reported separately from failure.
//
// # Storage
//
// Regions are written through a blobstore.Store: local files, memory,
// Badger, S3 (optionally with a DynamoDB commit ledger) or MinIO, each
// optionally wrapped in LZ4 or Zstandard compression.
//
// # Limitations
//
//   - The world origin maps to the invalid handle; no node can sit there.
//   - Clearance is a relaxed distance-to-obstruction field, not an exact
//     distance transform.
package navgraph

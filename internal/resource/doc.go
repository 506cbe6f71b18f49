// Package resource governs the shared limits of a navigation mesh: one A*
// search at a time, a bounded number of region loads and saves, and a token
// bucket pacing region I/O.
//
//	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 4})
//
//	if err := rc.AcquireSearch(ctx); err != nil {
//	    return err // canceled while queued
//	}
//	defer rc.ReleaseSearch()
//
// A nil *Controller is valid and imposes no limits.
package resource

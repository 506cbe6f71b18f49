// Package testutil provides testing utilities for navgraph.
//
// This package is intended for use in tests and benchmarks only.
//
// # Random Data
//
//	rng := testutil.NewRNG(seed)
//	tbl, want := rng.RandomTable(1000, lo, hi)
//
// # Open Lattices
//
//	nodes := testutil.Lattice(tbl, lo, hi)
package testutil

package navgraph

import (
	"errors"
	"fmt"

	"github.com/hupe1980/navgraph/handle"
)

var (
	// ErrNoProber is returned by Open without a collision prober.
	ErrNoProber = errors.New("navgraph: a prober is required")

	// ErrNoSnapper is returned by Open without a ground snapper.
	ErrNoSnapper = errors.New("navgraph: a ground snapper is required")

	// ErrClosed is returned by operations on a closed Mesh.
	ErrClosed = errors.New("navgraph: mesh closed")
)

// ErrInvalidPosition indicates a position that maps to the invalid handle,
// such as the world origin.
type ErrInvalidPosition struct {
	Position handle.Vec3
}

func (e *ErrInvalidPosition) Error() string {
	return fmt.Sprintf("navgraph: position %v has no node", e.Position)
}

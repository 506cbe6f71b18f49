package pathfind

import (
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/navgraph/handle"
)

var (
	// ErrInvalidStart is returned when the start handle is invalid.
	ErrInvalidStart = errors.New("pathfind: invalid start")
	// ErrInvalidTarget is returned when the target handle is invalid.
	ErrInvalidTarget = errors.New("pathfind: invalid target")
	// ErrTargetBlocked is returned when the target is in the blocked set at
	// search time.
	ErrTargetBlocked = errors.New("pathfind: target is blocked")
	// ErrUnmappableTarget is returned when no reachable substitute exists for
	// a blocked or unconnected target.
	ErrUnmappableTarget = errors.New("pathfind: target not mappable")
	// ErrExhausted is returned when the open set empties without reaching
	// the target.
	ErrExhausted = errors.New("pathfind: searched all reachable nodes")
	// ErrBudgetExceeded is the sentinel wrapped by *BudgetExceededError.
	ErrBudgetExceeded = errors.New("pathfind: budget exceeded")
)

// BudgetExceededError reports a search that ran out of wall-clock time.
type BudgetExceededError struct {
	Target   handle.NodeHandle
	Expanded int
	Elapsed  time.Duration
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("pathfind: searching %s for too long (%d nodes in %s)", e.Target, e.Expanded, e.Elapsed.Round(time.Millisecond))
}

func (e *BudgetExceededError) Unwrap() error { return ErrBudgetExceeded }

// ExhaustedError reports an open set that emptied without a hit.
type ExhaustedError struct {
	Target   handle.NodeHandle
	Expanded int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("pathfind: searched all %d reachable nodes without reaching %s", e.Expanded, e.Target)
}

func (e *ExhaustedError) Unwrap() error { return ErrExhausted }

package broadcast

import "errors"

var (
	// ErrNoBuilder indicates that the coordinator has nothing to build snapshots with.
	ErrNoBuilder = errors.New("snapshot builder is required")
	// ErrInvalidBaseTick indicates a non-positive base tick.
	ErrInvalidBaseTick = errors.New("base tick must be positive")
)

package nn

import (
	"errors"
	"fmt"
)

// ErrInvalidTopology is returned when a topology has fewer than two layers
// or a non-positive layer size.
var ErrInvalidTopology = errors.New("invalid topology")

// ShapeError reports a vector or matrix whose length does not match the
// network topology.
type ShapeError struct {
	What string // "input", "weights[1]", "biases[0]", ...
	Want int
	Got  int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("shape mismatch for %s: want %d, got %d", e.What, e.Want, e.Got)
}

// CorruptFileError reports a persisted network whose contents do not agree
// with its own header.
type CorruptFileError struct {
	Path   string
	Reason string
}

func (e *CorruptFileError) Error() string {
	if e.Path == "" {
		return "corrupt network data: " + e.Reason
	}
	return fmt.Sprintf("corrupt network file %s: %s", e.Path, e.Reason)
}

func validateTopology(layerSizes []int) error {
	if len(layerSizes) < 2 {
		return fmt.Errorf("%w: need at least 2 layers, got %d", ErrInvalidTopology, len(layerSizes))
	}
	for i, s := range layerSizes {
		if s <= 0 {
			return fmt.Errorf("%w: layer %d has size %d", ErrInvalidTopology, i, s)
		}
	}
	return nil
}

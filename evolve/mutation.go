// Package evolve implements generational neuroevolution over nn networks:
// copy-then-mutate reproduction, truncation selection, champion
// persistence and population checkpoints.
//
// Nothing here locks. The caller owns the population for the duration of a
// generation turnover.
package evolve

import (
	"fmt"
	"math"

	"github.com/openfluke/evoloom/nn"
	"golang.org/x/exp/rand"
)

// MutationConfig is the per-scalar mutation probability and noise scale for
// one network role.
type MutationConfig struct {
	Rate     float64 `ini:"rate"`
	Strength float64 `ini:"strength"`
}

// Defaults per network role.
var (
	DefaultMovementMutation = MutationConfig{Rate: 0.1, Strength: 0.3}
	DefaultStateMutation    = MutationConfig{Rate: 0.1, Strength: 0.2}
	DefaultTargetMutation   = MutationConfig{Rate: 0.1, Strength: 0.2}
)

// Validate rejects rates outside [0,1] and negative or non-finite
// strengths.
func (c MutationConfig) Validate() error {
	if math.IsNaN(c.Rate) || c.Rate < 0 || c.Rate > 1 {
		return fmt.Errorf("mutation rate %v outside [0,1]", c.Rate)
	}
	if math.IsNaN(c.Strength) || math.IsInf(c.Strength, 0) || c.Strength < 0 {
		return fmt.Errorf("mutation strength %v must be finite and >= 0", c.Strength)
	}
	return nil
}

// Reproduce returns a mutated copy of parent. The parent is never touched.
func Reproduce(parent *nn.DenseNetwork, cfg MutationConfig, src rand.Source) *nn.DenseNetwork {
	child := parent.Copy()
	child.Mutate(cfg.Rate, cfg.Strength, src)
	return child
}

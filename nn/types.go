package nn

import (
	"time"

	"golang.org/x/exp/rand"
)

// DenseNetwork is the CPU reference network. It is the authority for an
// agent's parameters; the batched engine only ever sees flattened copies.
//
// A DenseNetwork is not safe for concurrent use. Callers that need the
// pre-mutation parameters must Copy before calling Mutate.
type DenseNetwork struct {
	// LearningRate is persisted with the network but never read by Forward
	// or Mutate.
	LearningRate float32
	// LinearOutput returns the raw affine sum from the last layer.
	LinearOutput bool

	layerSizes []int
	weights    [][]float32 // per layer, row-major [out*in]
	biases     [][]float32 // per layer, [out]
}

// NewSource returns a seeded random source for construction and mutation.
// Two networks built and mutated from sources with the same seed are
// bit-identical.
func NewSource(seed uint64) rand.Source {
	return rand.NewSource(seed)
}

func timeSource() rand.Source {
	return rand.NewSource(uint64(time.Now().UnixNano()))
}

// newZeroNetwork allocates storage for a topology without initializing it.
// The topology must already be validated.
func newZeroNetwork(layerSizes []int, learningRate float32, linearOutput bool) *DenseNetwork {
	n := &DenseNetwork{
		LearningRate: learningRate,
		LinearOutput: linearOutput,
		layerSizes:   append([]int(nil), layerSizes...),
		weights:      make([][]float32, len(layerSizes)-1),
		biases:       make([][]float32, len(layerSizes)-1),
	}
	for l := 0; l < len(layerSizes)-1; l++ {
		n.weights[l] = make([]float32, layerSizes[l+1]*layerSizes[l])
		n.biases[l] = make([]float32, layerSizes[l+1])
	}
	return n
}

// LayerSizes returns a copy of the topology.
func (n *DenseNetwork) LayerSizes() []int {
	return append([]int(nil), n.layerSizes...)
}

// NumLayers returns the number of layers including input and output.
func (n *DenseNetwork) NumLayers() int { return len(n.layerSizes) }

// InputSize is the expected length of a Forward input.
func (n *DenseNetwork) InputSize() int { return n.layerSizes[0] }

// OutputSize is the length of a Forward result.
func (n *DenseNetwork) OutputSize() int { return n.layerSizes[len(n.layerSizes)-1] }

// Layout returns the flat layout of this network's topology.
func (n *DenseNetwork) Layout() Layout {
	lay, _ := ComputeLayout(n.layerSizes)
	return lay
}

// SameTopology reports whether two networks have identical layer sizes.
func (n *DenseNetwork) SameTopology(other *DenseNetwork) bool {
	if other == nil || len(n.layerSizes) != len(other.layerSizes) {
		return false
	}
	for i, s := range n.layerSizes {
		if other.layerSizes[i] != s {
			return false
		}
	}
	return true
}

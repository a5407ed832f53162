package nn

// Layout locates every layer of one network instance inside flat weight and
// bias arrays. Entry L-1 of each offset slice is the terminal entry and equals
// the matching total, which doubles as the per-instance stride in a batch.
type Layout struct {
	LayerSizes    []int
	WeightOffsets []int
	BiasOffsets   []int
	TotalWeights  int
	TotalBiases   int
}

// ComputeLayout derives the flat layout of a topology. It has no side effects
// and returns identical offsets for identical input.
func ComputeLayout(layerSizes []int) (Layout, error) {
	if err := validateTopology(layerSizes); err != nil {
		return Layout{}, err
	}

	numLayers := len(layerSizes)
	lay := Layout{
		LayerSizes:    append([]int(nil), layerSizes...),
		WeightOffsets: make([]int, numLayers),
		BiasOffsets:   make([]int, numLayers),
	}

	w, b := 0, 0
	for l := 0; l < numLayers-1; l++ {
		lay.WeightOffsets[l] = w
		lay.BiasOffsets[l] = b
		w += layerSizes[l] * layerSizes[l+1]
		b += layerSizes[l+1]
	}
	lay.WeightOffsets[numLayers-1] = w
	lay.BiasOffsets[numLayers-1] = b
	lay.TotalWeights = w
	lay.TotalBiases = b
	return lay, nil
}

// Layers returns the number of layers in the topology.
func (l Layout) Layers() int { return len(l.LayerSizes) }

// InputSize is the width of layer 0.
func (l Layout) InputSize() int { return l.LayerSizes[0] }

// OutputSize is the width of the last layer.
func (l Layout) OutputSize() int { return l.LayerSizes[len(l.LayerSizes)-1] }

// MaxWidth returns the widest layer, which sizes the per-instance activation
// scratch in the batched kernel.
func (l Layout) MaxWidth() int {
	m := 0
	for _, s := range l.LayerSizes {
		if s > m {
			m = s
		}
	}
	return m
}

// InstanceWeightOffset is where instance k's weight block starts in a batch.
func (l Layout) InstanceWeightOffset(k int) int { return k * l.TotalWeights }

// InstanceBiasOffset is where instance k's bias block starts in a batch.
func (l Layout) InstanceBiasOffset(k int) int { return k * l.TotalBiases }

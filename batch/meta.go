package batch

import (
	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/nn"
)

const (
	// MaxLayers is the deepest topology the metadata record can hold.
	MaxLayers = 8
	// MaxWidth is the size of the kernel's per-instance activation scratch.
	MaxWidth = 256
)

// Word positions inside the packed metadata record.
const (
	metaN = iota
	metaLayers
	metaLinear
	metaSizes
	metaWeightOffsets = metaSizes + MaxLayers
	metaBiasOffsets   = metaWeightOffsets + MaxLayers

	// MetaWords is the length of the packed record.
	MetaWords = metaBiasOffsets + MaxLayers
)

// Meta describes one dispatch: instance count and the shared topology.
// Offsets are per instance; the terminal entries are the instance strides.
type Meta struct {
	N             int
	Layers        int
	LinearOutput  bool
	LayerSizes    [MaxLayers]int32
	WeightOffsets [MaxLayers]int32
	BiasOffsets   [MaxLayers]int32
}

// NewMeta builds the record for n instances of lay. The layout must already
// have passed CheckTopology.
func NewMeta(lay nn.Layout, n int, linearOutput bool) Meta {
	m := Meta{N: n, Layers: lay.Layers(), LinearOutput: linearOutput}
	for l := 0; l < lay.Layers(); l++ {
		m.LayerSizes[l] = int32(lay.LayerSizes[l])
		m.WeightOffsets[l] = int32(lay.WeightOffsets[l])
		m.BiasOffsets[l] = int32(lay.BiasOffsets[l])
	}
	return m
}

// Int32s packs the record as {N, L, linear, sizes[8], weightOffsets[8],
// biasOffsets[8]}.
func (m Meta) Int32s() []int32 {
	out := make([]int32, MetaWords)
	out[metaN] = int32(m.N)
	out[metaLayers] = int32(m.Layers)
	if m.LinearOutput {
		out[metaLinear] = 1
	}
	copy(out[metaSizes:], m.LayerSizes[:])
	copy(out[metaWeightOffsets:], m.WeightOffsets[:])
	copy(out[metaBiasOffsets:], m.BiasOffsets[:])
	return out
}

func (m Meta) weightStride() int { return int(m.WeightOffsets[m.Layers-1]) }
func (m Meta) biasStride() int   { return int(m.BiasOffsets[m.Layers-1]) }
func (m Meta) inputSize() int    { return int(m.LayerSizes[0]) }
func (m Meta) outputSize() int   { return int(m.LayerSizes[m.Layers-1]) }

// decodeMeta is the host-lane reader of a packed record.
func decodeMeta(words []int32) (Meta, error) {
	var m Meta
	if len(words) != MetaWords {
		return m, compute.Dispatchf("meta has %d words, want %d", len(words), MetaWords)
	}
	m.N = int(words[metaN])
	m.Layers = int(words[metaLayers])
	m.LinearOutput = words[metaLinear] != 0
	if m.Layers < 2 || m.Layers > MaxLayers {
		return m, compute.Dispatchf("meta layer count %d out of range", m.Layers)
	}
	copy(m.LayerSizes[:], words[metaSizes:metaSizes+MaxLayers])
	copy(m.WeightOffsets[:], words[metaWeightOffsets:metaWeightOffsets+MaxLayers])
	copy(m.BiasOffsets[:], words[metaBiasOffsets:metaBiasOffsets+MaxLayers])
	for l := 0; l < m.Layers; l++ {
		if m.LayerSizes[l] <= 0 || m.LayerSizes[l] > MaxWidth {
			return m, compute.Dispatchf("meta layer %d size %d out of range", l, m.LayerSizes[l])
		}
	}
	return m, nil
}

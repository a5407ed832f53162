package batch

import "fmt"

// TopologyTooDeepError is returned when a topology has more layers than the
// kernel's metadata record can describe.
type TopologyTooDeepError struct {
	Layers int
	Max    int
}

func (e *TopologyTooDeepError) Error() string {
	return fmt.Sprintf("topology has %d layers, batched kernel supports at most %d", e.Layers, e.Max)
}

// TopologyTooWideError is returned when a layer is wider than the kernel's
// per-instance activation scratch.
type TopologyTooWideError struct {
	Layer int
	Size  int
	Max   int
}

func (e *TopologyTooWideError) Error() string {
	return fmt.Sprintf("layer %d has %d neurons, batched kernel supports at most %d", e.Layer, e.Size, e.Max)
}

// CheckTopology reports whether the batched kernel can run a topology.
func CheckTopology(layerSizes []int) error {
	if len(layerSizes) > MaxLayers {
		return &TopologyTooDeepError{Layers: len(layerSizes), Max: MaxLayers}
	}
	for i, s := range layerSizes {
		if s > MaxWidth {
			return &TopologyTooWideError{Layer: i, Size: s, Max: MaxWidth}
		}
	}
	return nil
}

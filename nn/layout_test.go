package nn

import (
	"errors"
	"reflect"
	"testing"
)

func TestComputeLayout(t *testing.T) {
	lay, err := ComputeLayout([]int{12, 16, 8})
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(lay.WeightOffsets, []int{0, 192, 320}) {
		t.Errorf("Expected weight offsets [0 192 320], got %v", lay.WeightOffsets)
	}
	if !reflect.DeepEqual(lay.BiasOffsets, []int{0, 16, 24}) {
		t.Errorf("Expected bias offsets [0 16 24], got %v", lay.BiasOffsets)
	}
	if lay.TotalWeights != 12*16+16*8 {
		t.Errorf("Expected %d total weights, got %d", 12*16+16*8, lay.TotalWeights)
	}
	if lay.TotalBiases != 16+8 {
		t.Errorf("Expected 24 total biases, got %d", lay.TotalBiases)
	}
	if lay.MaxWidth() != 16 || lay.InputSize() != 12 || lay.OutputSize() != 8 {
		t.Errorf("Unexpected widths: max=%d in=%d out=%d", lay.MaxWidth(), lay.InputSize(), lay.OutputSize())
	}
	if lay.InstanceWeightOffset(3) != 3*320 || lay.InstanceBiasOffset(3) != 3*24 {
		t.Errorf("Unexpected instance stride")
	}
}

func TestComputeLayoutDeterministic(t *testing.T) {
	sizes := []int{5, 12, 12, 2}
	a, _ := ComputeLayout(sizes)
	b, _ := ComputeLayout(sizes)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("Layouts differ: %+v vs %+v", a, b)
	}

	// The layout must not alias the caller's slice.
	sizes[1] = 99
	if a.LayerSizes[1] != 12 {
		t.Error("Layout aliases the input topology")
	}
}

func TestComputeLayoutInvalid(t *testing.T) {
	if _, err := ComputeLayout([]int{3}); !errors.Is(err, ErrInvalidTopology) {
		t.Errorf("Expected ErrInvalidTopology, got %v", err)
	}
}

package nn

import (
	"testing"
)

func TestMutatePreservesShape(t *testing.T) {
	net := newTestNetwork(t, []int{5, 12, 12, 2}, true, 1)
	sizes := net.LayerSizes()
	lay := net.Layout()

	for i := 0; i < 10; i++ {
		net.Mutate(0.5, 2.0, NewSource(uint64(i)))
	}

	got := net.LayerSizes()
	for i := range sizes {
		if got[i] != sizes[i] {
			t.Fatalf("Topology changed: %v -> %v", sizes, got)
		}
	}
	after := net.Layout()
	if after.TotalWeights != lay.TotalWeights || after.TotalBiases != lay.TotalBiases {
		t.Error("Parameter counts changed under mutation")
	}
	for l, w := range net.Weights() {
		if len(w) != sizes[l+1]*sizes[l] || len(net.Biases()[l]) != sizes[l+1] {
			t.Errorf("Layer %d resized", l)
		}
	}
}

func TestMutateZeroRateIsIdentity(t *testing.T) {
	net := newTestNetwork(t, []int{8, 12, 2}, true, 1)
	before := net.Copy()

	for _, strength := range []float64{0, 0.3, 1000} {
		net.Mutate(0.0, strength, NewSource(4))
	}
	if !net.Equal(before) {
		t.Error("Mutate(0, x) changed the network")
	}

	net.Mutate(1.0, 0, NewSource(4))
	if !net.Equal(before) {
		t.Error("Mutate(1, 0) changed the network")
	}
}

func TestMutateSeededIsReproducible(t *testing.T) {
	a := newTestNetwork(t, []int{40, 16, 5}, true, 2)
	b := a.Copy()

	a.Mutate(0.1, 0.2, NewSource(77))
	b.Mutate(0.1, 0.2, NewSource(77))
	if !a.Equal(b) {
		t.Error("Same seed produced different mutations")
	}
}

func TestMutateRateControlsFraction(t *testing.T) {
	net := newTestNetwork(t, []int{40, 16, 9}, true, 2)
	before := net.Copy()
	net.Mutate(0.1, 0.5, NewSource(3))

	changed, total := 0, 0
	bw, aw := before.Weights(), net.Weights()
	for l := range bw {
		for i := range bw[l] {
			total++
			if bw[l][i] != aw[l][i] {
				changed++
			}
		}
	}
	frac := float64(changed) / float64(total)
	if frac < 0.05 || frac > 0.15 {
		t.Errorf("Expected roughly 10%% of weights mutated, got %.1f%% (%d/%d)", frac*100, changed, total)
	}
}

package nn

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// initBiasStddev keeps initial biases close to zero.
const initBiasStddev = 0.1

// NewDenseNetwork creates a network with small random weights drawn from
// N(0, 1/fanIn) and biases from N(0, 0.1²). A nil src uses a time seed.
func NewDenseNetwork(layerSizes []int, learningRate float32, linearOutput bool, src rand.Source) (*DenseNetwork, error) {
	if err := validateTopology(layerSizes); err != nil {
		return nil, err
	}
	if src == nil {
		src = timeSource()
	}

	n := newZeroNetwork(layerSizes, learningRate, linearOutput)
	biasDist := distuv.Normal{Mu: 0, Sigma: initBiasStddev, Src: src}
	for l := range n.weights {
		weightDist := distuv.Normal{
			Mu:    0,
			Sigma: 1 / math.Sqrt(float64(layerSizes[l])),
			Src:   src,
		}
		for i := range n.weights[l] {
			n.weights[l][i] = float32(weightDist.Rand())
		}
		for i := range n.biases[l] {
			n.biases[l][i] = float32(biasDist.Rand())
		}
	}
	return n, nil
}

// Forward runs inference on a single input vector.
//
// Each output neuron starts from its bias and accumulates weight*activation
// over source neurons in ascending order. The batched kernels use the same
// order; keep them in step when touching this loop.
func (n *DenseNetwork) Forward(input []float32) ([]float32, error) {
	if len(input) != n.InputSize() {
		return nil, &ShapeError{What: "input", Want: n.InputSize(), Got: len(input)}
	}

	numLayers := len(n.layerSizes)
	current := append([]float32(nil), input...)
	for l := 0; l < numLayers-1; l++ {
		inCount := n.layerSizes[l]
		outCount := n.layerSizes[l+1]
		w := n.weights[l]
		b := n.biases[l]

		next := make([]float32, outCount)
		for i := 0; i < outCount; i++ {
			sum := b[i]
			row := w[i*inCount : (i+1)*inCount]
			for j, x := range current {
				sum += row[j] * x
			}
			next[i] = ActivateLayer(sum, l, numLayers, n.LinearOutput)
		}
		current = next
	}
	return current, nil
}

// Copy returns a deep, independent clone.
func (n *DenseNetwork) Copy() *DenseNetwork {
	c := newZeroNetwork(n.layerSizes, n.LearningRate, n.LinearOutput)
	for l := range n.weights {
		copy(c.weights[l], n.weights[l])
		copy(c.biases[l], n.biases[l])
	}
	return c
}

// Weights returns a copy of every layer's row-major weight matrix.
func (n *DenseNetwork) Weights() [][]float32 {
	out := make([][]float32, len(n.weights))
	for l, w := range n.weights {
		out[l] = append([]float32(nil), w...)
	}
	return out
}

// Biases returns a copy of every layer's bias vector.
func (n *DenseNetwork) Biases() [][]float32 {
	out := make([][]float32, len(n.biases))
	for l, b := range n.biases {
		out[l] = append([]float32(nil), b...)
	}
	return out
}

// SetWeights copies weights into the existing storage. The network is left
// unchanged if any layer has the wrong size.
func (n *DenseNetwork) SetWeights(weights [][]float32) error {
	if err := checkLayers("weights", n.weights, weights); err != nil {
		return err
	}
	for l := range n.weights {
		copy(n.weights[l], weights[l])
	}
	return nil
}

// SetBiases copies biases into the existing storage. The network is left
// unchanged if any layer has the wrong size.
func (n *DenseNetwork) SetBiases(biases [][]float32) error {
	if err := checkLayers("biases", n.biases, biases); err != nil {
		return err
	}
	for l := range n.biases {
		copy(n.biases[l], biases[l])
	}
	return nil
}

func checkLayers(what string, have, got [][]float32) error {
	if len(got) != len(have) {
		return &ShapeError{What: what, Want: len(have), Got: len(got)}
	}
	for l := range have {
		if len(got[l]) != len(have[l]) {
			return &ShapeError{What: fmt.Sprintf("%s[%d]", what, l), Want: len(have[l]), Got: len(got[l])}
		}
	}
	return nil
}

// Flatten writes all weights into dstW and all biases into dstB in
// layer-major, row-major order. dstW must hold at least TotalWeights values
// and dstB at least TotalBiases.
func (n *DenseNetwork) Flatten(dstW, dstB []float32) error {
	lay := n.Layout()
	if len(dstW) < lay.TotalWeights {
		return &ShapeError{What: "flat weights", Want: lay.TotalWeights, Got: len(dstW)}
	}
	if len(dstB) < lay.TotalBiases {
		return &ShapeError{What: "flat biases", Want: lay.TotalBiases, Got: len(dstB)}
	}
	for l := range n.weights {
		copy(dstW[lay.WeightOffsets[l]:], n.weights[l])
		copy(dstB[lay.BiasOffsets[l]:], n.biases[l])
	}
	return nil
}

// FlattenInto writes this network as instance k of batched weight and bias
// arrays laid out with the network's own stride.
func (n *DenseNetwork) FlattenInto(batchW, batchB []float32, k int) error {
	lay := n.Layout()
	wStart := lay.InstanceWeightOffset(k)
	bStart := lay.InstanceBiasOffset(k)
	if k < 0 || wStart+lay.TotalWeights > len(batchW) || bStart+lay.TotalBiases > len(batchB) {
		return fmt.Errorf("instance %d does not fit batch of %d weights / %d biases", k, len(batchW), len(batchB))
	}
	return n.Flatten(batchW[wStart:wStart+lay.TotalWeights], batchB[bStart:bStart+lay.TotalBiases])
}

// Equal reports whether both networks have the same topology, flags and
// bit-identical parameters.
func (n *DenseNetwork) Equal(other *DenseNetwork) bool {
	if !n.SameTopology(other) ||
		n.LinearOutput != other.LinearOutput ||
		math.Float32bits(n.LearningRate) != math.Float32bits(other.LearningRate) {
		return false
	}
	for l := range n.weights {
		if !bitsEqual(n.weights[l], other.weights[l]) || !bitsEqual(n.biases[l], other.biases[l]) {
			return false
		}
	}
	return true
}

func bitsEqual(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

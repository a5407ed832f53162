package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// ForwardFloat64 evaluates the network in float64 with gonum matrices. It is
// an oracle for measuring float32 drift in Forward and in the batched
// kernels, not a fast path.
func (n *DenseNetwork) ForwardFloat64(input []float32) ([]float64, error) {
	if len(input) != n.InputSize() {
		return nil, &ShapeError{What: "input", Want: n.InputSize(), Got: len(input)}
	}

	numLayers := len(n.layerSizes)
	x := mat.NewVecDense(len(input), widen(input))
	for l := 0; l < numLayers-1; l++ {
		rows, cols := n.layerSizes[l+1], n.layerSizes[l]
		w := mat.NewDense(rows, cols, widen(n.weights[l]))

		y := mat.NewVecDense(rows, nil)
		y.MulVec(w, x)
		y.AddVec(y, mat.NewVecDense(rows, widen(n.biases[l])))

		if !(n.LinearOutput && l == numLayers-2) {
			for i := 0; i < rows; i++ {
				y.SetVec(i, 1/(1+math.Exp(-y.AtVec(i))))
			}
		}
		x = y
	}
	return append([]float64(nil), x.RawVector().Data...), nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

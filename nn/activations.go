package nn

import "github.com/chewxy/math32"

// Squash is the saturating nonlinearity applied to every hidden layer (and
// to the output layer unless LinearOutput is set). It is evaluated in float32
// so the CPU network and the batched kernels see the same precision.
func Squash(v float32) float32 {
	return 1.0 / (1.0 + math32.Exp(-v))
}

// ActivateLayer applies the squash/linear policy for weight layer l of a
// network with numLayers layers (l runs 0..numLayers-2). Only the last weight
// layer may be linear.
func ActivateLayer(v float32, l, numLayers int, linearOutput bool) float32 {
	if linearOutput && l == numLayers-2 {
		return v
	}
	return Squash(v)
}

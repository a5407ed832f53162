package nn

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mutate perturbs the network in place. Every weight and bias scalar is
// independently selected with probability rate and, when selected, receives
// additive Gaussian noise N(0, strength²). rate is clamped to [0, 1] and a
// negative strength counts as zero. Topology is never touched.
//
// A zero rate or zero strength returns before drawing from src, so the
// network and the source state are both left unchanged.
func (n *DenseNetwork) Mutate(rate, strength float64, src rand.Source) {
	if rate > 1 {
		rate = 1
	}
	if rate <= 0 || strength <= 0 {
		return
	}
	if src == nil {
		src = timeSource()
	}

	pick := distuv.Bernoulli{P: rate, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: strength, Src: src}
	for l := range n.weights {
		mutateSlice(n.weights[l], pick, noise)
		mutateSlice(n.biases[l], pick, noise)
	}
}

func mutateSlice(vals []float32, pick distuv.Bernoulli, noise distuv.Normal) {
	for i := range vals {
		if pick.Rand() == 1 {
			vals[i] += float32(noise.Rand())
		}
	}
}

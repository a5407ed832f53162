package evolve

import (
	"errors"
	"fmt"

	"github.com/openfluke/evoloom/nn"
)

// ErrTopologyMismatch is returned when a champion cannot be injected into a
// network of another topology.
var ErrTopologyMismatch = errors.New("champion topology mismatch")

// SaveChampion writes net to path in the network file format.
func SaveChampion(path string, net *nn.DenseNetwork) error {
	if err := net.SaveToFile(path); err != nil {
		return fmt.Errorf("save champion: %w", err)
	}
	return nil
}

// LoadChampion reads a network written by SaveChampion.
func LoadChampion(path string) (*nn.DenseNetwork, error) {
	net, err := nn.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("load champion: %w", err)
	}
	return net, nil
}

// InjectChampion overwrites dst's parameters with champion's, keeping dst's
// storage. A champion of another topology is rejected and dst is left
// unchanged.
func InjectChampion(dst, champion *nn.DenseNetwork) error {
	if champion == nil {
		return fmt.Errorf("%w: nil champion", ErrTopologyMismatch)
	}
	if !dst.SameTopology(champion) {
		return fmt.Errorf("%w: champion %v, target %v", ErrTopologyMismatch, champion.LayerSizes(), dst.LayerSizes())
	}
	if err := dst.SetWeights(champion.Weights()); err != nil {
		return err
	}
	return dst.SetBiases(champion.Biases())
}

// Package nn provides the dense feed-forward network that drives every agent
// in the evolution sandbox, together with the flat memory layout used to
// batch many networks into a single device dispatch.
//
// A network is a 1-D stack of fully connected layers described by its
// topology, the ordered list of per-layer neuron counts:
//
//	[inputs, hidden..., outputs]
//
// Every layer computes squash(W·x + b) where squash is the logistic sigmoid.
// When LinearOutput is set the last layer returns the raw affine sum instead.
//
// Weights are stored per layer in row-major order: the row is the destination
// neuron, the column the source neuron. Layout flattens a network into
// layer-major weight and bias arrays; the batched engine indexes into those
// arrays with exactly the same offsets, so the two orderings must move
// together.
//
// Example usage:
//
//	src := nn.NewSource(42)
//	net, _ := nn.NewDenseNetwork([]int{5, 12, 12, 2}, 0.01, true, src)
//
//	out, _ := net.Forward(input)
//
//	child := net.Copy()
//	child.Mutate(0.1, 0.3, src)
//
//	_ = net.SaveToFile("best_brain.bin")
package nn

// Package batch runs many same-topology dense networks in one dispatch.
//
// Parameters of N networks are packed back to back using the stride of
// nn.Layout; one kernel invocation evaluates one instance, so instances never
// share state. Results must match N independent nn.DenseNetwork.Forward
// calls within 1e-4 per output (bit-exact on the host backend).
package batch

import (
	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/nn"
)

// Engine evaluates batches of networks sharing one topology on a backend.
// It holds only the topology and output flag, never a network.
//
// An Engine is not safe for concurrent use.
type Engine struct {
	backend compute.Backend
	prog    compute.Program
	layout  nn.Layout
	linear  bool

	weightInstances int
	biasInstances   int

	// host-side staging reused across LoadNetworks / ForwardBatch
	flatW, flatB []float32
	zeros        []float32
}

// NewEngine validates the topology against the kernel limits and then
// compiles the kernel. Nothing is compiled for a topology that is too deep
// or too wide.
func NewEngine(backend compute.Backend, layerSizes []int, linearOutput bool) (*Engine, error) {
	lay, err := nn.ComputeLayout(layerSizes)
	if err != nil {
		return nil, err
	}
	if err := CheckTopology(layerSizes); err != nil {
		return nil, err
	}
	prog, err := backend.Compile(Kernel(backend.GroupSize()))
	if err != nil {
		return nil, err
	}
	return &Engine{backend: backend, prog: prog, layout: lay, linear: linearOutput}, nil
}

// NewEngineFor builds an engine for the topology and output flag of net.
func NewEngineFor(backend compute.Backend, net *nn.DenseNetwork) (*Engine, error) {
	return NewEngine(backend, net.LayerSizes(), net.LinearOutput)
}

// Layout returns the per-instance layout.
func (e *Engine) Layout() nn.Layout { return e.layout }

// LinearOutput reports whether the last layer skips the squash.
func (e *Engine) LinearOutput() bool { return e.linear }

// Backend returns the backend name.
func (e *Engine) Backend() string { return e.backend.Name() }

// SetWeightsBatch uploads the flattened weights of every instance. The
// length must be a positive multiple of the per-instance weight stride.
func (e *Engine) SetWeightsBatch(flat []float32) error {
	if e.prog == nil {
		return errReleased
	}
	n, err := instances("weights", len(flat), e.layout.TotalWeights)
	if err != nil {
		return err
	}
	if err := e.prog.BindFloats(bindWeights, flat); err != nil {
		return err
	}
	e.weightInstances = n
	return nil
}

// SetBiasesBatch uploads the flattened biases of every instance. The
// length must be a positive multiple of the per-instance bias stride.
func (e *Engine) SetBiasesBatch(flat []float32) error {
	if e.prog == nil {
		return errReleased
	}
	n, err := instances("biases", len(flat), e.layout.TotalBiases)
	if err != nil {
		return err
	}
	if err := e.prog.BindFloats(bindBiases, flat); err != nil {
		return err
	}
	e.biasInstances = n
	return nil
}

var errReleased = &compute.DispatchError{Reason: "engine released"}

func instances(what string, length, stride int) (int, error) {
	if length == 0 || length%stride != 0 {
		return 0, compute.Dispatchf("%s batch of %d values is not a positive multiple of stride %d", what, length, stride)
	}
	return length / stride, nil
}

// LoadNetworks flattens nets into the weight and bias batches. Every
// network must match the engine's topology and output flag.
func (e *Engine) LoadNetworks(nets []*nn.DenseNetwork) error {
	if len(nets) == 0 {
		return compute.Dispatchf("no networks to load")
	}
	n := len(nets)
	e.flatW = grow(e.flatW, n*e.layout.TotalWeights)
	e.flatB = grow(e.flatB, n*e.layout.TotalBiases)
	for k, net := range nets {
		if !e.accepts(net) {
			return compute.Dispatchf("network %d topology %v (linear=%v) differs from engine %v (linear=%v)",
				k, net.LayerSizes(), net.LinearOutput, e.layout.LayerSizes, e.linear)
		}
		if err := net.FlattenInto(e.flatW, e.flatB, k); err != nil {
			return err
		}
	}
	if err := e.SetWeightsBatch(e.flatW); err != nil {
		return err
	}
	return e.SetBiasesBatch(e.flatB)
}

func (e *Engine) accepts(net *nn.DenseNetwork) bool {
	if net == nil || net.LinearOutput != e.linear {
		return false
	}
	sizes := net.LayerSizes()
	if len(sizes) != len(e.layout.LayerSizes) {
		return false
	}
	for i, s := range sizes {
		if s != e.layout.LayerSizes[i] {
			return false
		}
	}
	return true
}

// ForwardBatch evaluates n instances on inputs laid out instance-major
// (n*InputSize values) and returns n*OutputSize outputs. The weight and
// bias batches must already hold exactly n instances.
func (e *Engine) ForwardBatch(inputs []float32, n int) ([]float32, error) {
	if e.prog == nil {
		return nil, errReleased
	}
	if n <= 0 {
		return nil, compute.Dispatchf("instance count must be positive, got %d", n)
	}
	in, out := e.layout.InputSize(), e.layout.OutputSize()
	if len(inputs) != n*in {
		return nil, compute.Dispatchf("inputs hold %d values, want %d (%d x %d)", len(inputs), n*in, n, in)
	}
	if e.weightInstances != n {
		return nil, compute.Dispatchf("weights batch holds %d instances, want %d", e.weightInstances, n)
	}
	if e.biasInstances != n {
		return nil, compute.Dispatchf("biases batch holds %d instances, want %d", e.biasInstances, n)
	}

	meta := NewMeta(e.layout, n, e.linear)
	if err := e.prog.BindInts(bindMeta, meta.Int32s()); err != nil {
		return nil, err
	}
	if err := e.prog.BindFloats(bindInputs, inputs); err != nil {
		return nil, err
	}
	e.zeros = grow(e.zeros, n*out)
	clear(e.zeros)
	if err := e.prog.BindFloats(bindOutputs, e.zeros); err != nil {
		return nil, err
	}

	if err := e.prog.Dispatch(compute.Groups(n, e.backend.GroupSize())); err != nil {
		return nil, err
	}
	return e.prog.ReadFloats(bindOutputs)
}

// Release frees the compiled program and its buffers.
func (e *Engine) Release() {
	if e.prog != nil {
		e.prog.Release()
		e.prog = nil
	}
	e.weightInstances, e.biasInstances = 0, 0
}

func grow(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

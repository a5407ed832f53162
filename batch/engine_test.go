package batch

import (
	"errors"
	"testing"

	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/nn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func population(t *testing.T, sizes []int, linear bool, n int, seed uint64) []*nn.DenseNetwork {
	t.Helper()
	src := nn.NewSource(seed)
	nets := make([]*nn.DenseNetwork, n)
	for k := range nets {
		net, err := nn.NewDenseNetwork(sizes, 0.01, linear, src)
		require.NoError(t, err)
		nets[k] = net
	}
	return nets
}

func randomInputs(n, in int, seed uint64) []float32 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float32, n*in)
	for i := range out {
		out[i] = rng.Float32()*2 - 1
	}
	return out
}

func cpuForward(t *testing.T, nets []*nn.DenseNetwork, inputs []float32) []float32 {
	t.Helper()
	in := nets[0].InputSize()
	var out []float32
	for k, net := range nets {
		o, err := net.Forward(inputs[k*in : (k+1)*in])
		require.NoError(t, err)
		out = append(out, o...)
	}
	return out
}

func TestMetaInt32s(t *testing.T) {
	lay, err := nn.ComputeLayout([]int{12, 16, 8})
	require.NoError(t, err)

	words := NewMeta(lay, 100, true).Int32s()
	require.Len(t, words, 27)
	assert.Equal(t, []int32{100, 3, 1}, words[:3])
	assert.Equal(t, []int32{12, 16, 8, 0, 0, 0, 0, 0}, words[3:11])
	assert.Equal(t, []int32{0, 192, 320, 0, 0, 0, 0, 0}, words[11:19])
	assert.Equal(t, []int32{0, 16, 24, 0, 0, 0, 0, 0}, words[19:27])

	m, err := decodeMeta(words)
	require.NoError(t, err)
	assert.Equal(t, 320, m.weightStride())
	assert.Equal(t, 24, m.biasStride())
	assert.True(t, m.LinearOutput)
}

func TestHostParityBitExact(t *testing.T) {
	for _, linear := range []bool{false, true} {
		nets := population(t, []int{12, 16, 8}, linear, 100, 7)
		inputs := randomInputs(100, 12, 8)

		e, err := NewEngineFor(compute.NewHost(0), nets[0])
		require.NoError(t, err)

		require.NoError(t, e.LoadNetworks(nets))
		got, err := e.ForwardBatch(inputs, 100)
		require.NoError(t, err)
		assert.Equal(t, cpuForward(t, nets, inputs), got, "linear=%v", linear)
		e.Release()
	}
}

func TestHostParityTopologies(t *testing.T) {
	cases := [][]int{
		{5, 12, 12, 2},
		{8, 12, 2},
		{1, 1},
		{3, 256, 2},
		{4, 5, 6, 7, 8, 7, 6, 3},
	}
	for i, sizes := range cases {
		nets := population(t, sizes, i%2 == 0, 17, uint64(i))
		e, err := NewEngine(compute.NewHost(8), sizes, i%2 == 0)
		require.NoError(t, err)

		rep, err := Verify(e, nets, randomInputs(17, sizes[0], 99))
		require.NoError(t, err)
		assert.True(t, rep.OK, "%v: %s", sizes, rep)
		assert.Zero(t, rep.MaxDiff, "%v", sizes)
		e.Release()
	}
}

// Instance counts on either side of a group boundary.
func TestGroupBoundaries(t *testing.T) {
	sizes := []int{6, 9, 4}
	e, err := NewEngine(compute.NewHost(64), sizes, false)
	require.NoError(t, err)
	defer e.Release()

	for _, n := range []int{1, 63, 64, 65, 129} {
		nets := population(t, sizes, false, n, uint64(n))
		inputs := randomInputs(n, 6, uint64(n)+1)
		require.NoError(t, e.LoadNetworks(nets))
		got, err := e.ForwardBatch(inputs, n)
		require.NoError(t, err)
		assert.Equal(t, cpuForward(t, nets, inputs), got, "n=%d", n)
	}
}

type countingBackend struct {
	compute.Backend
	compiles int
}

func (c *countingBackend) Compile(k compute.Kernel) (compute.Program, error) {
	c.compiles++
	return c.Backend.Compile(k)
}

func TestTopologyLimitsCheckedBeforeCompile(t *testing.T) {
	b := &countingBackend{Backend: compute.NewHost(0)}

	_, err := NewEngine(b, []int{2, 2, 2, 2, 2, 2, 2, 2, 2}, false)
	var deep *TopologyTooDeepError
	require.True(t, errors.As(err, &deep), "got %v", err)
	assert.Equal(t, 9, deep.Layers)

	_, err = NewEngine(b, []int{4, 257, 2}, false)
	var wide *TopologyTooWideError
	require.True(t, errors.As(err, &wide), "got %v", err)
	assert.Equal(t, 1, wide.Layer)
	assert.Equal(t, 257, wide.Size)

	_, err = NewEngine(b, []int{4}, false)
	assert.ErrorIs(t, err, nn.ErrInvalidTopology)

	assert.Zero(t, b.compiles)

	e, err := NewEngine(b, []int{2, 2, 2, 2, 2, 2, 2, 2}, false)
	require.NoError(t, err)
	e.Release()
	assert.Equal(t, 1, b.compiles)
}

type failingBackend struct{ *compute.Host }

func (failingBackend) Compile(k compute.Kernel) (compute.Program, error) {
	return nil, &compute.CompileError{Kernel: k.Entry, Err: errors.New("no device")}
}

func TestCompileFailure(t *testing.T) {
	_, err := NewEngine(failingBackend{compute.NewHost(0)}, []int{12, 16, 8}, false)
	var ce *compute.CompileError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, KernelEntry, ce.Kernel)
}

func TestForwardBatchSizeMismatch(t *testing.T) {
	sizes := []int{12, 16, 8}
	e, err := NewEngine(compute.NewHost(0), sizes, false)
	require.NoError(t, err)
	defer e.Release()

	var de *compute.DispatchError
	_, err = e.ForwardBatch(randomInputs(10, 12, 1), 10)
	assert.True(t, errors.As(err, &de), "weights never set: %v", err)

	require.NoError(t, e.LoadNetworks(population(t, sizes, false, 10, 1)))

	_, err = e.ForwardBatch(randomInputs(10, 12, 1)[:119], 10)
	assert.True(t, errors.As(err, &de), "short inputs: %v", err)

	_, err = e.ForwardBatch(randomInputs(9, 12, 1), 9)
	assert.True(t, errors.As(err, &de), "batch holds 10 instances: %v", err)

	_, err = e.ForwardBatch(nil, 0)
	assert.True(t, errors.As(err, &de), "zero instances: %v", err)

	assert.True(t, errors.As(e.SetWeightsBatch(make([]float32, 321)), &de))
	assert.True(t, errors.As(e.SetBiasesBatch(nil), &de))

	require.NoError(t, e.SetBiasesBatch(make([]float32, 24*9)))
	_, err = e.ForwardBatch(randomInputs(10, 12, 1), 10)
	assert.True(t, errors.As(err, &de), "biases for 9, weights for 10: %v", err)
}

func TestLoadNetworksRejectsForeignTopology(t *testing.T) {
	e, err := NewEngine(compute.NewHost(0), []int{12, 16, 8}, false)
	require.NoError(t, err)
	defer e.Release()

	mixed := append(population(t, []int{12, 16, 8}, false, 2, 1), population(t, []int{12, 15, 8}, false, 1, 2)...)
	var de *compute.DispatchError
	assert.True(t, errors.As(e.LoadNetworks(mixed), &de))

	linear := population(t, []int{12, 16, 8}, true, 2, 3)
	assert.True(t, errors.As(e.LoadNetworks(linear), &de))
}

func TestBuffersRebindOnlyOnSizeChange(t *testing.T) {
	sizes := []int{5, 12, 12, 2}
	e, err := NewEngine(compute.NewHost(0), sizes, true)
	require.NoError(t, err)
	defer e.Release()
	prog := e.prog.(*compute.HostProgram)

	run := func(n int) {
		nets := population(t, sizes, true, n, uint64(n))
		require.NoError(t, e.LoadNetworks(nets))
		_, err := e.ForwardBatch(randomInputs(n, 5, 1), n)
		require.NoError(t, err)
	}

	run(32)
	first := prog.Allocations()
	assert.Equal(t, 5, first, "one allocation per binding")

	run(32)
	assert.Equal(t, first, prog.Allocations(), "same batch size must reuse buffers")

	run(48)
	// meta keeps its length; the four data buffers are reallocated.
	assert.Equal(t, first+4, prog.Allocations())
}

func TestReleasedEngine(t *testing.T) {
	e, err := NewEngine(compute.NewHost(0), []int{2, 2}, false)
	require.NoError(t, err)
	e.Release()
	e.Release()

	var de *compute.DispatchError
	assert.True(t, errors.As(e.SetWeightsBatch(make([]float32, 4)), &de))
	_, err = e.ForwardBatch(make([]float32, 2), 1)
	assert.True(t, errors.As(err, &de))
}

package compute

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntry = "test_scale"

func init() {
	Register(testEntry, func(gid int, bufs *Buffers) error {
		in := bufs.Floats("in")
		out := bufs.Floats("out")
		factor := bufs.Ints("factor")
		if gid >= len(in) {
			return nil
		}
		if len(out) != len(in) {
			return Dispatchf("out has %d slots for %d inputs", len(out), len(in))
		}
		out[gid] = in[gid] * float32(factor[0])
		return nil
	})
}

func testKernel() Kernel {
	return Kernel{
		Entry: testEntry,
		Bindings: []Binding{
			{Name: "in", Index: 0, Kind: Float32},
			{Name: "out", Index: 1, Kind: Float32, Writable: true},
			{Name: "factor", Index: 2, Kind: Int32},
		},
	}
}

func TestHostDispatch(t *testing.T) {
	h := NewHost(8)
	prog, err := h.Compile(testKernel())
	require.NoError(t, err)
	defer prog.Release()

	in := make([]float32, 37)
	for i := range in {
		in[i] = float32(i)
	}
	require.NoError(t, prog.BindFloats("in", in))
	require.NoError(t, prog.BindFloats("out", make([]float32, len(in))))
	require.NoError(t, prog.BindInts("factor", []int32{3}))
	require.NoError(t, prog.Dispatch(Groups(len(in), h.GroupSize())))

	out, err := prog.ReadFloats("out")
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, float32(3*i), v, "index %d", i)
	}
}

func TestHostCompileUnknownEntry(t *testing.T) {
	_, err := NewHost(0).Compile(Kernel{Entry: "no_such_kernel"})
	var ce *CompileError
	require.True(t, errors.As(err, &ce))
	assert.ErrorIs(t, err, ErrUnknownKernel)
	assert.Contains(t, err.Error(), testEntry, "error should list registered entries")
	assert.Contains(t, Registered(), testEntry)
}

func TestHostCompileDuplicateBinding(t *testing.T) {
	k := testKernel()
	k.Bindings = append(k.Bindings, Binding{Name: "in", Index: 9})
	_, err := NewHost(0).Compile(k)
	var ce *CompileError
	assert.True(t, errors.As(err, &ce))
}

func TestHostRebindOnlyOnSizeChange(t *testing.T) {
	prog, err := NewHost(4).Compile(testKernel())
	require.NoError(t, err)
	hp := prog.(*HostProgram)

	require.NoError(t, prog.BindFloats("in", make([]float32, 10)))
	require.Equal(t, 1, hp.Allocations())

	require.NoError(t, prog.BindFloats("in", make([]float32, 10)))
	assert.Equal(t, 1, hp.Allocations(), "same size must update in place")

	require.NoError(t, prog.BindFloats("in", make([]float32, 12)))
	assert.Equal(t, 2, hp.Allocations(), "new size must reallocate")
}

func TestHostDispatchErrors(t *testing.T) {
	prog, err := NewHost(4).Compile(testKernel())
	require.NoError(t, err)

	var de *DispatchError
	err = prog.Dispatch(1)
	require.True(t, errors.As(err, &de), "unbound buffers must fail: %v", err)

	err = prog.BindInts("in", []int32{1})
	assert.True(t, errors.As(err, &de), "kind mismatch must fail")

	err = prog.BindFloats("bogus", []float32{1})
	assert.True(t, errors.As(err, &de), "unknown binding must fail")

	require.NoError(t, prog.BindFloats("in", make([]float32, 8)))
	require.NoError(t, prog.BindFloats("out", make([]float32, 4)))
	require.NoError(t, prog.BindInts("factor", []int32{2}))
	err = prog.Dispatch(2)
	assert.True(t, errors.As(err, &de), "kernel errors must surface: %v", err)
}

func TestGroups(t *testing.T) {
	assert.Equal(t, 0, Groups(0, 64))
	assert.Equal(t, 1, Groups(1, 64))
	assert.Equal(t, 2, Groups(100, 64))
	assert.Equal(t, 2, Groups(128, 64))
	assert.Equal(t, 5, Groups(5, 0))
}

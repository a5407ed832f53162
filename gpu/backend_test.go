package gpu

import (
	"errors"
	"testing"

	"github.com/openfluke/evoloom/compute"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scaleWGSL = `
@group(0) @binding(0) var<storage, read> src: array<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<f32>;
@group(0) @binding(2) var<storage, read> params: array<i32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let i = i32(gid.x);
	if (i >= params[0]) { return; }
	dst[i] = src[i] * f32(params[1]);
}
`

func scaleKernel() compute.Kernel {
	return compute.Kernel{
		Entry:  "test_scale_gpu",
		Source: scaleWGSL,
		Bindings: []compute.Binding{
			{Name: "src", Index: 0, Kind: compute.Float32},
			{Name: "dst", Index: 1, Kind: compute.Float32, Writable: true},
			{Name: "params", Index: 2, Kind: compute.Int32},
		},
	}
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend()
	if err != nil {
		t.Skipf("no GPU adapter: %v", err)
	}
	return b
}

func TestBackendScale(t *testing.T) {
	b := newTestBackend(t)
	assert.LessOrEqual(t, b.GroupSize(), 64)

	prog, err := b.Compile(scaleKernel())
	require.NoError(t, err)
	defer prog.Release()

	n := 100
	src := make([]float32, n)
	for i := range src {
		src[i] = float32(i)
	}
	require.NoError(t, prog.BindFloats("src", src))
	require.NoError(t, prog.BindFloats("dst", make([]float32, n)))
	require.NoError(t, prog.BindInts("params", []int32{int32(n), 3}))
	require.NoError(t, prog.Dispatch(compute.Groups(n, 64)))

	out, err := prog.ReadFloats("dst")
	require.NoError(t, err)
	require.Len(t, out, n)
	for i := range out {
		assert.Equal(t, float32(3*i), out[i])
	}

	// Same size: written in place. Different size: rebound.
	require.NoError(t, prog.BindInts("params", []int32{int32(n), 2}))
	require.NoError(t, prog.Dispatch(compute.Groups(n, 64)))
	out, err = prog.ReadFloats("dst")
	require.NoError(t, err)
	assert.Equal(t, float32(2*99), out[99])
}

func TestBackendRejectsBadInput(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.Compile(compute.Kernel{Entry: "empty"})
	var ce *compute.CompileError
	require.True(t, errors.As(err, &ce), "got %v", err)

	prog, err := b.Compile(scaleKernel())
	require.NoError(t, err)
	defer prog.Release()

	var de *compute.DispatchError
	assert.True(t, errors.As(prog.BindFloats("src", nil), &de))
	assert.True(t, errors.As(prog.BindInts("src", []int32{1}), &de))
	assert.True(t, errors.As(prog.BindFloats("nope", []float32{1}), &de))
	assert.True(t, errors.As(prog.Dispatch(1), &de), "unbound buffers must fail")
}

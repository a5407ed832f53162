package batch

import (
	"fmt"

	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/nn"
)

// KernelEntry names the batched forward kernel in both backends.
const KernelEntry = "nn_forward_batch"

// Binding names shared by the shader and the host-lane twin.
const (
	bindInputs  = "inputs"
	bindWeights = "weights"
	bindBiases  = "biases"
	bindOutputs = "outputs"
	bindMeta    = "meta"
)

var kernelBindings = []compute.Binding{
	{Name: bindInputs, Index: 0, Kind: compute.Float32},
	{Name: bindWeights, Index: 1, Kind: compute.Float32},
	{Name: bindBiases, Index: 2, Kind: compute.Float32},
	{Name: bindOutputs, Index: 3, Kind: compute.Float32, Writable: true},
	{Name: bindMeta, Index: 4, Kind: compute.Int32},
}

// Kernel returns the batched forward kernel for a backend group size.
func Kernel(groupSize int) compute.Kernel {
	return compute.Kernel{
		Entry:    KernelEntry,
		Source:   GenerateShader(groupSize),
		Bindings: kernelBindings,
	}
}

// GenerateShader emits the WGSL for one invocation per network instance.
// The per-neuron loop mirrors nn.DenseNetwork.Forward: bias first, then
// weight*activation over source neurons in ascending order.
func GenerateShader(groupSize int) string {
	return fmt.Sprintf(`
const MAX_LAYERS: i32 = %[2]d;
const MAX_WIDTH: i32 = %[3]d;
const SIZES: i32 = %[4]d;
const WOFFS: i32 = %[5]d;
const BOFFS: i32 = %[6]d;

@group(0) @binding(0) var<storage, read> inputs: array<f32>;
@group(0) @binding(1) var<storage, read> weights: array<f32>;
@group(0) @binding(2) var<storage, read> biases: array<f32>;
@group(0) @binding(3) var<storage, read_write> outputs: array<f32>;
@group(0) @binding(4) var<storage, read> shape: array<i32>;

fn squash(v: f32) -> f32 {
	return 1.0 / (1.0 + exp(-v));
}

@compute @workgroup_size(%[1]d)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
	let k = i32(gid.x);
	let n = shape[0];
	if (k >= n) { return; }

	let layers = shape[1];
	let linearOut = shape[2] != 0;
	let inSize = shape[SIZES];
	let outSize = shape[SIZES + layers - 1];
	let strideW = shape[WOFFS + layers - 1];
	let strideB = shape[BOFFS + layers - 1];

	var cur: array<f32, MAX_WIDTH>;
	var nxt: array<f32, MAX_WIDTH>;

	for (var j = 0; j < inSize; j++) {
		cur[j] = inputs[k * inSize + j];
	}

	for (var l = 0; l < layers - 1; l++) {
		let inC = shape[SIZES + l];
		let outC = shape[SIZES + l + 1];
		let wBase = k * strideW + shape[WOFFS + l];
		let bBase = k * strideB + shape[BOFFS + l];
		let last = l == layers - 2;

		for (var i = 0; i < outC; i++) {
			var sum = biases[bBase + i];
			let row = wBase + i * inC;
			for (var j = 0; j < inC; j++) {
				sum = sum + weights[row + j] * cur[j];
			}
			if (linearOut && last) {
				nxt[i] = sum;
			} else {
				nxt[i] = squash(sum);
			}
		}
		for (var i = 0; i < outC; i++) {
			cur[i] = nxt[i];
		}
	}

	for (var i = 0; i < outSize; i++) {
		outputs[k * outSize + i] = cur[i];
	}
}
`, groupSize, MaxLayers, MaxWidth, metaSizes, metaWeightOffsets, metaBiasOffsets)
}

func init() {
	compute.Register(KernelEntry, forwardLane)
}

// forwardLane is the host-lane twin of the shader. It calls the same
// nn.ActivateLayer as the CPU network, so host results are bit-exact.
func forwardLane(gid int, bufs *compute.Buffers) error {
	m, err := decodeMeta(bufs.Ints(bindMeta))
	if err != nil {
		return err
	}
	if gid >= m.N {
		return nil
	}

	inputs := bufs.Floats(bindInputs)
	weights := bufs.Floats(bindWeights)
	biases := bufs.Floats(bindBiases)
	outputs := bufs.Floats(bindOutputs)

	inSize, outSize := m.inputSize(), m.outputSize()
	strideW, strideB := m.weightStride(), m.biasStride()
	if (gid+1)*inSize > len(inputs) || (gid+1)*strideW > len(weights) ||
		(gid+1)*strideB > len(biases) || (gid+1)*outSize > len(outputs) {
		return compute.Dispatchf("instance %d exceeds bound buffers", gid)
	}

	var cur, nxt [MaxWidth]float32
	copy(cur[:inSize], inputs[gid*inSize:])

	for l := 0; l < m.Layers-1; l++ {
		inC := int(m.LayerSizes[l])
		outC := int(m.LayerSizes[l+1])
		wBase := gid*strideW + int(m.WeightOffsets[l])
		bBase := gid*strideB + int(m.BiasOffsets[l])

		for i := 0; i < outC; i++ {
			sum := biases[bBase+i]
			row := weights[wBase+i*inC : wBase+(i+1)*inC]
			for j, w := range row {
				sum += w * cur[j]
			}
			nxt[i] = nn.ActivateLayer(sum, l, m.Layers, m.LinearOutput)
		}
		copy(cur[:outC], nxt[:outC])
	}

	copy(outputs[gid*outSize:(gid+1)*outSize], cur[:outSize])
	return nil
}

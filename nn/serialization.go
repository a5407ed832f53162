package nn

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

// Bounds on what a file header may declare, so a corrupt header cannot
// drive a huge allocation.
const (
	maxFileLayers    = 4096
	maxFileLayerSize = 1 << 20
)

// MarshalBinary encodes the network in the little-endian file format:
//
//	int32 numLayers
//	int32 layerSizes[numLayers]
//	float32 learningRate
//	int32 linearOutput (0/1)
//	per layer: float32 weights[out*in] (row-major), float32 biases[out]
func (n *DenseNetwork) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := n.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo streams the binary encoding to w.
func (n *DenseNetwork) WriteTo(w io.Writer) (int64, error) {
	lay := n.Layout()
	size := encodedSize(n.layerSizes, lay)
	out := make([]byte, 0, size)

	out = binary.LittleEndian.AppendUint32(out, uint32(int32(len(n.layerSizes))))
	for _, s := range n.layerSizes {
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(s)))
	}
	out = binary.LittleEndian.AppendUint32(out, math.Float32bits(n.LearningRate))
	linear := int32(0)
	if n.LinearOutput {
		linear = 1
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(linear))

	for l := range n.weights {
		for _, v := range n.weights[l] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
		for _, v := range n.biases[l] {
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
		}
	}

	written, err := w.Write(out)
	return int64(written), err
}

// UnmarshalBinary decodes a network. The topology is recovered from the
// header before any parameter storage is allocated; a payload whose length
// disagrees with that topology is a *CorruptFileError.
func (n *DenseNetwork) UnmarshalBinary(data []byte) error {
	decoded, err := decodeNetwork(data)
	if err != nil {
		return err
	}
	*n = *decoded
	return nil
}

// SaveToFile writes the network to path, replacing any existing file.
func (n *DenseNetwork) SaveToFile(path string) error {
	data, err := n.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode network: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("save network: %w", err)
	}
	return nil
}

// LoadFromFile reads a network written by SaveToFile.
func LoadFromFile(path string) (*DenseNetwork, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load network: %w", err)
	}
	n, err := decodeNetwork(data)
	if err != nil {
		var ce *CorruptFileError
		if errors.As(err, &ce) {
			ce.Path = path
		}
		return nil, err
	}
	return n, nil
}

// ReadNetwork decodes a network from r, consuming it to EOF.
func ReadNetwork(r io.Reader) (*DenseNetwork, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read network: %w", err)
	}
	return decodeNetwork(data)
}

func encodedSize(layerSizes []int, lay Layout) int {
	header := 4 + 4*len(layerSizes) + 4 + 4
	return header + 4*(lay.TotalWeights+lay.TotalBiases)
}

func decodeNetwork(data []byte) (*DenseNetwork, error) {
	corrupt := func(format string, args ...any) error {
		return &CorruptFileError{Reason: fmt.Sprintf(format, args...)}
	}

	if len(data) < 4 {
		return nil, corrupt("%d bytes is too short for a header", len(data))
	}
	numLayers := int(int32(binary.LittleEndian.Uint32(data)))
	if numLayers < 2 || numLayers > maxFileLayers {
		return nil, corrupt("layer count %d out of range", numLayers)
	}

	headerLen := 4 + 4*numLayers + 4 + 4
	if len(data) < headerLen {
		return nil, corrupt("header needs %d bytes, file has %d", headerLen, len(data))
	}

	layerSizes := make([]int, numLayers)
	off := 4
	for i := range layerSizes {
		layerSizes[i] = int(int32(binary.LittleEndian.Uint32(data[off:])))
		if layerSizes[i] > maxFileLayerSize {
			return nil, corrupt("layer %d declares %d neurons", i, layerSizes[i])
		}
		off += 4
	}
	lay, err := ComputeLayout(layerSizes)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	learningRate := math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	linear := int32(binary.LittleEndian.Uint32(data[off:]))
	off += 4
	if linear != 0 && linear != 1 {
		return nil, corrupt("linear output flag %d is not 0 or 1", linear)
	}

	want := encodedSize(layerSizes, lay)
	if len(data) != want {
		return nil, corrupt("topology %v needs %d bytes, file has %d", layerSizes, want, len(data))
	}

	n := newZeroNetwork(layerSizes, learningRate, linear == 1)
	for l := range n.weights {
		for i := range n.weights[l] {
			n.weights[l][i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
		for i := range n.biases[l] {
			n.biases[l][i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off:]))
			off += 4
		}
	}
	return n, nil
}

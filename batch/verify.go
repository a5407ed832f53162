package batch

import (
	"fmt"
	"math"
	"time"

	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/nn"
	"gonum.org/v1/gonum/floats"
)

// ParityTolerance is the largest per-output difference accepted between the
// batched engine and the CPU network.
const ParityTolerance = 1e-4

// ParityReport compares one batched dispatch with N CPU forwards.
type ParityReport struct {
	Backend   string
	N         int
	MaxDiff   float64
	BatchTime time.Duration
	CPUTime   time.Duration
	OK        bool
	Deviation *DeviationMetrics
}

func (r ParityReport) String() string {
	status := "OK"
	if !r.OK {
		status = "MISMATCH"
	}
	return fmt.Sprintf("%s n=%d max|diff|=%.3g batch=%v cpu=%v %s",
		r.Backend, r.N, r.MaxDiff, r.BatchTime, r.CPUTime, status)
}

// Verify loads nets into the engine, runs one batched forward over inputs
// (instance-major) and compares every output with nets[k].Forward.
func Verify(e *Engine, nets []*nn.DenseNetwork, inputs []float32) (ParityReport, error) {
	rep := ParityReport{Backend: e.Backend(), N: len(nets)}
	if err := e.LoadNetworks(nets); err != nil {
		return rep, err
	}

	start := time.Now()
	got, err := e.ForwardBatch(inputs, len(nets))
	if err != nil {
		return rep, err
	}
	rep.BatchTime = time.Since(start)

	in := e.layout.InputSize()
	want := make([]float32, 0, len(got))
	start = time.Now()
	for k, net := range nets {
		out, err := net.Forward(inputs[k*in : (k+1)*in])
		if err != nil {
			return rep, err
		}
		want = append(want, out...)
	}
	rep.CPUTime = time.Since(start)

	if rep.Deviation, err = Compare(got, want, e.layout.OutputSize()); err != nil {
		return rep, err
	}
	g, w := widen(got), widen(want)
	if floats.HasNaN(g) || floats.HasNaN(w) {
		// Distance skips NaN differences.
		rep.MaxDiff = math.Inf(1)
	} else {
		rep.MaxDiff = floats.Distance(g, w, math.Inf(1))
	}
	rep.OK = rep.Deviation.Failures == 0 && rep.MaxDiff < ParityTolerance
	return rep, nil
}

// ForwardAll evaluates every network on its input. It uses the engine when
// one is given and it accepts the batch, and falls back to per-network CPU
// Forward otherwise, so a missing or failing device never stops inference.
func ForwardAll(e *Engine, nets []*nn.DenseNetwork, inputs [][]float32) ([][]float32, error) {
	if len(inputs) != len(nets) {
		return nil, fmt.Errorf("got %d inputs for %d networks", len(inputs), len(nets))
	}
	if len(nets) == 0 {
		return nil, nil
	}
	if e != nil {
		out, err := forwardBatched(e, nets, inputs)
		if err == nil {
			return out, nil
		}
		compute.Log("batch: %s dispatch failed, using CPU: %v", e.Backend(), err)
	}

	out := make([][]float32, len(nets))
	for k, net := range nets {
		o, err := net.Forward(inputs[k])
		if err != nil {
			return nil, fmt.Errorf("network %d: %w", k, err)
		}
		out[k] = o
	}
	return out, nil
}

func forwardBatched(e *Engine, nets []*nn.DenseNetwork, inputs [][]float32) ([][]float32, error) {
	in, outSize := e.layout.InputSize(), e.layout.OutputSize()
	flat := make([]float32, 0, len(nets)*in)
	for k, x := range inputs {
		if len(x) != in {
			return nil, &nn.ShapeError{What: fmt.Sprintf("input %d", k), Want: in, Got: len(x)}
		}
		flat = append(flat, x...)
	}
	if err := e.LoadNetworks(nets); err != nil {
		return nil, err
	}
	res, err := e.ForwardBatch(flat, len(nets))
	if err != nil {
		return nil, err
	}
	out := make([][]float32, len(nets))
	for k := range out {
		out[k] = res[k*outSize : (k+1)*outSize : (k+1)*outSize]
	}
	return out, nil
}

func widen(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

package batch

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DeviationBucket counts outputs whose absolute difference from the CPU
// network falls in [RangeMin, RangeMax).
type DeviationBucket struct {
	Label     string  `json:"label"`
	RangeMin  float64 `json:"range_min"`
	RangeMax  float64 `json:"range_max"`
	Count     int     `json:"count"`
	Instances []int   `json:"instances,omitempty"` // instances with an output here; failures only
}

// MarshalJSON writes an infinite upper bound as -1.
func (db DeviationBucket) MarshalJSON() ([]byte, error) {
	type alias DeviationBucket
	a := alias(db)
	if math.IsInf(a.RangeMax, 1) {
		a.RangeMax = -1
	}
	return json.Marshal(a)
}

// DeviationMetrics is a histogram of per-output absolute differences.
type DeviationMetrics struct {
	Buckets  []DeviationBucket `json:"buckets"`
	Outputs  int               `json:"outputs"`
	Failures int               `json:"failures"` // outputs at or above ParityTolerance
	MeanAbs  float64           `json:"mean_abs"`
}

// NewDeviationMetrics returns an empty histogram with decade buckets up to
// ParityTolerance and one failure bucket beyond it.
func NewDeviationMetrics() *DeviationMetrics {
	return &DeviationMetrics{Buckets: []DeviationBucket{
		{Label: "exact", RangeMin: 0, RangeMax: math.SmallestNonzeroFloat64},
		{Label: "<1e-7", RangeMin: math.SmallestNonzeroFloat64, RangeMax: 1e-7},
		{Label: "1e-7..1e-6", RangeMin: 1e-7, RangeMax: 1e-6},
		{Label: "1e-6..1e-5", RangeMin: 1e-6, RangeMax: 1e-5},
		{Label: "1e-5..1e-4", RangeMin: 1e-5, RangeMax: ParityTolerance},
		{Label: ">=1e-4", RangeMin: ParityTolerance, RangeMax: math.Inf(1)},
	}}
}

// Add records one output of instance k.
func (dm *DeviationMetrics) Add(k int, got, want float32) {
	d := math.Abs(float64(got) - float64(want))
	if math.IsNaN(d) {
		d = math.Inf(1)
	}
	last := len(dm.Buckets) - 1
	for i := range dm.Buckets {
		b := &dm.Buckets[i]
		if d >= b.RangeMin && (d < b.RangeMax || i == last) {
			b.Count++
			if i == last {
				dm.Failures++
				if n := len(b.Instances); n == 0 || b.Instances[n-1] != k {
					b.Instances = append(b.Instances, k)
				}
			}
			break
		}
	}
	// Running mean; infinities are counted as failures only.
	dm.Outputs++
	if !math.IsInf(d, 0) {
		dm.MeanAbs += (d - dm.MeanAbs) / float64(dm.Outputs)
	}
}

// Compare fills a histogram from instance-major batched and CPU outputs.
func Compare(got, want []float32, outSize int) (*DeviationMetrics, error) {
	if len(got) != len(want) {
		return nil, fmt.Errorf("mismatched batched (%d) vs cpu (%d) output sizes", len(got), len(want))
	}
	dm := NewDeviationMetrics()
	for i := range got {
		dm.Add(i/outSize, got[i], want[i])
	}
	return dm, nil
}

func (dm *DeviationMetrics) String() string {
	var sb strings.Builder
	for _, b := range dm.Buckets {
		if b.Count > 0 {
			fmt.Fprintf(&sb, "%s:%d ", b.Label, b.Count)
		}
	}
	fmt.Fprintf(&sb, "(mean %.3g over %d outputs)", dm.MeanAbs, dm.Outputs)
	return sb.String()
}

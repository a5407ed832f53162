// Package detector probes the WebGPU adapter and derives the launch
// parameters the batched engine uses.
package detector

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/openfluke/webgpu/wgpu"
)

// BudgetEnv overrides the default buffer budget, in MiB.
const BudgetEnv = "EVOLOOM_BUDGET_MB"

// MaxKernelGroup caps the workgroup width for kernels that keep a
// per-invocation scratch array; wider groups starve registers on most
// adapters.
const MaxKernelGroup = 64

// Report summarizes an adapter and what the batched engine can do on it.
type Report struct {
	WhenISO     string            `json:"when_iso"`
	Backend     string            `json:"backend"`
	AdapterType string            `json:"adapter_type"`
	VendorID    string            `json:"vendor_id_hex"`
	DeviceID    string            `json:"device_id_hex"`
	Name        string            `json:"name"`
	Driver      string            `json:"driver"`
	Recommended Recommendations   `json:"recommended"`
	Limits      Limits            `json:"limits"`
	Features    []string          `json:"features"`
	Env         map[string]string `json:"env,omitempty"`
}

type Limits struct {
	MaxComputeInvocationsPerWorkgroup uint32 `json:"max_compute_invocations_per_workgroup"`
	MaxComputeWorkgroupSizeX          uint32 `json:"max_compute_workgroup_size_x"`
	MaxComputeWorkgroupsPerDimension  uint32 `json:"max_compute_workgroups_per_dimension"`
	MaxStorageBufferBindingSize       uint64 `json:"max_storage_buffer_binding_size"`
	MaxBufferSize                     uint64 `json:"max_buffer_size"`
}

type Recommendations struct {
	// Widest 1D workgroup the adapter accepts.
	WorkgroupX uint32 `json:"workgroup_x"`
	// Width used for per-instance kernels such as the batched forward pass.
	KernelGroup uint32 `json:"kernel_group"`
	// Soft budget in bytes for all buffers of one dispatch.
	BudgetBytes uint64 `json:"budget_bytes"`
}

// LimitsOf copies the fields the engine cares about.
func LimitsOf(l wgpu.SupportedLimits) Limits {
	return Limits{
		MaxComputeInvocationsPerWorkgroup: l.Limits.MaxComputeInvocationsPerWorkgroup,
		MaxComputeWorkgroupSizeX:          l.Limits.MaxComputeWorkgroupSizeX,
		MaxComputeWorkgroupsPerDimension:  l.Limits.MaxComputeWorkgroupsPerDimension,
		MaxStorageBufferBindingSize:       l.Limits.MaxStorageBufferBindingSize,
		MaxBufferSize:                     l.Limits.MaxBufferSize,
	}
}

// Recommend derives launch parameters from adapter limits.
func Recommend(l Limits) Recommendations {
	return Recommendations{
		WorkgroupX:  chooseX(l.MaxComputeWorkgroupSizeX, l.MaxComputeInvocationsPerWorkgroup),
		KernelGroup: uint32(KernelGroupSize(l)),
		BudgetBytes: budgetBytes(),
	}
}

// KernelGroupSize is the widest accepted 1D workgroup capped at
// MaxKernelGroup.
func KernelGroupSize(l Limits) int {
	x := chooseX(l.MaxComputeWorkgroupSizeX, l.MaxComputeInvocationsPerWorkgroup)
	if x > MaxKernelGroup {
		x = MaxKernelGroup
	}
	return int(x)
}

// MaxInstances is the largest batch one dispatch can hold for a network
// with the given per-instance float counts: bounded by the dispatch grid,
// by the largest single binding, and by the soft budget over all buffers.
func MaxInstances(l Limits, r Recommendations, weights, biases, inputs, outputs int) int {
	grid := uint64(l.MaxComputeWorkgroupsPerDimension) * uint64(r.KernelGroup)
	best := grid
	for _, per := range []int{weights, biases, inputs, outputs} {
		if per <= 0 {
			continue
		}
		if n := l.MaxStorageBufferBindingSize / uint64(4*per); n < best {
			best = n
		}
	}
	if total := uint64(4 * (weights + biases + inputs + outputs)); total > 0 {
		if n := r.BudgetBytes / total; n < best {
			best = n
		}
	}
	return int(best)
}

// Detect probes an adapter and synthesizes a report. A non-empty
// adapterPref selects the first adapter whose name or vendor contains it;
// otherwise the high-performance adapter is used.
func Detect(adapterPref string) (*Report, error) {
	inst := wgpu.CreateInstance(nil)
	if inst == nil {
		return nil, fmt.Errorf("wgpu.CreateInstance returned nil")
	}
	defer inst.Release()

	adapter, err := pickAdapter(inst, adapterPref)
	if err != nil {
		return nil, err
	}
	defer adapter.Release()

	info := adapter.GetInfo()
	limits := LimitsOf(adapter.GetLimits())

	var feats []string
	for _, f := range adapter.EnumerateFeatures() {
		feats = append(feats, f.String())
	}

	return &Report{
		WhenISO:     time.Now().UTC().Format(time.RFC3339),
		Backend:     info.BackendType.String(),
		AdapterType: info.AdapterType.String(),
		VendorID:    fmt.Sprintf("0x%04x", info.VendorId),
		DeviceID:    fmt.Sprintf("0x%04x", info.DeviceId),
		Name:        strings.TrimSpace(info.Name),
		Driver:      strings.TrimSpace(info.DriverDescription),
		Limits:      limits,
		Features:    feats,
		Recommended: Recommend(limits),
		Env:         pickEnv([]string{BudgetEnv}),
	}, nil
}

func pickAdapter(inst *wgpu.Instance, pref string) (*wgpu.Adapter, error) {
	if pref = strings.ToLower(strings.TrimSpace(pref)); pref != "" {
		for _, a := range inst.EnumerateAdapters(nil) {
			info := a.GetInfo()
			if strings.Contains(strings.ToLower(info.Name), pref) ||
				strings.Contains(strings.ToLower(info.VendorName), pref) {
				return a, nil
			}
		}
		return nil, fmt.Errorf("no adapter matches %q", pref)
	}
	adapter, err := inst.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	if adapter == nil {
		return nil, fmt.Errorf("no adapter")
	}
	return adapter, nil
}

func chooseX(maxX, maxTot uint32) uint32 {
	for _, c := range []uint32{256, 128, 64, 32, 16, 8, 4, 1} {
		if c <= maxX && c <= maxTot {
			return c
		}
	}
	return 1
}

func budgetBytes() uint64 {
	budget := uint64(128 * 1024 * 1024)
	if mbStr := os.Getenv(BudgetEnv); mbStr != "" {
		if mb, err := strconv.Atoi(mbStr); err == nil && mb > 0 {
			budget = uint64(mb) * 1024 * 1024
		}
	}
	return budget
}

func pickEnv(keys []string) map[string]string {
	out := map[string]string{}
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

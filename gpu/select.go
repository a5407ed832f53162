package gpu

import (
	"fmt"
	"strings"

	"github.com/openfluke/evoloom/compute"
)

// Select opens a backend by name: "gpu" requires an adapter, "host" runs
// on goroutines, and "auto" tries the GPU and falls back to the host.
// adapter is an optional adapter name substring; hostGroup sizes host
// groups (0 for the default).
func Select(kind, adapter string, hostGroup int) (compute.Backend, error) {
	if adapter != "" {
		SetAdapterPreference(adapter)
	}
	switch strings.ToLower(kind) {
	case "host":
		return compute.NewHost(hostGroup), nil
	case "gpu":
		return NewBackend()
	case "", "auto":
		b, err := NewBackend()
		if err != nil {
			fmt.Printf("GPU unavailable (%v), using host backend\n", err)
			return compute.NewHost(hostGroup), nil
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

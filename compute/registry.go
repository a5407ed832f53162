package compute

import (
	"sort"
	"sync"
)

// HostKernel is the Go implementation of a kernel entry point. It is called
// once per invocation with the global invocation id and must ignore ids past
// the end of its work, exactly like the shader.
type HostKernel func(gid int, bufs *Buffers) error

var (
	registryMu sync.RWMutex
	registry   = map[string]HostKernel{}
)

// Register makes a host implementation available under an entry point name.
// Packages register their kernels from init.
func Register(entry string, fn HostKernel) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[entry] = fn
}

// Registered lists the registered entry points.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(entry string) (HostKernel, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[entry]
	return fn, ok
}

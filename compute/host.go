package compute

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// DefaultGroupSize matches the workgroup width most adapters accept.
const DefaultGroupSize = 64

// Buffers holds the named buffers a host kernel reads and writes.
type Buffers struct {
	floats map[string][]float32
	ints   map[string][]int32
}

// Floats returns the float buffer bound under name, or nil.
func (b *Buffers) Floats(name string) []float32 { return b.floats[name] }

// Ints returns the int buffer bound under name, or nil.
func (b *Buffers) Ints(name string) []int32 { return b.ints[name] }

// Host runs kernels on a bounded set of goroutines, one contiguous range of
// invocation ids per worker, standing in for device lanes.
type Host struct {
	groupSize int
	workers   int
}

// NewHost creates a host backend. groupSize <= 0 selects DefaultGroupSize.
func NewHost(groupSize int) *Host {
	if groupSize <= 0 {
		groupSize = DefaultGroupSize
	}
	return &Host{groupSize: groupSize, workers: runtime.NumCPU()}
}

func (h *Host) Name() string   { return "host" }
func (h *Host) GroupSize() int { return h.groupSize }

// Compile resolves the kernel entry point against the host registry and
// validates its binding table.
func (h *Host) Compile(k Kernel) (Program, error) {
	fn, ok := lookup(k.Entry)
	if !ok {
		err := fmt.Errorf("%w (registered: %s)", ErrUnknownKernel, strings.Join(Registered(), ", "))
		return nil, &CompileError{Kernel: k.Entry, Err: err}
	}
	if err := validateBindings(k); err != nil {
		return nil, &CompileError{Kernel: k.Entry, Err: err}
	}
	Log("host: compiled %s (%d bindings, group %d)", k.Entry, len(k.Bindings), h.groupSize)
	return &HostProgram{
		kernel:    k,
		fn:        fn,
		groupSize: h.groupSize,
		workers:   h.workers,
		bufs: Buffers{
			floats: map[string][]float32{},
			ints:   map[string][]int32{},
		},
	}, nil
}

func validateBindings(k Kernel) error {
	names := map[string]bool{}
	slots := map[uint32]bool{}
	for _, b := range k.Bindings {
		if b.Name == "" {
			return fmt.Errorf("binding %d has no name", b.Index)
		}
		if names[b.Name] {
			return fmt.Errorf("duplicate binding name %q", b.Name)
		}
		if slots[b.Index] {
			return fmt.Errorf("duplicate binding index %d", b.Index)
		}
		names[b.Name] = true
		slots[b.Index] = true
	}
	return nil
}

// HostProgram is the host backend's compiled kernel.
type HostProgram struct {
	kernel    Kernel
	fn        HostKernel
	groupSize int
	workers   int
	bufs      Buffers

	allocations int
}

// Allocations counts buffer (re)allocations since compile. Rebinding a
// buffer of unchanged length does not allocate.
func (p *HostProgram) Allocations() int { return p.allocations }

func (p *HostProgram) slot(name string, kind BufferKind) error {
	b, ok := p.kernel.Binding(name)
	if !ok {
		return Dispatchf("kernel %s has no binding %q", p.kernel.Entry, name)
	}
	if b.Kind != kind {
		return Dispatchf("binding %q holds %s, got %s", name, b.Kind, kind)
	}
	return nil
}

func (p *HostProgram) BindFloats(name string, data []float32) error {
	if err := p.slot(name, Float32); err != nil {
		return err
	}
	cur, ok := p.bufs.floats[name]
	if !ok || len(cur) != len(data) {
		cur = make([]float32, len(data))
		p.bufs.floats[name] = cur
		p.allocations++
	}
	copy(cur, data)
	return nil
}

func (p *HostProgram) BindInts(name string, data []int32) error {
	if err := p.slot(name, Int32); err != nil {
		return err
	}
	cur, ok := p.bufs.ints[name]
	if !ok || len(cur) != len(data) {
		cur = make([]int32, len(data))
		p.bufs.ints[name] = cur
		p.allocations++
	}
	copy(cur, data)
	return nil
}

// Dispatch runs groupsX*GroupSize invocations split across the workers and
// returns the first kernel error once every worker has finished.
func (p *HostProgram) Dispatch(groupsX int) error {
	if groupsX < 0 {
		return Dispatchf("negative group count %d", groupsX)
	}
	for _, b := range p.kernel.Bindings {
		_, okF := p.bufs.floats[b.Name]
		_, okI := p.bufs.ints[b.Name]
		if !okF && !okI {
			return Dispatchf("binding %q is not bound", b.Name)
		}
	}

	total := groupsX * p.groupSize
	workers := p.workers
	if workers > total {
		workers = total
	}
	if workers < 1 {
		return nil
	}
	chunk := (total + workers - 1) / workers

	Log("host: dispatch %s groups=%d invocations=%d workers=%d", p.kernel.Entry, groupsX, total, workers)

	errs := make([]error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > total {
			end = total
		}
		if start >= end {
			break
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for gid := start; gid < end; gid++ {
				if err := p.fn(gid, &p.bufs); err != nil {
					errs[w] = err
					return
				}
			}
		}(w, start, end)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *HostProgram) ReadFloats(name string) ([]float32, error) {
	if err := p.slot(name, Float32); err != nil {
		return nil, err
	}
	cur, ok := p.bufs.floats[name]
	if !ok {
		return nil, Dispatchf("binding %q is not bound", name)
	}
	return append([]float32(nil), cur...), nil
}

func (p *HostProgram) Release() {
	p.bufs.floats = map[string][]float32{}
	p.bufs.ints = map[string][]int32{}
}

// Package compute defines the dispatch contract the batched engine needs from
// a parallel backend, and ships a host backend that runs kernels on goroutines.
//
// A backend compiles a Kernel into a Program. A Program owns named buffers,
// runs the kernel over groupsX*GroupSize invocations, and reads buffers back.
// That is the whole surface: any backend satisfying it (the host backend here,
// the WebGPU backend in package gpu) can be swapped without touching the
// networks or the evolution code.
package compute

// BufferKind is the element type of a bound buffer.
type BufferKind int

const (
	Float32 BufferKind = iota
	Int32
)

func (k BufferKind) String() string {
	switch k {
	case Float32:
		return "f32"
	case Int32:
		return "i32"
	}
	return "unknown"
}

// Binding declares one named buffer slot of a kernel.
type Binding struct {
	Name     string
	Index    uint32 // @binding(n) in the shader
	Kind     BufferKind
	Writable bool
}

// Kernel is a compilable unit. Source is WGSL for device backends; the host
// backend resolves Entry against its registry of Go implementations instead.
type Kernel struct {
	Entry    string
	Source   string
	Bindings []Binding
}

// Binding returns the slot declared under name.
func (k Kernel) Binding(name string) (Binding, bool) {
	for _, b := range k.Bindings {
		if b.Name == name {
			return b, true
		}
	}
	return Binding{}, false
}

// Backend compiles kernels.
type Backend interface {
	Name() string
	// GroupSize is the number of invocations per dispatched group.
	GroupSize() int
	Compile(k Kernel) (Program, error)
}

// Program is a compiled kernel plus the buffers bound to it.
//
// Binding a buffer whose length differs from the currently bound one replaces
// it; binding one of the same length updates it in place.
type Program interface {
	BindFloats(name string, data []float32) error
	BindInts(name string, data []int32) error
	// Dispatch runs groupsX groups and blocks until they complete.
	Dispatch(groupsX int) error
	ReadFloats(name string) ([]float32, error)
	Release()
}

// Groups returns the number of groups needed to cover n invocations.
func Groups(n, groupSize int) int {
	if groupSize <= 0 {
		groupSize = 1
	}
	return (n + groupSize - 1) / groupSize
}

package gpu

import (
	"fmt"

	"github.com/openfluke/evoloom/compute"
	"github.com/openfluke/evoloom/detector"
	"github.com/openfluke/webgpu/wgpu"
)

// Backend compiles WGSL kernels against the shared device.
type Backend struct {
	ctx       *Context
	groupSize int
}

// NewBackend opens the GPU context. The kernel group size comes from the
// adapter limits, capped at detector.MaxKernelGroup.
func NewBackend() (*Backend, error) {
	c, err := GetContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", compute.ErrNoGPU, err)
	}
	gs := detector.KernelGroupSize(detector.LimitsOf(c.Adapter.GetLimits()))
	Log("backend group size %d", gs)
	return &Backend{ctx: c, groupSize: gs}, nil
}

func (b *Backend) Name() string   { return "webgpu" }
func (b *Backend) GroupSize() int { return b.groupSize }

// Compile builds the shader module, an explicit bind group layout from the
// kernel's binding table, and the compute pipeline.
func (b *Backend) Compile(k compute.Kernel) (compute.Program, error) {
	fail := func(err error) (compute.Program, error) {
		return nil, &compute.CompileError{Kernel: k.Entry, Err: err}
	}
	if k.Source == "" {
		return fail(fmt.Errorf("empty shader source"))
	}
	Log("Compiling kernel %s", k.Entry)

	module, err := b.ctx.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          k.Entry + "_Shader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: k.Source},
	})
	if err != nil {
		return fail(fmt.Errorf("shader compile: %v", err))
	}
	defer module.Release()

	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(k.Bindings))
	for _, bd := range k.Bindings {
		typ := wgpu.BufferBindingTypeReadOnlyStorage
		if bd.Writable {
			typ = wgpu.BufferBindingTypeStorage
		}
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    bd.Index,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: typ},
		})
	}
	bgl, err := b.ctx.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   k.Entry + "_BGL",
		Entries: entries,
	})
	if err != nil {
		return fail(fmt.Errorf("create bgl: %v", err))
	}

	pipelineLayout, err := b.ctx.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            k.Entry + "_Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		return fail(fmt.Errorf("create pipeline layout: %v", err))
	}
	defer pipelineLayout.Release()

	pipeline, err := b.ctx.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  k.Entry + "_Pipe",
		Layout: pipelineLayout,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "main",
		},
	})
	if err != nil {
		return fail(fmt.Errorf("pipeline create: %v", err))
	}

	return &program{
		ctx:      b.ctx,
		kernel:   k,
		pipeline: pipeline,
		layout:   bgl,
		buffers:  map[string]*deviceBuffer{},
	}, nil
}

type deviceBuffer struct {
	buf *wgpu.Buffer
	n   int
}

type program struct {
	ctx       *Context
	kernel    compute.Kernel
	pipeline  *wgpu.ComputePipeline
	layout    *wgpu.BindGroupLayout
	bindGroup *wgpu.BindGroup
	buffers   map[string]*deviceBuffer
	dirty     bool
}

func (p *program) slot(name string, kind compute.BufferKind) error {
	bd, ok := p.kernel.Binding(name)
	if !ok {
		return compute.Dispatchf("kernel %s has no binding %q", p.kernel.Entry, name)
	}
	if bd.Kind != kind {
		return compute.Dispatchf("binding %q is %s, got %s", name, bd.Kind, kind)
	}
	return nil
}

// bind replaces the device buffer when the element count changes and
// writes in place otherwise.
func (p *program) bind(name string, n int, contents []byte) error {
	if n == 0 {
		return compute.Dispatchf("binding %q: zero-length buffer", name)
	}
	if cur, ok := p.buffers[name]; ok && cur.n == n {
		p.ctx.Queue.WriteBuffer(cur.buf, 0, contents)
		return nil
	}
	buf, err := p.ctx.newStorage(name, contents)
	if err != nil {
		return err
	}
	if cur, ok := p.buffers[name]; ok {
		cur.buf.Destroy()
	}
	Log("rebind %s (%d elems)", name, n)
	p.buffers[name] = &deviceBuffer{buf: buf, n: n}
	p.dirty = true
	return nil
}

func (p *program) BindFloats(name string, data []float32) error {
	if err := p.slot(name, compute.Float32); err != nil {
		return err
	}
	return p.bind(name, len(data), wgpu.ToBytes(data))
}

func (p *program) BindInts(name string, data []int32) error {
	if err := p.slot(name, compute.Int32); err != nil {
		return err
	}
	return p.bind(name, len(data), wgpu.ToBytes(data))
}

func (p *program) createBindGroup() error {
	entries := make([]wgpu.BindGroupEntry, 0, len(p.kernel.Bindings))
	for _, bd := range p.kernel.Bindings {
		db, ok := p.buffers[bd.Name]
		if !ok {
			return compute.Dispatchf("binding %q not bound", bd.Name)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: bd.Index,
			Buffer:  db.buf,
			Size:    db.buf.GetSize(),
		})
	}
	bg, err := p.ctx.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.kernel.Entry + "_Bind",
		Layout:  p.layout,
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %v", err)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
	}
	p.bindGroup = bg
	p.dirty = false
	return nil
}

func (p *program) Dispatch(groupsX int) error {
	if groupsX <= 0 {
		return compute.Dispatchf("groups must be positive, got %d", groupsX)
	}
	if p.dirty || p.bindGroup == nil {
		if err := p.createBindGroup(); err != nil {
			return err
		}
	}
	Log("Dispatching %s w/ %d workgroups", p.kernel.Entry, groupsX)

	enc, err := p.ctx.Device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	pass := enc.BeginComputePass(nil)
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, p.bindGroup, nil)
	pass.DispatchWorkgroups(uint32(groupsX), 1, 1)
	pass.End()

	cmd, err := enc.Finish(nil)
	if err != nil {
		return err
	}
	p.ctx.Queue.Submit(cmd)
	p.ctx.Device.Poll(true, nil)
	return nil
}

func (p *program) ReadFloats(name string) ([]float32, error) {
	if err := p.slot(name, compute.Float32); err != nil {
		return nil, err
	}
	db, ok := p.buffers[name]
	if !ok {
		return nil, compute.Dispatchf("binding %q not bound", name)
	}
	return p.ctx.readFloats(db.buf, db.n)
}

func (p *program) Release() {
	for name, db := range p.buffers {
		db.buf.Destroy()
		delete(p.buffers, name)
	}
	if p.bindGroup != nil {
		p.bindGroup.Release()
		p.bindGroup = nil
	}
	if p.pipeline != nil {
		p.pipeline.Release()
		p.pipeline = nil
	}
	// The layout is dropped, not released: the pipeline still references it.
	p.layout = nil
}

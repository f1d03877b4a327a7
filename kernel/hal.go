// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// halSubmitTimeout bounds the wait for one submitted launch.
const halSubmitTimeout = 5 * time.Second

// halPollInterval is the longest sleep between completion polls.
const halPollInterval = 2 * time.Millisecond

// HALDevice dispatches kernels through a wgpu HAL device.
//
// The device and queue are borrowed: closing contexts never destroys them.
type HALDevice struct {
	device hal.Device
	queue  hal.Queue
}

// NewHALDevice wraps an open HAL device and its queue.
func NewHALDevice(device hal.Device, queue hal.Queue) *HALDevice {
	return &HALDevice{device: device, queue: queue}
}

// NewHALDeviceFromProvider uses the GPU device of a host application. The
// provider must also implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func NewHALDeviceFromProvider(provider gpucontext.DeviceProvider) (*HALDevice, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: provider HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: provider HalQueue is not hal.Queue", ErrNoDevice)
	}
	return NewHALDevice(device, queue), nil
}

// Name implements Device.
func (d *HALDevice) Name() string { return "hal" }

// Open implements Device. Launches run on one goroutine in submission order.
func (d *HALDevice) Open() (Context, error) {
	if d.device == nil || d.queue == nil {
		return nil, ErrNoDevice
	}
	c := &halContext{
		device: d.device,
		queue:  d.queue,
		jobs:   make(chan halJob, 64),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

type halExec struct {
	device     hal.Device
	layout     []ArgKind
	module     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline
}

func (e *halExec) Release() error {
	if e.pipeline != nil {
		e.device.DestroyComputePipeline(e.pipeline)
		e.pipeline = nil
	}
	if e.pipeLayout != nil {
		e.device.DestroyPipelineLayout(e.pipeLayout)
		e.pipeLayout = nil
	}
	if e.bindLayout != nil {
		e.device.DestroyBindGroupLayout(e.bindLayout)
		e.bindLayout = nil
	}
	if e.module != nil {
		e.device.DestroyShaderModule(e.module)
		e.module = nil
	}
	return nil
}

// halMem mirrors host memory in a storage buffer. Read-write buffers also
// carry a staging buffer for read-back.
type halMem struct {
	device  hal.Device
	host    []byte
	size    uint64
	access  Access
	buf     hal.Buffer
	staging hal.Buffer
}

func (m *halMem) Len() int     { return len(m.host) }
func (m *halMem) Host() []byte { return m.host }

func (m *halMem) Release() error {
	if m.staging != nil {
		m.device.DestroyBuffer(m.staging)
		m.staging = nil
	}
	if m.buf != nil {
		m.device.DestroyBuffer(m.buf)
		m.buf = nil
	}
	return nil
}

type halJob struct {
	launch Launch
	done   func(error)
}

type halContext struct {
	device hal.Device
	queue  hal.Queue
	jobs   chan halJob
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	lost   bool
}

func (c *halContext) BuildProgram(p *Program) (Executable, error) {
	e := &halExec{device: c.device, layout: p.Layout}

	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  p.Name,
		Source: hal.ShaderSource{SPIRV: p.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module: %w", err)
	}
	e.module = module

	entries := make([]gputypes.BindGroupLayoutEntry, len(p.Layout))
	for i, kind := range p.Layout {
		typ := gputypes.BufferBindingTypeUniform
		switch kind {
		case ArgReadOnly:
			typ = gputypes.BufferBindingTypeReadOnlyStorage
		case ArgReadWrite:
			typ = gputypes.BufferBindingTypeStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i), //nolint:gosec // layouts are tiny
			Visibility: gputypes.ShaderStageCompute,
			Buffer:     &gputypes.BufferBindingLayout{Type: typ},
		}
	}
	bindLayout, err := c.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   p.Name + "_bind_layout",
		Entries: entries,
	})
	if err != nil {
		_ = e.Release()
		return nil, fmt.Errorf("create bind group layout: %w", err)
	}
	e.bindLayout = bindLayout

	pipeLayout, err := c.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: p.Name + "_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{bindLayout},
	})
	if err != nil {
		_ = e.Release()
		return nil, fmt.Errorf("create pipeline layout: %w", err)
	}
	e.pipeLayout = pipeLayout

	pipeline, err := c.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: p.Name + "_pipeline", Layout: pipeLayout,
		Compute: hal.ComputeState{Module: module, EntryPoint: p.Entry},
	})
	if err != nil {
		_ = e.Release()
		return nil, fmt.Errorf("create compute pipeline: %w", err)
	}
	e.pipeline = pipeline
	return e, nil
}

func align4(n int) uint64 { return uint64((n + 3) &^ 3) } //nolint:gosec // sizes are non-negative

func (c *halContext) MapBuffer(host []byte, access Access) (Mem, error) {
	m := &halMem{device: c.device, host: host, size: max(align4(len(host)), 4), access: access}

	usage := gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst
	if access == AccessReadWrite {
		usage |= gputypes.BufferUsageCopySrc
	}
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{Label: "overlay_mem", Size: m.size, Usage: usage})
	if err != nil {
		return nil, fmt.Errorf("create buffer: %w", err)
	}
	m.buf = buf

	if access == AccessReadWrite {
		staging, err := c.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "overlay_staging", Size: m.size,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			_ = m.Release()
			return nil, fmt.Errorf("create staging buffer: %w", err)
		}
		m.staging = staging
	}
	return m, nil
}

func (c *halContext) Enqueue(l Launch, done func(error)) error {
	if _, ok := l.Exec.(*halExec); !ok {
		return fmt.Errorf("%w: executable not built by the HAL device", ErrArgs)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.lost {
		return ErrDeviceLost
	}
	c.jobs <- halJob{launch: l, done: done}
	return nil
}

func (c *halContext) run() {
	defer c.wg.Done()
	for job := range c.jobs {
		err := c.execute(job.launch)
		if err != nil && !errors.Is(err, ErrCanceled) {
			slogger().Warn("kernel: hal launch failed", "err", err)
		}
		job.done(err)
	}
}

// upload pads host to the buffer size and writes it.
func (c *halContext) upload(m *halMem) error {
	data := m.host
	if uint64(len(data)) != m.size {
		data = make([]byte, m.size)
		copy(data, m.host)
	}
	if err := c.queue.WriteBuffer(m.buf, 0, data); err != nil {
		return fmt.Errorf("write buffer: %w", err)
	}
	return nil
}

// waitSubmission polls the queue until submission idx completes.
func (c *halContext) waitSubmission(idx uint64) error {
	deadline := time.Now().Add(halSubmitTimeout)
	sleep := 50 * time.Microsecond
	for c.queue.PollCompleted() < idx {
		if time.Now().After(deadline) {
			return fmt.Errorf("%w: submission %d not complete after %v", ErrDispatchTimeout, idx, halSubmitTimeout)
		}
		time.Sleep(sleep)
		sleep = min(sleep*2, halPollInterval)
	}
	return nil
}

// readback copies the staging buffer of m into its host memory.
func (c *halContext) readback(m *halMem) error {
	mapping, err := c.device.MapBuffer(m.staging, 0, m.size)
	if err != nil {
		return fmt.Errorf("map staging buffer: %w", err)
	}
	//nolint:gosec // the mapping covers m.size bytes
	copy(m.host, unsafe.Slice((*byte)(mapping.Ptr), m.size))
	if err := c.device.UnmapBuffer(m.staging); err != nil {
		return fmt.Errorf("unmap staging buffer: %w", err)
	}
	return nil
}

func (c *halContext) execute(l Launch) error {
	if l.canceled() {
		return ErrCanceled
	}
	exec := l.Exec.(*halExec)
	if len(l.Args) != len(exec.layout) {
		return fmt.Errorf("%w: %d arguments, layout has %d", ErrArgs, len(l.Args), len(exec.layout))
	}

	var (
		entries  = make([]gputypes.BindGroupEntry, len(l.Args))
		uniforms []hal.Buffer
		outputs  []*halMem
	)
	defer func() {
		for _, u := range uniforms {
			c.device.DestroyBuffer(u)
		}
	}()

	for i, a := range l.Args {
		if a.Mem == nil {
			words := a.Words
			size := uint64(max(len(words)*4, 16)+15) &^ 15 //nolint:gosec // small
			ub, err := c.device.CreateBuffer(&hal.BufferDescriptor{
				Label: "overlay_params", Size: size,
				Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
			})
			if err != nil {
				return fmt.Errorf("create uniform buffer: %w", err)
			}
			uniforms = append(uniforms, ub)
			data := make([]byte, size)
			for n, w := range words {
				binary.LittleEndian.PutUint32(data[n*4:], w)
			}
			if err := c.queue.WriteBuffer(ub, 0, data); err != nil {
				return fmt.Errorf("write params: %w", err)
			}
			entries[i] = gputypes.BindGroupEntry{
				Binding:  uint32(i), //nolint:gosec // layouts are tiny
				Resource: gputypes.BufferBinding{Buffer: ub.NativeHandle(), Offset: 0, Size: size},
			}
			continue
		}
		m, ok := a.Mem.(*halMem)
		if !ok {
			return fmt.Errorf("%w: argument %d is not a HAL buffer", ErrArgs, i)
		}
		if err := c.upload(m); err != nil {
			return err
		}
		if m.access == AccessReadWrite {
			outputs = append(outputs, m)
		}
		entries[i] = gputypes.BindGroupEntry{
			Binding:  uint32(i), //nolint:gosec // layouts are tiny
			Resource: gputypes.BufferBinding{Buffer: m.buf.NativeHandle(), Offset: 0, Size: m.size},
		}
	}

	bg, err := c.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "overlay_bind", Layout: exec.bindLayout, Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	defer c.device.DestroyBindGroup(bg)

	encoder, err := c.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "overlay_encoder"})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("overlay"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "overlay_pass"})
	pass.SetPipeline(exec.pipeline)
	pass.SetBindGroup(0, bg, nil)
	gx := uint32((l.Global[0] + WorkgroupSize - 1) / WorkgroupSize) //nolint:gosec // grid is small
	gy := uint32((l.Global[1] + WorkgroupSize - 1) / WorkgroupSize) //nolint:gosec // grid is small
	pass.Dispatch(gx, gy, 1)
	pass.End()
	for _, m := range outputs {
		encoder.CopyBufferToBuffer(m.buf, m.staging, []hal.BufferCopy{{SrcOffset: 0, DstOffset: 0, Size: m.size}})
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer c.device.FreeCommandBuffer(cmdBuf)

	idx, err := c.queue.Submit([]hal.CommandBuffer{cmdBuf})
	if err != nil {
		return c.deviceLost(fmt.Errorf("submit: %w", err))
	}
	if err := c.waitSubmission(idx); err != nil {
		return err
	}
	if l.canceled() {
		return ErrCanceled
	}

	for _, m := range outputs {
		if err := c.readback(m); err != nil {
			return err
		}
	}
	return nil
}

func (c *halContext) deviceLost(err error) error {
	c.mu.Lock()
	c.lost = true
	c.mu.Unlock()
	return fmt.Errorf("%w: %w", ErrDeviceLost, err)
}

func (c *halContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.jobs)
	c.mu.Unlock()

	c.wg.Wait()
	return nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/overlay/internal/workgroup"
)

// SoftwareDevice executes kernels on the CPU.
//
// Kernels are Go functions registered per entry point; the built-in overlay
// kernel is always available. Each context runs its queue on one goroutine
// and spreads the row bands of a launch over a workgroup pool.
type SoftwareDevice struct {
	workers int
	lost    atomic.Bool

	mu      sync.RWMutex
	kernels map[string]KernelFunc
}

// SoftwareOption configures a SoftwareDevice.
type SoftwareOption func(*SoftwareDevice)

// WithWorkers sets the number of workgroup goroutines per context.
// Zero selects GOMAXPROCS.
func WithWorkers(n int) SoftwareOption {
	return func(d *SoftwareDevice) {
		d.workers = n
	}
}

// NewSoftwareDevice creates a CPU compute device.
func NewSoftwareDevice(opts ...SoftwareOption) *SoftwareDevice {
	d := &SoftwareDevice{
		kernels: map[string]KernelFunc{DefaultEntry: overlayBlend},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name implements Device.
func (d *SoftwareDevice) Name() string { return "software" }

// RegisterKernel makes fn available under entry.
func (d *SoftwareDevice) RegisterKernel(entry string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[entry] = fn
}

// Lose simulates the loss of the device: every queued and future launch
// fails with ErrDeviceLost.
func (d *SoftwareDevice) Lose() { d.lost.Store(true) }

// Open implements Device.
func (d *SoftwareDevice) Open() (Context, error) {
	if d.lost.Load() {
		return nil, ErrDeviceLost
	}
	c := &softContext{
		dev:   d,
		queue: make(chan softJob, 64),
		pool:  workgroup.NewPool(d.workers),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

type softExec struct {
	entry string
	fn    KernelFunc
}

func (*softExec) Release() error { return nil }

// softMem shares host memory with the kernel directly.
type softMem struct{ host []byte }

func (m *softMem) Len() int       { return len(m.host) }
func (m *softMem) Host() []byte   { return m.host }
func (m *softMem) Release() error { return nil }

type softJob struct {
	launch Launch
	done   func(error)
}

type softContext struct {
	dev   *SoftwareDevice
	queue chan softJob
	pool  *workgroup.Pool
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func (c *softContext) BuildProgram(p *Program) (Executable, error) {
	c.dev.mu.RLock()
	fn, ok := c.dev.kernels[p.Entry]
	c.dev.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntry, p.Entry)
	}
	return &softExec{entry: p.Entry, fn: fn}, nil
}

func (c *softContext) MapBuffer(host []byte, _ Access) (Mem, error) {
	if c.dev.lost.Load() {
		return nil, ErrDeviceLost
	}
	return &softMem{host: host}, nil
}

func (c *softContext) Enqueue(l Launch, done func(error)) error {
	if _, ok := l.Exec.(*softExec); !ok {
		return fmt.Errorf("%w: executable not built by the software device", ErrArgs)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.dev.lost.Load() {
		return ErrDeviceLost
	}
	c.queue <- softJob{launch: l, done: done}
	return nil
}

func (c *softContext) run() {
	defer c.wg.Done()
	for job := range c.queue {
		job.done(c.execute(job.launch))
	}
}

func (c *softContext) execute(l Launch) error {
	if c.dev.lost.Load() {
		return ErrDeviceLost
	}
	if l.canceled() {
		return ErrCanceled
	}
	exec := l.Exec.(*softExec)
	total := l.Global[1]
	if l.Global[0] <= 0 || total <= 0 {
		return nil
	}

	groups := make([]func() error, 0, (total+WorkgroupSize-1)/WorkgroupSize)
	for start := 0; start < total; start += WorkgroupSize {
		rows := Rows{Start: start, End: min(start+WorkgroupSize, total), Total: total}
		groups = append(groups, func() error {
			if l.canceled() {
				return ErrCanceled
			}
			return exec.fn(l.Args, rows)
		})
	}
	if err := c.pool.Run(groups); err != nil {
		if errors.Is(err, ErrCanceled) {
			return ErrCanceled
		}
		return fmt.Errorf("kernel: %s: %w", exec.entry, err)
	}
	return nil
}

func (c *softContext) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	c.wg.Wait()
	c.pool.Close()
	return nil
}

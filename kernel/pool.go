// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package kernel manages compiled compute kernels shared by overlay engines.
//
// A Pool owns at most one device context, one command queue and one
// compiled program. The first Acquire creates them; every Instance holds a
// reference, and releasing the last reference tears everything down. A pool
// is an explicit value: engines that should share a program are handed the
// same pool.
//
// Instances share the program but carry their own arguments. Dispatch
// enqueues a launch on the pool's in-order queue; blocking dispatches wait
// for the completion callback on a condition variable, bounded by the
// dispatch timeout.
package kernel

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultDispatchTimeout bounds a blocking dispatch.
const DefaultDispatchTimeout = 2 * time.Second

// Pool is safe for concurrent use.
type Pool struct {
	dev     Device
	timeout time.Duration
	layout  []ArgKind

	mu   sync.Mutex
	refs atomic.Int32
	ctx  Context
	exec Executable
	prog *Program
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithDispatchTimeout overrides DefaultDispatchTimeout.
func WithDispatchTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithArgLayout sets the argument layout of programs built by the pool.
// The default is OverlayLayout.
func WithArgLayout(kinds ...ArgKind) PoolOption {
	return func(p *Pool) {
		p.layout = kinds
	}
}

// NewPool creates an empty pool for dev. No device resources are created
// until Acquire.
func NewPool(dev Device, opts ...PoolOption) *Pool {
	p := &Pool{
		dev:     dev,
		timeout: DefaultDispatchTimeout,
		layout:  OverlayLayout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Device returns the device the pool dispatches to.
func (p *Pool) Device() Device { return p.dev }

// Refs returns the number of live instances.
func (p *Pool) Refs() int { return int(p.refs.Load()) }

// Live reports whether the pool currently holds a context and program.
func (p *Pool) Live() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx != nil
}

// Program returns the compiled program, or nil when the pool is empty.
func (p *Pool) Program() *Program {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prog
}

// Acquire returns a reference instance of the kernel entry compiled from
// the WGSL file at sourcePath. The first caller compiles the program and
// opens the device context; later callers share them. Empty arguments
// select the built-in overlay kernel.
func (p *Pool) Acquire(sourcePath, entry string) (*Instance, error) {
	if p.dev == nil {
		return nil, ErrNoDevice
	}
	if entry == "" {
		entry = DefaultEntry
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ctx != nil {
		if p.prog.Name != sourceName(sourcePath) || p.prog.Entry != entry {
			return nil, fmt.Errorf("%w: have %s:%s, want %s:%s", ErrProgramMismatch,
				p.prog.Name, p.prog.Entry, sourceName(sourcePath), entry)
		}
		return p.newInstanceLocked(), nil
	}

	source, err := LoadSource(sourcePath)
	if err != nil {
		return nil, err
	}
	spirv, err := Compile(source)
	if err != nil {
		return nil, err
	}
	prog := &Program{
		Name:   sourceName(sourcePath),
		Source: source,
		Entry:  entry,
		SPIRV:  spirv,
		Layout: p.layout,
	}

	ctx, err := p.dev.Open()
	if err != nil {
		return nil, fmt.Errorf("kernel: open %s context: %w", p.dev.Name(), err)
	}
	exec, err := ctx.BuildProgram(prog)
	if err != nil {
		if cerr := ctx.Close(); cerr != nil {
			slogger().Warn("kernel: close context after failed build", "err", cerr)
		}
		return nil, fmt.Errorf("kernel: build %s: %w", entry, err)
	}
	p.ctx, p.exec, p.prog = ctx, exec, prog

	slogger().Debug("kernel: program built",
		"device", p.dev.Name(), "entry", entry, "spirv_words", len(spirv))
	return p.newInstanceLocked(), nil
}

func sourceName(path string) string {
	if path == "" {
		return "builtin"
	}
	return path
}

func (p *Pool) newInstanceLocked() *Instance {
	p.refs.Add(1)
	inst := &Instance{pool: p}
	inst.cond = sync.NewCond(&inst.mu)
	return inst
}

// MapBuffer creates a buffer object on the pool's context.
func (p *Pool) MapBuffer(host []byte, access Access) (Mem, error) {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil {
		return nil, ErrPoolClosed
	}
	return ctx.MapBuffer(host, access)
}

// release drops one reference and tears the pool down at zero.
func (p *Pool) release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.refs.Add(-1)
	if n < 0 {
		p.refs.Store(0)
		return fmt.Errorf("kernel: release without reference")
	}
	if n > 0 {
		return nil
	}

	var err error
	if p.exec != nil {
		err = p.exec.Release()
	}
	if p.ctx != nil {
		if cerr := p.ctx.Close(); err == nil {
			err = cerr
		}
	}
	p.ctx, p.exec, p.prog = nil, nil, nil
	slogger().Debug("kernel: pool torn down", "device", p.dev.Name())
	return err
}

func (p *Pool) enqueue(l Launch, done func(error)) error {
	p.mu.Lock()
	ctx, exec := p.ctx, p.exec
	p.mu.Unlock()
	if ctx == nil {
		return ErrPoolClosed
	}
	l.Exec = exec
	return ctx.Enqueue(l, done)
}

// Instance is a kernel handle with its own argument bindings.
type Instance struct {
	pool     *Pool
	released atomic.Bool

	// epoch advances on Cancel; launches of older epochs are skipped.
	epoch atomic.Uint64

	mu      sync.Mutex
	cond    *sync.Cond
	args    []Arg
	pending int
	err     error
}

// NewInstance returns another instance sharing the pool's program.
func (i *Instance) NewInstance() (*Instance, error) {
	if i.released.Load() {
		return nil, ErrReleased
	}
	p := i.pool
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctx == nil {
		return nil, ErrPoolClosed
	}
	return p.newInstanceLocked(), nil
}

// Pool returns the pool the instance belongs to.
func (i *Instance) Pool() *Pool { return i.pool }

// SetArgs replaces the instance's arguments. Each argument must match the
// program layout: words for uniform slots, buffers for the others.
func (i *Instance) SetArgs(args ...Arg) error {
	if i.released.Load() {
		return ErrReleased
	}
	layout := i.pool.layout
	if len(args) != len(layout) {
		return fmt.Errorf("%w: %d arguments, layout has %d", ErrArgs, len(args), len(layout))
	}
	for n, a := range args {
		if (layout[n] == ArgUniform) != (a.Mem == nil) {
			return fmt.Errorf("%w: argument %d does not match its slot", ErrArgs, n)
		}
	}
	i.mu.Lock()
	i.args = append(i.args[:0], args...)
	i.mu.Unlock()
	return nil
}

// Dispatch enqueues the kernel over a global[0] x global[1] grid with the
// current arguments. A blocking dispatch waits for completion.
func (i *Instance) Dispatch(global [2]int, blocking bool) error {
	if i.released.Load() {
		return ErrReleased
	}
	i.mu.Lock()
	if i.args == nil {
		i.mu.Unlock()
		return fmt.Errorf("%w: arguments not set", ErrArgs)
	}
	epoch := i.epoch.Load()
	l := Launch{
		Args:     append([]Arg(nil), i.args...),
		Global:   global,
		Canceled: func() bool { return i.epoch.Load() != epoch },
	}
	i.pending++
	i.mu.Unlock()

	err := i.pool.enqueue(l, i.complete)
	if err != nil {
		i.mu.Lock()
		i.pending--
		i.mu.Unlock()
		return err
	}
	if !blocking {
		return nil
	}
	return i.Wait()
}

func (i *Instance) complete(err error) {
	i.mu.Lock()
	i.pending--
	if err != nil && i.err == nil {
		i.err = err
	}
	i.cond.Broadcast()
	i.mu.Unlock()
}

// Cancel withdraws every launch of the instance that has not finished.
// Queued launches complete with ErrCanceled without running; a running
// launch stops at its next workgroup boundary. Call Wait to know when the
// instance no longer touches its buffers.
func (i *Instance) Cancel() {
	i.epoch.Add(1)
}

// Wait blocks until every dispatch of the instance has completed, or the
// dispatch timeout expires. It returns the first launch error since the
// previous Wait.
func (i *Instance) Wait() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	expired := false
	timer := time.AfterFunc(i.pool.timeout, func() {
		i.mu.Lock()
		expired = true
		i.cond.Broadcast()
		i.mu.Unlock()
	})
	defer timer.Stop()

	for i.pending > 0 && !expired {
		i.cond.Wait()
	}
	if i.pending > 0 {
		return fmt.Errorf("%w after %v", ErrDispatchTimeout, i.pool.timeout)
	}
	err := i.err
	i.err = nil
	return err
}

// Release drops the instance's reference. Release is idempotent.
func (i *Instance) Release() error {
	if !i.released.CompareAndSwap(false, true) {
		return nil
	}
	i.mu.Lock()
	i.args = nil
	i.mu.Unlock()
	return i.pool.release()
}

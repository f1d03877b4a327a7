// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package compute implements the compute-kernel backend.
//
// Every bound surface is mapped as a read-only buffer object and gets its
// own kernel instance from a shared kernel.Pool. A composite sets each
// instance's arguments (blend parameters, surface, target) and enqueues the
// instances in list order on the pool's in-order queue, then waits for all
// of them.
package compute

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/pixel"
	"github.com/gogpu/overlay/kernel"
)

// ErrNoPool is returned when the backend is created without a kernel pool.
var ErrNoPool = errors.New("compute: no kernel pool")

func init() {
	backend.Register(backend.NameCompute, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg.KernelPool, cfg.Format, cfg.KernelSource, cfg.KernelEntry)
	})
}

type surface struct {
	src  backend.Source
	mem  kernel.Mem
	inst *kernel.Instance
}

// Backend is the compute backend. It is not safe for concurrent use.
type Backend struct {
	format   backend.PixelFormat
	pool     *kernel.Pool
	ref      *kernel.Instance
	next     uint64
	surfaces map[uint64]*surface
	byHandle map[uint64]uint64

	target    *backend.TargetBuffer
	targetMem kernel.Mem
	closed    bool
}

// New acquires the kernel from pool and returns a backend for targets of
// the given format. The backend holds one pool reference until Close.
func New(pool *kernel.Pool, format backend.PixelFormat, source, entry string) (*Backend, error) {
	if pool == nil {
		return nil, ErrNoPool
	}
	if format.Family() == pixel.FamilyUnknown {
		return nil, fmt.Errorf("compute: %w: %v", backend.ErrUnsupportedFormat, format)
	}
	ref, err := pool.Acquire(source, entry)
	if err != nil {
		return nil, fmt.Errorf("compute: acquire kernel: %w", err)
	}
	return &Backend{
		format:   format,
		pool:     pool,
		ref:      ref,
		surfaces: make(map[uint64]*surface),
		byHandle: make(map[uint64]uint64),
	}, nil
}

// Name implements backend.Backend.
func (b *Backend) Name() string { return backend.NameCompute }

// Format implements backend.Backend.
func (b *Backend) Format() backend.PixelFormat { return b.format }

// Bind implements backend.Backend.
func (b *Backend) Bind(src backend.Source) (backend.Binding, error) {
	return b.BindForCompute(src, src.Width(), src.Height(), src.Stride())
}

// BindForCompute maps src as a width x height buffer object with the given
// row stride and gives it a kernel instance.
func (b *Backend) BindForCompute(src backend.Source, width, height, stride int) (backend.Binding, error) {
	if b.closed {
		return backend.Binding{}, backend.ErrClosed
	}
	if width <= 0 || height <= 0 || stride < width*4 || stride%4 != 0 ||
		len(src.Pixels()) < stride*height {
		return backend.Binding{}, fmt.Errorf("%w: buffer %dx%d stride %d", backend.ErrBind, width, height, stride)
	}
	if _, ok := b.byHandle[src.Handle()]; ok {
		return backend.Binding{}, fmt.Errorf("%w: memory handle %d", backend.ErrAlreadyBound, src.Handle())
	}

	mem, err := b.pool.MapBuffer(src.Pixels()[:stride*height], kernel.AccessRead)
	if err != nil {
		return backend.Binding{}, fmt.Errorf("%w: map buffer: %w", backend.ErrBind, err)
	}
	inst, err := b.ref.NewInstance()
	if err != nil {
		_ = mem.Release()
		return backend.Binding{}, fmt.Errorf("%w: kernel instance: %w", backend.ErrBind, err)
	}

	b.next++
	b.surfaces[b.next] = &surface{src: src, mem: mem, inst: inst}
	b.byHandle[src.Handle()] = b.next
	slogger().Debug("compute: buffer bound", "id", b.next, "width", width, "height", height, "refs", b.pool.Refs())
	return backend.Binding{ID: b.next, Width: width, Height: height}, nil
}

// Unbind implements backend.Backend.
func (b *Backend) Unbind(bd backend.Binding) error {
	s, ok := b.surfaces[bd.ID]
	if !ok {
		return fmt.Errorf("%w: binding %d", backend.ErrNotBound, bd.ID)
	}
	delete(b.surfaces, bd.ID)
	delete(b.byHandle, s.src.Handle())
	return errors.Join(s.inst.Release(), s.mem.Release())
}

// BindTarget implements backend.Backend.
func (b *Backend) BindTarget(t *backend.TargetBuffer) error {
	if b.closed {
		return backend.ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Format.Family() != b.format.Family() {
		return fmt.Errorf("%w: %v target on a %v backend", backend.ErrInvalidBuffer, t.Format, b.format)
	}
	if b.targetMem != nil {
		_ = b.UnbindTarget()
	}
	mem, err := b.pool.MapBuffer(t.Data[:t.Size], kernel.AccessReadWrite)
	if err != nil {
		return fmt.Errorf("%w: map target: %w", backend.ErrBind, err)
	}
	b.target, b.targetMem = t, mem
	return nil
}

// UnbindTarget implements backend.Backend.
func (b *Backend) UnbindTarget() error {
	var err error
	if b.targetMem != nil {
		err = b.targetMem.Release()
	}
	b.target, b.targetMem = nil, nil
	return err
}

func (b *Backend) params(s *surface, di backend.DrawInfo) kernel.BlendParams {
	t := b.target
	p := kernel.BlendParams{
		Format:       t.Format,
		TargetWidth:  t.Width,
		TargetHeight: t.Height,
		SrcWidth:     s.src.Width(),
		SrcHeight:    s.src.Height(),
		SrcStride:    s.src.Stride(),
		Crop:         di.SrcRect().Image().Intersect(image.Rect(0, 0, s.src.Width(), s.src.Height())),
		Dst:          di.Dst.Image(),
	}
	copy(p.Offsets[:], t.Offsets)
	copy(p.Strides[:], t.Strides)
	return p
}

// Composite implements backend.Backend. When it returns, no launch of
// this call still reads a surface or writes the target: on failure or
// expiry the remaining launches are canceled and drained first.
func (b *Backend) Composite(ctx context.Context, list []backend.DrawInfo) (err error) {
	if b.target == nil {
		return fmt.Errorf("%w: no target", backend.ErrNotBound)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var dispatched []*kernel.Instance
	defer func() {
		if err != nil {
			drain(dispatched)
		}
	}()
	for _, di := range list {
		s, ok := b.surfaces[di.Binding.ID]
		if !ok {
			return fmt.Errorf("%w: binding %d", backend.ErrNotBound, di.Binding.ID)
		}
		di, visible := di.Clip(b.target.Width, b.target.Height)
		if !visible {
			continue
		}
		p := b.params(s, di)
		if p.Dst.Empty() || p.Crop.Empty() {
			continue
		}
		err := s.inst.SetArgs(kernel.WordsArg(p.Words()...), kernel.MemArg(s.mem), kernel.MemArg(b.targetMem))
		if err != nil {
			return err
		}
		if err := s.inst.Dispatch(p.Global(), false); err != nil {
			return fmt.Errorf("compute: dispatch: %w", err)
		}
		dispatched = append(dispatched, s.inst)
	}

	done := make(chan error, 1)
	go func() { done <- waitAll(dispatched) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		for _, inst := range dispatched {
			inst.Cancel()
		}
		<-done
		return fmt.Errorf("compute: waiting for kernels: %w", ctx.Err())
	}
}

func waitAll(insts []*kernel.Instance) error {
	var errs []error
	for _, inst := range insts {
		errs = append(errs, inst.Wait())
	}
	return errors.Join(errs...)
}

// drain cancels what is left of insts and waits for the running launch.
func drain(insts []*kernel.Instance) {
	for _, inst := range insts {
		inst.Cancel()
	}
	for _, inst := range insts {
		if err := inst.Wait(); err != nil && !errors.Is(err, kernel.ErrCanceled) {
			slogger().Warn("compute: drain after failed composite", "err", err)
		}
	}
}

// Close releases every binding and the backend's pool reference.
func (b *Backend) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var errs []error
	for id, s := range b.surfaces {
		errs = append(errs, s.inst.Release(), s.mem.Release())
		delete(b.surfaces, id)
	}
	clear(b.byHandle)
	errs = append(errs, b.UnbindTarget(), b.ref.Release())
	return errors.Join(errs...)
}

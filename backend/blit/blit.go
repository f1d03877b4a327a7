// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package blit implements the 2-D blitter backend.
//
// Each bound surface becomes a hardware-surface object tagged with a colour
// format. A composite scales every surface crop to its destination rectangle
// and blends it onto the target in list order, as a blitter engine would,
// and blocks until the whole list completes or the context expires.
package blit

import (
	"context"
	"fmt"
	"image"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/pixel"
	"golang.org/x/image/draw"
)

func init() {
	backend.Register(backend.NameBlit, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg.Format)
	})
}

// surface is a hardware-surface object wrapping a bound source.
type surface struct {
	src   backend.Source
	color gputypes.TextureFormat
}

// Blitter is the blit backend. It is not safe for concurrent use.
type Blitter struct {
	format   backend.PixelFormat
	next     uint64
	surfaces map[uint64]*surface
	byHandle map[uint64]uint64
	target   *backend.TargetBuffer
	scratch  *image.NRGBA
	closed   bool
}

// New creates a blitter for targets of the given format.
func New(format backend.PixelFormat) (*Blitter, error) {
	if format.Family() == pixel.FamilyUnknown {
		return nil, fmt.Errorf("blit: %w: %v", backend.ErrUnsupportedFormat, format)
	}
	return &Blitter{
		format:   format,
		surfaces: make(map[uint64]*surface),
		byHandle: make(map[uint64]uint64),
	}, nil
}

// Name implements backend.Backend.
func (b *Blitter) Name() string { return backend.NameBlit }

// Format implements backend.Backend.
func (b *Blitter) Format() backend.PixelFormat { return b.format }

// Bind implements backend.Backend. Canvases are bound as RGBA8 surfaces.
func (b *Blitter) Bind(src backend.Source) (backend.Binding, error) {
	return b.BindForBlit(src, gputypes.TextureFormatRGBA8Unorm)
}

// BindForBlit wraps src in a hardware-surface object of the given colour format.
func (b *Blitter) BindForBlit(src backend.Source, color gputypes.TextureFormat) (backend.Binding, error) {
	if b.closed {
		return backend.Binding{}, backend.ErrClosed
	}
	if color != gputypes.TextureFormatRGBA8Unorm && color != gputypes.TextureFormatBGRA8Unorm {
		return backend.Binding{}, fmt.Errorf("%w: colour format %v", backend.ErrBind, color)
	}
	w, h, stride := src.Width(), src.Height(), src.Stride()
	if w <= 0 || h <= 0 || stride < w*4 || len(src.Pixels()) < stride*(h-1)+w*4 {
		return backend.Binding{}, fmt.Errorf("%w: surface %dx%d stride %d", backend.ErrBind, w, h, stride)
	}
	if _, ok := b.byHandle[src.Handle()]; ok {
		return backend.Binding{}, fmt.Errorf("%w: memory handle %d", backend.ErrAlreadyBound, src.Handle())
	}

	b.next++
	b.surfaces[b.next] = &surface{src: src, color: color}
	b.byHandle[src.Handle()] = b.next
	slogger().Debug("blit: surface bound", "id", b.next, "width", w, "height", h)
	return backend.Binding{ID: b.next, Width: w, Height: h}, nil
}

// Unbind implements backend.Backend.
func (b *Blitter) Unbind(bd backend.Binding) error {
	s, ok := b.surfaces[bd.ID]
	if !ok {
		return fmt.Errorf("%w: binding %d", backend.ErrNotBound, bd.ID)
	}
	delete(b.surfaces, bd.ID)
	delete(b.byHandle, s.src.Handle())
	return nil
}

// BindTarget implements backend.Backend.
func (b *Blitter) BindTarget(t *backend.TargetBuffer) error {
	if b.closed {
		return backend.ErrClosed
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Format.Family() != b.format.Family() {
		return fmt.Errorf("%w: %v target on a %v blitter", backend.ErrInvalidBuffer, t.Format, b.format)
	}
	b.target = t
	return nil
}

// UnbindTarget implements backend.Backend.
func (b *Blitter) UnbindTarget() error {
	b.target = nil
	return nil
}

// bandRows is the number of rows blended between deadline checks. It is
// even so that NV12/NV21 chroma rows are never split.
const bandRows = 64

type blitOp struct {
	surf *surface
	info backend.DrawInfo
}

// Composite implements backend.Backend. The list runs on the calling
// goroutine; the context is checked between row bands, so an expired
// composite returns without leaving any work behind.
func (b *Blitter) Composite(ctx context.Context, list []backend.DrawInfo) error {
	if b.target == nil {
		return fmt.Errorf("%w: no target", backend.ErrNotBound)
	}
	ops := make([]blitOp, 0, len(list))
	for _, di := range list {
		s, ok := b.surfaces[di.Binding.ID]
		if !ok {
			return fmt.Errorf("%w: binding %d", backend.ErrNotBound, di.Binding.ID)
		}
		ops = append(ops, blitOp{surf: s, info: di})
	}

	frame := b.target.Frame()
	for _, op := range ops {
		if err := b.blit(ctx, frame, op); err != nil {
			return fmt.Errorf("blit: waiting for completion: %w", err)
		}
	}
	return nil
}

func (b *Blitter) blit(ctx context.Context, frame *pixel.Frame, op blitOp) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := op.surf.src
	img := &image.NRGBA{
		Pix:    src.Pixels(),
		Stride: src.Stride(),
		Rect:   image.Rect(0, 0, src.Width(), src.Height()),
	}
	crop := op.info.SrcRect().Image().Intersect(img.Rect)
	dst := op.info.Dst.Image()
	if crop.Empty() || dst.Empty() {
		return nil
	}

	var sample pixel.Sampler
	if crop.Size() == dst.Size() {
		sample = pixel.NRGBASampler(img.SubImage(crop).(*image.NRGBA))
	} else {
		scaled := b.scratchImage(dst.Dx(), dst.Dy())
		draw.ApproxBiLinear.Scale(scaled, scaled.Rect, img, crop, draw.Src, nil)
		sample = pixel.NRGBASampler(scaled)
	}
	if op.surf.color == gputypes.TextureFormatBGRA8Unorm {
		rgba := sample
		sample = func(x, y int) (r, g, bl, a uint8) {
			bl, g, r, a = rgba(x, y)
			return r, g, bl, a
		}
	}

	for y := dst.Min.Y &^ 1; y < dst.Max.Y; y += bandRows {
		if err := ctx.Err(); err != nil {
			return err
		}
		pixel.BlendRows(frame, dst, y, y+bandRows, sample)
	}
	return nil
}

// scratchImage returns a w x h image reusing the blitter's scratch memory.
func (b *Blitter) scratchImage(w, h int) *image.NRGBA {
	n := w * h * 4
	if b.scratch == nil || cap(b.scratch.Pix) < n {
		b.scratch = &image.NRGBA{Pix: make([]byte, n)}
	}
	b.scratch.Pix = b.scratch.Pix[:n]
	b.scratch.Stride = w * 4
	b.scratch.Rect = image.Rect(0, 0, w, h)
	return b.scratch
}

// Close implements backend.Backend.
func (b *Blitter) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	if len(b.surfaces) > 0 {
		slogger().Warn("blit: closing with bound surfaces", "count", len(b.surfaces))
	}
	clear(b.surfaces)
	clear(b.byHandle)
	b.target = nil
	return nil
}

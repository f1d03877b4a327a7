// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/overlay/internal/pixel"
	"github.com/gogpu/overlay/kernel"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrUnsupportedFormat is returned when a backend cannot create a
	// hardware surface for a pixel format.
	ErrUnsupportedFormat = errors.New("backend: unsupported pixel format")

	// ErrBind is returned when a buffer cannot be bound to a backend object.
	ErrBind = errors.New("backend: bind failed")

	// ErrAlreadyBound is returned when a source is bound twice without Unbind.
	ErrAlreadyBound = errors.New("backend: already bound")

	// ErrNotBound is returned for bindings the backend does not know, or
	// when Composite is called without a bound target.
	ErrNotBound = errors.New("backend: not bound")

	// ErrInvalidBuffer is returned for malformed target buffers.
	ErrInvalidBuffer = errors.New("backend: invalid target buffer")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("backend: closed")
)

// PixelFormat is the format of a target frame.
type PixelFormat = pixel.Format

// Supported target formats.
const (
	FormatNV12     = pixel.FormatNV12
	FormatNV21     = pixel.FormatNV21
	FormatRGBA8888 = pixel.FormatRGBA8888
	FormatBGRA8888 = pixel.FormatBGRA8888
)

// Rect is an axis-aligned rectangle in pixels.
type Rect struct {
	X      int `yaml:"x" toml:"x"`
	Y      int `yaml:"y" toml:"y"`
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Width <= 0 || r.Height <= 0 }

// Image converts r to an image.Rectangle.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// RectFrom converts an image.Rectangle to a Rect.
func RectFrom(ir image.Rectangle) Rect {
	return Rect{X: ir.Min.X, Y: ir.Min.Y, Width: ir.Dx(), Height: ir.Dy()}
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// Source is an RGBA surface in shared memory that a backend can bind.
type Source interface {
	Width() int
	Height() int
	Stride() int
	Handle() uint64
	Pixels() []byte
}

// Binding is a backend object associated with a bound Source.
type Binding struct {
	ID     uint64
	Width  int
	Height int
}

// Valid reports whether b refers to a backend object.
func (b Binding) Valid() bool { return b.ID != 0 }

// DrawInfo describes one scaled blend of a bound surface onto the target.
type DrawInfo struct {
	Binding Binding

	// Dst is the destination rectangle in target pixels.
	Dst Rect

	// Src is the source crop in surface pixels. Nil means the whole surface.
	Src *Rect
}

// SrcRect returns the effective source crop.
func (d DrawInfo) SrcRect() Rect {
	if d.Src != nil {
		return *d.Src
	}
	return Rect{Width: d.Binding.Width, Height: d.Binding.Height}
}

// Clip restricts d to a width x height target. The source crop shrinks in
// proportion so the visible part keeps its scale. ok is false when nothing
// of d remains visible.
func (d DrawInfo) Clip(width, height int) (clipped DrawInfo, ok bool) {
	dst := d.Dst.Image()
	vis := dst.Intersect(image.Rect(0, 0, width, height))
	src := d.SrcRect()
	if vis.Empty() || src.Empty() {
		return d, false
	}
	if vis == dst {
		return d, true
	}
	sx := func(x int) int { return src.X + (x-dst.Min.X)*src.Width/dst.Dx() }
	sy := func(y int) int { return src.Y + (y-dst.Min.Y)*src.Height/dst.Dy() }
	crop := image.Rect(sx(vis.Min.X), sy(vis.Min.Y), sx(vis.Max.X), sy(vis.Max.Y))
	if crop.Dx() == 0 {
		crop.Max.X = crop.Min.X + 1
	}
	if crop.Dy() == 0 {
		crop.Max.Y = crop.Min.Y + 1
	}
	c := RectFrom(crop)
	d.Dst = RectFrom(vis)
	d.Src = &c
	return d, true
}

// Backend composites bound surfaces onto a target frame.
//
// A Backend is used by one engine at a time and is not safe for concurrent use.
type Backend interface {
	// Name returns the backend identifier ("blit", "compute").
	Name() string

	// Format returns the target pixel format the backend was created for.
	Format() PixelFormat

	// Bind creates a backend object for src.
	Bind(src Source) (Binding, error)

	// Unbind releases the backend object of b.
	Unbind(b Binding) error

	// BindTarget wraps the target frame for the next Composite.
	BindTarget(t *TargetBuffer) error

	// UnbindTarget releases the target wrapper.
	UnbindTarget() error

	// Composite blends every entry of list, in order, onto the bound
	// target and blocks until the operation completes or ctx expires.
	Composite(ctx context.Context, list []DrawInfo) error

	// Close releases all backend resources.
	Close() error
}

// Config carries construction parameters to backend factories.
type Config struct {
	// Format is the target pixel format.
	Format PixelFormat

	// KernelPool supplies compiled kernels to the compute backend.
	KernelPool *kernel.Pool

	// KernelSource is the path of a WGSL kernel file. Empty selects the
	// built-in overlay kernel.
	KernelSource string

	// KernelEntry is the kernel entry point. Empty selects the default.
	KernelEntry string
}

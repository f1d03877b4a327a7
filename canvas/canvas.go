// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package canvas provides offscreen RGBA drawing surfaces whose pixels live
// in allocator memory, so that a backend can read them without a copy.
package canvas

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gg"
	"github.com/gogpu/overlay/alloc"
	"golang.org/x/image/draw"
)

// Common errors returned by Canvas operations.
var (
	// ErrCanvasClosed is returned when operations are attempted on a closed canvas.
	ErrCanvasClosed = errors.New("canvas: canvas is closed")

	// ErrInvalidDimensions is returned when width or height is invalid.
	ErrInvalidDimensions = errors.New("canvas: invalid dimensions")
)

// BytesPerPixel is the size of one canvas pixel (non-premultiplied RGBA).
const BytesPerPixel = 4

// Canvas is an RGBA drawing surface backed by an allocator block.
//
// Drawing goes through a gg.Context; Flush copies the rendered pixmap into
// the block inside a CPU access bracket. Canvas is NOT safe for concurrent use.
type Canvas struct {
	alloc  *alloc.Allocator
	block  *alloc.Block
	pixmap *gg.Pixmap
	ctx    *gg.Context
	width  int
	height int
	dirty  bool
	closed bool
}

// New allocates a width x height canvas from a.
func New(a *alloc.Allocator, width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidDimensions, width, height)
	}
	block, err := a.Allocate(width * height * BytesPerPixel)
	if err != nil {
		return nil, fmt.Errorf("canvas: allocate %dx%d: %w", width, height, err)
	}
	pm := gg.NewPixmap(width, height)
	return &Canvas{
		alloc:  a,
		block:  block,
		pixmap: pm,
		ctx:    gg.NewContext(width, height, gg.WithPixmap(pm)),
		width:  width,
		height: height,
	}, nil
}

// Width returns the canvas width in pixels.
func (c *Canvas) Width() int { return c.width }

// Height returns the canvas height in pixels.
func (c *Canvas) Height() int { return c.height }

// Stride returns the number of bytes per pixel row.
func (c *Canvas) Stride() int { return c.width * BytesPerPixel }

// Handle returns the allocator handle of the backing block.
func (c *Canvas) Handle() uint64 {
	if c.block == nil {
		return 0
	}
	return uint64(c.block.Handle)
}

// Pixels returns the flushed pixel memory. The slice is only valid until Close.
func (c *Canvas) Pixels() []byte {
	if c.closed {
		return nil
	}
	return c.block.Data[:c.height*c.Stride()]
}

// Context returns the gg drawing context, or nil once closed.
func (c *Canvas) Context() *gg.Context {
	if c.closed {
		return nil
	}
	return c.ctx
}

// IsDirty reports whether the drawing context holds pixels not yet flushed.
func (c *Canvas) IsDirty() bool { return c.dirty }

// Draw clears the canvas to transparent, calls fn and flushes the result
// into allocator memory.
func (c *Canvas) Draw(fn func(dc *gg.Context) error) error {
	if c.closed {
		return ErrCanvasClosed
	}
	c.ctx.Clear()
	c.dirty = true
	if err := fn(c.ctx); err != nil {
		return err
	}
	return c.Flush()
}

// Flush copies the drawing context's pixels into allocator memory.
func (c *Canvas) Flush() error {
	if c.closed {
		return ErrCanvasClosed
	}
	if err := c.ctx.FlushGPU(); err != nil {
		return fmt.Errorf("canvas: flush pending shapes: %w", err)
	}
	src := c.pixmap.Data()
	err := c.alloc.CPUAccess(c.block.Handle, func(data []byte) error {
		unpremultiply(data, src)
		return nil
	})
	if err != nil {
		return fmt.Errorf("canvas: flush: %w", err)
	}
	c.dirty = false
	return nil
}

// CopyImage scales img into the whole canvas and writes it straight to
// allocator memory, bypassing the drawing context.
func (c *Canvas) CopyImage(img image.Image) error {
	if c.closed {
		return ErrCanvasClosed
	}
	return c.alloc.CPUAccess(c.block.Handle, func(data []byte) error {
		dst := &image.NRGBA{
			Pix:    data[:c.height*c.Stride()],
			Stride: c.Stride(),
			Rect:   image.Rect(0, 0, c.width, c.height),
		}
		b := img.Bounds()
		if b.Dx() == c.width && b.Dy() == c.height {
			draw.Copy(dst, image.Point{}, img, b, draw.Src, nil)
		} else {
			draw.BiLinear.Scale(dst, dst.Rect, img, b, draw.Src, nil)
		}
		return nil
	})
}

// Close releases the drawing context and the allocator block.
// Close is idempotent.
func (c *Canvas) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.ctx.Close()
	err := c.alloc.Free(c.block.Handle)
	c.block = nil
	c.pixmap = nil
	return err
}

// unpremultiply copies the premultiplied pixmap src into dst as
// non-premultiplied RGBA, the layout backends sample.
func unpremultiply(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		a := src[i+3]
		switch a {
		case 0:
			dst[i], dst[i+1], dst[i+2], dst[i+3] = 0, 0, 0, 0
		case 0xff:
			copy(dst[i:i+4], src[i:i+4])
		default:
			for k := range 3 {
				dst[i+k] = uint8(min(255, (uint32(src[i+k])*255+uint32(a)/2)/uint32(a)))
			}
			dst[i+3] = a
		}
	}
}

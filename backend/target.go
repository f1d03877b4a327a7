// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"fmt"

	"github.com/gogpu/overlay/internal/pixel"
)

// TargetBuffer describes the camera frame overlays are composited onto.
// The memory is owned by the caller.
type TargetBuffer struct {
	Format  PixelFormat
	Width   int
	Height  int
	Offsets []int
	Strides []int

	// Handle is the caller's identifier of the underlying memory. Zero is invalid.
	Handle uint64

	// Size is the number of valid bytes in Data.
	Size int
	Data []byte
}

// NewTargetBuffer allocates a tightly packed target. It is mostly useful
// for tests and tools; camera pipelines supply their own memory.
func NewTargetBuffer(format PixelFormat, width, height int, handle uint64) *TargetBuffer {
	offsets, strides, size := pixel.DefaultLayout(format, width, height)
	return &TargetBuffer{
		Format:  format,
		Width:   width,
		Height:  height,
		Offsets: offsets,
		Strides: strides,
		Handle:  handle,
		Size:    size,
		Data:    make([]byte, size),
	}
}

// Validate checks that t can be bound. Missing plane offsets and strides are
// filled with the tightly packed layout.
func (t *TargetBuffer) Validate() error {
	if t == nil {
		return fmt.Errorf("%w: nil buffer", ErrInvalidBuffer)
	}
	if t.Handle == 0 {
		return fmt.Errorf("%w: zero handle", ErrInvalidBuffer)
	}
	if t.Width <= 0 || t.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidBuffer, t.Width, t.Height)
	}
	if t.Size <= 0 || t.Size > len(t.Data) {
		return fmt.Errorf("%w: size %d with %d bytes of data", ErrInvalidBuffer, t.Size, len(t.Data))
	}
	if len(t.Offsets) == 0 && len(t.Strides) == 0 {
		t.Offsets, t.Strides, _ = pixel.DefaultLayout(t.Format, t.Width, t.Height)
	}
	if err := t.Frame().Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBuffer, err)
	}
	return nil
}

// Frame returns a pixel view of the valid part of t.
func (t *TargetBuffer) Frame() *pixel.Frame {
	return &pixel.Frame{
		Format:  t.Format,
		Width:   t.Width,
		Height:  t.Height,
		Offsets: t.Offsets,
		Strides: t.Strides,
		Data:    t.Data[:min(t.Size, len(t.Data))],
	}
}

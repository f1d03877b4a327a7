// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package pixel describes the frame layouts the compositor writes into and
// the blend routines shared by the blit backend and the software kernels.
package pixel

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLayout is returned when a frame's plane layout does not fit its data.
var ErrLayout = errors.New("pixel: invalid frame layout")

// Format identifies a target frame pixel format.
type Format int

const (
	FormatUnknown Format = iota
	FormatNV12
	FormatNV21
	FormatRGBA8888
	FormatBGRA8888
)

// Family groups formats that share a colour model.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyYUV
	FamilyRGB
)

func (f Format) String() string {
	switch f {
	case FormatNV12:
		return "NV12"
	case FormatNV21:
		return "NV21"
	case FormatRGBA8888:
		return "RGBA8888"
	case FormatBGRA8888:
		return "BGRA8888"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Family returns the colour model family of f.
func (f Format) Family() Family {
	switch f {
	case FormatNV12, FormatNV21:
		return FamilyYUV
	case FormatRGBA8888, FormatBGRA8888:
		return FamilyRGB
	default:
		return FamilyUnknown
	}
}

// Planes returns the number of memory planes of f.
func (f Format) Planes() int {
	switch f.Family() {
	case FamilyYUV:
		return 2
	case FamilyRGB:
		return 1
	default:
		return 0
	}
}

// ParseFormat maps a case-insensitive name ("nv12", "rgba8888", ...) to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NV12":
		return FormatNV12, nil
	case "NV21":
		return FormatNV21, nil
	case "RGBA", "RGBA8888":
		return FormatRGBA8888, nil
	case "BGRA", "BGRA8888":
		return FormatBGRA8888, nil
	}
	return FormatUnknown, fmt.Errorf("pixel: unknown format %q", s)
}

// DefaultLayout returns tightly packed plane offsets and strides for a
// width x height frame, and the total size in bytes.
func DefaultLayout(f Format, width, height int) (offsets, strides []int, size int) {
	switch f.Family() {
	case FamilyYUV:
		luma := width * height
		chromaRows := (height + 1) / 2
		chromaStride := (width + 1) &^ 1
		return []int{0, luma}, []int{width, chromaStride}, luma + chromaStride*chromaRows
	case FamilyRGB:
		return []int{0}, []int{width * 4}, width * height * 4
	default:
		return nil, nil, 0
	}
}

// Frame is a view over target memory with an explicit plane layout.
type Frame struct {
	Format  Format
	Width   int
	Height  int
	Offsets []int
	Strides []int
	Data    []byte
}

// NewFrame allocates a zeroed, tightly packed frame.
func NewFrame(f Format, width, height int) *Frame {
	offsets, strides, size := DefaultLayout(f, width, height)
	return &Frame{
		Format:  f,
		Width:   width,
		Height:  height,
		Offsets: offsets,
		Strides: strides,
		Data:    make([]byte, size),
	}
}

// Check reports whether every plane of fr lies inside fr.Data.
func (fr *Frame) Check() error {
	planes := fr.Format.Planes()
	if planes == 0 {
		return fmt.Errorf("%w: unsupported format %v", ErrLayout, fr.Format)
	}
	if fr.Width <= 0 || fr.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrLayout, fr.Width, fr.Height)
	}
	if len(fr.Offsets) < planes || len(fr.Strides) < planes {
		return fmt.Errorf("%w: %v needs %d planes", ErrLayout, fr.Format, planes)
	}
	for p := 0; p < planes; p++ {
		rows, minStride := fr.Height, fr.Width
		switch {
		case fr.Format.Family() == FamilyRGB:
			minStride = fr.Width * 4
		case p == 1:
			rows, minStride = (fr.Height+1)/2, (fr.Width+1)&^1
		}
		if fr.Strides[p] < minStride || fr.Offsets[p] < 0 {
			return fmt.Errorf("%w: plane %d stride %d", ErrLayout, p, fr.Strides[p])
		}
		end := fr.Offsets[p] + fr.Strides[p]*(rows-1) + minStride
		if end > len(fr.Data) {
			return fmt.Errorf("%w: plane %d ends at %d, data is %d bytes", ErrLayout, p, end, len(fr.Data))
		}
	}
	return nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"fmt"
	"image"

	"github.com/gogpu/overlay/internal/pixel"
)

// blendParamWords is the size of the overlay kernel's uniform block.
const blendParamWords = 20

// BlendParams is the parameter block of the overlay kernel.
type BlendParams struct {
	Format       pixel.Format
	TargetWidth  int
	TargetHeight int
	Offsets      [2]int
	Strides      [2]int

	SrcWidth  int
	SrcHeight int
	// SrcStride is the source row pitch in bytes; it must be a multiple of 4.
	SrcStride int

	Crop image.Rectangle
	Dst  image.Rectangle
}

// Words encodes p in the layout of the WGSL Params struct.
func (p BlendParams) Words() []uint32 {
	w := make([]uint32, blendParamWords)
	vals := []int{
		int(p.Format), p.TargetWidth, p.TargetHeight,
		p.Offsets[0], p.Strides[0], p.Offsets[1], p.Strides[1],
		p.SrcWidth, p.SrcHeight, p.SrcStride / 4,
		p.Crop.Min.X, p.Crop.Min.Y, p.Crop.Dx(), p.Crop.Dy(),
		p.Dst.Min.X, p.Dst.Min.Y, p.Dst.Dx(), p.Dst.Dy(),
	}
	for i, v := range vals {
		w[i] = uint32(v) //nolint:gosec // geometry is validated non-negative
	}
	return w
}

// DecodeBlendParams is the inverse of BlendParams.Words.
func DecodeBlendParams(w []uint32) (BlendParams, error) {
	if len(w) < blendParamWords {
		return BlendParams{}, fmt.Errorf("%w: %d parameter words, want %d", ErrArgs, len(w), blendParamWords)
	}
	v := func(i int) int { return int(w[i]) }
	return BlendParams{
		Format:       pixel.Format(v(0)),
		TargetWidth:  v(1),
		TargetHeight: v(2),
		Offsets:      [2]int{v(3), v(5)},
		Strides:      [2]int{v(4), v(6)},
		SrcWidth:     v(7),
		SrcHeight:    v(8),
		SrcStride:    v(9) * 4,
		Crop:         image.Rect(v(10), v(11), v(10)+v(12), v(11)+v(13)),
		Dst:          image.Rect(v(14), v(15), v(14)+v(16), v(15)+v(17)),
	}, nil
}

// Global returns the invocation grid of the overlay kernel for p.
func (p BlendParams) Global() [2]int {
	return [2]int{p.Dst.Dx(), p.Dst.Dy()}
}

// Rows is the band of the invocation grid a software workgroup covers.
type Rows struct {
	Start, End, Total int
}

// KernelFunc executes a kernel over a band of invocation rows on the CPU.
type KernelFunc func(args []Arg, rows Rows) error

// overlayBlend is the CPU rendition of shaders/overlay.wgsl.
func overlayBlend(args []Arg, rows Rows) error {
	if len(args) != len(OverlayLayout) || args[1].Mem == nil || args[2].Mem == nil {
		return fmt.Errorf("%w: overlay kernel takes params, source, target", ErrArgs)
	}
	p, err := DecodeBlendParams(args[0].Words)
	if err != nil {
		return err
	}
	if p.Dst.Empty() || p.Crop.Empty() {
		return nil
	}
	src := args[1].Mem.Host()
	if !p.Crop.In(image.Rect(0, 0, p.SrcWidth, p.SrcHeight)) || len(src) < p.SrcStride*p.SrcHeight {
		return fmt.Errorf("%w: crop %v outside %dx%d source", ErrArgs, p.Crop, p.SrcWidth, p.SrcHeight)
	}
	fr := &pixel.Frame{
		Format:  p.Format,
		Width:   p.TargetWidth,
		Height:  p.TargetHeight,
		Offsets: p.Offsets[:p.Format.Planes()],
		Strides: p.Strides[:p.Format.Planes()],
		Data:    args[2].Mem.Host(),
	}
	if err := fr.Check(); err != nil {
		return fmt.Errorf("%w: %w", ErrArgs, err)
	}

	// Band edges are rounded to even frame rows so YUV chroma blocks are
	// owned by exactly one band.
	y0 := p.Dst.Min.Y + rows.Start
	if rows.Start > 0 {
		y0 = (y0 + 1) &^ 1
	}
	y1 := p.Dst.Min.Y + rows.End
	if rows.End < rows.Total {
		y1 = (y1 + 1) &^ 1
	}
	sample := pixel.NearestSampler(src, p.SrcStride, p.Crop, p.Dst.Dx(), p.Dst.Dy())
	pixel.BlendRows(fr, p.Dst, y0, y1, sample)
	return nil
}

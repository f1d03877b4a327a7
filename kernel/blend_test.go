// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	"bytes"
	"image"
	"testing"

	"github.com/gogpu/overlay/internal/pixel"
)

func TestBlendParamsWordsRoundTrip(t *testing.T) {
	p := BlendParams{
		Format:      pixel.FormatNV21,
		TargetWidth: 640, TargetHeight: 480,
		Offsets:  [2]int{0, 640 * 480},
		Strides:  [2]int{640, 640},
		SrcWidth: 64, SrcHeight: 32, SrcStride: 256,
		Crop: image.Rect(2, 2, 34, 18),
		Dst:  image.Rect(11, 13, 111, 63),
	}
	words := p.Words()
	if len(words) != blendParamWords {
		t.Fatalf("len(Words()) = %d, want %d", len(words), blendParamWords)
	}
	got, err := DecodeBlendParams(words)
	if err != nil {
		t.Fatal(err)
	}
	if got != p {
		t.Errorf("DecodeBlendParams(Words()) = %+v, want %+v", got, p)
	}
	if _, err := DecodeBlendParams(words[:3]); err == nil {
		t.Error("short parameter block accepted")
	}
}

// gradientSurface returns a w x h RGBA surface with varying colour and alpha.
func gradientSurface(w, h int) []byte {
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			pix[i+0] = uint8(x * 255 / w)
			pix[i+1] = uint8(y * 255 / h)
			pix[i+2] = 128
			pix[i+3] = uint8(64 + (x+y)%192)
		}
	}
	return pix
}

func TestSoftwareOverlayKernelMatchesReference(t *testing.T) {
	tests := []struct {
		name   string
		format pixel.Format
		dst    image.Rectangle
	}{
		{"nv12 odd origin", pixel.FormatNV12, image.Rect(7, 13, 107, 63)},
		{"nv21 clipped", pixel.FormatNV21, image.Rect(100, 100, 200, 180)},
		{"rgba", pixel.FormatRGBA8888, image.Rect(3, 5, 40, 60)},
		{"bgra", pixel.FormatBGRA8888, image.Rect(0, 0, 128, 96)},
	}
	const sw, sh = 48, 24
	src := gradientSurface(sw, sh)
	crop := image.Rect(4, 2, 44, 22)

	p := NewPool(NewSoftwareDevice(WithWorkers(4)))
	inst := acquire(t, p, "", "")
	defer func() { _ = inst.Release() }()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pixel.NewFrame(tt.format, 160, 120)
			want := pixel.NewFrame(tt.format, 160, 120)
			for i := range got.Data {
				got.Data[i] = uint8(i % 251)
			}
			copy(want.Data, got.Data)

			params := BlendParams{
				Format: tt.format, TargetWidth: 160, TargetHeight: 120,
				SrcWidth: sw, SrcHeight: sh, SrcStride: sw * 4,
				Crop: crop, Dst: tt.dst,
			}
			copy(params.Offsets[:], got.Offsets)
			copy(params.Strides[:], got.Strides)

			srcMem, err := p.MapBuffer(src, AccessRead)
			if err != nil {
				t.Fatal(err)
			}
			dstMem, err := p.MapBuffer(got.Data, AccessReadWrite)
			if err != nil {
				t.Fatal(err)
			}
			if err := inst.SetArgs(WordsArg(params.Words()...), MemArg(srcMem), MemArg(dstMem)); err != nil {
				t.Fatal(err)
			}
			if err := inst.Dispatch(params.Global(), true); err != nil {
				t.Fatalf("Dispatch: %v", err)
			}

			pixel.Blend(want, tt.dst, pixel.NearestSampler(src, sw*4, crop, tt.dst.Dx(), tt.dst.Dy()))
			if !bytes.Equal(got.Data, want.Data) {
				t.Error("kernel output differs from single-pass reference blend")
			}
		})
	}
}

func TestOverlayKernelRejectsBadCrop(t *testing.T) {
	p := NewPool(NewSoftwareDevice())
	inst := acquire(t, p, "", "")
	defer func() { _ = inst.Release() }()

	fr := pixel.NewFrame(pixel.FormatRGBA8888, 8, 8)
	params := BlendParams{
		Format: pixel.FormatRGBA8888, TargetWidth: 8, TargetHeight: 8,
		Strides:  [2]int{32},
		SrcWidth: 4, SrcHeight: 4, SrcStride: 16,
		Crop: image.Rect(0, 0, 8, 8),
		Dst:  image.Rect(0, 0, 8, 8),
	}
	srcMem, _ := p.MapBuffer(make([]byte, 64), AccessRead)
	dstMem, _ := p.MapBuffer(fr.Data, AccessReadWrite)
	_ = inst.SetArgs(WordsArg(params.Words()...), MemArg(srcMem), MemArg(dstMem))
	if err := inst.Dispatch(params.Global(), true); err == nil {
		t.Error("crop outside the source was accepted")
	}
}

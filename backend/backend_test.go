// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package backend

import (
	"context"
	"errors"
	"image"
	"slices"
	"testing"
)

type stubBackend struct{ format PixelFormat }

func (s *stubBackend) Name() string                                { return "stub" }
func (s *stubBackend) Format() PixelFormat                         { return s.format }
func (s *stubBackend) Bind(Source) (Binding, error)                { return Binding{ID: 1}, nil }
func (s *stubBackend) Unbind(Binding) error                        { return nil }
func (s *stubBackend) BindTarget(*TargetBuffer) error              { return nil }
func (s *stubBackend) UnbindTarget() error                         { return nil }
func (s *stubBackend) Composite(context.Context, []DrawInfo) error { return nil }
func (s *stubBackend) Close() error                                { return nil }

func TestRegistry(t *testing.T) {
	const name = "stub-registry"
	Register(name, func(cfg Config) (Backend, error) {
		return &stubBackend{format: cfg.Format}, nil
	})
	defer Unregister(name)

	if !IsRegistered(name) {
		t.Fatal("IsRegistered() = false after Register")
	}
	if !slices.Contains(Available(), name) {
		t.Errorf("Available() = %v, missing %q", Available(), name)
	}

	b, err := New(name, Config{Format: FormatNV21})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.Format() != FormatNV21 {
		t.Errorf("Format() = %v, want NV21", b.Format())
	}

	Unregister(name)
	if _, err := New(name, Config{}); !errors.Is(err, ErrBackendNotAvailable) {
		t.Errorf("New after Unregister = %v, want ErrBackendNotAvailable", err)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	const name = "stub-failing"
	boom := errors.New("no device")
	Register(name, func(Config) (Backend, error) { return nil, boom })
	defer Unregister(name)

	if _, err := New(name, Config{}); !errors.Is(err, boom) {
		t.Errorf("New() = %v, want factory error", err)
	}
}

func TestTargetBufferValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(tb *TargetBuffer)
	}{
		{"zero handle", func(tb *TargetBuffer) { tb.Handle = 0 }},
		{"zero width", func(tb *TargetBuffer) { tb.Width = 0 }},
		{"zero height", func(tb *TargetBuffer) { tb.Height = 0 }},
		{"zero size", func(tb *TargetBuffer) { tb.Size = 0 }},
		{"size beyond data", func(tb *TargetBuffer) { tb.Size = len(tb.Data) + 1 }},
		{"truncated chroma", func(tb *TargetBuffer) { tb.Size = tb.Offsets[1] }},
		{"bad format", func(tb *TargetBuffer) { tb.Format = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := NewTargetBuffer(FormatNV12, 64, 48, 7)
			tt.mutate(tb)
			if err := tb.Validate(); !errors.Is(err, ErrInvalidBuffer) {
				t.Errorf("Validate() = %v, want ErrInvalidBuffer", err)
			}
		})
	}

	var nilBuf *TargetBuffer
	if err := nilBuf.Validate(); !errors.Is(err, ErrInvalidBuffer) {
		t.Errorf("nil Validate() = %v, want ErrInvalidBuffer", err)
	}
}

func TestTargetBufferValidateFillsLayout(t *testing.T) {
	tb := NewTargetBuffer(FormatRGBA8888, 10, 10, 1)
	tb.Offsets, tb.Strides = nil, nil
	if err := tb.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(tb.Strides) != 1 || tb.Strides[0] != 40 {
		t.Errorf("Strides = %v, want [40]", tb.Strides)
	}
}

func TestDrawInfoSrcRect(t *testing.T) {
	d := DrawInfo{Binding: Binding{ID: 3, Width: 64, Height: 32}}
	if got := d.SrcRect(); got != (Rect{Width: 64, Height: 32}) {
		t.Errorf("SrcRect() = %v, want full surface", got)
	}
	crop := Rect{X: 4, Y: 4, Width: 8, Height: 8}
	d.Src = &crop
	if got := d.SrcRect(); got != crop {
		t.Errorf("SrcRect() = %v, want %v", got, crop)
	}
}

func TestRectConversions(t *testing.T) {
	r := Rect{X: 10, Y: 20, Width: 30, Height: 40}
	ir := r.Image()
	if ir != image.Rect(10, 20, 40, 60) {
		t.Errorf("Image() = %v", ir)
	}
	if RectFrom(ir) != r {
		t.Errorf("RectFrom(Image()) = %v, want %v", RectFrom(ir), r)
	}
	if !(Rect{Width: 0, Height: 5}).Empty() {
		t.Error("zero-width rect should be empty")
	}
}

func TestDrawInfoClip(t *testing.T) {
	d := DrawInfo{
		Binding: Binding{ID: 1, Width: 100, Height: 50},
		Dst:     Rect{X: -100, Y: 0, Width: 200, Height: 100},
	}
	got, ok := d.Clip(640, 480)
	if !ok {
		t.Fatal("Clip() reported nothing visible")
	}
	if got.Dst != (Rect{X: 0, Y: 0, Width: 100, Height: 100}) {
		t.Errorf("Dst = %v", got.Dst)
	}
	if got.SrcRect() != (Rect{X: 50, Y: 0, Width: 50, Height: 50}) {
		t.Errorf("Src = %v, want right half of the surface", got.SrcRect())
	}

	inside := DrawInfo{Binding: Binding{ID: 1, Width: 10, Height: 10}, Dst: Rect{X: 5, Y: 5, Width: 10, Height: 10}}
	if got, ok := inside.Clip(640, 480); !ok || got.Src != nil {
		t.Errorf("Clip() of a visible draw = %+v, %v; want unchanged", got, ok)
	}

	outside := DrawInfo{Binding: Binding{ID: 1, Width: 10, Height: 10}, Dst: Rect{X: 700, Y: 5, Width: 10, Height: 10}}
	if _, ok := outside.Clip(640, 480); ok {
		t.Error("Clip() of an off-target draw reported visible")
	}
}

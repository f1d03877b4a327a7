// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package compute

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/pixel"
	"github.com/gogpu/overlay/kernel"
)

type testSource struct {
	w, h   int
	handle uint64
	pix    []byte
}

func (s *testSource) Width() int     { return s.w }
func (s *testSource) Height() int    { return s.h }
func (s *testSource) Stride() int    { return s.w * 4 }
func (s *testSource) Handle() uint64 { return s.handle }
func (s *testSource) Pixels() []byte { return s.pix }

func newSolidSource(w, h int, handle uint64, r, g, b, a uint8) *testSource {
	pix := make([]byte, w*h*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = r, g, b, a
	}
	return &testSource{w: w, h: h, handle: handle, pix: pix}
}

func newTestBackend(t *testing.T, pool *kernel.Pool, format backend.PixelFormat) *Backend {
	t.Helper()
	b, err := New(pool, format, "", "")
	if err != nil {
		if errors.Is(err, kernel.ErrCompile) {
			t.Skipf("Skipping: naga cannot compile the overlay kernel: %v", err)
		}
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestNewErrors(t *testing.T) {
	if _, err := New(nil, backend.FormatNV12, "", ""); !errors.Is(err, ErrNoPool) {
		t.Errorf("New(nil pool) = %v, want ErrNoPool", err)
	}
	pool := kernel.NewPool(kernel.NewSoftwareDevice())
	if _, err := New(pool, 0, "", ""); !errors.Is(err, backend.ErrUnsupportedFormat) {
		t.Errorf("New(unknown format) = %v, want ErrUnsupportedFormat", err)
	}
	if pool.Refs() != 0 {
		t.Errorf("Refs() = %d after failed New, want 0", pool.Refs())
	}
}

func TestRegisteredAsCompute(t *testing.T) {
	if !backend.IsRegistered(backend.NameCompute) {
		t.Fatal("compute backend not registered")
	}
}

func TestPoolReferences(t *testing.T) {
	pool := kernel.NewPool(kernel.NewSoftwareDevice())
	b := newTestBackend(t, pool, backend.FormatRGBA8888)

	src := newSolidSource(8, 8, 1, 255, 0, 0, 255)
	bd, err := b.Bind(src)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if pool.Refs() != 2 {
		t.Errorf("Refs() = %d with one binding, want 2", pool.Refs())
	}
	if _, err := b.Bind(src); !errors.Is(err, backend.ErrAlreadyBound) {
		t.Errorf("second Bind = %v, want ErrAlreadyBound", err)
	}
	if err := b.Unbind(bd); err != nil {
		t.Fatalf("Unbind: %v", err)
	}
	if err := b.Unbind(bd); !errors.Is(err, backend.ErrNotBound) {
		t.Errorf("second Unbind = %v, want ErrNotBound", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if pool.Refs() != 0 || pool.Live() {
		t.Errorf("after Close: Refs=%d Live=%v, want 0/false", pool.Refs(), pool.Live())
	}
}

func TestBindRejectsShortBuffer(t *testing.T) {
	b := newTestBackend(t, kernel.NewPool(kernel.NewSoftwareDevice()), backend.FormatRGBA8888)
	src := &testSource{w: 8, h: 8, handle: 1, pix: make([]byte, 10)}
	if _, err := b.Bind(src); !errors.Is(err, backend.ErrBind) {
		t.Errorf("Bind(short buffer) = %v, want ErrBind", err)
	}
}

func TestCompositeMatchesBlit(t *testing.T) {
	tests := []struct {
		name   string
		format backend.PixelFormat
	}{
		{"rgba", backend.FormatRGBA8888},
		{"nv12", backend.FormatNV12},
		{"nv21", backend.FormatNV21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newTestBackend(t, kernel.NewPool(kernel.NewSoftwareDevice()), tt.format)
			src := newSolidSource(16, 16, 1, 40, 200, 90, 200)
			bd, err := b.Bind(src)
			if err != nil {
				t.Fatalf("Bind: %v", err)
			}

			tb := backend.NewTargetBuffer(tt.format, 64, 48, 9)
			if err := b.BindTarget(tb); err != nil {
				t.Fatalf("BindTarget: %v", err)
			}
			dst := backend.Rect{X: 10, Y: 6, Width: 16, Height: 16}
			err = b.Composite(context.Background(), []backend.DrawInfo{{Binding: bd, Dst: dst}})
			if err != nil {
				t.Fatalf("Composite: %v", err)
			}

			want := pixel.NewFrame(tt.format, 64, 48)
			pixel.Blend(want, dst.Image(), pixel.NearestSampler(src.pix, src.Stride(), dst.Image().Sub(dst.Image().Min), 16, 16))
			for i := range want.Data {
				if want.Data[i] != tb.Data[i] {
					t.Fatalf("byte %d = %d, want %d", i, tb.Data[i], want.Data[i])
				}
			}
		})
	}
}

func TestCompositeClipsToTarget(t *testing.T) {
	b := newTestBackend(t, kernel.NewPool(kernel.NewSoftwareDevice()), backend.FormatRGBA8888)
	bd, err := b.Bind(newSolidSource(8, 8, 1, 255, 255, 255, 255))
	if err != nil {
		t.Fatal(err)
	}
	tb := backend.NewTargetBuffer(backend.FormatRGBA8888, 16, 16, 2)
	if err := b.BindTarget(tb); err != nil {
		t.Fatal(err)
	}
	list := []backend.DrawInfo{
		{Binding: bd, Dst: backend.Rect{X: -4, Y: -4, Width: 8, Height: 8}},
		{Binding: bd, Dst: backend.Rect{X: 40, Y: 40, Width: 8, Height: 8}},
	}
	if err := b.Composite(context.Background(), list); err != nil {
		t.Fatalf("Composite: %v", err)
	}
	if tb.Data[0] != 255 {
		t.Errorf("top-left pixel = %v, want white", tb.Data[:4])
	}
	if i := (5*16 + 5) * 4; tb.Data[i] != 0 {
		t.Errorf("pixel (5,5) = %v, want untouched", tb.Data[i:i+4])
	}
}

func TestCompositeErrors(t *testing.T) {
	b := newTestBackend(t, kernel.NewPool(kernel.NewSoftwareDevice()), backend.FormatNV12)
	if err := b.Composite(context.Background(), nil); !errors.Is(err, backend.ErrNotBound) {
		t.Errorf("Composite without target = %v, want ErrNotBound", err)
	}
	if err := b.BindTarget(backend.NewTargetBuffer(backend.FormatRGBA8888, 8, 8, 1)); !errors.Is(err, backend.ErrInvalidBuffer) {
		t.Errorf("BindTarget(RGB on YUV) = %v, want ErrInvalidBuffer", err)
	}
	if err := b.BindTarget(backend.NewTargetBuffer(backend.FormatNV21, 8, 8, 1)); err != nil {
		t.Fatalf("BindTarget: %v", err)
	}
	stale := backend.Binding{ID: 99, Width: 4, Height: 4}
	err := b.Composite(context.Background(), []backend.DrawInfo{{Binding: stale, Dst: backend.Rect{Width: 4, Height: 4}}})
	if !errors.Is(err, backend.ErrNotBound) {
		t.Errorf("Composite(stale binding) = %v, want ErrNotBound", err)
	}
}

func TestCompositeDeviceLost(t *testing.T) {
	dev := kernel.NewSoftwareDevice()
	b := newTestBackend(t, kernel.NewPool(dev), backend.FormatRGBA8888)
	bd, err := b.Bind(newSolidSource(4, 4, 1, 1, 2, 3, 255))
	if err != nil {
		t.Fatal(err)
	}
	if err := b.BindTarget(backend.NewTargetBuffer(backend.FormatRGBA8888, 8, 8, 2)); err != nil {
		t.Fatal(err)
	}
	dev.Lose()
	err = b.Composite(context.Background(), []backend.DrawInfo{{Binding: bd, Dst: backend.Rect{Width: 4, Height: 4}}})
	if !errors.Is(err, kernel.ErrDeviceLost) {
		t.Errorf("Composite on a lost device = %v, want ErrDeviceLost", err)
	}
}

func TestCompositeExpiryLeavesNothingRunning(t *testing.T) {
	dev := kernel.NewSoftwareDevice(kernel.WithWorkers(1))
	var groups atomic.Int32
	dev.RegisterKernel(kernel.DefaultEntry, func([]kernel.Arg, kernel.Rows) error {
		groups.Add(1)
		time.Sleep(2 * time.Millisecond)
		return nil
	})
	b := newTestBackend(t, kernel.NewPool(dev), backend.FormatRGBA8888)
	if err := b.BindTarget(backend.NewTargetBuffer(backend.FormatRGBA8888, 64, 64, 100)); err != nil {
		t.Fatal(err)
	}
	var list []backend.DrawInfo
	for h := range uint64(4) {
		bd, err := b.Bind(newSolidSource(16, 64, h+1, 255, 0, 0, 255))
		if err != nil {
			t.Fatal(err)
		}
		list = append(list, backend.DrawInfo{Binding: bd, Dst: backend.Rect{X: int(h) * 16, Width: 16, Height: 64}})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := b.Composite(ctx, list); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Composite = %v, want DeadlineExceeded", err)
	}
	n := groups.Load()
	time.Sleep(30 * time.Millisecond)
	if got := groups.Load(); got != n {
		t.Errorf("kernel kept running after Composite returned: %d -> %d workgroups", n, got)
	}
	if n >= 4*8 {
		t.Errorf("all %d workgroups ran before the deadline took effect", n)
	}

	if err := b.Composite(context.Background(), list[:1]); err != nil {
		t.Errorf("Composite after expiry: %v", err)
	}
}

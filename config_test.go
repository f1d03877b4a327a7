// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"bytes"
	"reflect"
	"testing"
	"time"
)

func TestCloneDeepCopies(t *testing.T) {
	cfg := Config{
		Kind: KindGraph,
		Dst:  Rect{Width: 100, Height: 100},
		Graph: &GraphParams{
			Points: []Point{{X: 1, Y: 2}, {X: 3, Y: 4}},
			Chains: []Chain{{From: 0, To: 1}},
		},
	}
	got := cfg.clone()
	if !reflect.DeepEqual(got, cfg) {
		t.Fatalf("clone() = %+v, want %+v", got, cfg)
	}
	cfg.Graph.Points[0].X = 99
	if got.Graph.Points[0].X != 1 {
		t.Error("clone shares the points slice")
	}
}

func TestCloneImageBlob(t *testing.T) {
	const w, h = 1920, 1080
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = byte(i)
	}
	cfg := Config{
		Kind:  KindStaticImage,
		Dst:   Rect{Width: w, Height: h},
		Image: &ImageParams{Width: w, Height: h, Pixels: pix, Crop: Rect{X: 10, Width: 20, Height: 20}},
	}

	start := time.Now()
	got := cfg.clone()
	// A per-byte reflective copy of a full-HD frame takes over a second.
	if d := time.Since(start); d > 250*time.Millisecond {
		t.Errorf("clone() of a %dx%d image took %v", w, h, d)
	}

	if got.Image == cfg.Image {
		t.Fatal("clone shares the image params")
	}
	if got.Image.Crop != cfg.Image.Crop || got.Image.Width != w || got.Image.Height != h {
		t.Errorf("image params = %+v", *got.Image)
	}
	if !bytes.Equal(got.Image.Pixels, pix) {
		t.Fatal("pixels differ after clone")
	}
	pix[0]++
	if got.Image.Pixels[0] == pix[0] {
		t.Error("clone shares the pixel buffer")
	}
	if cfg.Image.Pixels == nil {
		t.Error("clone cleared the caller's pixels")
	}
}

func TestCloneKeepsEmptyPixels(t *testing.T) {
	cfg := Config{Kind: KindStaticImage, Image: &ImageParams{Pixels: []byte{}}}
	if got := cfg.clone(); !reflect.DeepEqual(got, cfg) {
		t.Errorf("clone() = %+v, want %+v", got, cfg)
	}
	cfg.Image.Pixels = nil
	if got := cfg.clone(); got.Image.Pixels != nil {
		t.Errorf("clone() of nil pixels = %v, want nil", got.Image.Pixels)
	}
}

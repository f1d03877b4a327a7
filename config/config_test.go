// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"golang.org/x/image/bmp"

	"github.com/gogpu/overlay"
)

const sampleYAML = `
engine:
  backend: compute
  format: nv21
  min_stroke: 3
  composite_timeout: 500ms
overlays:
  - kind: bbox
    color: "#00ff00"
    label: car
    dst: {x: 10, y: 10, width: 100, height: 50}
  - kind: mask
    color: "0x000000C0"
    dst: {x: 0, y: 0, width: 64, height: 64}
    mask:
      shape: inverse-circle
      circle: {x: 32, y: 32, radius: 20}
  - kind: graph
    color: "#ff0000ff"
    dst: {x: 100, y: 100, width: 80, height: 80}
    graph:
      points: [[0, 0], [40, 40], [79, 10]]
      chains: [[0, 1], [1, 2]]
  - kind: clock
    dst: {x: 500, y: 8, width: 128, height: 32}
    clock: {date: "02.01.2006", time: "15:04:05"}
`

const sampleTOML = `
[engine]
backend = "compute"
format = "nv21"
min_stroke = 3
composite_timeout = "500ms"

[[overlays]]
kind = "bbox"
color = "#00ff00"
label = "car"
dst = { x = 10, y = 10, width = 100, height = 50 }

[[overlays]]
kind = "mask"
color = "0x000000C0"
dst = { x = 0, y = 0, width = 64, height = 64 }
mask = { shape = "inverse-circle", circle = { x = 32, y = 32, radius = 20 } }

[[overlays]]
kind = "graph"
color = "#ff0000ff"
dst = { x = 100, y = 100, width = 80, height = 80 }
graph = { points = [[0, 0], [40, 40], [79, 10]], chains = [[0, 1], [1, 2]] }

[[overlays]]
kind = "clock"
dst = { x = 500, y = 8, width = 128, height = 32 }
clock = { date = "02.01.2006", time = "15:04:05" }
`

func TestYAMLAndTOMLAgree(t *testing.T) {
	y, err := Parse([]byte(sampleYAML), "yaml")
	if err != nil {
		t.Fatalf("Parse(yaml): %v", err)
	}
	tm, err := Parse([]byte(sampleTOML), "toml")
	if err != nil {
		t.Fatalf("Parse(toml): %v", err)
	}
	if !reflect.DeepEqual(y, tm) {
		t.Fatalf("yaml = %+v\ntoml = %+v", y, tm)
	}

	cfgs, err := y.Configs()
	if err != nil {
		t.Fatalf("Configs: %v", err)
	}
	want := []overlay.Config{
		{Kind: overlay.KindBoundingBox, Color: 0x00FF00FF, Label: "car", Dst: overlay.Rect{X: 10, Y: 10, Width: 100, Height: 50}},
		{Kind: overlay.KindPrivacyMask, Color: 0x000000C0, Dst: overlay.Rect{Width: 64, Height: 64},
			Mask: &overlay.MaskParams{Shape: overlay.MaskInverseCircle, Circle: overlay.Circle{X: 32, Y: 32, Radius: 20}}},
		{Kind: overlay.KindGraph, Color: 0xFF0000FF, Dst: overlay.Rect{X: 100, Y: 100, Width: 80, Height: 80},
			Graph: &overlay.GraphParams{
				Points: []overlay.Point{{X: 0, Y: 0}, {X: 40, Y: 40}, {X: 79, Y: 10}},
				Chains: []overlay.Chain{{From: 0, To: 1}, {From: 1, To: 2}},
			}},
		{Kind: overlay.KindClock, Color: 0xFFFFFFFF, Dst: overlay.Rect{X: 500, Y: 8, Width: 128, Height: 32},
			Clock: &overlay.ClockParams{DateFormat: "02.01.2006", TimeFormat: "15:04:05"}},
	}
	if !reflect.DeepEqual(cfgs, want) {
		t.Errorf("Configs() = %+v\nwant %+v", cfgs, want)
	}
	for i := range cfgs {
		if err := cfgs[i].Validate(); err != nil {
			t.Errorf("config %d invalid: %v", i, err)
		}
	}
}

func TestEngineSettings(t *testing.T) {
	f, err := Parse([]byte(sampleYAML), "yml")
	if err != nil {
		t.Fatal(err)
	}
	format, err := f.Engine.PixelFormat()
	if err != nil || format != overlay.FormatNV21 {
		t.Errorf("PixelFormat() = %v, %v; want NV21", format, err)
	}
	opts, err := f.Engine.Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if len(opts) != 3 {
		t.Errorf("len(Options()) = %d, want 3", len(opts))
	}

	bad := Engine{CompositeTimeout: "soon"}
	if _, err := bad.Options(); !errors.Is(err, ErrValue) {
		t.Errorf("Options(bad timeout) = %v, want ErrValue", err)
	}
	if _, err := (&Engine{Format: "yuyv"}).PixelFormat(); !errors.Is(err, ErrValue) {
		t.Errorf("PixelFormat(yuyv) = %v, want ErrValue", err)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		format string
		want   error
	}{
		{"unknown yaml key", "overlays:\n  - kind: bbox\n    colour: red\n", "yaml", ErrSyntax},
		{"unknown toml key", "[engine]\nbackends = \"blit\"\n", "toml", ErrSyntax},
		{"broken toml", "[engine\n", "toml", ErrSyntax},
		{"json", "{}", "json", ErrFileType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); !errors.Is(err, tt.want) {
				t.Errorf("Parse() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseColor(t *testing.T) {
	tests := []struct {
		in      string
		want    overlay.Color
		wantErr bool
	}{
		{"#ff0000", 0xFF0000FF, false},
		{"#11223344", 0x11223344, false},
		{"0x00FF0080", 0x00FF0080, false},
		{" #abcdef ", 0xABCDEFFF, false},
		{"red", 0, true},
		{"#12345", 0, true},
		{"#gg0000", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseColor(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseColor(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseColor(%q) = %#08x, want %#08x", tt.in, got, tt.want)
			}
		})
	}
}

func testImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(2, 1, color.NRGBA{B: 255, A: 255})
	return img
}

func TestDecodeImage(t *testing.T) {
	var pngBuf, bmpBuf bytes.Buffer
	if err := png.Encode(&pngBuf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := bmp.Encode(&bmpBuf, testImage()); err != nil {
		t.Fatal(err)
	}

	for name, data := range map[string][]byte{"png": pngBuf.Bytes(), "bmp": bmpBuf.Bytes()} {
		t.Run(name, func(t *testing.T) {
			p, err := DecodeImage(data)
			if err != nil {
				t.Fatalf("DecodeImage: %v", err)
			}
			if p.Width != 3 || p.Height != 2 || len(p.Pixels) != 3*2*4 {
				t.Fatalf("image = %dx%d with %d bytes", p.Width, p.Height, len(p.Pixels))
			}
			if p.Pixels[0] != 255 || p.Pixels[3] != 255 {
				t.Errorf("pixel (0,0) = %v, want opaque red", p.Pixels[:4])
			}
			if last := p.Pixels[len(p.Pixels)-4:]; last[2] != 255 {
				t.Errorf("pixel (2,1) = %v, want blue", last)
			}
		})
	}

	if _, err := DecodeImage([]byte("plain text, not an image")); !errors.Is(err, ErrImageType) {
		t.Errorf("DecodeImage(text) = %v, want ErrImageType", err)
	}
}

func TestLoadResolvesImagePaths(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "logo.png"), buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgFile := filepath.Join(dir, "overlays.toml")
	content := `
[[overlays]]
kind = "image"
dst = { x = 0, y = 0, width = 30, height = 20 }
image = { path = "logo.png", crop = { x = 1, y = 0, width = 2, height = 2 } }
`
	if err := os.WriteFile(cfgFile, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	f, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfgs, err := f.Configs()
	if err != nil {
		t.Fatalf("Configs: %v", err)
	}
	im := cfgs[0].Image
	if im == nil || im.Width != 3 || im.Crop != (overlay.Rect{X: 1, Width: 2, Height: 2}) {
		t.Fatalf("image params = %+v", im)
	}
	if err := cfgs[0].Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load of a missing file succeeded")
	}
}

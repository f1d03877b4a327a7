// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gogpu/overlay"
	"github.com/gogpu/overlay/config"
	"github.com/gogpu/overlay/internal/pixel"
)

type renderOptions struct {
	configFile string
	backend    string
	format     string
	width      int
	height     int
	frames     int
	out        string
}

// demoConfigs is the overlay list used without a config file.
func demoConfigs(w, h int) []overlay.Config {
	return []overlay.Config{
		{Kind: overlay.KindClock, Color: 0xFFFFFFFF, Dst: overlay.Rect{X: 16, Y: 16, Width: 288, Height: 72}},
		{Kind: overlay.KindText, Color: 0xFFFF00FF, Dst: overlay.Rect{X: 16, Y: h - 96, Width: 480, Height: 80},
			Text: "overlaydemo\nsynthetic frame"},
		{Kind: overlay.KindBoundingBox, Color: 0x00FF00FF, Dst: overlay.Rect{X: w / 3, Y: h / 3, Width: w / 4, Height: h / 4},
			Label: "car"},
		{Kind: overlay.KindPrivacyMask, Color: 0x202020FF, Dst: overlay.Rect{X: w - 240, Y: 16, Width: 224, Height: 160},
			Mask: &overlay.MaskParams{Shape: overlay.MaskCircle, Circle: overlay.Circle{X: 112, Y: 80, Radius: 70}}},
		{Kind: overlay.KindGraph, Color: 0xFF4040FF, Dst: overlay.Rect{X: w / 2, Y: h / 2, Width: 320, Height: 200},
			Graph: &overlay.GraphParams{
				Points: []overlay.Point{{X: 0, Y: 180}, {X: 80, Y: 120}, {X: 160, Y: 150}, {X: 240, Y: 40}, {X: 319, Y: 60}},
				Chains: []overlay.Chain{{From: 0, To: 1}, {From: 1, To: 2}, {From: 2, To: 3}, {From: 3, To: 4}},
			}},
	}
}

func render(ctx context.Context, o renderOptions, w io.Writer) error {
	if o.width <= 0 || o.height <= 0 || o.frames <= 0 {
		return fmt.Errorf("invalid frame %dx%d x%d", o.width, o.height, o.frames)
	}

	var (
		opts []overlay.Option
		cfgs = demoConfigs(o.width, o.height)
		file = &config.File{}
	)
	if o.configFile != "" {
		f, err := config.Load(o.configFile)
		if err != nil {
			return err
		}
		if cfgs, err = f.Configs(); err != nil {
			return err
		}
		if opts, err = f.Engine.Options(); err != nil {
			return err
		}
		file = f
	}
	if o.backend != "" {
		opts = append(opts, overlay.WithBackend(o.backend))
	}
	if o.format != "" {
		file.Engine.Format = o.format
	}
	format, err := file.Engine.PixelFormat()
	if err != nil {
		return err
	}

	e := overlay.New(opts...)
	if err := e.Init(format); err != nil {
		return err
	}
	defer e.Close()

	if err := e.ProcessOverlayItems(cfgs); err != nil {
		return err
	}
	for _, h := range e.Handles() {
		// Static images start disabled.
		if err := e.EnableOverlayItem(h); err != nil {
			return err
		}
	}

	tb := overlay.NewTargetBuffer(format, o.width, o.height, 1)
	start := time.Now()
	for i := 0; i < o.frames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		fillBackground(tb)
		if err := e.ApplyOverlay(tb); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	elapsed := time.Since(start)

	out, err := os.Create(o.out)
	if err != nil {
		return err
	}
	if err := png.Encode(out, pixel.ToNRGBA(tb.Frame())); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s backend, %d items, %d frames of %s (%v/frame), wrote %s\n",
		e.BackendName(), e.Len(), o.frames, humanize.Bytes(uint64(tb.Size)),
		(elapsed / time.Duration(o.frames)).Round(time.Microsecond), o.out)
	return nil
}

// fillBackground paints a vertical gray ramp standing in for camera content.
func fillBackground(tb *overlay.TargetBuffer) {
	h := tb.Height
	pixel.Blend(tb.Frame(), image.Rect(0, 0, tb.Width, h), func(_, y int) (r, g, b, a uint8) {
		v := uint8(40 + 160*y/h)
		return v, v, v, 0xff
	})
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"bytes"
	"image"
	"time"

	"github.com/gogpu/overlay/backend"
)

// imageItem shows a caller-supplied RGBA blob. The blob is copied into the
// canvas once and redrawn only when it is replaced.
type imageItem struct {
	base
	surf *surface
}

func (it *imageItem) init() error {
	im := it.cfg.Image
	s, err := newSurface(it.env, im.Width, im.Height)
	if err != nil {
		return err
	}
	it.surf = s
	return nil
}

func (it *imageItem) updateAndDraw(time.Time) error {
	if !it.stale {
		return nil
	}
	im := it.cfg.Image
	src := &image.NRGBA{
		Pix:    im.Pixels[:im.Width*im.Height*4],
		Stride: im.Width * 4,
		Rect:   image.Rect(0, 0, im.Width, im.Height),
	}
	if err := it.surf.cv.CopyImage(src); err != nil {
		return err
	}
	it.stale = false
	return nil
}

func (it *imageItem) crop() *Rect {
	c := it.cfg.Image.Crop
	if c == (Rect{}) {
		return nil
	}
	return &c
}

func (it *imageItem) drawInfo(tw, th int) []backend.DrawInfo {
	if di, ok := it.surf.info(it.cfg.Dst, it.crop(), tw, th); ok {
		return []backend.DrawInfo{di}
	}
	return nil
}

func (it *imageItem) updateParams(cfg Config) error {
	old, im := it.cfg.Image, cfg.Image
	s, err := reshape(it.env, it.surf, im.Width, im.Height)
	if err != nil {
		return err
	}
	if s != it.surf || !bytes.Equal(old.Pixels, im.Pixels) {
		it.stale = true
	}
	retire(it.surf, s)
	it.surf, it.cfg = s, cfg
	return nil
}

func (it *imageItem) destroy() error {
	err := it.surf.release()
	it.surf = nil
	return err
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/overlay/backend"
)

// maskSize is the side of the privacy mask canvas. Masks are flat colour,
// so a small canvas scaled onto the destination loses nothing visible.
const maskSize = 256

type maskItem struct {
	base
	surf *surface
}

func (it *maskItem) init() error {
	s, err := newSurface(it.env, maskSize, maskSize)
	if err != nil {
		return err
	}
	it.surf = s
	return nil
}

func (it *maskItem) updateAndDraw(time.Time) error {
	if !it.stale {
		return nil
	}
	m := it.cfg.Mask
	dst := it.cfg.Dst
	sx := float64(maskSize) / float64(dst.Width)
	sy := float64(maskSize) / float64(dst.Height)

	err := it.surf.draw(func(dc *gg.Context) error {
		setColor(dc, it.cfg.Color)
		if m.Shape.inverse() {
			dc.SetFillRule(gg.FillRuleEvenOdd)
			dc.DrawRectangle(0, 0, maskSize, maskSize)
		}
		if m.Shape.circular() {
			c := m.Circle
			dc.DrawEllipse(float64(c.X)*sx, float64(c.Y)*sy, float64(c.Radius)*sx, float64(c.Radius)*sy)
		} else {
			r := m.Rect
			if r.Empty() {
				r = Rect{Width: dst.Width, Height: dst.Height}
			}
			dc.DrawRectangle(float64(r.X)*sx, float64(r.Y)*sy, float64(r.Width)*sx, float64(r.Height)*sy)
		}
		return dc.Fill()
	})
	if err != nil {
		return err
	}
	it.stale = false
	return nil
}

func (it *maskItem) drawInfo(tw, th int) []backend.DrawInfo {
	if di, ok := it.surf.info(it.cfg.Dst, nil, tw, th); ok {
		return []backend.DrawInfo{di}
	}
	return nil
}

func (it *maskItem) updateParams(cfg Config) error {
	old := it.cfg
	// Geometry is relative to the destination, so a resize changes the
	// scaled shape even when the mask params are equal.
	if cfg.Color != old.Color || *cfg.Mask != *old.Mask ||
		cfg.Dst.Width != old.Dst.Width || cfg.Dst.Height != old.Dst.Height {
		it.stale = true
	}
	it.cfg = cfg
	return nil
}

func (it *maskItem) destroy() error {
	err := it.surf.release()
	it.surf = nil
	return err
}

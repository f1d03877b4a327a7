// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/overlay/backend"
)

// The clock canvas has a fixed size so glyphs keep their resolution at
// any destination size.
const (
	clockWidth  = 384
	clockHeight = 96
)

type clockItem struct {
	base
	surf     *surface
	lastSec  int64
	drawnAny bool
}

func (it *clockItem) init() error {
	s, err := newSurface(it.env, clockWidth, clockHeight)
	if err != nil {
		return err
	}
	it.surf = s
	return nil
}

// updateAndDraw redraws when the second changed since the last draw.
func (it *clockItem) updateAndDraw(now time.Time) error {
	if it.drawnAny && now.Unix() != it.lastSec {
		it.stale = true
	}
	if !it.stale {
		return nil
	}
	date, clock := it.cfg.clockLayouts()
	lines := [2]string{now.Format(date), now.Format(clock)}

	face := it.env.fonts.Face(clockHeight / 2 * 0.75)
	err := it.surf.draw(func(dc *gg.Context) error {
		dc.SetFont(face)
		setColor(dc, it.cfg.Color)
		m := face.Metrics()
		lineH := float64(clockHeight) / 2
		for i, s := range lines {
			baseline := float64(i)*lineH + (lineH+m.Ascent-m.Descent)/2
			dc.DrawString(s, 4, baseline)
		}
		return nil
	})
	if err != nil {
		return err
	}
	it.lastSec = now.Unix()
	it.drawnAny = true
	it.stale = false
	return nil
}

func (it *clockItem) drawInfo(tw, th int) []backend.DrawInfo {
	if di, ok := it.surf.info(it.cfg.Dst, nil, tw, th); ok {
		return []backend.DrawInfo{di}
	}
	return nil
}

func (it *clockItem) updateParams(cfg Config) error {
	oldDate, oldTime := it.cfg.clockLayouts()
	newDate, newTime := cfg.clockLayouts()
	if cfg.Color != it.cfg.Color || oldDate != newDate || oldTime != newTime {
		it.stale = true
	}
	it.cfg = cfg
	return nil
}

func (it *clockItem) destroy() error {
	err := it.surf.release()
	it.surf = nil
	return err
}

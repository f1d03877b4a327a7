// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"slices"
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/overlay/backend"
)

const (
	graphDownscale = 4
	minGraphCanvas = 16
	graphDotRadius = 1.5
	graphLineWidth = 1.0
)

type graphItem struct {
	base
	surf *surface
}

func graphCanvasSize(dst Rect) (w, h int) {
	return max(minGraphCanvas, ceilDiv(dst.Width, graphDownscale)),
		max(minGraphCanvas, ceilDiv(dst.Height, graphDownscale))
}

func (it *graphItem) init() error {
	w, h := graphCanvasSize(it.cfg.Dst)
	s, err := newSurface(it.env, w, h)
	if err != nil {
		return err
	}
	it.surf = s
	return nil
}

func (it *graphItem) updateAndDraw(time.Time) error {
	if !it.stale {
		return nil
	}
	g := it.cfg.Graph
	dst := it.cfg.Dst
	sx := float64(it.surf.width()) / float64(dst.Width)
	sy := float64(it.surf.height()) / float64(dst.Height)
	at := func(p Point) (float64, float64) { return float64(p.X) * sx, float64(p.Y) * sy }

	err := it.surf.draw(func(dc *gg.Context) error {
		setColor(dc, it.cfg.Color)
		if len(g.Chains) > 0 {
			dc.SetLineWidth(graphLineWidth)
			for _, ch := range g.Chains {
				x0, y0 := at(g.Points[ch.From])
				x1, y1 := at(g.Points[ch.To])
				dc.DrawLine(x0, y0, x1, y1)
			}
			if err := dc.Stroke(); err != nil {
				return err
			}
		}
		for _, p := range g.Points {
			x, y := at(p)
			dc.DrawCircle(x, y, graphDotRadius)
		}
		return dc.Fill()
	})
	if err != nil {
		return err
	}
	it.stale = false
	return nil
}

func (it *graphItem) drawInfo(tw, th int) []backend.DrawInfo {
	if di, ok := it.surf.info(it.cfg.Dst, nil, tw, th); ok {
		return []backend.DrawInfo{di}
	}
	return nil
}

func (it *graphItem) updateParams(cfg Config) error {
	w, h := graphCanvasSize(cfg.Dst)
	s, err := reshape(it.env, it.surf, w, h)
	if err != nil {
		return err
	}
	old := it.cfg
	if s != it.surf || cfg.Color != old.Color || cfg.Dst.Width != old.Dst.Width || cfg.Dst.Height != old.Dst.Height ||
		!slices.Equal(cfg.Graph.Points, old.Graph.Points) || !slices.Equal(cfg.Graph.Chains, old.Graph.Chains) {
		it.stale = true
	}
	retire(it.surf, s)
	it.surf, it.cfg = s, cfg
	return nil
}

func (it *graphItem) destroy() error {
	err := it.surf.release()
	it.surf = nil
	return err
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"errors"
	"math"
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/overlay/backend"
)

const (
	boxAlign     = 16
	minBoxCanvas = 32
	// boxDownscale is the ratio of destination to box canvas size.
	boxDownscale = 4
	// boxStroke is the nominal stroke width in destination pixels.
	boxStroke = 4.0

	labelHeight   = 40
	labelFontSize = 28
	labelPadding  = 4
)

// bboxItem draws a stroked box and an optional label in a second canvas.
type bboxItem struct {
	base
	box   *surface
	label *surface
}

func boxCanvasSize(dst Rect) (w, h int) {
	return max(minBoxCanvas, alignUp(dst.Width/boxDownscale, boxAlign)),
		max(minBoxCanvas, alignUp(dst.Height/boxDownscale, boxAlign))
}

func (it *bboxItem) strokeWidth(cfg *Config, canvasW int) float64 {
	return max(it.env.minStroke, math.Round(boxStroke*float64(canvasW)/float64(cfg.Dst.Width)))
}

func (it *bboxItem) labelCanvasWidth(label string) int {
	adv := it.env.fonts.Face(labelFontSize).Advance(label)
	return max(boxAlign, alignUp(int(math.Ceil(adv))+2*labelPadding, boxAlign))
}

func (it *bboxItem) init() error {
	w, h := boxCanvasSize(it.cfg.Dst)
	box, err := newSurface(it.env, w, h)
	if err != nil {
		return err
	}
	if it.cfg.Label != "" {
		label, err := newSurface(it.env, it.labelCanvasWidth(it.cfg.Label), labelHeight)
		if err != nil {
			_ = box.release()
			return err
		}
		it.label = label
	}
	it.box = box
	return nil
}

func (it *bboxItem) updateAndDraw(time.Time) error {
	if !it.stale {
		return nil
	}
	sw := it.strokeWidth(&it.cfg, it.box.width())
	err := it.box.draw(func(dc *gg.Context) error {
		setColor(dc, it.cfg.Color)
		dc.SetLineWidth(sw)
		dc.DrawRectangle(sw/2, sw/2, float64(it.box.width())-sw, float64(it.box.height())-sw)
		return dc.Stroke()
	})
	if err != nil {
		return err
	}
	if it.label != nil {
		if err := it.drawLabel(); err != nil {
			return err
		}
	}
	it.stale = false
	return nil
}

// drawLabel fills the label canvas with the box colour and writes the
// label in black or white, whichever contrasts.
func (it *bboxItem) drawLabel() error {
	face := it.env.fonts.Face(labelFontSize)
	return it.label.draw(func(dc *gg.Context) error {
		setColor(dc, it.cfg.Color)
		dc.DrawRectangle(0, 0, float64(it.label.width()), labelHeight)
		if err := dc.Fill(); err != nil {
			return err
		}
		r, g, b, _ := it.cfg.Color.NRGBA()
		if 299*int(r)+587*int(g)+114*int(b) > 128*1000 {
			dc.SetRGBA(0, 0, 0, 1)
		} else {
			dc.SetRGBA(1, 1, 1, 1)
		}
		dc.SetFont(face)
		m := face.Metrics()
		dc.DrawString(it.cfg.Label, labelPadding, (labelHeight+m.Ascent-m.Descent)/2)
		return nil
	})
}

// labelDst places the label at the box's top-left corner, shrunk with the
// box when the box is lower than a label.
func (it *bboxItem) labelDst() Rect {
	dst := it.cfg.Dst
	h := min(labelHeight, dst.Height)
	return Rect{X: dst.X, Y: dst.Y, Width: max(1, it.label.width()*h/labelHeight), Height: h}
}

func (it *bboxItem) drawInfo(tw, th int) []backend.DrawInfo {
	list := make([]backend.DrawInfo, 0, 2)
	if it.label != nil {
		if di, ok := it.label.info(it.labelDst(), nil, tw, th); ok {
			list = append(list, di)
		}
	}
	if di, ok := it.box.info(it.cfg.Dst, nil, tw, th); ok {
		list = append(list, di)
	}
	return list
}

func (it *bboxItem) updateParams(cfg Config) error {
	w, h := boxCanvasSize(cfg.Dst)
	box, err := reshape(it.env, it.box, w, h)
	if err != nil {
		return err
	}
	var label *surface
	if cfg.Label != "" {
		label, err = reshape(it.env, it.label, it.labelCanvasWidth(cfg.Label), labelHeight)
		if err != nil {
			retire(box, it.box)
			return err
		}
	}

	if box != it.box || label != it.label || cfg.Color != it.cfg.Color || cfg.Label != it.cfg.Label ||
		it.strokeWidth(&cfg, w) != it.strokeWidth(&it.cfg, it.box.width()) {
		it.stale = true
	}
	retire(it.box, box)
	retire(it.label, label)
	it.box, it.label, it.cfg = box, label, cfg
	return nil
}

func (it *bboxItem) destroy() error {
	err := errors.Join(it.label.release(), it.box.release())
	it.box, it.label = nil, nil
	return err
}

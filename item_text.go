// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"math"
	"strings"
	"time"

	"github.com/gogpu/gg"
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/facecache"
)

const (
	textAlign = 16

	// minTextGlyphs is the number of em-widths a text canvas always fits.
	minTextGlyphs = 4
)

type textItem struct {
	base
	surf  *surface
	lines []string
}

// textFaceSize is the font size for n lines on a canvas h pixels high.
func textFaceSize(h, n int) float64 {
	return float64(h) / float64(max(n, 1)) * 0.75
}

// textCanvasSize returns the canvas for lines of text at dst. The width is
// never below minTextGlyphs em-widths of the face the lines are drawn with.
func textCanvasSize(fonts *facecache.Cache, dst Rect, lines int) (w, h int) {
	h = alignUp(dst.Height, textAlign)
	em := fonts.Face(textFaceSize(h, lines)).Advance("M")
	minW := alignUp(int(math.Ceil(em*minTextGlyphs)), textAlign)
	return max(minW, alignUp(dst.Width, textAlign)), h
}

// splitLines normalizes s to NFC and splits it on line breaks.
func splitLines(s string) []string {
	s = norm.NFC.String(strings.ReplaceAll(s, "\r\n", "\n"))
	return strings.Split(s, "\n")
}

func (it *textItem) init() error {
	it.lines = splitLines(it.cfg.Text)
	w, h := textCanvasSize(it.env.fonts, it.cfg.Dst, len(it.lines))
	s, err := newSurface(it.env, w, h)
	if err != nil {
		return err
	}
	it.surf = s
	return nil
}

func (it *textItem) updateAndDraw(time.Time) error {
	if !it.stale {
		return nil
	}
	lineH := float64(it.surf.height()) / float64(len(it.lines))
	face := it.env.fonts.Face(textFaceSize(it.surf.height(), len(it.lines)))
	err := it.surf.draw(func(dc *gg.Context) error {
		dc.SetFont(face)
		setColor(dc, it.cfg.Color)
		m := face.Metrics()
		for i, line := range it.lines {
			if line == "" {
				continue
			}
			baseline := float64(i)*lineH + (lineH+m.Ascent-m.Descent)/2
			dc.DrawString(line, 0, baseline)
		}
		return nil
	})
	if err != nil {
		return err
	}
	it.stale = false
	return nil
}

func (it *textItem) drawInfo(tw, th int) []backend.DrawInfo {
	if di, ok := it.surf.info(it.cfg.Dst, nil, tw, th); ok {
		return []backend.DrawInfo{di}
	}
	return nil
}

func (it *textItem) updateParams(cfg Config) error {
	lines := splitLines(cfg.Text)
	w, h := textCanvasSize(it.env.fonts, cfg.Dst, len(lines))
	s, err := reshape(it.env, it.surf, w, h)
	if err != nil {
		return err
	}
	if s != it.surf {
		retire(it.surf, s)
		it.surf = s
		it.stale = true
	}
	if cfg.Color != it.cfg.Color || cfg.Text != it.cfg.Text {
		it.stale = true
	}
	it.cfg = cfg
	it.lines = lines
	return nil
}

func (it *textItem) destroy() error {
	err := it.surf.release()
	it.surf = nil
	return err
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gg"

	"github.com/gogpu/overlay/alloc"
	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/canvas"
	"github.com/gogpu/overlay/internal/facecache"
)

// item is implemented by the six overlay kinds.
type item interface {
	// init allocates and binds the item's canvases.
	init() error

	// updateAndDraw redraws the canvases when the item is dirty.
	updateAndDraw(now time.Time) error

	// drawInfo returns one entry per visible canvas, in drawing order.
	drawInfo(targetW, targetH int) []backend.DrawInfo

	// params returns the current config. The caller must not modify it.
	params() *Config

	// updateParams applies cfg, which has been validated and has the
	// item's kind.
	updateParams(cfg Config) error

	dirty() bool

	destroy() error
}

// env carries what items need from their engine.
type env struct {
	alloc     *alloc.Allocator
	backend   backend.Backend
	fonts     *facecache.Cache
	minStroke float64
}

// newItem builds the item for cfg.Kind without allocating anything.
func newItem(e *env, cfg Config) item {
	b := base{env: e, cfg: cfg, stale: true}
	switch cfg.Kind {
	case KindClock:
		return &clockItem{base: b}
	case KindText:
		return &textItem{base: b}
	case KindBoundingBox:
		return &bboxItem{base: b}
	case KindPrivacyMask:
		return &maskItem{base: b}
	case KindStaticImage:
		return &imageItem{base: b}
	case KindGraph:
		return &graphItem{base: b}
	}
	return nil
}

// base holds the state shared by every kind.
type base struct {
	env   *env
	cfg   Config
	stale bool
}

func (b *base) params() *Config { return &b.cfg }

func (b *base) dirty() bool { return b.stale }

// surface is a canvas bound to the engine's backend. It is released
// exactly once.
type surface struct {
	cv *canvas.Canvas
	bd backend.Binding
	be backend.Backend
}

func newSurface(e *env, width, height int) (*surface, error) {
	cv, err := canvas.New(e.alloc, width, height)
	if err != nil {
		return nil, fmt.Errorf("%w: canvas %dx%d: %w", ErrAllocation, width, height, err)
	}
	bd, err := e.backend.Bind(cv)
	if err != nil {
		if cerr := cv.Close(); cerr != nil {
			slogger().Warn("overlay: close canvas after failed bind", "err", cerr)
		}
		return nil, fmt.Errorf("%w: %w", ErrAllocation, err)
	}
	slogger().Debug("overlay: surface created", "width", width, "height", height, "binding", bd.ID)
	return &surface{cv: cv, bd: bd, be: e.backend}, nil
}

func (s *surface) width() int  { return s.cv.Width() }
func (s *surface) height() int { return s.cv.Height() }

func (s *surface) sameSize(width, height int) bool {
	return s != nil && s.cv.Width() == width && s.cv.Height() == height
}

func (s *surface) draw(fn func(dc *gg.Context) error) error {
	return s.cv.Draw(fn)
}

// info places the whole surface, or crop of it, at dst.
func (s *surface) info(dst Rect, crop *Rect, targetW, targetH int) (backend.DrawInfo, bool) {
	return backend.DrawInfo{Binding: s.bd, Dst: dst, Src: crop}.Clip(targetW, targetH)
}

func (s *surface) release() error {
	if s == nil {
		return nil
	}
	return errors.Join(s.be.Unbind(s.bd), s.cv.Close())
}

// reshape returns a surface of the given size: s itself when it already
// has that size, a new surface otherwise. s is never released here, so a
// failed update can keep it.
func reshape(e *env, s *surface, width, height int) (*surface, error) {
	if s.sameSize(width, height) {
		return s, nil
	}
	return newSurface(e, width, height)
}

// retire releases old once cur has replaced it.
func retire(old, cur *surface) {
	if old == nil || old == cur {
		return
	}
	if err := old.release(); err != nil {
		slogger().Warn("overlay: release replaced surface", "err", err)
	}
}

func alignUp(v, align int) int {
	return (v + align - 1) / align * align
}

func ceilDiv(v, d int) int {
	return (v + d - 1) / d
}

// setColor makes c the current colour of dc.
func setColor(dc *gg.Context, c Color) {
	dc.SetRGBA(c.Float())
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package facecache keeps sized font faces for overlay text rendering.
//
// Faces are cheap to create but every item redraw asks for one, and
// bounding box labels are re-measured on each update. The cache keeps the
// most recently used sizes and evicts the oldest quarter once the soft
// limit is exceeded.
package facecache

import (
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/goregular"
)

// DefaultLimit is the soft limit used by New when limit is zero.
const DefaultLimit = 32

// Cache maps a font size to a text.Face of one font source.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	source    *text.FontSource
	entries   map[int]*entry
	softLimit int
	tick      int64
}

type entry struct {
	face  text.Face
	atime int64
}

// New returns a cache of faces from source.
func New(source *text.FontSource, limit int) *Cache {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Cache{
		source:    source,
		entries:   make(map[int]*entry),
		softLimit: limit,
	}
}

// NewDefault returns a cache over the embedded Go Regular font.
func NewDefault() (*Cache, error) {
	src, err := text.NewFontSource(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("facecache: load default font: %w", err)
	}
	return New(src, 0), nil
}

// NewFromFile returns a cache over the TrueType or OpenType font at path.
func NewFromFile(path string) (*Cache, error) {
	src, err := text.NewFontSourceFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("facecache: load %s: %w", path, err)
	}
	return New(src, 0), nil
}

// key quantizes size to half points.
func key(size float64) int { return int(math.Round(size * 2)) }

// Face returns the face for size, creating it on first use.
func (c *Cache) Face(size float64) text.Face {
	if size <= 0 {
		size = 1
	}
	k := key(size)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	if e, ok := c.entries[k]; ok {
		e.atime = c.tick
		return e.face
	}
	e := &entry{face: c.source.Face(float64(k) / 2), atime: c.tick}
	c.entries[k] = e
	if len(c.entries) > c.softLimit {
		c.evictOldest()
	}
	return e.face
}

// Len returns the number of cached faces.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Source returns the font source of the cache.
func (c *Cache) Source() *text.FontSource { return c.source }

// Close drops every face and closes the font source.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	return c.source.Close()
}

// evictOldest removes entries until the cache is at three quarters of the
// soft limit. Caller must hold c.mu.
func (c *Cache) evictOldest() {
	target := max(1, c.softLimit*3/4)
	for len(c.entries) > target {
		oldest, at := 0, int64(math.MaxInt64)
		for k, e := range c.entries {
			if e.atime < at {
				oldest, at = k, e.atime
			}
		}
		delete(c.entries, oldest)
	}
}

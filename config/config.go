// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package config loads overlay lists and engine settings from YAML or TOML
// files.
//
// A file has an engine section and a list of overlays:
//
//	[engine]
//	backend = "compute"
//	format = "nv12"
//
//	[[overlays]]
//	kind = "bbox"
//	color = "#00ff00"
//	label = "car"
//	dst = { x = 10, y = 10, width = 100, height = 50 }
//
// Static images reference a PNG, JPEG, WebP or BMP file relative to the
// config file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/overlay"
	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/pixel"
)

var (
	// ErrSyntax is returned for files that cannot be decoded.
	ErrSyntax = errors.New("config: syntax error")

	// ErrFileType is returned for config files with an unknown extension.
	ErrFileType = errors.New("config: unsupported file type")

	// ErrValue is returned for values that cannot be converted.
	ErrValue = errors.New("config: invalid value")
)

// File is the content of a config file.
type File struct {
	Engine   Engine `yaml:"engine" toml:"engine"`
	Overlays []Item `yaml:"overlays" toml:"overlays"`

	// dir resolves relative image paths.
	dir string
}

// Engine holds engine settings. Empty fields keep the engine defaults.
type Engine struct {
	Backend          string  `yaml:"backend" toml:"backend"`
	Format           string  `yaml:"format" toml:"format"`
	MinStroke        float64 `yaml:"min_stroke" toml:"min_stroke"`
	CompositeTimeout string  `yaml:"composite_timeout" toml:"composite_timeout"`
	KernelSource     string  `yaml:"kernel_source" toml:"kernel_source"`
	KernelEntry      string  `yaml:"kernel_entry" toml:"kernel_entry"`
	Font             string  `yaml:"font" toml:"font"`
}

// Item is one overlay entry.
type Item struct {
	Kind  string       `yaml:"kind" toml:"kind"`
	Color string       `yaml:"color" toml:"color"`
	Dst   backend.Rect `yaml:"dst" toml:"dst"`
	Text  string       `yaml:"text" toml:"text"`
	Label string       `yaml:"label" toml:"label"`
	Clock *Clock       `yaml:"clock" toml:"clock"`
	Mask  *Mask        `yaml:"mask" toml:"mask"`
	Image *Image       `yaml:"image" toml:"image"`
	Graph *Graph       `yaml:"graph" toml:"graph"`
}

// Clock holds Go time layouts.
type Clock struct {
	Date string `yaml:"date" toml:"date"`
	Time string `yaml:"time" toml:"time"`
}

// Mask describes a privacy mask relative to the item's destination.
type Mask struct {
	Shape  string       `yaml:"shape" toml:"shape"`
	Rect   backend.Rect `yaml:"rect" toml:"rect"`
	Circle struct {
		X      int `yaml:"x" toml:"x"`
		Y      int `yaml:"y" toml:"y"`
		Radius int `yaml:"radius" toml:"radius"`
	} `yaml:"circle" toml:"circle"`
}

// Image names an image file and an optional crop.
type Image struct {
	Path string       `yaml:"path" toml:"path"`
	Crop backend.Rect `yaml:"crop" toml:"crop"`
}

// Graph lists [x, y] points and [from, to] chains.
type Graph struct {
	Points [][2]int `yaml:"points" toml:"points"`
	Chains [][2]int `yaml:"chains" toml:"chains"`
}

// Load reads the YAML (.yaml, .yml) or TOML (.toml) file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	f, err := Parse(data, ext)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// Parse decodes data as "yaml", "yml" or "toml". Unknown keys are errors.
func Parse(data []byte, format string) (*File, error) {
	var f File
	switch format {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&f); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSyntax, err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrFileType, format)
	}
	f.dir = "."
	return &f, nil
}

// PixelFormat returns the configured target format, NV12 by default.
func (e *Engine) PixelFormat() (overlay.PixelFormat, error) {
	if e.Format == "" {
		return overlay.FormatNV12, nil
	}
	f, err := pixel.ParseFormat(e.Format)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrValue, err)
	}
	return f, nil
}

// Options converts the settings into engine options.
func (e *Engine) Options() ([]overlay.Option, error) {
	var opts []overlay.Option
	if e.Backend != "" {
		opts = append(opts, overlay.WithBackend(e.Backend))
	}
	if e.MinStroke > 0 {
		opts = append(opts, overlay.WithMinStrokeWidth(e.MinStroke))
	}
	if e.CompositeTimeout != "" {
		d, err := time.ParseDuration(e.CompositeTimeout)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("%w: composite_timeout %q", ErrValue, e.CompositeTimeout)
		}
		opts = append(opts, overlay.WithCompositeTimeout(d))
	}
	if e.KernelSource != "" || e.KernelEntry != "" {
		opts = append(opts, overlay.WithKernelSource(e.KernelSource, e.KernelEntry))
	}
	if e.Font != "" {
		opts = append(opts, overlay.WithFontFile(e.Font))
	}
	return opts, nil
}

// Configs converts the overlay list. Image files are loaded here.
func (f *File) Configs() ([]overlay.Config, error) {
	out := make([]overlay.Config, 0, len(f.Overlays))
	for i := range f.Overlays {
		cfg, err := f.Overlays[i].config(f.dir)
		if err != nil {
			return nil, fmt.Errorf("overlay %d: %w", i, err)
		}
		out = append(out, cfg)
	}
	return out, nil
}

func (it *Item) config(dir string) (overlay.Config, error) {
	kind, err := overlay.ParseKind(it.Kind)
	if err != nil {
		return overlay.Config{}, err
	}
	color := overlay.Color(0xFFFFFFFF)
	if it.Color != "" {
		if color, err = ParseColor(it.Color); err != nil {
			return overlay.Config{}, err
		}
	}
	cfg := overlay.Config{Kind: kind, Color: color, Dst: it.Dst, Text: it.Text, Label: it.Label}

	if it.Clock != nil {
		cfg.Clock = &overlay.ClockParams{DateFormat: it.Clock.Date, TimeFormat: it.Clock.Time}
	}
	if m := it.Mask; m != nil {
		shape := overlay.MaskRectangle
		if m.Shape != "" {
			if shape, err = overlay.ParseMaskShape(m.Shape); err != nil {
				return overlay.Config{}, err
			}
		}
		cfg.Mask = &overlay.MaskParams{
			Shape:  shape,
			Rect:   m.Rect,
			Circle: overlay.Circle{X: m.Circle.X, Y: m.Circle.Y, Radius: m.Circle.Radius},
		}
	}
	if im := it.Image; im != nil {
		path := im.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		p, err := LoadImage(path)
		if err != nil {
			return overlay.Config{}, err
		}
		p.Crop = im.Crop
		cfg.Image = p
	}
	if g := it.Graph; g != nil {
		gp := &overlay.GraphParams{}
		for _, p := range g.Points {
			gp.Points = append(gp.Points, overlay.Point{X: p[0], Y: p[1]})
		}
		for _, c := range g.Chains {
			gp.Chains = append(gp.Chains, overlay.Chain{From: c[0], To: c[1]})
		}
		cfg.Graph = gp
	}
	return cfg, nil
}

// ParseColor parses "#RRGGBB", "#RRGGBBAA" or the same digits after "0x".
// Six digits mean an opaque colour.
func ParseColor(s string) (overlay.Color, error) {
	hex := strings.TrimSpace(s)
	hex = strings.TrimPrefix(hex, "#")
	hex = strings.TrimPrefix(strings.TrimPrefix(hex, "0x"), "0X")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, fmt.Errorf("%w: colour %q", ErrValue, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: colour %q", ErrValue, s)
	}
	if len(hex) == 6 {
		v = v<<8 | 0xff
	}
	return overlay.Color(v), nil
}

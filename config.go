// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/jinzhu/copier"

	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/internal/pixel"
)

// Graph limits.
const (
	MaxGraphPoints = 20
	MaxGraphChains = 40
)

// PixelFormat is the layout of a target frame.
type PixelFormat = pixel.Format

// Target frame formats.
const (
	FormatNV12     = pixel.FormatNV12
	FormatNV21     = pixel.FormatNV21
	FormatRGBA8888 = pixel.FormatRGBA8888
	FormatBGRA8888 = pixel.FormatBGRA8888
)

// TargetBuffer describes the caller's frame for one ApplyOverlay call.
type TargetBuffer = backend.TargetBuffer

// NewTargetBuffer allocates a zeroed, tightly packed target frame.
func NewTargetBuffer(format PixelFormat, width, height int, handle uint64) *TargetBuffer {
	return backend.NewTargetBuffer(format, width, height, handle)
}

// Rect is a rectangle in pixels.
type Rect = backend.Rect

// Handle identifies an overlay item. Handles start at 1 and are never reused.
type Handle uint32

// Kind is the type of an overlay item.
type Kind int

// Overlay item kinds.
const (
	KindClock Kind = iota + 1
	KindText
	KindBoundingBox
	KindPrivacyMask
	KindStaticImage
	KindGraph
)

var kindNames = map[Kind]string{
	KindClock:       "clock",
	KindText:        "text",
	KindBoundingBox: "bbox",
	KindPrivacyMask: "mask",
	KindStaticImage: "image",
	KindGraph:       "graph",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind parses the names printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown kind %q", ErrInvalidConfig, s)
}

// Color is a packed 0xRRGGBBAA colour.
type Color uint32

// NRGBA unpacks c.
func (c Color) NRGBA() (r, g, b, a uint8) {
	return uint8(c >> 24), uint8(c >> 16), uint8(c >> 8), uint8(c)
}

// Float returns the components of c in [0, 1], for gg.Context.SetRGBA.
func (c Color) Float() (r, g, b, a float64) {
	r8, g8, b8, a8 := c.NRGBA()
	return float64(r8) / 255, float64(g8) / 255, float64(b8) / 255, float64(a8) / 255
}

// Point is a graph vertex relative to the item's destination.
type Point struct {
	X, Y int
}

// Chain connects two graph points by index.
type Chain struct {
	From, To int
}

// Circle is a circle relative to the item's destination.
type Circle struct {
	X, Y, Radius int
}

// MaskShape is the shape of a privacy mask.
type MaskShape int

// Privacy mask shapes. Inverse shapes cover everything but the shape.
const (
	MaskRectangle MaskShape = iota
	MaskCircle
	MaskInverseRectangle
	MaskInverseCircle
)

var maskNames = []string{"rectangle", "circle", "inverse-rectangle", "inverse-circle"}

func (s MaskShape) String() string {
	if s >= 0 && int(s) < len(maskNames) {
		return maskNames[s]
	}
	return fmt.Sprintf("MaskShape(%d)", int(s))
}

// ParseMaskShape parses the names printed by MaskShape.String.
func ParseMaskShape(s string) (MaskShape, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range maskNames {
		if s == name {
			return MaskShape(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mask shape %q", ErrInvalidConfig, s)
}

func (s MaskShape) inverse() bool { return s == MaskInverseRectangle || s == MaskInverseCircle }

func (s MaskShape) circular() bool { return s == MaskCircle || s == MaskInverseCircle }

// ClockParams are Go time layouts for the two clock lines.
type ClockParams struct {
	DateFormat string
	TimeFormat string
}

// Default clock layouts.
const (
	DefaultDateFormat = "2006/01/02"
	DefaultTimeFormat = "15:04:05"
)

// MaskParams describe a privacy mask. A zero Rect covers the whole
// destination.
type MaskParams struct {
	Shape  MaskShape
	Rect   Rect
	Circle Circle
}

// ImageParams carry a tightly packed RGBA8 blob. A zero Crop selects the
// whole image.
type ImageParams struct {
	Width, Height int
	Pixels        []byte
	Crop          Rect
}

// GraphParams hold graph vertices and the chains connecting them.
type GraphParams struct {
	Points []Point
	Chains []Chain
}

// Config configures one overlay item. Only the payload of Kind is used.
type Config struct {
	Kind  Kind
	Color Color
	Dst   Rect

	Clock *ClockParams
	Text  string
	Label string
	Mask  *MaskParams
	Image *ImageParams
	Graph *GraphParams
}

// Validate reports the first problem of c.
func (c *Config) Validate() error {
	if _, ok := kindNames[c.Kind]; !ok {
		return fmt.Errorf("%w: unknown kind %d", ErrInvalidConfig, int(c.Kind))
	}
	if c.Dst.Width <= 0 || c.Dst.Height <= 0 {
		return fmt.Errorf("%w: destination %v", ErrInvalidGeometry, c.Dst)
	}

	switch c.Kind {
	case KindPrivacyMask:
		if c.Mask == nil {
			return fmt.Errorf("%w: mask item without mask params", ErrInvalidConfig)
		}
		if c.Mask.Shape < MaskRectangle || c.Mask.Shape > MaskInverseCircle {
			return fmt.Errorf("%w: mask shape %d", ErrInvalidConfig, int(c.Mask.Shape))
		}
		if c.Mask.Shape.circular() && c.Mask.Circle.Radius <= 0 {
			return fmt.Errorf("%w: mask circle radius %d", ErrInvalidGeometry, c.Mask.Circle.Radius)
		}
	case KindStaticImage:
		im := c.Image
		if im == nil || im.Width <= 0 || im.Height <= 0 {
			return fmt.Errorf("%w: image item without pixels", ErrInvalidConfig)
		}
		if len(im.Pixels) < im.Width*im.Height*4 {
			return fmt.Errorf("%w: %d bytes for a %dx%d image", ErrInvalidConfig, len(im.Pixels), im.Width, im.Height)
		}
		if im.Crop != (Rect{}) {
			if im.Crop.Empty() || !im.Crop.Image().In(image.Rect(0, 0, im.Width, im.Height)) {
				return fmt.Errorf("%w: crop %v outside %dx%d image", ErrInvalidGeometry, im.Crop, im.Width, im.Height)
			}
		}
	case KindGraph:
		g := c.Graph
		if g == nil {
			return fmt.Errorf("%w: graph item without graph params", ErrInvalidConfig)
		}
		if len(g.Points) > MaxGraphPoints {
			return fmt.Errorf("%w: %d points, limit %d", ErrInvalidGeometry, len(g.Points), MaxGraphPoints)
		}
		if len(g.Chains) > MaxGraphChains {
			return fmt.Errorf("%w: %d chains, limit %d", ErrInvalidGeometry, len(g.Chains), MaxGraphChains)
		}
		for _, ch := range g.Chains {
			if ch.From < 0 || ch.To < 0 || ch.From >= len(g.Points) || ch.To >= len(g.Points) {
				return fmt.Errorf("%w: chain %v references a missing point", ErrInvalidGeometry, ch)
			}
		}
	}
	return nil
}

// clone returns a deep copy of c, so items never share caller buffers.
// The image blob is copied in one piece; copier walks slices element by
// element.
func (c *Config) clone() Config {
	src := *c
	var pixels []byte
	if c.Image != nil {
		im := *c.Image
		pixels, im.Pixels = im.Pixels, nil
		src.Image = &im
	}
	var out Config
	if err := copier.CopyWithOption(&out, &src, copier.Option{DeepCopy: true}); err != nil {
		// copier only fails for mismatched types.
		panic(fmt.Sprintf("overlay: copy config: %v", err))
	}
	if out.Image != nil {
		out.Image.Pixels = bytes.Clone(pixels)
	}
	return out
}

// clockLayouts returns the effective clock layouts of c.
func (c *Config) clockLayouts() (date, clock string) {
	date, clock = DefaultDateFormat, DefaultTimeFormat
	if c.Clock != nil {
		if c.Clock.DateFormat != "" {
			date = c.Clock.DateFormat
		}
		if c.Clock.TimeFormat != "" {
			clock = c.Clock.TimeFormat
		}
	}
	return date, clock
}

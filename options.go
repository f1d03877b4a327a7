// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"time"

	"github.com/gogpu/overlay/alloc"
	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/kernel"
)

// DefaultCompositeTimeout bounds one ApplyOverlay composite.
const DefaultCompositeTimeout = 2 * time.Second

// DefaultMinStrokeWidth is the thinnest bounding box stroke in canvas pixels.
const DefaultMinStrokeWidth = 2.0

// Option configures an Engine.
//
// Example:
//
//	e := overlay.New(
//	    overlay.WithComputeBackend(true),
//	    overlay.WithMinStrokeWidth(3),
//	)
type Option func(*options)

type options struct {
	backendName  string
	allocator    *alloc.Allocator
	pool         *kernel.Pool
	kernelSource string
	kernelEntry  string
	fontFile     string
	minStroke    float64
	timeout      time.Duration
	now          func() time.Time
}

func defaultOptions() options {
	return options{
		backendName: backend.NameBlit,
		minStroke:   DefaultMinStrokeWidth,
		timeout:     DefaultCompositeTimeout,
		now:         time.Now,
	}
}

// WithBackend selects a registered backend by name.
func WithBackend(name string) Option {
	return func(o *options) {
		o.backendName = name
	}
}

// WithComputeBackend selects the compute backend when on is true and the
// blit backend otherwise.
func WithComputeBackend(on bool) Option {
	return func(o *options) {
		if on {
			o.backendName = backend.NameCompute
		} else {
			o.backendName = backend.NameBlit
		}
	}
}

// WithAllocator sets the allocator for item canvases. By default each
// engine creates its own unlimited allocator.
func WithAllocator(a *alloc.Allocator) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithKernelPool shares a kernel pool between engines. Without it the
// compute backend uses a private pool on the software device.
func WithKernelPool(p *kernel.Pool) Option {
	return func(o *options) {
		o.pool = p
	}
}

// WithKernelSource selects the WGSL kernel file and entry point of the
// compute backend. Empty values keep the built-in kernel.
func WithKernelSource(path, entry string) Option {
	return func(o *options) {
		o.kernelSource = path
		o.kernelEntry = entry
	}
}

// WithFontFile renders text with the TrueType or OpenType font at path
// instead of Go Regular.
func WithFontFile(path string) Option {
	return func(o *options) {
		o.fontFile = path
	}
}

// WithMinStrokeWidth overrides the minimum bounding box stroke width.
func WithMinStrokeWidth(w float64) Option {
	return func(o *options) {
		if w > 0 {
			o.minStroke = w
		}
	}
}

// WithCompositeTimeout overrides the composite timeout.
func WithCompositeTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClock sets the time source of clock items.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

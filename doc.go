// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package overlay composites graphic annotations onto camera frames.
//
// # Overview
//
// An Engine owns a set of overlay items (clock, free text, bounding box,
// privacy mask, static image, graph). Each item draws into its own
// offscreen canvas through gg, and the canvases are bound to a rendering
// backend. ApplyOverlay redraws dirty items and composites every active item
// onto the caller's frame in one backend operation.
//
// # Quick Start
//
//	e := overlay.New()
//	if err := e.Init(overlay.FormatNV12); err != nil {
//	    log.Fatal(err)
//	}
//	defer e.Close()
//
//	h, err := e.CreateOverlayItem(overlay.Config{
//	    Kind:  overlay.KindBoundingBox,
//	    Color: 0x00FF00FF,
//	    Dst:   overlay.Rect{X: 10, Y: 10, Width: 100, Height: 50},
//	    Label: "car",
//	})
//
//	// once per frame
//	err = e.ApplyOverlay(target)
//
// # Backends
//
// Two interchangeable backends are registered by this package:
//   - "blit" scales and blends canvases on the CPU, the way a 2-D blitter does.
//   - "compute" dispatches the overlay kernel through a shared kernel.Pool,
//     on the software device or a wgpu HAL device.
//
// The backend is chosen once at Init with WithBackend or WithComputeBackend.
//
// # Ordering
//
// Items are composited in ascending handle order. A bounding box draws its
// label first and the box above it.
//
// # Concurrency
//
// Every Engine method takes the same mutex; calls never overlap. The only
// blocking point is the composite, bounded by the composite timeout.
package overlay

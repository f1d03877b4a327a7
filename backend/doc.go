// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package backend defines how overlay surfaces reach a target frame.
//
// A Backend binds offscreen RGBA surfaces (Source) to backend objects,
// wraps the caller's frame (TargetBuffer) for the duration of one
// composite, and blends an ordered list of DrawInfo entries onto it.
//
// # Backend Registration
//
// Backends are registered via init() functions and selected by name:
//
//	import _ "github.com/gogpu/overlay/backend/blit"
//
//	b, err := backend.New(backend.NameBlit, backend.Config{Format: backend.FormatNV12})
//
// Two implementations ship with the module: backend/blit emulates a 2-D
// blitter that scales and blends each surface, and backend/compute drives a
// kernel.Pool and dispatches one kernel instance per surface.
package backend

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package overlay

import (
	"errors"

	"github.com/gogpu/overlay/alloc"
	"github.com/gogpu/overlay/backend"
	"github.com/gogpu/overlay/kernel"
)

var (
	// ErrBackendInit is returned by Init when the backend cannot be built.
	ErrBackendInit = errors.New("overlay: backend init failed")

	// ErrAllocation is returned when an item's canvases or bindings cannot
	// be created. The cause (ErrOutOfMemory, ErrBind) is wrapped.
	ErrAllocation = errors.New("overlay: allocation failed")

	// ErrUnknownHandle is returned for handles the engine does not hold.
	ErrUnknownHandle = errors.New("overlay: unknown handle")

	// ErrInvalidGeometry is returned for empty destination rectangles,
	// crops outside the image and graphs over the point or chain limits.
	ErrInvalidGeometry = errors.New("overlay: invalid geometry")

	// ErrInvalidConfig is returned for configs missing their kind payload.
	ErrInvalidConfig = errors.New("overlay: invalid config")

	// ErrKindMismatch is returned when an update changes an item's kind.
	ErrKindMismatch = errors.New("overlay: kind cannot change")

	// ErrComposite is returned when the backend fails a composite.
	ErrComposite = errors.New("overlay: composite failed")

	// ErrCompositeTimeout is returned when a composite does not finish
	// within the composite timeout.
	ErrCompositeTimeout = errors.New("overlay: composite timeout")

	// ErrNotInitialized is returned before Init and after Close.
	ErrNotInitialized = errors.New("overlay: engine not initialized")
)

// Errors of the layers below the engine. They are wrapped, never replaced,
// so errors.Is works on any engine error.
var (
	ErrOutOfMemory     = alloc.ErrOutOfMemory
	ErrBind            = backend.ErrBind
	ErrInvalidBuffer   = backend.ErrInvalidBuffer
	ErrDispatchTimeout = kernel.ErrDispatchTimeout
	ErrDeviceLost      = kernel.ErrDeviceLost
)

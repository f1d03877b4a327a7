// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import "errors"

var (
	// ErrNoDevice is returned when a pool is created without a device.
	ErrNoDevice = errors.New("kernel: no compute device")

	// ErrCompile is returned when the kernel source cannot be compiled.
	ErrCompile = errors.New("kernel: compile failed")

	// ErrUnknownEntry is returned when a device has no kernel for an entry point.
	ErrUnknownEntry = errors.New("kernel: unknown entry point")

	// ErrProgramMismatch is returned by Acquire when the pool already holds
	// a program built from a different source or entry point.
	ErrProgramMismatch = errors.New("kernel: pool holds a different program")

	// ErrReleased is returned when a released instance is used.
	ErrReleased = errors.New("kernel: instance released")

	// ErrPoolClosed is returned when the pool has no live context.
	ErrPoolClosed = errors.New("kernel: pool not acquired")

	// ErrArgs is returned for kernel arguments that do not match the program.
	ErrArgs = errors.New("kernel: invalid arguments")

	// ErrDispatchTimeout is returned when a blocking dispatch does not
	// complete within the dispatch timeout.
	ErrDispatchTimeout = errors.New("kernel: dispatch timeout")

	// ErrCanceled is reported for launches withdrawn by Instance.Cancel.
	ErrCanceled = errors.New("kernel: launch canceled")

	// ErrDeviceLost is returned once the device context is gone. The
	// owner must rebuild its pool.
	ErrDeviceLost = errors.New("kernel: device lost")
)

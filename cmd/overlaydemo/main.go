// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Command overlaydemo composites an overlay list onto a synthetic camera
// frame and writes the result as PNG.
//
// Usage:
//
//	overlaydemo --config overlays.yaml --frames 30 --out frame.png
//
// Every flag can also be set through an OVERLAY_* environment variable,
// for example OVERLAY_BACKEND=compute.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

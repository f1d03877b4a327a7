// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package kernel

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/gogpu/naga"
)

// DefaultEntry is the entry point of the built-in overlay kernel.
const DefaultEntry = "overlay_blend"

//go:embed shaders/overlay.wgsl
var overlayWGSL string

// OverlaySource returns the WGSL text of the built-in overlay kernel.
func OverlaySource() string { return overlayWGSL }

// LoadSource reads a WGSL kernel from path. An empty path selects the
// built-in overlay kernel.
func LoadSource(path string) (string, error) {
	if path == "" {
		return overlayWGSL, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("kernel: read source: %w", err)
	}
	return string(b), nil
}

// Compile compiles WGSL source to SPIR-V words.
func Compile(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}

	// SPIR-V is little-endian 32-bit words
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package config

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"

	"github.com/gogpu/overlay"
)

// ErrImageType is returned for image files that are not PNG, JPEG, WebP
// or BMP.
var ErrImageType = errors.New("config: unsupported image type")

// LoadImage reads an image file into static image params.
func LoadImage(path string) (*overlay.ImageParams, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	p, err := DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// DecodeImage sniffs the image type from its content and decodes it into
// tightly packed non-premultiplied RGBA.
func DecodeImage(data []byte) (*overlay.ImageParams, error) {
	kind, err := filetype.Match(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrImageType, err)
	}

	r := bytes.NewReader(data)
	var img image.Image
	switch kind.Extension {
	case "png":
		img, err = png.Decode(r)
	case "jpg":
		img, err = jpeg.Decode(r)
	case "webp":
		img, err = webp.Decode(r)
	case "bmp":
		img, err = bmp.Decode(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrImageType, kind.MIME.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", kind.Extension, err)
	}

	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
	return &overlay.ImageParams{Width: b.Dx(), Height: b.Dy(), Pixels: dst.Pix}, nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

package pixel

import (
	"image"
	"image/color"
)

// Sampler returns the non-premultiplied source colour for a destination
// pixel. x and y are relative to the top-left corner of the destination
// rectangle.
type Sampler func(x, y int) (r, g, b, a uint8)

// NRGBASampler samples img, which must already be scaled to the destination size.
func NRGBASampler(img *image.NRGBA) Sampler {
	return func(x, y int) (r, g, b, a uint8) {
		i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
		p := img.Pix[i : i+4 : i+4]
		return p[0], p[1], p[2], p[3]
	}
}

// NearestSampler samples a tightly packed RGBA plane with nearest-neighbour
// scaling from crop onto a dstW x dstH rectangle.
func NearestSampler(pix []byte, stride int, crop image.Rectangle, dstW, dstH int) Sampler {
	cw, ch := crop.Dx(), crop.Dy()
	return func(x, y int) (r, g, b, a uint8) {
		sx := crop.Min.X + x*cw/dstW
		sy := crop.Min.Y + y*ch/dstH
		i := sy*stride + sx*4
		p := pix[i : i+4 : i+4]
		return p[0], p[1], p[2], p[3]
	}
}

// Blend composites sample over the dst rectangle of fr.
func Blend(fr *Frame, dst image.Rectangle, sample Sampler) {
	BlendRows(fr, dst, dst.Min.Y, dst.Max.Y, sample)
}

// BlendRows composites the rows [y0, y1) of dst, in frame coordinates.
// Concurrent callers must split rows on even boundaries so that chroma
// blocks of YUV frames are never shared.
func BlendRows(fr *Frame, dst image.Rectangle, y0, y1 int, sample Sampler) {
	clip := dst.Intersect(image.Rect(0, 0, fr.Width, fr.Height))
	y0, y1 = max(y0, clip.Min.Y), min(y1, clip.Max.Y)
	if clip.Empty() || y0 >= y1 {
		return
	}
	// Sampling stays relative to dst; only the iteration is clipped.
	at := func(x, y int) (r, g, b, a uint8) { return sample(x-dst.Min.X, y-dst.Min.Y) }
	switch fr.Format {
	case FormatNV12:
		blendYUV(fr, clip, y0, y1, at, false)
	case FormatNV21:
		blendYUV(fr, clip, y0, y1, at, true)
	case FormatRGBA8888:
		blendRGB(fr, clip, y0, y1, at, false)
	case FormatBGRA8888:
		blendRGB(fr, clip, y0, y1, at, true)
	}
}

func mix(d, s, a uint8) uint8 {
	return uint8((uint32(d)*(255-uint32(a)) + uint32(s)*uint32(a) + 127) / 255)
}

func blendRGB(fr *Frame, dst image.Rectangle, y0, y1 int, at Sampler, swap bool) {
	stride := fr.Strides[0]
	for y := y0; y < y1; y++ {
		row := fr.Data[fr.Offsets[0]+y*stride:]
		for x := dst.Min.X; x < dst.Max.X; x++ {
			r, g, b, a := at(x, y)
			if a == 0 {
				continue
			}
			if swap {
				r, b = b, r
			}
			p := row[x*4 : x*4+4 : x*4+4]
			p[0] = mix(p[0], r, a)
			p[1] = mix(p[1], g, a)
			p[2] = mix(p[2], b, a)
			p[3] = uint8(uint32(a) + uint32(p[3])*(255-uint32(a))/255)
		}
	}
}

func blendYUV(fr *Frame, dst image.Rectangle, y0, y1 int, at Sampler, vu bool) {
	ys := fr.Strides[0]
	luma := fr.Data[fr.Offsets[0]:]
	for y := y0; y < y1; y++ {
		row := luma[y*ys:]
		for x := dst.Min.X; x < dst.Max.X; x++ {
			r, g, b, a := at(x, y)
			if a == 0 {
				continue
			}
			yy, _, _ := color.RGBToYCbCr(r, g, b)
			row[x] = mix(row[x], limitedLuma(yy), a)
		}
	}

	cs := fr.Strides[1]
	chroma := fr.Data[fr.Offsets[1]:]
	for by := y0 &^ 1; by < y1; by += 2 {
		row := chroma[(by/2)*cs:]
		for bx := dst.Min.X &^ 1; bx < dst.Max.X; bx += 2 {
			var sumA, sumU, sumV uint32
			for dy := 0; dy < 2; dy++ {
				for dx := 0; dx < 2; dx++ {
					px, py := bx+dx, by+dy
					if !image.Pt(px, py).In(dst) {
						continue
					}
					r, g, b, a := at(px, py)
					if a == 0 {
						continue
					}
					_, cb, cr := color.RGBToYCbCr(r, g, b)
					sumA += uint32(a)
					sumU += uint32(limitedChroma(cb)) * uint32(a)
					sumV += uint32(limitedChroma(cr)) * uint32(a)
				}
			}
			if sumA == 0 {
				continue
			}
			u := uint8(sumU / sumA)
			v := uint8(sumV / sumA)
			a := uint8((sumA + 2) / 4)
			i := bx
			if vu {
				row[i] = mix(row[i], v, a)
				row[i+1] = mix(row[i+1], u, a)
			} else {
				row[i] = mix(row[i], u, a)
				row[i+1] = mix(row[i+1], v, a)
			}
		}
	}
}

// limitedLuma maps full-range luma to the 16..235 video range.
func limitedLuma(y uint8) uint8 {
	return uint8(16 + (uint32(y)*219+127)/255)
}

// limitedChroma maps full-range chroma to the 16..240 video range.
func limitedChroma(c uint8) uint8 {
	return uint8(16 + (uint32(c)*224+127)/255)
}

// ToNRGBA converts fr into an image for inspection and PNG output.
func ToNRGBA(fr *Frame) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, fr.Width, fr.Height))
	for y := 0; y < fr.Height; y++ {
		for x := 0; x < fr.Width; x++ {
			var c color.NRGBA
			switch fr.Format {
			case FormatRGBA8888, FormatBGRA8888:
				i := fr.Offsets[0] + y*fr.Strides[0] + x*4
				p := fr.Data[i : i+4]
				c = color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
				if fr.Format == FormatBGRA8888 {
					c.R, c.B = c.B, c.R
				}
			case FormatNV12, FormatNV21:
				yy := fr.Data[fr.Offsets[0]+y*fr.Strides[0]+x]
				ci := fr.Offsets[1] + (y/2)*fr.Strides[1] + (x&^1)
				u, v := fr.Data[ci], fr.Data[ci+1]
				if fr.Format == FormatNV21 {
					u, v = v, u
				}
				r, g, b := color.YCbCrToRGB(fullLuma(yy), fullChroma(u), fullChroma(v))
				c = color.NRGBA{R: r, G: g, B: b, A: 0xff}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func fullLuma(y uint8) uint8 {
	v := (int(y) - 16) * 255 / 219
	return uint8(max(0, min(255, v)))
}

func fullChroma(c uint8) uint8 {
	v := (int(c) - 16) * 255 / 224
	return uint8(max(0, min(255, v)))
}

// Fill sets every pixel of fr to c.
func Fill(fr *Frame, c color.NRGBA) {
	full := image.Rect(0, 0, fr.Width, fr.Height)
	Blend(fr, full, func(int, int) (uint8, uint8, uint8, uint8) {
		return c.R, c.G, c.B, 0xff
	})
}

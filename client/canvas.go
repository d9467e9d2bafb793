// Copyright (c) 2024 mStar
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package client

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
)

const bytesPerPixel = 4

// Canvas is a view of mapped XRGB8888 memory. Rows start Stride bytes
// apart; bytes between the end of a row and the next one are never touched.
type Canvas struct {
	Pix    []byte
	Width  int
	Height int
	Stride int
}

func NewCanvas(pix []byte, width, height, stride uint32) (*Canvas, error) {
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	if stride < width*bytesPerPixel {
		return nil, fmt.Errorf("%w: stride %d for width %d", ErrStrideTooSmall, stride, width)
	}
	need := uint64(height-1)*uint64(stride) + uint64(width)*bytesPerPixel
	if uint64(len(pix)) < need {
		return nil, fmt.Errorf("%w: have %d bytes, need %d", ErrShortMapping, len(pix), need)
	}
	return &Canvas{Pix: pix, Width: int(width), Height: int(height), Stride: int(stride)}, nil
}

// Fill sets every pixel to p.
func (c *Canvas) Fill(p uint32) {
	for y := 0; y < c.Height; y++ {
		row := c.Pix[y*c.Stride : y*c.Stride+c.Width*bytesPerPixel]
		for x := 0; x < len(row); x += bytesPerPixel {
			binary.NativeEndian.PutUint32(row[x:], p)
		}
	}
}

func (c *Canvas) Pixel(x, y int) uint32 {
	return binary.NativeEndian.Uint32(c.Pix[c.offset(x, y):])
}

func (c *Canvas) SetPixel(x, y int, p uint32) {
	binary.NativeEndian.PutUint32(c.Pix[c.offset(x, y):], p)
}

func (c *Canvas) offset(x, y int) int {
	return y*c.Stride + x*bytesPerPixel
}

func (c *Canvas) ColorModel() color.Model {
	return color.RGBAModel
}

func (c *Canvas) Bounds() image.Rectangle {
	return image.Rect(0, 0, c.Width, c.Height)
}

// At ignores the X byte, the pixel is always opaque.
func (c *Canvas) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(c.Bounds())) {
		return color.RGBA{}
	}
	p := c.Pixel(x, y)
	return color.RGBA{R: uint8(p >> 16), G: uint8(p >> 8), B: uint8(p), A: 0xff}
}

func (c *Canvas) Set(x, y int, col color.Color) {
	if !(image.Point{x, y}.In(c.Bounds())) {
		return
	}
	rgba := color.RGBAModel.Convert(col).(color.RGBA)
	c.SetPixel(x, y, uint32(rgba.R)<<16|uint32(rgba.G)<<8|uint32(rgba.B))
}

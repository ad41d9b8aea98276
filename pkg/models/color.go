package models

import (
	"fmt"
	"image/color"
)

// Color is a straight (non-premultiplied) RGBA color with 8 bits per channel.
type Color struct {
	R uint8
	G uint8
	B uint8
	A uint8
}

var _ color.Color = Color{}

// ColorFromRGBA decodes a packed 32-bit color laid out as 0xRRGGBBAA.
func ColorFromRGBA(packed uint32) Color {
	return Color{
		R: uint8(packed >> 24),
		G: uint8(packed >> 16),
		B: uint8(packed >> 8),
		A: uint8(packed),
	}
}

// Packed returns the color as 0xRRGGBBAA.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: c.A}.RGBA()
}

// Hex formats the color as #rrggbbaa.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalText lets colors appear as #rrggbbaa in JSON output.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

func (c Color) String() string {
	return c.Hex()
}

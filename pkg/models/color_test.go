package models

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColorFromRGBA(t *testing.T) {
	tests := []struct {
		name   string
		packed uint32
		want   Color
	}{
		{"opaque red", 0xFF0000FF, Color{R: 255, A: 255}},
		{"opaque green", 0x00FF00FF, Color{G: 255, A: 255}},
		{"translucent blue", 0x0000FF80, Color{B: 255, A: 128}},
		{"mixed", 0x12345678, Color{R: 0x12, G: 0x34, B: 0x56, A: 0x78}},
		{"zero", 0, Color{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ColorFromRGBA(tt.packed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.packed, got.Packed())
		})
	}
}

func TestColorImplementsColor(t *testing.T) {
	c := Color{R: 255, G: 0, B: 0, A: 128}
	want := color.NRGBA{R: 255, A: 128}

	r1, g1, b1, a1 := c.RGBA()
	r2, g2, b2, a2 := want.RGBA()
	assert.Equal(t, []uint32{r2, g2, b2, a2}, []uint32{r1, g1, b1, a1})
}

func TestColorHex(t *testing.T) {
	assert.Equal(t, "#ff0000ff", ColorFromRGBA(0xFF0000FF).Hex())
	assert.Equal(t, "#00000000", Color{}.String())
}

package models

import (
	"image"
)

// Image is a decoded image handle owned by the image store and shared by
// every paint that references the same URL.
type Image struct {
	URL    string
	Scale  float64
	Format string
	Width  int
	Height int
	// Frame is the first (or only) frame of the image.
	Frame image.Image
}

// Bounds returns the pixel bounds of the decoded frame.
func (img *Image) Bounds() image.Rectangle {
	if img == nil || img.Frame == nil {
		return image.Rectangle{}
	}
	return img.Frame.Bounds()
}

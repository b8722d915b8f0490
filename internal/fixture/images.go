// Package fixture generates small in-memory images and PDFs for tests.
// It depends only on the standard library so any package's tests can use it.
package fixture

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
)

// Palette of easily distinguishable fill colours.
var (
	Red   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	Green = color.RGBA{R: 30, G: 180, B: 60, A: 255}
	Blue  = color.RGBA{R: 30, G: 60, B: 220, A: 255}
	Black = color.RGBA{A: 255}
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	// A distinct corner marker keeps pages visually different even at equal colours.
	for y := 0; y < h/4; y++ {
		for x := 0; x < w/4; x++ {
			img.Set(x, y, color.White)
		}
	}
	return img
}

// PNG returns a w x h PNG filled with c.
func PNG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := png.Encode(&buf, solid(w, h, c)); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// JPEG returns a w x h baseline JPEG filled with c.
func JPEG(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, solid(w, h, c), &jpeg.Options{Quality: 90}); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// GIF returns a w x h GIF filled with c.
func GIF(w, h int, c color.Color) []byte {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, solid(w, h, c), nil); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

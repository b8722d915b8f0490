// Package imageplace computes where a raster image goes on a page:
// centered, down-scaled to fit, never up-scaled.
package imageplace

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// Default page geometry in PDF points (A4).
const (
	A4Width  = 595.28
	A4Height = 841.89
)

// Page sizes accepted by PageSize, in points.
var pageSizes = map[string][2]float64{
	"A3":     {841.89, 1190.55},
	"A4":     {A4Width, A4Height},
	"A5":     {419.53, 595.28},
	"LETTER": {612, 792},
	"LEGAL":  {612, 1008},
}

// PageSize returns the width and height for a named paper size, falling back to A4.
func PageSize(name string) (float64, float64) {
	if d, ok := pageSizes[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return d[0], d[1]
	}
	return A4Width, A4Height
}

const (
	maxDimension = 32768
	maxPixels    = 64 * 1024 * 1024
)

// Format is the closed set of raster encodings the engine can embed.
type Format int

const (
	Unsupported Format = iota
	JPEG
	PNG
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	default:
		return "unsupported"
	}
}

// ResolveFormat maps a declared mime type onto a Format.
func ResolveFormat(mimeType string) Format {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	switch mt {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return JPEG
	case "image/png":
		return PNG
	default:
		return Unsupported
	}
}

// Placement is where and how large an image is drawn on a page, in points.
type Placement struct {
	X, Y          float64
	Width, Height float64
	// Natural size of the image at 1:1 (one pixel per point).
	NaturalWidth, NaturalHeight float64
}

// Scale is the factor applied to the natural size.
func (p Placement) Scale() float64 {
	if p.NaturalWidth == 0 {
		return 0
	}
	return p.Width / p.NaturalWidth
}

// Place decodes the image header and fits it onto a pageWidth x pageHeight page.
func Place(data []byte, format Format, pageWidth, pageHeight float64) (Placement, error) {
	if format == Unsupported {
		return Placement{}, pdferr.New(pdferr.UnsupportedImageFormat, "unsupported image format, use PNG or JPG")
	}
	if pageWidth <= 0 || pageHeight <= 0 {
		return Placement{}, pdferr.New(pdferr.InvalidRequest, "invalid page size %gx%g", pageWidth, pageHeight)
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Placement{}, pdferr.Wrap(pdferr.UnsupportedImageFormat, err, "cannot decode %s image", format)
	}
	if name != format.String() {
		return Placement{}, pdferr.New(pdferr.UnsupportedImageFormat, "declared %s image decodes as %s", format, name)
	}
	if err := checkBounds(cfg.Width, cfg.Height); err != nil {
		return Placement{}, pdferr.Wrap(pdferr.UnsupportedImageFormat, err, "image rejected")
	}

	return Fit(float64(cfg.Width), float64(cfg.Height), pageWidth, pageHeight), nil
}

// Fit computes a centered placement for an image of natural size w x h.
func Fit(w, h, pageWidth, pageHeight float64) Placement {
	p := Placement{Width: w, Height: h, NaturalWidth: w, NaturalHeight: h}
	if w > pageWidth || h > pageHeight {
		scale := math.Min(pageWidth/w, pageHeight/h)
		p.Width = math.Min(w*scale, pageWidth)
		p.Height = math.Min(h*scale, pageHeight)
	}
	p.X = (pageWidth - p.Width) / 2
	p.Y = (pageHeight - p.Height) / 2
	return p
}

func checkBounds(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("image bounds invalid (%d x %d)", width, height)
	}
	if width > maxDimension || height > maxDimension {
		return fmt.Errorf("image dimension exceeds limit (%d x %d)", width, height)
	}
	if int64(width)*int64(height) > maxPixels {
		return fmt.Errorf("image pixel count %d exceeds limit %d", int64(width)*int64(height), int64(maxPixels))
	}
	return nil
}

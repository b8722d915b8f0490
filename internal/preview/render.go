// Package preview renders single PDF pages to JPEG.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"

	"github.com/gen2brain/go-fitz"
	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// ColorMode defines the color mode for rendering
type ColorMode string

const (
	ColorRGB  ColorMode = "rgb"
	ColorGray ColorMode = "gray"
)

// Defaults applied to zero Options fields.
const (
	DefaultDPI     = 72
	DefaultQuality = 85
	MaxDPI         = 300
)

// Options select page and output encoding. Page is 1-based.
type Options struct {
	Page    int
	DPI     int
	Quality int
	Color   ColorMode
}

func (o Options) withDefaults() Options {
	if o.Page <= 0 {
		o.Page = 1
	}
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.DPI > MaxDPI {
		o.DPI = MaxDPI
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	if o.Color == "" {
		o.Color = ColorRGB
	}
	return o
}

// Image is a rendered page.
type Image struct {
	JPEG          []byte
	Width, Height int
	Page          int
	TotalPages    int
}

// RenderPage renders one page of the PDF in data as JPEG.
func RenderPage(data []byte, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidSourceDocument, err, "cannot open document for preview")
	}
	defer doc.Close()

	total := doc.NumPage()
	if opts.Page > total {
		return nil, pdferr.New(pdferr.EmptySelection, "page %d out of range (document has %d pages)", opts.Page, total)
	}

	// go-fitz uses 0-based indexing
	img, err := doc.ImageDPI(opts.Page-1, float64(opts.DPI))
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidSourceDocument, err, "render page %d", opts.Page)
	}

	bounds := img.Bounds()
	var final image.Image = img
	if opts.Color == ColorGray {
		gray := image.NewGray(bounds)
		draw.Draw(gray, bounds, img, image.Point{}, draw.Src)
		final = gray
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, final, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}

	log.Debug().
		Int("page", opts.Page).
		Int("width", bounds.Dx()).
		Int("height", bounds.Dy()).
		Int("dpi", opts.DPI).
		Str("color", string(opts.Color)).
		Int("jpeg_size", buf.Len()).
		Msg("rendered page preview")

	return &Image{
		JPEG:       buf.Bytes(),
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Page:       opts.Page,
		TotalPages: total,
	}, nil
}

// Dimensions decodes the size of JPEG bytes.
func Dimensions(jpegBytes []byte) (width, height int, err error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(jpegBytes))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to decode JPEG: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

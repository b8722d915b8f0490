// Package batch turns an ordered list of images into one document with a
// page per image, skipping images it cannot embed.
package batch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/imageplace"
	"github.com/local/pdftoolkit/internal/pdferr"
)

// Image is one input of a batch.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// Skipped records an input that did not produce a page.
type Skipped struct {
	Index  int
	Name   string
	Reason string
}

// Result is a built but not yet serialized batch document.
type Result struct {
	Document *assembler.Document
	// Included holds input indices in page order.
	Included []int
	Skipped  []Skipped
}

// Pipeline places each image on its own page of the configured size.
type Pipeline struct {
	PageWidth  float64
	PageHeight float64
}

// New returns a pipeline producing A4 pages.
func New() *Pipeline {
	return &Pipeline{PageWidth: imageplace.A4Width, PageHeight: imageplace.A4Height}
}

// Run processes images in order. Unsupported images are skipped; if nothing
// remains the batch fails with EmptySelection.
func (p *Pipeline) Run(ctx context.Context, images []Image) (*Result, error) {
	if len(images) == 0 {
		return nil, pdferr.New(pdferr.InvalidRequest, "no images provided")
	}

	res := &Result{Document: assembler.Create()}
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.add(res.Document, img); err != nil {
			if !pdferr.IsKind(err, pdferr.UnsupportedImageFormat) {
				return nil, err
			}
			log.Warn().Int("index", i).Str("name", img.Name).Str("mime", img.MimeType).Err(err).Msg("batch image skipped")
			res.Skipped = append(res.Skipped, Skipped{Index: i, Name: img.Name, Reason: pdferr.Message(err)})
			continue
		}
		res.Included = append(res.Included, i)
	}

	if res.Document.PageCount() == 0 {
		return nil, pdferr.New(pdferr.EmptySelection, "none of the %d images could be used, use PNG or JPG", len(images))
	}
	return res, nil
}

// AddImage places a single image on a new page of doc.
func (p *Pipeline) AddImage(doc *assembler.Document, img Image) error {
	return p.add(doc, img)
}

func (p *Pipeline) add(doc *assembler.Document, img Image) error {
	format := imageplace.ResolveFormat(img.MimeType)
	placement, err := imageplace.Place(img.Data, format, p.PageWidth, p.PageHeight)
	if err != nil {
		return err
	}
	page, err := doc.AddBlankPage(p.PageWidth, p.PageHeight)
	if err != nil {
		return err
	}
	if err := page.DrawImage(img.Data, placement); err != nil {
		_ = page.Discard()
		return err
	}
	return nil
}

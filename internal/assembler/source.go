package assembler

import (
	"bytes"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// Source is a parsed, read-only input document.
type Source struct {
	name  string
	data  []byte
	pages int
}

// LoadSource parses and validates data. Anything pdfcpu cannot read
// (including password-protected input) is an InvalidSourceDocument.
func LoadSource(name string, data []byte) (*Source, error) {
	if len(data) == 0 {
		return nil, pdferr.New(pdferr.InvalidSourceDocument, "%s is empty", displayName(name))
	}

	ctx, err := api.ReadContext(bytes.NewReader(data), newConfig())
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidSourceDocument, err, "%s is not a readable PDF", displayName(name))
	}
	if err := api.ValidateContext(ctx); err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidSourceDocument, err, "%s is not a valid PDF", displayName(name))
	}
	if ctx.PageCount <= 0 {
		return nil, pdferr.New(pdferr.InvalidSourceDocument, "%s has no pages", displayName(name))
	}

	return &Source{name: name, data: data, pages: ctx.PageCount}, nil
}

// Name is the caller-supplied label, usually the original filename.
func (s *Source) Name() string { return s.name }

// PageCount is the number of pages in the source.
func (s *Source) PageCount() int { return s.pages }

// Size is the byte length of the raw document.
func (s *Source) Size() int { return len(s.data) }

func (s *Source) reader() io.ReadSeeker { return bytes.NewReader(s.data) }

// newConfig returns a fresh pdfcpu configuration; configurations are never shared between calls.
func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func displayName(name string) string {
	if name == "" {
		return "document"
	}
	return name
}

// Package assembler builds new PDF documents out of pages copied from
// source documents and pages carrying a single centered raster image.
//
// A Document is not safe for concurrent use; every request owns its own.
package assembler

import (
	"bytes"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/local/pdftoolkit/internal/imageplace"
	"github.com/local/pdftoolkit/internal/pagerange"
	"github.com/local/pdftoolkit/internal/pdferr"
)

// Finisher is applied to the fully assembled bytes as the last serialize step.
type Finisher interface {
	Finish(pdf []byte, pages int) ([]byte, error)
}

// SerializeOptions control how a document is written.
type SerializeOptions struct {
	// Compact rewrites through the optimizer with object streams and
	// cross-reference streams disabled.
	Compact bool
}

// part is a self-contained PDF chunk holding a run of consecutive output pages.
type part struct {
	data  []byte
	pages int
}

// Document is an in-construction output document.
type Document struct {
	parts    []part
	finisher Finisher
}

// Page is a handle to a page added with AddBlankPage.
type Page struct {
	doc           *Document
	index         int
	width, height float64
	drawn         bool
}

// Create returns an empty document.
func Create() *Document {
	return &Document{}
}

// PageCount is the number of pages appended so far.
func (d *Document) PageCount() int {
	n := 0
	for _, p := range d.parts {
		n += p.pages
	}
	return n
}

// Sealed reports whether a Finisher is installed and the page list frozen.
func (d *Document) Sealed() bool { return d.finisher != nil }

// Seal installs f and freezes the page list. A document can be sealed once.
func (d *Document) Seal(f Finisher) error {
	if f == nil {
		return pdferr.New(pdferr.InvalidRequest, "nil finisher")
	}
	if d.Sealed() {
		return pdferr.New(pdferr.InvalidRequest, "document is already sealed")
	}
	d.finisher = f
	return nil
}

func (d *Document) checkOpen() error {
	if d.Sealed() {
		return pdferr.New(pdferr.InvalidRequest, "document is sealed")
	}
	return nil
}

// AppendPages copies the pages at the given 0-based indices of src, in the
// order given, to the end of the document. Content, resources and page
// geometry come across as-is.
func (d *Document) AppendPages(src *Source, indices pagerange.IndexSet) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	if src == nil {
		return pdferr.New(pdferr.InvalidRequest, "nil source")
	}
	if len(indices) == 0 {
		return nil
	}
	for _, i := range indices {
		if i < 0 || i >= src.PageCount() {
			return pdferr.New(pdferr.InvalidRequest, "page index %d out of range for %s (%d pages)", i, displayName(src.Name()), src.PageCount())
		}
	}

	if isIdentity(indices, src.PageCount()) {
		d.parts = append(d.parts, part{data: src.data, pages: src.PageCount()})
		return nil
	}

	var buf bytes.Buffer
	if err := api.Collect(src.reader(), &buf, indices.Selectors(), newConfig()); err != nil {
		return pdferr.Wrap(pdferr.InvalidSourceDocument, err, "copy pages from %s", displayName(src.Name()))
	}
	d.parts = append(d.parts, part{data: buf.Bytes(), pages: len(indices)})
	return nil
}

// AppendAll copies every page of src in document order.
func (d *Document) AppendAll(src *Source) error {
	if src == nil {
		return pdferr.New(pdferr.InvalidRequest, "nil source")
	}
	return d.AppendPages(src, pagerange.All(src.PageCount()))
}

// AddBlankPage appends an empty width x height page and returns its handle.
func (d *Document) AddBlankPage(width, height float64) (*Page, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, pdferr.New(pdferr.InvalidRequest, "invalid page size %gx%g", width, height)
	}
	d.parts = append(d.parts, part{data: blankPagePDF(width, height), pages: 1})
	return &Page{doc: d, index: len(d.parts) - 1, width: width, height: height}, nil
}

// Discard removes the page from its document. Only the most recently added
// part can be discarded, so a failed DrawImage leaves no blank page behind.
func (p *Page) Discard() error {
	if err := p.doc.checkOpen(); err != nil {
		return err
	}
	if p.index < 0 || p.index != len(p.doc.parts)-1 {
		return pdferr.New(pdferr.InvalidRequest, "only the last added page can be discarded")
	}
	p.doc.parts = p.doc.parts[:p.index]
	p.index = -1
	return nil
}

// DrawImage places data on the page at placement. A page holds at most one image.
func (p *Page) DrawImage(data []byte, placement imageplace.Placement) error {
	if err := p.doc.checkOpen(); err != nil {
		return err
	}
	if p.index < 0 {
		return pdferr.New(pdferr.InvalidRequest, "page was discarded")
	}
	if p.drawn {
		return pdferr.New(pdferr.InvalidRequest, "page already has an image")
	}
	out, err := renderImagePage(p.width, p.height, data, placement)
	if err != nil {
		return err
	}
	p.doc.parts[p.index] = part{data: out, pages: 1}
	p.drawn = true
	return nil
}

func renderImagePage(width, height float64, data []byte, pl imageplace.Placement) ([]byte, error) {
	if len(data) == 0 {
		return nil, pdferr.New(pdferr.UnsupportedImageFormat, "empty image")
	}
	if pl.Width <= 0 || pl.Height <= 0 || pl.NaturalWidth <= 0 {
		return nil, pdferr.New(pdferr.InvalidRequest, "invalid placement %gx%g", pl.Width, pl.Height)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.PageDim = &types.Dim{Width: width, Height: height}
	imp.UserDim = true
	imp.Pos = types.BottomLeft
	imp.Dx = pl.X
	imp.Dy = pl.Y
	imp.Scale = pl.Scale()
	imp.ScaleAbs = true

	var buf bytes.Buffer
	if err := api.ImportImages(nil, &buf, []io.Reader{bytes.NewReader(data)}, imp, newConfig()); err != nil {
		return nil, pdferr.Wrap(pdferr.UnsupportedImageFormat, err, "embed image")
	}
	return buf.Bytes(), nil
}

// Serialize writes the document. An empty document is an EmptySelection.
func (d *Document) Serialize(opts SerializeOptions) ([]byte, error) {
	pages := d.PageCount()
	if pages == 0 {
		return nil, pdferr.New(pdferr.EmptySelection, "document has no pages")
	}

	out, err := d.merge()
	if err != nil {
		return nil, err
	}

	if opts.Compact {
		conf := newConfig()
		conf.WriteObjectStream = false
		conf.WriteXRefStream = false
		var buf bytes.Buffer
		if err := api.Optimize(bytes.NewReader(out), &buf, conf); err != nil {
			return nil, pdferr.Wrap(pdferr.Internal, err, "optimize document")
		}
		out = buf.Bytes()
	}

	if d.finisher != nil {
		return d.finisher.Finish(out, pages)
	}
	return out, nil
}

func (d *Document) merge() ([]byte, error) {
	if len(d.parts) == 1 {
		return d.parts[0].data, nil
	}
	rsc := make([]io.ReadSeeker, len(d.parts))
	for i, p := range d.parts {
		rsc[i] = bytes.NewReader(p.data)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rsc, &buf, false, newConfig()); err != nil {
		return nil, pdferr.Wrap(pdferr.Internal, err, "merge %d parts", len(d.parts))
	}
	return buf.Bytes(), nil
}

func isIdentity(indices pagerange.IndexSet, total int) bool {
	if len(indices) != total {
		return false
	}
	for i, v := range indices {
		if v != i {
			return false
		}
	}
	return true
}

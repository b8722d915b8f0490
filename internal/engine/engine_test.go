package engine

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftoolkit/internal/batch"
	"github.com/local/pdftoolkit/internal/fixture"
	"github.com/local/pdftoolkit/internal/pdferr"
	"github.com/local/pdftoolkit/internal/preview"
	"github.com/local/pdftoolkit/internal/textextract"
)

var fixedNow = time.UnixMilli(1700000000123)

func newEngine() *Engine {
	return New(Options{Now: func() time.Time { return fixedNow }})
}

func labelled(prefix string, n int) []byte {
	pages := make([]fixture.Page, n)
	for i := range pages {
		pages[i] = fixture.A4Page(fmt.Sprintf("%s%d", prefix, i+1))
	}
	return fixture.PDF(pages...)
}

// pageTexts returns the extracted text of each page of pdf.
func pageTexts(t *testing.T, pdf []byte) []string {
	t.Helper()
	res, err := textextract.Extract(pdf)
	require.NoError(t, err)
	out := make([]string, len(res.Pages))
	for i, p := range res.Pages {
		out[i] = p.Text
	}
	return out
}

func TestMerge(t *testing.T) {
	art, err := newEngine().Merge(context.Background(), []Input{
		{Name: "a.pdf", Data: labelled("A", 3)},
		{Name: "b.pdf", Data: labelled("B", 2)},
	})
	require.NoError(t, err)

	assert.Equal(t, "merged-1700000000123.pdf", art.Filename)
	assert.Equal(t, 5, art.Pages)
	assert.Equal(t, len(art.Data), art.Size)

	texts := pageTexts(t, art.Data)
	require.Len(t, texts, 5)
	for i, want := range []string{"A1", "A2", "A3", "B1", "B2"} {
		assert.Contains(t, texts[i], want, "page %d", i+1)
	}
}

func TestMergeValidation(t *testing.T) {
	e := newEngine()

	_, err := e.Merge(context.Background(), []Input{{Name: "a.pdf", Data: labelled("A", 1)}})
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))

	_, err = e.Merge(context.Background(), []Input{
		{Name: "a.pdf", Data: labelled("A", 1)},
		{Name: "broken.pdf", Data: []byte("%PDF-1.4 truncated")},
	})
	assert.Equal(t, pdferr.InvalidSourceDocument, pdferr.KindOf(err))
	assert.Contains(t, err.Error(), "broken.pdf")
}

func TestSplit(t *testing.T) {
	art, err := newEngine().Split(context.Background(), Input{Name: "in.pdf", Data: labelled("P", 10)}, "2,4-6")
	require.NoError(t, err)

	assert.Equal(t, "split-1700000000123.pdf", art.Filename)
	assert.Equal(t, 4, art.Pages)
	texts := pageTexts(t, art.Data)
	for i, want := range []string{"P2", "P4", "P5", "P6"} {
		assert.Contains(t, texts[i], want)
	}
}

func TestSplitEmptySelection(t *testing.T) {
	for _, expr := range []string{"5-2", "11-12", ""} {
		_, err := newEngine().Split(context.Background(), Input{Data: labelled("P", 10)}, expr)
		assert.Equal(t, pdferr.EmptySelection, pdferr.KindOf(err), expr)
	}
}

func TestCompress(t *testing.T) {
	in := labelled("C", 4)
	art, err := newEngine().Compress(context.Background(), Input{Data: in})
	require.NoError(t, err)

	assert.Equal(t, "compressed-1700000000123.pdf", art.Filename)
	assert.Equal(t, 4, art.Pages)
	n, err := api.PageCount(bytes.NewReader(art.Data), nil)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Contains(t, pageTexts(t, art.Data)[3], "C4")
	assert.NotContains(t, string(art.Data), "/ObjStm")
	assert.NotRegexp(t, `/Type\s*/XRef`, string(art.Data))
}

func TestUpload(t *testing.T) {
	art, err := newEngine().Upload(context.Background(), Input{Name: "in.pdf", Data: labelled("U", 2)})
	require.NoError(t, err)

	assert.Equal(t, OpUpload, art.Operation)
	assert.Equal(t, "upload-1700000000123.pdf", art.Filename)
	assert.Equal(t, 2, art.Pages)
	assert.Contains(t, pageTexts(t, art.Data)[1], "U2")

	_, err = newEngine().Upload(context.Background(), Input{Name: "bad.pdf", Data: []byte("not a pdf")})
	assert.Equal(t, pdferr.InvalidSourceDocument, pdferr.KindOf(err))
}

func TestEncrypt(t *testing.T) {
	art, err := newEngine().Encrypt(context.Background(), Input{Data: labelled("E", 2)}, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "encrypted-1700000000123.pdf", art.Filename)

	_, err = api.ReadContext(bytes.NewReader(art.Data), model.NewDefaultConfiguration())
	assert.Error(t, err)

	conf := model.NewDefaultConfiguration()
	conf.UserPW = "hunter2"
	n, err := api.PageCount(bytes.NewReader(art.Data), conf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = newEngine().Encrypt(context.Background(), Input{Data: labelled("E", 1)}, "")
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
}

func TestImageToPDF(t *testing.T) {
	e := newEngine()
	art, err := e.ImageToPDF(context.Background(), batch.Image{Name: "x.png", MimeType: "image/png", Data: fixture.PNG(64, 64, fixture.Green)})
	require.NoError(t, err)
	assert.Equal(t, "image-to-pdf-1700000000123.pdf", art.Filename)
	assert.Equal(t, 1, art.Pages)

	_, err = e.ImageToPDF(context.Background(), batch.Image{Name: "x.gif", MimeType: "image/gif", Data: fixture.GIF(8, 8, fixture.Red)})
	assert.Equal(t, pdferr.UnsupportedImageFormat, pdferr.KindOf(err))
}

func TestBatch(t *testing.T) {
	art, err := newEngine().Batch(context.Background(), []batch.Image{
		{Name: "a.png", MimeType: "image/png", Data: fixture.PNG(20, 20, fixture.Red)},
		{Name: "b.gif", MimeType: "image/gif", Data: fixture.GIF(20, 20, fixture.Red)},
		{Name: "c.jpg", MimeType: "image/jpeg", Data: fixture.JPEG(20, 20, fixture.Blue)},
	})
	require.NoError(t, err)
	assert.Equal(t, "batch-images-1700000000123.pdf", art.Filename)
	assert.Equal(t, 2, art.Pages)
	require.Len(t, art.Skipped, 1)
	assert.Equal(t, "b.gif", art.Skipped[0].Name)

	_, err = newEngine().Batch(context.Background(), []batch.Image{
		{Name: "b.gif", MimeType: "image/gif", Data: fixture.GIF(20, 20, fixture.Red)},
	})
	assert.Equal(t, pdferr.EmptySelection, pdferr.KindOf(err))
}

func TestExtractText(t *testing.T) {
	res, err := newEngine().ExtractText(context.Background(), Input{Data: labelled("T", 2)})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	assert.Contains(t, res.Text, "T1")
	assert.Contains(t, res.Text, "T2")
}

func TestPreview(t *testing.T) {
	img, err := newEngine().Preview(context.Background(), Input{Data: fixture.SizedPDF(100, 300)}, preview.Options{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 300, img.Width)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "batch-images-5.pdf", Filename(OpBatch, time.UnixMilli(5)))
	assert.Equal(t, "other-5.pdf", Filename("other", time.UnixMilli(5)))
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine().Compress(ctx, Input{Data: labelled("C", 1)})
	assert.ErrorIs(t, err, context.Canceled)
}

package assembler_test

import (
	"bytes"
	"image"
	"testing"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/fixture"
	"github.com/local/pdftoolkit/internal/imageplace"
	"github.com/local/pdftoolkit/internal/pagerange"
	"github.com/local/pdftoolkit/internal/pdferr"
)

func load(t *testing.T, name string, data []byte) *assembler.Source {
	t.Helper()
	src, err := assembler.LoadSource(name, data)
	require.NoError(t, err)
	return src
}

// pageBounds opens pdf with MuPDF and returns each page's bounds in points.
func pageBounds(t *testing.T, pdf []byte) []image.Rectangle {
	t.Helper()
	doc, err := fitz.NewFromMemory(pdf)
	require.NoError(t, err)
	defer doc.Close()

	out := make([]image.Rectangle, doc.NumPage())
	for i := range out {
		out[i], err = doc.Bound(i)
		require.NoError(t, err)
	}
	return out
}

func widths(t *testing.T, pdf []byte) []int {
	t.Helper()
	var w []int
	for _, b := range pageBounds(t, pdf) {
		w = append(w, b.Dx())
	}
	return w
}

func TestLoadSource(t *testing.T) {
	src := load(t, "a.pdf", fixture.NumberedPDF(3))
	assert.Equal(t, 3, src.PageCount())
	assert.Equal(t, "a.pdf", src.Name())

	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("definitely not a pdf"),
		"png bytes": fixture.PNG(4, 4, fixture.Red),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := assembler.LoadSource(name, data)
			require.Error(t, err)
			assert.Equal(t, pdferr.InvalidSourceDocument, pdferr.KindOf(err))
		})
	}
}

func TestMergeKeepsSourceOrder(t *testing.T) {
	a := load(t, "a.pdf", fixture.SizedPDF(100, 110))
	b := load(t, "b.pdf", fixture.SizedPDF(200))
	c := load(t, "c.pdf", fixture.SizedPDF(300, 310, 320))

	doc := assembler.Create()
	for _, src := range []*assembler.Source{a, b, c} {
		require.NoError(t, doc.AppendAll(src))
	}
	assert.Equal(t, 6, doc.PageCount())

	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)

	n, err := api.PageCount(bytes.NewReader(out), nil)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, []int{100, 110, 200, 300, 310, 320}, widths(t, out))
}

func TestAppendPagesSelection(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(101, 102, 103, 104, 105, 106))

	idx, err := pagerange.Parse("2,4-6", src.PageCount())
	require.NoError(t, err)

	doc := assembler.Create()
	require.NoError(t, doc.AppendPages(src, idx))
	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int{102, 104, 105, 106}, widths(t, out))
}

func TestAppendPagesPreservesGivenOrder(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(101, 102, 103))

	doc := assembler.Create()
	require.NoError(t, doc.AppendPages(src, pagerange.IndexSet{2, 0}))
	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)

	assert.Equal(t, []int{103, 101}, widths(t, out))
}

func TestAppendPagesOutOfRange(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(100))
	doc := assembler.Create()

	err := doc.AppendPages(src, pagerange.IndexSet{0, 1})
	require.Error(t, err)
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
	assert.Zero(t, doc.PageCount())
}

func TestSerializeEmptyDocument(t *testing.T) {
	_, err := assembler.Create().Serialize(assembler.SerializeOptions{})
	require.Error(t, err)
	assert.Equal(t, pdferr.EmptySelection, pdferr.KindOf(err))
}

func TestRoundTripIsStable(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(120, 130))

	doc := assembler.Create()
	require.NoError(t, doc.AppendAll(src))
	first, err := doc.Serialize(assembler.SerializeOptions{Compact: true})
	require.NoError(t, err)

	again := load(t, "first.pdf", first)
	doc2 := assembler.Create()
	require.NoError(t, doc2.AppendAll(again))
	second, err := doc2.Serialize(assembler.SerializeOptions{Compact: true})
	require.NoError(t, err)

	assert.Equal(t, again.PageCount(), load(t, "second.pdf", second).PageCount())
	assert.Equal(t, widths(t, first), widths(t, second))
}

func TestImagePage(t *testing.T) {
	img := fixture.PNG(200, 100, fixture.Red)
	p, err := imageplace.Place(img, imageplace.PNG, imageplace.A4Width, imageplace.A4Height)
	require.NoError(t, err)

	doc := assembler.Create()
	page, err := doc.AddBlankPage(imageplace.A4Width, imageplace.A4Height)
	require.NoError(t, err)
	require.NoError(t, page.DrawImage(img, p))
	assert.Error(t, page.DrawImage(img, p), "second image on the same page")

	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)

	bounds := pageBounds(t, out)
	require.Len(t, bounds, 1)
	assert.InDelta(t, imageplace.A4Width, float64(bounds[0].Dx()), 1)
	assert.InDelta(t, imageplace.A4Height, float64(bounds[0].Dy()), 1)

	// Sample the page center, which must be covered by the red image body.
	fdoc, err := fitz.NewFromMemory(out)
	require.NoError(t, err)
	defer fdoc.Close()
	rendered, err := fdoc.ImageDPI(0, 72)
	require.NoError(t, err)
	c := rendered.RGBAAt(rendered.Bounds().Dx()/2+40, rendered.Bounds().Dy()/2+20)
	assert.Greater(t, int(c.R), 150)
	assert.Less(t, int(c.G), 100)
}

func TestBlankPageOnly(t *testing.T) {
	doc := assembler.Create()
	_, err := doc.AddBlankPage(300, 400)
	require.NoError(t, err)

	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, load(t, "blank.pdf", out).PageCount())
	assert.Equal(t, []int{300}, widths(t, out))

	_, err = doc.AddBlankPage(0, 10)
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
}

func TestMixedPagesAndImages(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(150))
	img := fixture.JPEG(50, 50, fixture.Blue)
	p, err := imageplace.Place(img, imageplace.JPEG, 250, 250)
	require.NoError(t, err)

	doc := assembler.Create()
	page, err := doc.AddBlankPage(250, 250)
	require.NoError(t, err)
	require.NoError(t, page.DrawImage(img, p))
	require.NoError(t, doc.AppendAll(src))

	out, err := doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, []int{250, 150}, widths(t, out))
}

func TestDiscardAfterFailedDraw(t *testing.T) {
	p := imageplace.Fit(10, 10, 100, 100)
	doc := assembler.Create()

	first, err := doc.AddBlankPage(100, 100)
	require.NoError(t, err)
	page, err := doc.AddBlankPage(100, 100)
	require.NoError(t, err)

	require.Error(t, page.DrawImage([]byte("not an image"), p))
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(first.Discard()), "not the last page")
	require.NoError(t, page.Discard())
	assert.Equal(t, 1, doc.PageCount())

	require.NoError(t, first.Discard())
	assert.Zero(t, doc.PageCount())
}

type recorder struct{ calls int }

func (u *recorder) Finish(pdf []byte, pages int) ([]byte, error) {
	u.calls++
	return append([]byte(nil), pdf...), nil
}

func TestSealFreezesDocument(t *testing.T) {
	src := load(t, "src.pdf", fixture.SizedPDF(100))
	doc := assembler.Create()
	require.NoError(t, doc.AppendAll(src))

	f := &recorder{}
	require.NoError(t, doc.Seal(f))
	assert.True(t, doc.Sealed())
	assert.Error(t, doc.Seal(f))

	err := doc.AppendAll(src)
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))
	_, err = doc.AddBlankPage(10, 10)
	assert.Equal(t, pdferr.InvalidRequest, pdferr.KindOf(err))

	_, err = doc.Serialize(assembler.SerializeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)
}

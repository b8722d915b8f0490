package textextract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdftoolkit/internal/fixture"
	"github.com/local/pdftoolkit/internal/pdferr"
)

func TestExtractNumberedPages(t *testing.T) {
	res, err := Extract(fixture.NumberedPDF(3))
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalPages)
	require.Len(t, res.Pages, 3)
	for i, p := range res.Pages {
		assert.Contains(t, p.Text, "Page "+string(rune('1'+i)))
		assert.Empty(t, p.Err)
	}
	assert.Contains(t, res.Text, "Page 1")
	assert.Contains(t, res.Text, "Page 3")
	assert.Positive(t, res.TotalChars)
}

func TestExtractBlankDocument(t *testing.T) {
	res, err := Extract(fixture.SizedPDF(100, 200))
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalPages)
	assert.Zero(t, res.TotalChars)
}

func TestExtractInvalid(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":   nil,
		"garbage": []byte("not a pdf at all"),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Extract(data)
			assert.Equal(t, pdferr.InvalidSourceDocument, pdferr.KindOf(err))
		})
	}
}

type stubDoc struct{ pages []string }

func (d stubDoc) NumPage() int { return len(d.pages) }
func (d stubDoc) Close() error { return nil }
func (d stubDoc) Page(i int) (Page, error) {
	if d.pages[i] == "" {
		return nil, errors.New("broken page")
	}
	return stubPage(d.pages[i]), nil
}

type stubPage string

func (p stubPage) Text() (string, error) { return string(p), nil }
func (p stubPage) Close()                {}

type stubOpener struct{ doc stubDoc }

func (o stubOpener) Open([]byte) (Doc, error) { return o.doc, nil }

func TestExtractRecordsPageErrors(t *testing.T) {
	prev := defaultOpener
	t.Cleanup(func() { setDefaultOpener(prev) })
	setDefaultOpener(stubOpener{doc: stubDoc{pages: []string{"alpha  beta\n", "", "gamma"}}})

	res, err := Extract([]byte("x"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalPages)
	assert.Equal(t, "alpha  beta\n\ngamma", res.Text)
	assert.Equal(t, "broken page", res.Pages[1].Err)
	assert.Equal(t, 9, res.Pages[0].CharCount)
	assert.Equal(t, 14, res.TotalChars)
}

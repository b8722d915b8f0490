// Package textextract pulls the text layer out of a PDF held in memory.
package textextract

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// PageText is the extracted text of one page.
type PageText struct {
	Index     int    `json:"index"`
	Text      string `json:"text"`
	CharCount int    `json:"char_count"`
	Err       string `json:"err,omitempty"`
}

// Result is the text of a whole document.
type Result struct {
	Text       string     `json:"text"`
	TotalPages int        `json:"totalPages"`
	Pages      []PageText `json:"pages,omitempty"`
	// TotalChars counts non-whitespace runes across all pages.
	TotalChars int   `json:"total_chars"`
	DurationMs int64 `json:"duration_ms"`
}

// pageSeparator joins page texts in Result.Text.
const pageSeparator = "\n\n"

var whitespaceRegex = regexp.MustCompile(`\s+`)

func countChars(s string) int {
	return len([]rune(whitespaceRegex.ReplaceAllString(s, "")))
}

// Doc abstracts a PDF document for text extraction.
type Doc interface {
	NumPage() int
	Page(i int) (Page, error)
	Close() error
}

// Page abstracts a single PDF page for text extraction.
type Page interface {
	Text() (string, error)
	Close()
}

// Opener abstracts opening PDF bytes into a Doc.
type Opener interface {
	Open(data []byte) (Doc, error)
}

// defaultOpener is provided in open_fitz.go using go-fitz.
var defaultOpener Opener

// setDefaultOpener allows swapping the default opener in tests.
func setDefaultOpener(o Opener) { defaultOpener = o }

// Extract returns the text of every page of data. A document that cannot
// be opened is an InvalidSourceDocument; a page that fails to extract is
// recorded in its PageText and contributes no text.
func Extract(data []byte) (*Result, error) {
	if defaultOpener == nil {
		return nil, errors.New("no PDF opener configured")
	}
	if len(data) == 0 {
		return nil, pdferr.New(pdferr.InvalidSourceDocument, "document is empty")
	}

	start := time.Now()
	d, err := defaultOpener.Open(data)
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidSourceDocument, err, "cannot open document for text extraction")
	}
	defer d.Close()

	total := d.NumPage()
	if total <= 0 {
		return nil, pdferr.New(pdferr.InvalidSourceDocument, "document has no pages")
	}

	res := &Result{TotalPages: total, Pages: make([]PageText, 0, total)}
	texts := make([]string, 0, total)
	for i := 0; i < total; i++ {
		pt := PageText{Index: i}
		p, err := d.Page(i)
		if err != nil {
			pt.Err = err.Error()
			res.Pages = append(res.Pages, pt)
			continue
		}
		text, err := p.Text()
		p.Close()
		if err != nil {
			pt.Err = err.Error()
			res.Pages = append(res.Pages, pt)
			continue
		}

		pt.Text = strings.TrimRight(text, "\n")
		pt.CharCount = countChars(text)
		res.TotalChars += pt.CharCount
		res.Pages = append(res.Pages, pt)
		texts = append(texts, pt.Text)
	}
	res.Text = strings.Join(texts, pageSeparator)
	res.DurationMs = time.Since(start).Milliseconds()

	log.Debug().
		Int("pages", total).
		Int("chars", res.TotalChars).
		Int64("duration_ms", res.DurationMs).
		Msg("text extracted")
	return res, nil
}

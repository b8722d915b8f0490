package fixture

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one page of a generated document.
type Page struct {
	Width, Height float64
	// Text is drawn in Helvetica near the top-left corner when non-empty.
	Text string
}

// A4Page returns an A4 page carrying text.
func A4Page(text string) Page {
	return Page{Width: 595.28, Height: 841.89, Text: text}
}

// PDF writes an uncompressed document with the given pages.
func PDF(pages ...Page) []byte {
	// 1 catalog, 2 page tree, 3 font, then a page and content stream per page.
	var objects []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objects = append(objects,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, p := range pages {
		var content string
		if p.Text != "" {
			content = fmt.Sprintf("BT /F1 12 Tf 36 %g Td (%s) Tj ET", p.Height-48, escape(p.Text))
		}
		objects = append(objects,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>",
				p.Width, p.Height, 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// NumberedPDF returns n A4 pages whose text is "Page 1" ... "Page n".
func NumberedPDF(n int) []byte {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = A4Page(fmt.Sprintf("Page %d", i+1))
	}
	return PDF(pages...)
}

// SizedPDF returns one blank page per width, all 200pt tall. Page widths
// identify pages after reordering.
func SizedPDF(widths ...float64) []byte {
	pages := make([]Page, len(widths))
	for i, w := range widths {
		pages[i] = Page{Width: w, Height: 200}
	}
	return PDF(pages...)
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)
	return r.Replace(s)
}

package filetype

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/local/pdftoolkit/internal/fixture"
)

func TestDetect(t *testing.T) {
	d := New()
	tests := []struct {
		name     string
		data     []byte
		mime     string
		category Category
	}{
		{"pdf", fixture.NumberedPDF(1), "application/pdf", CategoryPDF},
		{"png", fixture.PNG(4, 4, fixture.Red), "image/png", CategoryImage},
		{"jpeg", fixture.JPEG(4, 4, fixture.Red), "image/jpeg", CategoryImage},
		{"gif", fixture.GIF(4, 4, fixture.Red), "image/gif", CategoryImage},
		{"text", []byte("plain words"), "text/plain; charset=utf-8", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := d.Detect(tt.data)
			assert.Equal(t, tt.mime, info.MIMEType)
			assert.Equal(t, tt.category, info.Category)
		})
	}
}

func TestIsPDF(t *testing.T) {
	d := New()
	assert.True(t, d.IsPDF(fixture.NumberedPDF(1)))
	assert.False(t, d.IsPDF(fixture.PNG(2, 2, fixture.Blue)))
}

func TestImageMIME(t *testing.T) {
	d := New()
	png := fixture.PNG(2, 2, fixture.Blue)

	assert.Equal(t, "image/gif", d.ImageMIME("image/gif", "x.gif", png), "specific declaration wins")
	assert.Equal(t, "image/png", d.ImageMIME("", "x.bin", png))
	assert.Equal(t, "image/png", d.ImageMIME("application/octet-stream", "x", png))
	assert.Equal(t, "image/jpeg", d.ImageMIME("", "photo.JPG", []byte("??")))
}

package filetype

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Category is the coarse class of an upload.
type Category string

const (
	CategoryPDF   Category = "pdf"
	CategoryImage Category = "image"
	CategoryOther Category = "other"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Category    Category
	Description string
}

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// Detect detects the actual file type of data using magic bytes.
func (d *Detector) Detect(data []byte) *FileTypeInfo {
	mtype := mimetype.Detect(data)
	info := &FileTypeInfo{
		MIMEType:  mtype.String(),
		Extension: mtype.Extension(),
	}
	d.classify(info)
	return info
}

// classify fills Category and Description from the MIME type.
func (d *Detector) classify(info *FileTypeInfo) {
	mimeType := info.MIMEType
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}

	switch {
	case mimeType == "application/pdf":
		info.Category = CategoryPDF
		info.Description = "PDF document"
	case strings.HasPrefix(mimeType, "image/"):
		info.Category = CategoryImage
		info.Description = "Image file"
	default:
		info.Category = CategoryOther
		info.Description = "Unsupported file type: " + mimeType
	}
}

// IsPDF reports whether data starts like a PDF document.
func (d *Detector) IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is("application/pdf")
}

// genericTypes carry no information about the payload.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"binary/octet-stream":      true,
}

// ImageMIME returns the mime type used to pick an image encoding. A
// specific declared type is trusted as-is, so a mislabelled upload fails
// or is skipped downstream instead of being silently reinterpreted. A
// generic or missing declaration is replaced by sniffing, with the file
// extension as a last resort.
func (d *Detector) ImageMIME(declared, filename string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(declared))
	if !genericTypes[mt] {
		return declared
	}

	sniffed := mimetype.Detect(data)
	if strings.HasPrefix(sniffed.String(), "image/") {
		log.Debug().Str("declared", declared).Str("sniffed", sniffed.String()).Str("file", filename).Msg("image type resolved by content")
		return sniffed.String()
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	}
	return sniffed.String()
}

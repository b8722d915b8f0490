package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/local/pdftoolkit/internal/batch"
	"github.com/local/pdftoolkit/internal/engine"
	"github.com/local/pdftoolkit/internal/history"
	"github.com/local/pdftoolkit/internal/metrics"
	"github.com/local/pdftoolkit/internal/pdferr"
	"github.com/local/pdftoolkit/internal/preview"
	"github.com/local/pdftoolkit/internal/storage"
)

// artifactResponse is the body of every document-producing endpoint.
type artifactResponse struct {
	Message     string        `json:"message"`
	DownloadURL string        `json:"downloadUrl"`
	Filename    string        `json:"filename"`
	Size        int           `json:"size"`
	Pages       int           `json:"pages"`
	Skipped     []skippedItem `json:"skipped,omitempty"`
}

type skippedItem struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

type textResponse struct {
	Text       string `json:"text"`
	TotalPages int    `json:"totalPages"`
	TotalChars int    `json:"totalChars"`
}

var successMessage = map[string]string{
	engine.OpMerge:      "PDFs merged successfully",
	engine.OpSplit:      "PDF split successfully",
	engine.OpCompress:   "PDF compressed successfully",
	engine.OpEncrypt:    "PDF encrypted successfully",
	engine.OpImageToPDF: "Image converted to PDF successfully",
	engine.OpBatch:      "Images processed successfully",
	engine.OpUpload:     "File uploaded successfully",
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		refs := c.form.Value["url"]
		n := len(c.form.File["files"]) + len(refs)
		if n < 2 {
			return nil, pdferr.New(pdferr.InvalidRequest, "at least two PDF files are required")
		}
		if n > s.deps.Limits.MaxMergeFiles {
			return nil, pdferr.New(pdferr.InvalidRequest, "at most %d files can be merged", s.deps.Limits.MaxMergeFiles)
		}
		inputs, err := s.readPDFs(c.form, "files")
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			in, err := s.fetch(ctx, c, ref)
			if err != nil {
				return nil, err
			}
			inputs = append(inputs, in)
		}
		return s.deps.Engine.Merge(ctx, inputs)
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		in, err := s.singlePDF(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.deps.Engine.Upload(ctx, in)
	})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		in, err := s.singlePDF(ctx, c)
		if err != nil {
			return nil, err
		}
		expr := strings.TrimSpace(formValue(c.form, "range"))
		if expr == "" {
			return nil, pdferr.New(pdferr.InvalidRequest, "file and page range are required")
		}
		return s.deps.Engine.Split(ctx, in, expr)
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		in, err := s.singlePDF(ctx, c)
		if err != nil {
			return nil, err
		}
		return s.deps.Engine.Compress(ctx, in)
	})
}

func (s *Server) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		in, err := s.singlePDF(ctx, c)
		if err != nil {
			return nil, err
		}
		password := formValue(c.form, "password")
		if password == "" {
			return nil, pdferr.New(pdferr.InvalidRequest, "file and password are required")
		}
		return s.deps.Engine.Encrypt(ctx, in, password)
	})
}

func (s *Server) handleImageToPDF(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		images, err := s.readImages(c.form, "file")
		if err != nil {
			return nil, err
		}
		if len(images) != 1 {
			return nil, pdferr.New(pdferr.InvalidRequest, "exactly one image file is required")
		}
		return s.deps.Engine.ImageToPDF(ctx, images[0])
	})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	s.document(w, r, func(ctx context.Context, c *call) (*engine.Artifact, error) {
		images, err := s.readImages(c.form, "files")
		if err != nil {
			return nil, err
		}
		if len(images) == 0 {
			return nil, pdferr.New(pdferr.InvalidRequest, "no files uploaded")
		}
		if len(images) > s.deps.Limits.MaxBatchFiles {
			return nil, pdferr.New(pdferr.InvalidRequest, "at most %d images can be processed at once", s.deps.Limits.MaxBatchFiles)
		}
		return s.deps.Engine.Batch(ctx, images)
	})
}

func (s *Server) handleExtractText(w http.ResponseWriter, r *http.Request) {
	c, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer c.release()
	ctx := r.Context()

	in, err := s.singlePDF(ctx, c)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	res, err := s.deps.Engine.ExtractText(ctx, in)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: res.Text, TotalPages: res.TotalPages, TotalChars: res.TotalChars})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	c, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer c.release()
	ctx := r.Context()

	in, err := s.singlePDF(ctx, c)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	opts := preview.Options{Color: preview.ColorMode(formValue(c.form, "color"))}
	if opts.Page, err = optionalInt(c.form, "page"); err != nil {
		writeError(ctx, w, err)
		return
	}
	if opts.DPI, err = optionalInt(c.form, "dpi"); err != nil {
		writeError(ctx, w, err)
		return
	}
	img, err := s.deps.Engine.Preview(ctx, in, opts)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("X-Total-Pages", strconv.Itoa(img.TotalPages))
	w.Header().Set("Content-Length", strconv.Itoa(len(img.JPEG)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(img.JPEG)
}

type produceFunc func(ctx context.Context, c *call) (*engine.Artifact, error)

// document runs one document-producing operation and persists its output.
// Nothing is stored or recorded unless the operation succeeds.
func (s *Server) document(w http.ResponseWriter, r *http.Request, produce produceFunc) {
	c, ok := s.begin(w, r)
	if !ok {
		return
	}
	defer c.release()
	ctx := r.Context()

	art, err := produce(ctx, c)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	obj, err := s.deps.Sink.Put(ctx, art.Filename, art.Data, storage.Metadata{
		Operation:   art.Operation,
		ContentType: "application/pdf",
		Pages:       art.Pages,
	})
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	if s.deps.History != nil {
		entry := history.Entry{
			Name:      obj.Name,
			URL:       obj.URL,
			Operation: art.Operation,
			Size:      art.Size,
			Pages:     art.Pages,
			CreatedAt: obj.CreatedAt,
		}
		if err := s.deps.History.Add(ctx, entry); err != nil {
			// The artifact is already stored; a history miss is not fatal.
			zerolog.Ctx(ctx).Warn().Err(err).Str("file", obj.Name).Msg("history add failed")
		}
	}

	resp := artifactResponse{
		Message:     successMessage[art.Operation],
		DownloadURL: obj.URL,
		Filename:    obj.Name,
		Size:        art.Size,
		Pages:       art.Pages,
	}
	for _, sk := range art.Skipped {
		resp.Skipped = append(resp.Skipped, skippedItem{Index: sk.Index, Name: sk.Name, Reason: sk.Reason})
	}
	writeJSON(w, http.StatusOK, resp)
}

// call holds the parsed form of one request and the budget it has taken.
type call struct {
	form *multipart.Form
	held []func()
}

func (c *call) hold(release func()) { c.held = append(c.held, release) }

// release frees everything in reverse order of acquisition.
func (c *call) release() {
	for i := len(c.held) - 1; i >= 0; i-- {
		c.held[i]()
	}
	c.held = nil
}

// begin enforces POST, parses the bounded multipart body and takes a
// processing slot sized to the upload. On failure the response is written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request) (*call, bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return nil, false
	}
	ctx := r.Context()
	r.Body = http.MaxBytesReader(w, r.Body, s.deps.Limits.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(ctx, w, pdferr.New(pdferr.TooLarge, "upload exceeds %d bytes", s.deps.Limits.MaxUploadBytes))
		} else {
			writeError(ctx, w, pdferr.Wrap(pdferr.InvalidRequest, err, "expected a multipart form"))
		}
		return nil, false
	}
	form := r.MultipartForm

	release, err := s.deps.Limiter.Acquire(ctx, formSize(form))
	if err != nil {
		_ = form.RemoveAll()
		writeError(ctx, w, err)
		return nil, false
	}
	metrics.SetInflight(s.deps.Limiter.InUse())
	c := &call{form: form}
	c.hold(func() { _ = form.RemoveAll() })
	c.hold(func() {
		release()
		metrics.SetInflight(s.deps.Limiter.InUse())
	})
	return c, true
}

// singlePDF reads the "file" upload or, failing that, fetches the "url" field.
func (s *Server) singlePDF(ctx context.Context, c *call) (engine.Input, error) {
	inputs, err := s.readPDFs(c.form, "file")
	if err != nil {
		return engine.Input{}, err
	}
	if len(inputs) > 0 {
		return inputs[0], nil
	}
	if ref := formValue(c.form, "url"); ref != "" {
		return s.fetch(ctx, c, ref)
	}
	return engine.Input{}, pdferr.New(pdferr.InvalidRequest, "a PDF file is required")
}

// fetch downloads ref into memory. The download is budgeted at the
// fetcher's limit while in flight, then at its actual size until the
// request finishes.
func (s *Server) fetch(ctx context.Context, c *call, ref string) (engine.Input, error) {
	if s.deps.Fetcher == nil {
		return engine.Input{}, pdferr.New(pdferr.InvalidRequest, "remote sources are not enabled")
	}
	pending, err := s.deps.Limiter.Reserve(s.deps.Fetcher.Limit())
	if err != nil {
		return engine.Input{}, err
	}
	data, name, err := s.deps.Fetcher.Fetch(ctx, ref)
	pending()
	if err != nil {
		return engine.Input{}, err
	}
	kept, err := s.deps.Limiter.Reserve(int64(len(data)))
	if err != nil {
		return engine.Input{}, err
	}
	c.hold(kept)
	if err := s.checkPDF(name, data); err != nil {
		return engine.Input{}, err
	}
	return engine.Input{Name: name, Data: data}, nil
}

func (s *Server) readPDFs(form *multipart.Form, field string) ([]engine.Input, error) {
	var inputs []engine.Input
	for _, fh := range form.File[field] {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		if err := s.checkPDF(fh.Filename, data); err != nil {
			return nil, err
		}
		inputs = append(inputs, engine.Input{Name: fh.Filename, Data: data})
	}
	return inputs, nil
}

// checkPDF rejects inputs whose content is not a PDF, whatever their name.
func (s *Server) checkPDF(name string, data []byte) error {
	if s.deps.Detector.IsPDF(data) {
		return nil
	}
	info := s.deps.Detector.Detect(data)
	return pdferr.New(pdferr.InvalidSourceDocument, "%s is not a PDF (%s)", displayName(name), info.Description)
}

func displayName(name string) string {
	if name == "" {
		return "input"
	}
	return name
}

func (s *Server) readImages(form *multipart.Form, field string) ([]batch.Image, error) {
	var images []batch.Image
	for _, fh := range form.File[field] {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		images = append(images, batch.Image{
			Name:     fh.Filename,
			MimeType: s.deps.Detector.ImageMIME(fh.Header.Get("Content-Type"), fh.Filename, data),
			Data:     data,
		})
	}
	return images, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidRequest, err, "unable to read upload %q", fh.Filename)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, pdferr.Wrap(pdferr.InvalidRequest, err, "unable to read upload %q", fh.Filename)
	}
	return data, nil
}

func formSize(form *multipart.Form) int64 {
	var n int64
	for _, files := range form.File {
		for _, fh := range files {
			n += fh.Size
		}
	}
	return n
}

func formValue(form *multipart.Form, key string) string {
	if v := form.Value[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func optionalInt(form *multipart.Form, key string) (int, error) {
	v := strings.TrimSpace(formValue(form, key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, pdferr.New(pdferr.InvalidRequest, "%s must be a positive integer", key)
	}
	return n, nil
}

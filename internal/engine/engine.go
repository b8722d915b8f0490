// Package engine runs the document operations end to end: it takes input
// bytes, drives the assembler and returns a named artifact. It knows nothing
// about HTTP or storage.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/local/pdftoolkit/internal/access"
	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/batch"
	"github.com/local/pdftoolkit/internal/imageplace"
	"github.com/local/pdftoolkit/internal/metrics"
	"github.com/local/pdftoolkit/internal/pagerange"
	"github.com/local/pdftoolkit/internal/pdferr"
	"github.com/local/pdftoolkit/internal/preview"
	"github.com/local/pdftoolkit/internal/textextract"
)

// Operation names, used in logs, metrics and history.
const (
	OpMerge       = "merge"
	OpSplit       = "split"
	OpCompress    = "compress"
	OpEncrypt     = "encrypt"
	OpImageToPDF  = "image-to-pdf"
	OpBatch       = "batch"
	OpExtractText = "extract-text"
	OpPreview     = "preview"
	OpUpload      = "upload"
)

// filenamePrefix maps document-producing operations to their artifact prefix.
var filenamePrefix = map[string]string{
	OpMerge:      "merged",
	OpSplit:      "split",
	OpCompress:   "compressed",
	OpEncrypt:    "encrypted",
	OpImageToPDF: "image-to-pdf",
	OpBatch:      "batch-images",
	OpUpload:     "upload",
}

// Input is a source document as handed over by the upload layer.
type Input struct {
	Name string
	Data []byte
}

// Artifact is a serialized output ready for storage.
type Artifact struct {
	Operation string
	Filename  string
	Data      []byte
	Size      int
	Pages     int
	// Skipped lists batch inputs that produced no page.
	Skipped []batch.Skipped
}

type Options struct {
	PageWidth  float64
	PageHeight float64
	// Now is the clock used for artifact names; defaults to time.Now.
	Now func() time.Time
}

type Engine struct {
	now      func() time.Time
	pipeline *batch.Pipeline
}

func New(opts Options) *Engine {
	if opts.PageWidth <= 0 || opts.PageHeight <= 0 {
		opts.PageWidth, opts.PageHeight = imageplace.A4Width, imageplace.A4Height
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		now:      opts.Now,
		pipeline: &batch.Pipeline{PageWidth: opts.PageWidth, PageHeight: opts.PageHeight},
	}
}

// Filename returns "<prefix>-<unix millis>.pdf" for operation at t.
func Filename(operation string, t time.Time) string {
	prefix, ok := filenamePrefix[operation]
	if !ok {
		prefix = operation
	}
	return fmt.Sprintf("%s-%d.pdf", prefix, t.UnixMilli())
}

// Merge concatenates all pages of every input, in input order. All inputs
// are parsed before anything is assembled.
func (e *Engine) Merge(ctx context.Context, inputs []Input) (*Artifact, error) {
	return e.produce(ctx, OpMerge, func() (*assembler.Document, assembler.SerializeOptions, error) {
		if len(inputs) < 2 {
			return nil, assembler.SerializeOptions{}, pdferr.New(pdferr.InvalidRequest, "at least 2 PDF files are required to merge")
		}
		sources := make([]*assembler.Source, 0, len(inputs))
		for _, in := range inputs {
			src, err := assembler.LoadSource(in.Name, in.Data)
			if err != nil {
				return nil, assembler.SerializeOptions{}, err
			}
			sources = append(sources, src)
		}

		doc := assembler.Create()
		for _, src := range sources {
			if err := doc.AppendAll(src); err != nil {
				return nil, assembler.SerializeOptions{}, err
			}
		}
		return doc, assembler.SerializeOptions{}, nil
	})
}

// Split extracts the pages selected by expr, in ascending page order.
func (e *Engine) Split(ctx context.Context, in Input, expr string) (*Artifact, error) {
	return e.produce(ctx, OpSplit, func() (*assembler.Document, assembler.SerializeOptions, error) {
		src, err := assembler.LoadSource(in.Name, in.Data)
		if err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		idx, err := pagerange.Parse(expr, src.PageCount())
		if err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		doc := assembler.Create()
		if err := doc.AppendPages(src, idx); err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		return doc, assembler.SerializeOptions{}, nil
	})
}

// Compress re-serializes the document structurally.
func (e *Engine) Compress(ctx context.Context, in Input) (*Artifact, error) {
	return e.produce(ctx, OpCompress, func() (*assembler.Document, assembler.SerializeOptions, error) {
		doc, err := e.copyAll(in)
		return doc, assembler.SerializeOptions{Compact: true}, err
	})
}

// Upload stores the document as received, after checking that it parses.
func (e *Engine) Upload(ctx context.Context, in Input) (*Artifact, error) {
	return e.produce(ctx, OpUpload, func() (*assembler.Document, assembler.SerializeOptions, error) {
		doc, err := e.copyAll(in)
		return doc, assembler.SerializeOptions{}, err
	})
}

// Encrypt protects the document with password as both user and owner password.
func (e *Engine) Encrypt(ctx context.Context, in Input, password string) (*Artifact, error) {
	return e.produce(ctx, OpEncrypt, func() (*assembler.Document, assembler.SerializeOptions, error) {
		doc, err := e.copyAll(in)
		if err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		if err := access.Protect(doc, access.NewEncryptionSpec(password)); err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		return doc, assembler.SerializeOptions{}, nil
	})
}

// ImageToPDF places one image on a single page. Unlike Batch, an
// unsupported image fails the operation.
func (e *Engine) ImageToPDF(ctx context.Context, img batch.Image) (*Artifact, error) {
	return e.produce(ctx, OpImageToPDF, func() (*assembler.Document, assembler.SerializeOptions, error) {
		doc := assembler.Create()
		if err := e.pipeline.AddImage(doc, img); err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		return doc, assembler.SerializeOptions{}, nil
	})
}

// Batch places each image on its own page, skipping unsupported ones.
func (e *Engine) Batch(ctx context.Context, images []batch.Image) (*Artifact, error) {
	var skipped []batch.Skipped
	art, err := e.produce(ctx, OpBatch, func() (*assembler.Document, assembler.SerializeOptions, error) {
		res, err := e.pipeline.Run(ctx, images)
		if err != nil {
			return nil, assembler.SerializeOptions{}, err
		}
		skipped = res.Skipped
		return res.Document, assembler.SerializeOptions{}, nil
	})
	if err != nil {
		return nil, err
	}
	art.Skipped = skipped
	metrics.AddBatchSkipped(len(skipped))
	return art, nil
}

// ExtractText returns the text layer of every page.
func (e *Engine) ExtractText(ctx context.Context, in Input) (*textextract.Result, error) {
	start := time.Now()
	res, err := textextract.Extract(in.Data)
	e.observe(ctx, OpExtractText, start, err)
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().Str("operation", OpExtractText).Int("pages", res.TotalPages).Int("chars", res.TotalChars).Msg("text extracted")
	return res, nil
}

// Preview renders one page to JPEG.
func (e *Engine) Preview(ctx context.Context, in Input, opts preview.Options) (*preview.Image, error) {
	start := time.Now()
	img, err := preview.RenderPage(in.Data, opts)
	e.observe(ctx, OpPreview, start, err)
	return img, err
}

func (e *Engine) copyAll(in Input) (*assembler.Document, error) {
	src, err := assembler.LoadSource(in.Name, in.Data)
	if err != nil {
		return nil, err
	}
	doc := assembler.Create()
	if err := doc.AppendAll(src); err != nil {
		return nil, err
	}
	return doc, nil
}

type buildFunc func() (*assembler.Document, assembler.SerializeOptions, error)

// produce builds, serializes and names one artifact. Nothing is returned
// unless every step succeeds.
func (e *Engine) produce(ctx context.Context, op string, build buildFunc) (*Artifact, error) {
	start := time.Now()
	art, err := e.produceArtifact(ctx, op, build)
	e.observe(ctx, op, start, err)
	if err != nil {
		return nil, err
	}
	metrics.ObserveOutput(op, art.Size)
	zerolog.Ctx(ctx).Info().
		Str("operation", op).
		Str("filename", art.Filename).
		Int("pages", art.Pages).
		Int("size", art.Size).
		Dur("duration", time.Since(start)).
		Msg("artifact produced")
	return art, nil
}

func (e *Engine) produceArtifact(ctx context.Context, op string, build buildFunc) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, opts, err := build()
	if err != nil {
		return nil, err
	}
	data, err := doc.Serialize(opts)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Operation: op,
		Filename:  Filename(op, e.now()),
		Data:      data,
		Size:      len(data),
		Pages:     doc.PageCount(),
	}, nil
}

func (e *Engine) observe(ctx context.Context, op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = string(pdferr.KindOf(err))
		zerolog.Ctx(ctx).Warn().Str("operation", op).Str("kind", result).Err(err).Msg("operation failed")
	}
	metrics.ObserveOperation(op, result, time.Since(start))
}

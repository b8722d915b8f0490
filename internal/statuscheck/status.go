package statuscheck

import (
	"context"
	"errors"
	"time"

	"github.com/local/pdftoolkit/internal/assembler"
	"github.com/local/pdftoolkit/internal/preview"
)

// Pinger models the minimal capability we need from a dependency for status checks.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates health checks for the services the engine depends on.
type Checker struct {
	redis   Pinger
	storage Pinger
	backend string
}

// Options configures the Checker. A nil Redis means history is kept in memory.
type Options struct {
	Redis          Pinger
	Storage        Pinger
	StorageBackend string
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Redis   Status `json:"redis"`
	Storage Status `json:"storage"`
	MuPDF   Status `json:"mupdf"`
}

// Healthy reports whether every subsystem is usable.
func (s Summary) Healthy() bool { return s.Redis.OK && s.Storage.OK && s.MuPDF.OK }

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	return &Checker{redis: opts.Redis, storage: opts.Storage, backend: opts.StorageBackend}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
	return Summary{
		Redis:   c.checkRedis(ctx),
		Storage: c.checkStorage(ctx),
		MuPDF:   c.checkMuPDF(),
	}
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	if c.redis == nil {
		return Status{OK: true, Message: "Not configured, using in-memory history"}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkStorage(ctx context.Context) Status {
	if c.storage == nil {
		return Status{OK: false, Message: "Storage not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.storage.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected (" + c.backend + ")"}
}

// checkMuPDF renders a generated blank page through the linked MuPDF.
func (c *Checker) checkMuPDF() Status {
	doc := assembler.Create()
	if _, err := doc.AddBlankPage(72, 72); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	sample, err := doc.Serialize(assembler.SerializeOptions{})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	img, err := preview.RenderPage(sample, preview.Options{})
	if err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	if img.Width != 72 {
		return Status{OK: false, Message: "Unexpected sample render size"}
	}
	return Status{OK: true, Message: "Available"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}

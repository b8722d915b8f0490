package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/local/pdftoolkit/internal/pdferr"
)

// ErrNotFound is returned by Sink.Get for unknown names.
var ErrNotFound = errors.New("object not found")

// Object describes a persisted artifact.
type Object struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Size      int       `json:"size"`
	Operation string    `json:"operation,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Metadata travels with an artifact into the sink.
type Metadata struct {
	Operation   string
	ContentType string
	Pages       int
}

// Sink persists artifacts and makes them retrievable.
type Sink interface {
	// Put stores data under name and returns where it can be downloaded.
	// On error nothing is left retrievable under name.
	Put(ctx context.Context, name string, data []byte, meta Metadata) (*Object, error)
	// Get returns the stored plaintext bytes.
	Get(ctx context.Context, name string) ([]byte, error)
	// Backend names the implementation for health reporting.
	Backend() string
}

// ValidName rejects names that could escape the output namespace.
func ValidName(name string) error {
	if name == "" || name != path.Base(name) || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return pdferr.New(pdferr.InvalidRequest, "invalid artifact name %q", name)
	}
	return nil
}

func ioFailure(err error, format string, args ...any) error {
	return pdferr.Wrap(pdferr.IOFailure, err, format, args...)
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// LocalSink stores artifacts in a directory served under BaseURL.
type LocalSink struct {
	dir      string
	baseURL  string
	password string
}

// NewLocalSink creates dir if needed. A non-empty password seals files at rest.
func NewLocalSink(dir, baseURL, password string) (*LocalSink, error) {
	if dir == "" {
		dir = "outputs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if baseURL == "" {
		baseURL = "/outputs/"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalSink{dir: dir, baseURL: baseURL, password: password}, nil
}

func (s *LocalSink) Backend() string { return "local" }

// Dir is the output directory.
func (s *LocalSink) Dir() string { return s.dir }

// Put writes to a temp file in the same directory and renames it into place.
func (s *LocalSink) Put(ctx context.Context, name string, data []byte, meta Metadata) (*Object, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	payload := data
	if s.password != "" {
		sealed, err := Seal(data, s.password)
		if err != nil {
			return nil, ioFailure(err, "seal %s", name)
		}
		payload = sealed
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return nil, ioFailure(err, "create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		return nil, ioFailure(err, "write %s", name)
	}
	if err := tmp.Close(); err != nil {
		return nil, ioFailure(err, "close %s", name)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		return nil, ioFailure(err, "rename %s", name)
	}

	log.Info().Str("file", name).Int("size", len(data)).Bool("sealed", s.password != "").Str("operation", meta.Operation).Msg("artifact saved locally")
	return &Object{
		Name:      name,
		URL:       s.baseURL + name,
		Size:      len(data),
		Operation: meta.Operation,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *LocalSink) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, ioFailure(err, "read %s", name)
	}
	if s.password != "" {
		plain, err := Unseal(data, s.password)
		if err != nil {
			return nil, ioFailure(err, "unseal %s", name)
		}
		return plain, nil
	}
	return data, nil
}

// Ping checks that the directory is writable.
func (s *LocalSink) Ping(ctx context.Context) error {
	f, err := os.CreateTemp(s.dir, ".ping-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

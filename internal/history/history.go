// Package history indexes produced artifacts so they can be listed newest first.
package history

import (
	"context"
	"time"
)

// Entry is one produced artifact.
type Entry struct {
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Operation string    `json:"operation"`
	Size      int       `json:"size"`
	Pages     int       `json:"pages"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store records artifacts and lists them newest first.
type Store interface {
	Add(ctx context.Context, e Entry) error
	// List returns at most limit entries, newest first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}

// Package vault abstracts the user-chosen storage root that holds the
// portable text form of every document. The synchronization engine consumes
// this capability; it never touches the filesystem directly, so tests run
// against the in-memory implementation.
package vault

import (
	"context"
	"time"
)

// Locations within the storage root. Ordinary pages and date-keyed journal
// entries are kept apart so external tools can treat them differently.
const (
	LocationPages    = "pages"
	LocationJournals = "journals"
)

// Entry describes one resource in a location.
type Entry struct {
	Name    string
	ModTime time.Time
}

// Dir is the directory access contract: enumerate, read, write, and delete
// named text resources grouped into locations, plus idempotent location
// creation. Implementations must treat Write as create-or-replace.
type Dir interface {
	List(ctx context.Context, location string) ([]Entry, error)
	Read(ctx context.Context, location, name string) ([]byte, error)
	Write(ctx context.Context, location, name string, data []byte) error
	Remove(ctx context.Context, location, name string) error
	Ensure(ctx context.Context, location string) error
	// Stat reports the resource's last-modified time.
	Stat(ctx context.Context, location, name string) (time.Time, error)
}

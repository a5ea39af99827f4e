// Package block defines the outline block tree model and its in-memory store.
package block

import (
	"errors"
	"time"
)

// Kind classifies a document as an ordinary page or a date-keyed journal entry.
type Kind string

const (
	// KindNote is an ordinary user-titled page.
	KindNote Kind = "note"
	// KindJournal is a date-keyed journal entry (title is the date key).
	KindJournal Kind = "journal"
)

// Block is a single content unit in a document's outline tree.
type Block struct {
	// ID is the block's unique identifier (UUID v7), assigned once and never reused.
	ID string
	// Content is the block's text. It may contain embedded inline markup and
	// line breaks; the tree treats it as opaque.
	Content string
	// ParentID identifies the containing block, or "" for a top-level block.
	ParentID string
	// DocumentID identifies the owning document.
	DocumentID string
	// Order gives the block's sibling position. Values are unique within a
	// parent and comparable only; they carry no other arithmetic meaning.
	Order int
	// Collapsed hides descendants from flattened traversal. Presentation
	// state only; children remain in the store.
	Collapsed bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Document is a named page: the root container for a tree of blocks.
type Document struct {
	ID    string
	Title string
	Kind  Kind
	// Placeholder marks a document auto-created by following a
	// cross-reference, as opposed to one the user explicitly authored.
	Placeholder bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Structural failure signals. Operations on the store return these rather
// than panicking; the store is unchanged whenever one is returned.
var (
	// ErrNotFound is returned when a referenced block or document id does not exist.
	ErrNotFound = errors.New("block: not found")
	// ErrCycle is returned when a move would place a block under itself or a descendant.
	ErrCycle = errors.New("block: move would create a cycle")
	// ErrFirstSibling is returned by Indent when the block has no preceding sibling to adopt it.
	ErrFirstSibling = errors.New("block: no preceding sibling")
	// ErrTopLevel is returned by Outdent when the block is already top-level.
	ErrTopLevel = errors.New("block: already top-level")
)

// NewID returns a fresh lowercase UUIDv7 identifier.
func NewID() string {
	return newID()
}

// NowUTC returns the current UTC time truncated to second precision, the
// granularity carried by the portable text format.
func NowUTC() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

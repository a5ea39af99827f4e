// Package codec converts documents between the block tree model and the
// canonical plain-text file format: a YAML frontmatter header followed by one
// indented list item per block.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoHeader is reported when the input has no frontmatter block at all.
// This is the only unrecoverable shape: every other defect (missing id,
// malformed depth) is repaired during parsing.
var ErrNoHeader = errors.New("codec: no header block found")

// Header is the document metadata carried in the frontmatter.
// Timestamps are RFC3339 UTC strings with a "Z" suffix.
type Header struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title,omitempty"`
	Kind    string `yaml:"kind,omitempty"`
	Created string `yaml:"created,omitempty"`
	Updated string `yaml:"updated,omitempty"`
}

// headerRE matches a complete frontmatter block at the start of the input.
// The closing "---" must appear unindented; "---" inside YAML block scalars
// is always indented, so the boundary is unambiguous without a full
// YAML-aware scanner.
var headerRE = regexp.MustCompile(`(?s)^---\n(.*?)\n---(?:\n|$)`)

// ParseHeader splits the input into its Header and body. yaml.v3 decodes the
// extracted YAML so quoted strings and block scalars round-trip correctly.
func ParseHeader(content []byte) (Header, []byte, error) {
	loc := headerRE.FindSubmatchIndex(content)
	if loc == nil {
		return Header{}, nil, ErrNoHeader
	}

	yamlContent := content[loc[2]:loc[3]]
	body := content[loc[1]:]

	var h Header
	if err := yaml.Unmarshal(yamlContent, &h); err != nil {
		return Header{}, nil, fmt.Errorf("parse header: %w", err)
	}

	return h, append([]byte(nil), body...), nil
}

// SerializeHeader writes h as a canonical frontmatter block.
// Field order: id → title → kind → created → updated.
// Empty optional fields are omitted; the title is double-quoted so titles
// containing YAML punctuation survive the round trip.
func SerializeHeader(h Header) []byte {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.WriteString("id: " + h.ID + "\n")
	if h.Title != "" {
		buf.WriteString("title: " + strconv.Quote(h.Title) + "\n")
	}
	if h.Kind != "" {
		buf.WriteString("kind: " + h.Kind + "\n")
	}
	if h.Created != "" {
		buf.WriteString("created: " + h.Created + "\n")
	}
	if h.Updated != "" {
		buf.WriteString("updated: " + h.Updated + "\n")
	}
	buf.WriteString("---\n")
	return buf.Bytes()
}

// Validate checks that the input is structurally recoverable without running
// a full parse: a frontmatter block must exist and must be parseable YAML.
// A missing identifier is not a validation failure (it is synthesized fresh
// on import).
func Validate(content []byte) error {
	_, _, err := ParseHeader(content)
	return err
}

// FormatTime renders t in the portable timestamp form.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseTime parses a portable timestamp, returning the zero time when s is
// empty or malformed so callers can fall back to an existing value.
func ParseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

package codec

import (
	"bytes"
	"regexp"
	"sort"
	"strings"

	"github.com/knotapp/knot/internal/block"
)

const (
	// indentUnit is the fixed indentation unit: nesting depth = indent ÷ unit.
	indentUnit = 2
	// listMarker prefixes the first physical line of every block.
	listMarker = "- "
)

var (
	// listItemRE matches a block's first physical line: indentation, marker, content.
	listItemRE = regexp.MustCompile(`^( *)- (.*)$`)
	// idMarkerRE matches the trailing ^uuid marker on a block's last physical line.
	idMarkerRE = regexp.MustCompile(` \^([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)
)

// Serialize renders the document and its complete block set into the portable
// text form. Blocks are written depth-first in sibling Order; collapsed
// blocks are serialized identically to expanded ones (the whole subtree is
// always written — collapse is presentation state and does not round-trip).
//
// Each block occupies one line per line of content: the first carries the
// list marker at the block's depth, continuation lines are indented one extra
// unit, and the last carries the trailing ^id marker.
func Serialize(doc block.Document, blocks []block.Block) []byte {
	var buf bytes.Buffer
	buf.Write(SerializeHeader(Header{
		ID:      doc.ID,
		Title:   doc.Title,
		Kind:    string(doc.Kind),
		Created: FormatTime(doc.CreatedAt),
		Updated: FormatTime(doc.UpdatedAt),
	}))

	children := make(map[string][]block.Block)
	for _, b := range blocks {
		children[b.ParentID] = append(children[b.ParentID], b)
	}
	for pid := range children {
		kids := children[pid]
		sort.Slice(kids, func(i, j int) bool { return kids[i].Order < kids[j].Order })
	}

	var walk func(parentID string, depth int)
	walk = func(parentID string, depth int) {
		for _, b := range children[parentID] {
			writeBlock(&buf, b, depth)
			walk(b.ID, depth+1)
		}
	}
	walk("", 0)

	return buf.Bytes()
}

func writeBlock(buf *bytes.Buffer, b block.Block, depth int) {
	indent := strings.Repeat(" ", depth*indentUnit)
	lines := strings.Split(b.Content, "\n")
	for i, line := range lines {
		if i == 0 {
			buf.WriteString(indent + listMarker + line)
		} else {
			buf.WriteString(indent + strings.Repeat(" ", indentUnit) + line)
		}
		if i == len(lines)-1 {
			buf.WriteString(" ^" + b.ID)
		}
		buf.WriteString("\n")
	}
}

// parsedEntry tracks a closed block during parsing for the backward
// ancestor scan.
type parsedEntry struct {
	id    string
	depth int
}

// Deserialize parses the portable text form back into a document and its
// blocks, with ParentID and Order resolved.
//
// A marker line opens a new block at depth = indent ÷ unit; non-marker lines
// accumulate as continuation content of the open block. On closing a block,
// the trailing ^id marker is stripped and reused (or an id is synthesized),
// and the parent is found by walking backward through previously-closed
// blocks to the nearest one with strictly smaller depth. A depth jump of more
// than one unit is clamped to previous depth + 1, so malformed indentation
// degrades the nesting instead of failing the parse.
//
// Only an input with no header at all is an error.
func Deserialize(src []byte) (block.Document, []block.Block, error) {
	h, body, err := ParseHeader(src)
	if err != nil {
		return block.Document{}, nil, err
	}

	doc := block.Document{
		ID:        h.ID,
		Title:     h.Title,
		Kind:      block.Kind(h.Kind),
		CreatedAt: ParseTime(h.Created),
		UpdatedAt: ParseTime(h.Updated),
	}
	if doc.ID == "" {
		doc.ID = block.NewID()
	}

	var (
		blocks   []block.Block
		entries  []parsedEntry
		sibCount = make(map[string]int)
		curLines []string
		curDepth int
		inBlock  bool
	)

	closeBlock := func() {
		if !inBlock {
			return
		}
		// Blank lines before the next marker (or end of input) separate
		// blocks; they are not content.
		for len(curLines) > 0 && curLines[len(curLines)-1] == "" {
			curLines = curLines[:len(curLines)-1]
		}
		content := strings.Join(curLines, "\n")
		id := ""
		if m := idMarkerRE.FindStringSubmatch(content); m != nil {
			id = m[1]
			content = content[:len(content)-len(m[0])]
		} else {
			id = block.NewID()
		}

		depth := curDepth
		if len(entries) == 0 {
			depth = 0
		} else if prev := entries[len(entries)-1]; depth > prev.depth+1 {
			depth = prev.depth + 1
		}

		parentID := ""
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].depth < depth {
				parentID = entries[i].id
				break
			}
		}
		if parentID == "" {
			depth = 0
		}

		now := block.NowUTC()
		blocks = append(blocks, block.Block{
			ID:         id,
			Content:    content,
			ParentID:   parentID,
			DocumentID: doc.ID,
			Order:      sibCount[parentID],
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		sibCount[parentID]++
		entries = append(entries, parsedEntry{id: id, depth: depth})
		curLines, inBlock = nil, false
	}

	for _, line := range strings.Split(string(body), "\n") {
		if m := listItemRE.FindStringSubmatch(line); m != nil {
			closeBlock()
			curDepth = len(m[1]) / indentUnit
			curLines = []string{m[2]}
			inBlock = true
			continue
		}
		if !inBlock {
			// Prose before the first list item is not part of any block.
			continue
		}
		curLines = append(curLines, stripContinuationIndent(line, curDepth))
	}
	closeBlock()

	return doc, blocks, nil
}

// stripContinuationIndent removes the expected continuation indentation
// (the block's depth plus one extra unit) from a continuation line,
// tolerating lines with less indentation than expected.
func stripContinuationIndent(line string, depth int) string {
	want := (depth + 1) * indentUnit
	n := 0
	for n < want && n < len(line) && line[n] == ' ' {
		n++
	}
	return line[n:]
}

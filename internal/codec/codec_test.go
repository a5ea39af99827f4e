package codec_test

import (
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/knotapp/knot/internal/block"
	"github.com/knotapp/knot/internal/codec"
)

var uuidRE = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

// buildDocument assembles a store with a known tree:
//
//	alpha
//	  beta (collapsed)
//	    gamma
//	delta with two lines of content
func buildDocument(t *testing.T) (*block.Store, block.Document) {
	t.Helper()
	s := block.NewStore()
	doc := s.CreateDocument("Test Page", block.KindNote)

	alpha, err := s.CreateBlock(doc.ID, "alpha", "")
	if err != nil {
		t.Fatalf("CreateBlock error = %v", err)
	}
	beta, err := s.CreateBlock(doc.ID, "beta", alpha.ID)
	if err != nil {
		t.Fatalf("CreateBlock error = %v", err)
	}
	if _, err := s.CreateBlock(doc.ID, "gamma", beta.ID); err != nil {
		t.Fatalf("CreateBlock error = %v", err)
	}
	if _, err := s.CreateBlock(doc.ID, "delta\nsecond line", ""); err != nil {
		t.Fatalf("CreateBlock error = %v", err)
	}
	if err := s.ToggleCollapse(beta.ID); err != nil {
		t.Fatalf("ToggleCollapse error = %v", err)
	}
	d, _ := s.GetDocument(doc.ID)
	return s, d
}

// shape is a structural fingerprint of a block: content, depth, and the
// content of its parent ("" at top level). Comparing shapes checks structural
// equivalence without depending on raw ids.
type shape struct {
	content string
	parent  string
	order   int
}

func shapesOf(blocks []block.Block) []shape {
	byID := make(map[string]block.Block, len(blocks))
	for _, b := range blocks {
		byID[b.ID] = b
	}
	out := make([]shape, len(blocks))
	for i, b := range blocks {
		parent := ""
		if p, ok := byID[b.ParentID]; ok {
			parent = p.Content
		}
		out[i] = shape{content: b.Content, parent: parent, order: b.Order}
	}
	return out
}

// TestRoundTrip verifies that deserialize(serialize(tree)) reproduces the
// same blocks with identical content, parent relationships, and sibling
// order. Collapse flags are not expected to survive (collapse is local
// presentation state).
func TestRoundTrip(t *testing.T) {
	s, doc := buildDocument(t)

	data := codec.Serialize(doc, s.FlattenAll(doc.ID))
	gotDoc, gotBlocks, err := codec.Deserialize(data)
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}

	if gotDoc.ID != doc.ID {
		t.Errorf("document id = %q, want %q", gotDoc.ID, doc.ID)
	}
	if gotDoc.Title != doc.Title {
		t.Errorf("title = %q, want %q", gotDoc.Title, doc.Title)
	}
	if gotDoc.Kind != doc.Kind {
		t.Errorf("kind = %q, want %q", gotDoc.Kind, doc.Kind)
	}

	// The collapsed block's subtree must be present: collapse is never data loss.
	if len(gotBlocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(gotBlocks))
	}

	// Ids survive the round trip via the trailing markers.
	want := s.FlattenAll(doc.ID)
	wantIDs := make(map[string]bool)
	for _, b := range want {
		wantIDs[b.ID] = true
	}
	for _, b := range gotBlocks {
		if !wantIDs[b.ID] {
			t.Errorf("block id %q not preserved", b.ID)
		}
	}

	gotShapes := shapesOf(gotBlocks)
	wantShapes := shapesOf(want)
	for i := range wantShapes {
		if gotShapes[i] != wantShapes[i] {
			t.Errorf("block %d shape = %+v, want %+v", i, gotShapes[i], wantShapes[i])
		}
	}
}

// TestRoundTrip_Idempotent verifies that re-serializing a deserialized
// document reproduces the same bytes.
func TestRoundTrip_Idempotent(t *testing.T) {
	s, doc := buildDocument(t)

	first := codec.Serialize(doc, s.FlattenAll(doc.ID))
	gotDoc, gotBlocks, err := codec.Deserialize(first)
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}
	// Deserialized timestamps round to the header's second precision, so the
	// second pass must match the first byte for byte.
	second := codec.Serialize(gotDoc, gotBlocks)
	if string(first) != string(second) {
		t.Errorf("second serialization differs:\nfirst:\n%s\nsecond:\n%s", first, second)
	}
}

// TestSerialize_Layout pins the physical layout: indentation proportional to
// depth, continuation lines one unit deeper, trailing id marker on the last
// physical line.
func TestSerialize_Layout(t *testing.T) {
	s := block.NewStore()
	doc := s.CreateDocument("Layout", block.KindNote)
	top, _ := s.CreateBlock(doc.ID, "top\ncont", "")
	kid, _ := s.CreateBlock(doc.ID, "kid", top.ID)
	d, _ := s.GetDocument(doc.ID)

	data := codec.Serialize(d, s.FlattenAll(doc.ID))
	body := string(data)

	wantLines := []string{
		"- top",
		"  cont ^" + top.ID,
		"  - kid ^" + kid.ID,
	}
	for _, want := range wantLines {
		if !strings.Contains(body, want+"\n") {
			t.Errorf("output missing line %q:\n%s", want, body)
		}
	}
}

// TestDeserialize_MissingIDsSynthesized verifies that blocks without trailing
// markers get fresh ids and the document without an id gets one too.
func TestDeserialize_MissingIDsSynthesized(t *testing.T) {
	src := []byte("---\ntitle: \"Inbox\"\n---\n- first\n- second\n")

	doc, blocks, err := codec.Deserialize(src)
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}
	if !uuidRE.MatchString(doc.ID) {
		t.Errorf("synthesized document id %q is not a UUID", doc.ID)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	for i, b := range blocks {
		if !uuidRE.MatchString(b.ID) {
			t.Errorf("block %d id %q is not a UUID", i, b.ID)
		}
		if b.Content != []string{"first", "second"}[i] {
			t.Errorf("block %d content = %q", i, b.Content)
		}
	}
	if blocks[0].ID == blocks[1].ID {
		t.Error("synthesized ids must be unique")
	}
}

// TestDeserialize_ParentResolution verifies the backward scan to the nearest
// shallower block, including the case where the nearest preceding block is a
// deeper cousin, not the parent.
func TestDeserialize_ParentResolution(t *testing.T) {
	src := []byte("---\nid: doc\n---\n" +
		"- a\n" +
		"  - a1\n" +
		"    - a11\n" +
		"  - a2\n" + // parent must be a, skipping over a11 and a1
		"- b\n")

	_, blocks, err := codec.Deserialize(src)
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}
	byContent := make(map[string]block.Block)
	for _, b := range blocks {
		byContent[b.Content] = b
	}

	if got := byContent["a2"].ParentID; got != byContent["a"].ID {
		t.Errorf("a2 parent = %q, want a", got)
	}
	if got := byContent["a11"].ParentID; got != byContent["a1"].ID {
		t.Errorf("a11 parent = %q, want a1", got)
	}
	if got := byContent["b"].ParentID; got != "" {
		t.Errorf("b parent = %q, want top level", got)
	}
	if byContent["a"].Order != 0 || byContent["b"].Order != 1 {
		t.Errorf("top-level orders = %d, %d; want 0, 1", byContent["a"].Order, byContent["b"].Order)
	}
}

// TestDeserialize_DepthJumpClamped verifies malformed indentation degrades to
// previous depth + 1 instead of failing.
func TestDeserialize_DepthJumpClamped(t *testing.T) {
	tests := []struct {
		name       string
		src        string
		wantParent string // content of expected parent of the jumped block
	}{
		{
			name:       "jump by two units",
			src:        "---\nid: doc\n---\n- a\n      - deep\n",
			wantParent: "a",
		},
		{
			name:       "leading over-indented block clamps to top level",
			src:        "---\nid: doc\n---\n    - deep\n- a\n",
			wantParent: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, blocks, err := codec.Deserialize([]byte(tt.src))
			if err != nil {
				t.Fatalf("Deserialize error = %v", err)
			}
			byContent := make(map[string]block.Block)
			for _, b := range blocks {
				byContent[b.Content] = b
			}
			deep := byContent["deep"]
			wantParentID := ""
			if tt.wantParent != "" {
				wantParentID = byContent[tt.wantParent].ID
			}
			if deep.ParentID != wantParentID {
				t.Errorf("deep parent = %q, want %q", deep.ParentID, wantParentID)
			}
		})
	}
}

// TestDeserialize_BlankLinesBetweenBlocks verifies hand-inserted blank
// separators do not become block content.
func TestDeserialize_BlankLinesBetweenBlocks(t *testing.T) {
	src := []byte("---\nid: doc\n---\n- a\n\n- b\n")

	_, blocks, err := codec.Deserialize(src)
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Content != "a" || blocks[1].Content != "b" {
		t.Errorf("contents = %q, %q; want a, b", blocks[0].Content, blocks[1].Content)
	}
}

// TestDeserialize_NoHeader verifies the only fatal parse shape.
func TestDeserialize_NoHeader(t *testing.T) {
	_, _, err := codec.Deserialize([]byte("- orphan line\n"))
	if !errors.Is(err, codec.ErrNoHeader) {
		t.Errorf("Deserialize error = %v, want ErrNoHeader", err)
	}
}

// TestDeserialize_EmptyBody verifies a header-only document parses to zero
// blocks.
func TestDeserialize_EmptyBody(t *testing.T) {
	doc, blocks, err := codec.Deserialize([]byte("---\nid: doc\ntitle: \"Empty\"\n---\n"))
	if err != nil {
		t.Fatalf("Deserialize error = %v", err)
	}
	if doc.Title != "Empty" {
		t.Errorf("title = %q, want Empty", doc.Title)
	}
	if len(blocks) != 0 {
		t.Errorf("got %d blocks, want 0", len(blocks))
	}
}

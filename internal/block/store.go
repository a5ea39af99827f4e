package block

import (
	"sort"
	"sync"
)

// Store is the authoritative in-memory collection of documents and blocks.
// The tree is modeled as a flat id-keyed map with ParentID links, so ancestry
// and cycle checks are bounded lookups rather than pointer chasing.
//
// All mutation entry points take the store lock and run to completion, so a
// structural operation never exposes a torn intermediate state (e.g. two
// siblings colliding on the same Order mid-renumber).
type Store struct {
	mu     sync.Mutex
	docs   map[string]*Document
	blocks map[string]*Block
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		docs:   make(map[string]*Document),
		blocks: make(map[string]*Block),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Documents
// ─────────────────────────────────────────────────────────────────────────────

// CreateDocument creates a new user-authored document.
func (s *Store) CreateDocument(title string, kind Kind) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := NowUTC()
	doc := &Document{
		ID:        NewID(),
		Title:     title,
		Kind:      kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.docs[doc.ID] = doc
	return *doc
}

// EnsureDocument returns the note document with the given title, creating a
// placeholder document if none exists. Used when following a cross-reference
// to a page that has not been authored yet. Idempotent.
func (s *Store) EnsureDocument(title string) Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.docs {
		if d.Title == title && d.Kind == KindNote {
			return *d
		}
	}
	now := NowUTC()
	doc := &Document{
		ID:          NewID(),
		Title:       title,
		Kind:        KindNote,
		Placeholder: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.docs[doc.ID] = doc
	return *doc
}

// PutDocument inserts or replaces a document record verbatim. Used by the
// import path, which owns metadata merging.
func (s *Store) PutDocument(doc Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := doc
	s.docs[doc.ID] = &d
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(id string) (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return *d, nil
}

// DocumentByTitle returns the document with the given title and kind.
func (s *Store) DocumentByTitle(title string, kind Kind) (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.Title == title && d.Kind == kind {
			return *d, true
		}
	}
	return Document{}, false
}

// Documents returns all documents, ordered by creation time then id for
// deterministic iteration.
func (s *Store) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// DeleteDocument removes the document and cascades to all of its blocks.
func (s *Store) DeleteDocument(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		return ErrNotFound
	}
	for bid, b := range s.blocks {
		if b.DocumentID == id {
			delete(s.blocks, bid)
		}
	}
	delete(s.docs, id)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Block reads
// ─────────────────────────────────────────────────────────────────────────────

// GetBlock returns the block with the given id.
func (s *Store) GetBlock(id string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return Block{}, ErrNotFound
	}
	return *b, nil
}

// ChildrenOf returns the children of parentID within documentID, sorted by
// Order. parentID "" selects top-level blocks.
func (s *Store) ChildrenOf(documentID, parentID string) []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	children := s.childrenLocked(documentID, parentID)
	out := make([]Block, len(children))
	for i, c := range children {
		out[i] = *c
	}
	return out
}

// DepthOf returns the nesting depth of the block (0 for top-level), walking
// ParentID links iteratively so arbitrarily deep trees cannot overflow.
func (s *Store) DepthOf(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return 0, ErrNotFound
	}
	depth := 0
	for b.ParentID != "" {
		b, ok = s.blocks[b.ParentID]
		if !ok {
			break
		}
		depth++
	}
	return depth, nil
}

// Flatten returns the depth-first, pre-order, visible block sequence for a
// document: top-level blocks by Order, then each block's children recursively
// unless the block is collapsed. Collapsed blocks contribute themselves but
// none of their descendants.
func (s *Store) Flatten(documentID string) []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flattenLocked(documentID, true)
}

// FlattenAll is Flatten ignoring collapse flags. The export path uses it so a
// collapsed block's subtree is still written to disk (collapse is presentation
// state, never data loss).
func (s *Store) FlattenAll(documentID string) []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flattenLocked(documentID, false)
}

// BlockCount returns the number of blocks in the document.
func (s *Store) BlockCount(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.blocks {
		if b.DocumentID == documentID {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────────────
// Block mutations
// ─────────────────────────────────────────────────────────────────────────────

// CreateBlock appends a new block under parentID (or at top level when
// parentID is ""), with Order = max(sibling orders)+1, or 0 with no siblings.
func (s *Store) CreateBlock(documentID, content, parentID string) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return Block{}, ErrNotFound
	}
	if parentID != "" {
		p, ok := s.blocks[parentID]
		if !ok || p.DocumentID != documentID {
			return Block{}, ErrNotFound
		}
	}

	order := 0
	if sibs := s.childrenLocked(documentID, parentID); len(sibs) > 0 {
		order = sibs[len(sibs)-1].Order + 1
	}
	return s.insertLocked(documentID, content, parentID, order), nil
}

// CreateBlockAt inserts a new block at an explicit sibling position, shifting
// later siblings to make room.
func (s *Store) CreateBlockAt(documentID, content, parentID string, order int) (Block, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return Block{}, ErrNotFound
	}
	if parentID != "" {
		p, ok := s.blocks[parentID]
		if !ok || p.DocumentID != documentID {
			return Block{}, ErrNotFound
		}
	}

	for _, sib := range s.childrenLocked(documentID, parentID) {
		if sib.Order >= order {
			sib.Order++
		}
	}
	return s.insertLocked(documentID, content, parentID, order), nil
}

// insertLocked creates the block record. Caller holds the lock and has
// already validated documentID/parentID and reserved the order slot.
func (s *Store) insertLocked(documentID, content, parentID string, order int) Block {
	now := NowUTC()
	b := &Block{
		ID:         NewID(),
		Content:    content,
		ParentID:   parentID,
		DocumentID: documentID,
		Order:      order,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.blocks[b.ID] = b
	s.touchDocLocked(documentID)
	return *b
}

// UpdateContent replaces the block's content. No structural change.
func (s *Store) UpdateContent(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	b.Content = content
	b.UpdatedAt = NowUTC()
	s.touchDocLocked(b.DocumentID)
	return nil
}

// ToggleCollapse flips the block's collapsed flag. Pure presentation flag;
// descendants stay in the store.
func (s *Store) ToggleCollapse(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	b.Collapsed = !b.Collapsed
	b.UpdatedAt = NowUTC()
	return nil
}

// DeleteBlock removes the block and its entire subtree, depth-first, then
// renumbers the remaining former siblings. Safe on a block with no children.
func (s *Store) DeleteBlock(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	docID, parentID := b.DocumentID, b.ParentID
	s.deleteSubtreeLocked(b)
	s.resequenceLocked(docID, parentID)
	s.touchDocLocked(docID)
	return nil
}

func (s *Store) deleteSubtreeLocked(b *Block) {
	for _, c := range s.childrenLocked(b.DocumentID, b.ID) {
		s.deleteSubtreeLocked(c)
	}
	delete(s.blocks, b.ID)
}

// Move re-parents the block to newParentID (may be "" for top level) and
// inserts it at newOrder, shifting later siblings of the destination parent
// to make room. Rejected with ErrCycle if newParentID is the block itself or
// one of its descendants. The vacated sibling list is renumbered unless the
// move stays within the same parent.
func (s *Store) Move(id, newParentID string, newOrder int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(id, newParentID, newOrder)
}

func (s *Store) moveLocked(id, newParentID string, newOrder int) error {
	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	if newParentID != "" {
		p, ok := s.blocks[newParentID]
		if !ok || p.DocumentID != b.DocumentID {
			return ErrNotFound
		}
		if newParentID == id || s.isDescendantLocked(id, newParentID) {
			return ErrCycle
		}
	}

	oldParentID := b.ParentID

	// Make room at the destination before placing.
	for _, sib := range s.childrenLocked(b.DocumentID, newParentID) {
		if sib.ID != id && sib.Order >= newOrder {
			sib.Order++
		}
	}
	b.ParentID = newParentID
	b.Order = newOrder
	b.UpdatedAt = NowUTC()

	if oldParentID != newParentID {
		s.resequenceLocked(b.DocumentID, oldParentID)
	}
	s.touchDocLocked(b.DocumentID)
	return nil
}

// Indent makes the block a child of its immediately-preceding sibling,
// appended as that sibling's last child. Returns ErrFirstSibling when the
// block has no preceding sibling to adopt it.
func (s *Store) Indent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	sibs := s.childrenLocked(b.DocumentID, b.ParentID)
	idx := -1
	for i, sib := range sibs {
		if sib.ID == id {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return ErrFirstSibling
	}
	adopter := sibs[idx-1]

	order := 0
	if kids := s.childrenLocked(b.DocumentID, adopter.ID); len(kids) > 0 {
		order = kids[len(kids)-1].Order + 1
	}
	return s.moveLocked(id, adopter.ID, order)
}

// Outdent promotes the block to a sibling of its current parent, positioned
// immediately after it. Former-parent siblings that came after the former
// parent are shifted up by one in the same operation, so no two blocks ever
// collide on the same Order. Returns ErrTopLevel when the block has no parent.
func (s *Store) Outdent(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.blocks[id]
	if !ok {
		return ErrNotFound
	}
	if b.ParentID == "" {
		return ErrTopLevel
	}
	former, ok := s.blocks[b.ParentID]
	if !ok {
		return ErrNotFound
	}
	return s.moveLocked(id, former.ParentID, former.Order+1)
}

// ReplaceBlocks discards every block of the document and bulk-inserts the
// given set verbatim. This is the import path's replace-based merge: no
// diffing, the parsed set wins wholesale.
func (s *Store) ReplaceBlocks(documentID string, blocks []Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[documentID]; !ok {
		return ErrNotFound
	}
	for bid, b := range s.blocks {
		if b.DocumentID == documentID {
			delete(s.blocks, bid)
		}
	}
	for i := range blocks {
		nb := blocks[i]
		nb.DocumentID = documentID
		s.blocks[nb.ID] = &nb
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers (caller holds the lock)
// ─────────────────────────────────────────────────────────────────────────────

// childrenLocked returns the live child records of parentID, sorted by Order.
func (s *Store) childrenLocked(documentID, parentID string) []*Block {
	var out []*Block
	for _, b := range s.blocks {
		if b.DocumentID == documentID && b.ParentID == parentID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

// isDescendantLocked reports whether candidate sits in ancestor's subtree.
// Walks candidate's parent chain; bounded by tree depth.
func (s *Store) isDescendantLocked(ancestorID, candidateID string) bool {
	b, ok := s.blocks[candidateID]
	if !ok {
		return false
	}
	for b.ParentID != "" {
		if b.ParentID == ancestorID {
			return true
		}
		b, ok = s.blocks[b.ParentID]
		if !ok {
			return false
		}
	}
	return false
}

// resequenceLocked renumbers the children of parentID densely so Order values
// do not drift without bound across repeated structural edits.
func (s *Store) resequenceLocked(documentID, parentID string) {
	for i, c := range s.childrenLocked(documentID, parentID) {
		c.Order = i + 1
	}
}

func (s *Store) flattenLocked(documentID string, respectCollapse bool) []Block {
	var out []Block
	var walk func(parentID string)
	walk = func(parentID string) {
		for _, c := range s.childrenLocked(documentID, parentID) {
			out = append(out, *c)
			if respectCollapse && c.Collapsed {
				continue
			}
			walk(c.ID)
		}
	}
	walk("")
	return out
}

func (s *Store) touchDocLocked(documentID string) {
	if d, ok := s.docs[documentID]; ok {
		d.UpdatedAt = NowUTC()
	}
}

// Package storage persists the block tree store in a local SQLite database.
// The database is the durable structured form of the store; the plain-text
// resources in the storage root are the portable form. The CLI hydrates the
// in-memory store from here at startup and writes back after mutations.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knotapp/knot/internal/block"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	placeholder INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blocks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	parent_id   TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	sort_order  INTEGER NOT NULL,
	collapsed   INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_blocks_document ON blocks(document_id);
CREATE INDEX IF NOT EXISTS idx_blocks_parent ON blocks(document_id, parent_id);
`

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and initializes the
// schema. Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the underlying handle.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveDocument persists the document and its complete block set in one
// transaction, replacing whatever was stored before — the same
// delete-all-then-insert shape the import merge uses, so the database never
// holds a partially-updated tree.
func (d *DB) SaveDocument(doc block.Document, blocks []block.Block) error {
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO documents (id, title, kind, placeholder, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			kind = excluded.kind,
			placeholder = excluded.placeholder,
			updated_at = excluded.updated_at`,
		doc.ID, doc.Title, string(doc.Kind), boolToInt(doc.Placeholder),
		doc.CreatedAt.Unix(), doc.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err = tx.Exec(`DELETE FROM blocks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear blocks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO blocks (id, document_id, parent_id, content, sort_order, collapsed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range blocks {
		_, err = stmt.Exec(b.ID, b.DocumentID, b.ParentID, b.Content, b.Order,
			boolToInt(b.Collapsed), b.CreatedAt.Unix(), b.UpdatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert block %s: %w", b.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeleteDocument removes the document; its blocks cascade.
func (d *DB) DeleteDocument(id string) error {
	if _, err := d.db.Exec(`DELETE FROM documents WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// LoadInto hydrates the in-memory store with every persisted document and
// block.
func (d *DB) LoadInto(store *block.Store) error {
	rows, err := d.db.Query(`SELECT id, title, kind, placeholder, created_at, updated_at FROM documents`)
	if err != nil {
		return fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docIDs []string
	for rows.Next() {
		var (
			doc              block.Document
			kind             string
			placeholder      int
			created, updated int64
		)
		if err := rows.Scan(&doc.ID, &doc.Title, &kind, &placeholder, &created, &updated); err != nil {
			return fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Kind = block.Kind(kind)
		doc.Placeholder = placeholder != 0
		doc.CreatedAt = time.Unix(created, 0).UTC()
		doc.UpdatedAt = time.Unix(updated, 0).UTC()
		store.PutDocument(doc)
		docIDs = append(docIDs, doc.ID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate documents: %w", err)
	}

	for _, docID := range docIDs {
		blocks, err := d.loadBlocks(docID)
		if err != nil {
			return err
		}
		if err := store.ReplaceBlocks(docID, blocks); err != nil {
			return fmt.Errorf("failed to load blocks of %s: %w", docID, err)
		}
	}
	return nil
}

func (d *DB) loadBlocks(documentID string) ([]block.Block, error) {
	rows, err := d.db.Query(`
		SELECT id, document_id, parent_id, content, sort_order, collapsed, created_at, updated_at
		FROM blocks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var out []block.Block
	for rows.Next() {
		var (
			b                block.Block
			collapsed        int
			created, updated int64
		)
		if err := rows.Scan(&b.ID, &b.DocumentID, &b.ParentID, &b.Content, &b.Order,
			&collapsed, &created, &updated); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		b.Collapsed = collapsed != 0
		b.CreatedAt = time.Unix(created, 0).UTC()
		b.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate blocks: %w", err)
	}
	return out, nil
}

// SaveStore persists every document currently in the store.
func (d *DB) SaveStore(store *block.Store) error {
	for _, doc := range store.Documents() {
		if err := d.SaveDocument(doc, store.FlattenAll(doc.ID)); err != nil {
			return err
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

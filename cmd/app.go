package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/knotapp/knot/internal/block"
	"github.com/knotapp/knot/internal/engine"
	"github.com/knotapp/knot/internal/storage"
	"github.com/knotapp/knot/internal/vault"
)

// App bundles the wired application: the in-memory store hydrated from the
// database, the storage-root directory, and the synchronization engine over
// both.
type App struct {
	Store  *block.Store
	DB     *storage.DB
	Dir    vault.Dir
	Engine *engine.Engine
}

// Persist writes the store's current state back to the database.
func (a *App) Persist() error {
	return a.DB.SaveStore(a.Store)
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.DB.Close()
}

// AppOpener opens a wired App for a storage root. Commands receive this
// capability rather than opening files themselves, so tests can substitute an
// in-memory application.
type AppOpener interface {
	Open(ctx context.Context, root, dbPath string) (*App, error)
}

// fileAppOpener implements AppOpener over the OS filesystem and a SQLite
// database under the storage root.
type fileAppOpener struct{}

func newDefaultAppOpener() *fileAppOpener { return &fileAppOpener{} }

// Open hydrates the store from the database at dbPath (default
// <root>/.knot/knot.db) and wires an engine over the storage root.
func (o *fileAppOpener) Open(_ context.Context, root, dbPath string) (*App, error) {
	if dbPath == "" {
		dbPath = filepath.Join(root, ".knot", "knot.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, err
	}
	store := block.NewStore()
	if err := db.LoadInto(store); err != nil {
		db.Close()
		return nil, fmt.Errorf("loading store: %w", err)
	}

	dir := vault.NewOSDir(root)
	return &App{
		Store:  store,
		DB:     db,
		Dir:    dir,
		Engine: engine.New(store, dir, engine.WithLogger(newLogger())),
	}, nil
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

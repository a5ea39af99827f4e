// Package engine orchestrates bidirectional synchronization between the
// block tree store and the plain-text resources in the storage root:
// debounced export of store changes, replace-based import of external edits,
// polling change detection, and conflict detection.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/knotapp/knot/internal/block"
	"github.com/knotapp/knot/internal/codec"
	"github.com/knotapp/knot/internal/vault"
)

const (
	defaultPollInterval = 5 * time.Second
	defaultDebounce     = 500 * time.Millisecond
)

// Engine keeps one store and one storage root eventually consistent. It is
// constructed with the storage-root capability rather than reaching for
// ambient global state, so call sites own its lifecycle and tests can
// substitute an in-memory Dir.
type Engine struct {
	store *block.Store
	dir   vault.Dir
	log   zerolog.Logger

	interval time.Duration
	debounce time.Duration

	// mu guards modTimes and pending. modTimes is the engine's private
	// last-observed modification time per resource; it is refreshed in the
	// same critical section as the corresponding write so the engine's own
	// exports never read back as external changes.
	mu       sync.Mutex
	modTimes map[string]time.Time
	pending  map[string]*time.Timer

	runMu  sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithPollInterval sets the change-detection polling interval. The interval
// trades staleness against wasted stat calls; the storage root is local and
// low-churn, so seconds-scale polling is plenty.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithDebounce sets the per-document export debounce window.
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// SetPollInterval adjusts the polling interval. Takes effect on the next
// Start.
func (e *Engine) SetPollInterval(d time.Duration) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.interval = d
}

// New constructs an engine over the given store and storage root.
func New(store *block.Store, dir vault.Dir, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		dir:      dir,
		log:      zerolog.Nop(),
		interval: defaultPollInterval,
		debounce: defaultDebounce,
		modTimes: make(map[string]time.Time),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ─────────────────────────────────────────────────────────────────────────────
// Export
// ─────────────────────────────────────────────────────────────────────────────

// ExportDocument serializes the document's current block set and writes it to
// the resource derived from the document's kind and title, then refreshes the
// cached modification time to the post-write value so the write is not
// re-imported as an external change.
func (e *Engine) ExportDocument(ctx context.Context, documentID string) error {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("export %s: %w", documentID, err)
	}
	location, name := e.resourceFor(doc)

	// The full subtree is written even under collapsed blocks.
	data := codec.Serialize(doc, e.store.FlattenAll(documentID))

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.dir.Write(ctx, location, name, data); err != nil {
		return fmt.Errorf("writing %s/%s: %w", location, name, err)
	}
	if mod, err := e.dir.Stat(ctx, location, name); err == nil {
		e.modTimes[resourceKey(location, name)] = mod
	}
	e.log.Debug().Str("doc", documentID).Str("resource", name).Msg("exported document")
	return nil
}

// ScheduleExport requests a debounced export of the document. Rapid
// successive calls for the same document coalesce into a single export that
// captures the store state as of when it actually runs, not when it was
// scheduled.
func (e *Engine) ScheduleExport(documentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.pending[documentID]; ok {
		t.Stop()
	}
	e.pending[documentID] = time.AfterFunc(e.debounce, func() {
		e.mu.Lock()
		delete(e.pending, documentID)
		e.mu.Unlock()
		if err := e.ExportDocument(context.Background(), documentID); err != nil {
			e.log.Warn().Err(err).Str("doc", documentID).Msg("debounced export failed")
		}
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Import
// ─────────────────────────────────────────────────────────────────────────────

// ImportResource reads and parses one resource and merges it into the store.
//
// If a document with the parsed identifier already exists, its block set is
// replaced wholesale (delete-all-then-bulk-insert, never a diff merge) and
// its metadata is updated field by field, preferring parsed values and
// falling back to the existing value for any field absent from the header.
// Otherwise a new document is created. Returns the document id.
func (e *Engine) ImportResource(ctx context.Context, location, name string) (string, error) {
	data, err := e.dir.Read(ctx, location, name)
	if err != nil {
		return "", fmt.Errorf("reading %s/%s: %w", location, name, err)
	}
	doc, blocks, err := codec.Deserialize(data)
	if err != nil {
		return "", fmt.Errorf("parsing %s/%s: %w", location, name, err)
	}

	if existing, err := e.store.GetDocument(doc.ID); err == nil {
		// Prefer parsed header fields, fall back to the existing record for
		// anything absent from the header.
		if doc.Title == "" {
			doc.Title = existing.Title
		}
		if doc.Kind == "" {
			doc.Kind = existing.Kind
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = existing.CreatedAt
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = existing.UpdatedAt
		}
		doc.Placeholder = existing.Placeholder
	} else {
		if doc.Kind == "" {
			doc.Kind = block.KindNote
			if location == vault.LocationJournals {
				doc.Kind = block.KindJournal
			}
		}
		if doc.Title == "" {
			doc.Title = strings.TrimSuffix(name, ".md")
		}
		now := block.NowUTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		if doc.UpdatedAt.IsZero() {
			doc.UpdatedAt = now
		}
	}

	e.store.PutDocument(doc)
	if err := e.store.ReplaceBlocks(doc.ID, blocks); err != nil {
		return "", fmt.Errorf("replacing blocks of %s: %w", doc.ID, err)
	}

	e.mu.Lock()
	if mod, err := e.dir.Stat(ctx, location, name); err == nil {
		e.modTimes[resourceKey(location, name)] = mod
	}
	e.mu.Unlock()

	e.log.Debug().Str("doc", doc.ID).Str("resource", name).Msg("imported resource")
	return doc.ID, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Full synchronization
// ─────────────────────────────────────────────────────────────────────────────

// Failure records one resource or document that could not be synchronized.
type Failure struct {
	Location string
	Name     string
	Err      error
}

// Result summarizes a FullSync pass.
type Result struct {
	Imported int
	Exported int
	Failures []Failure
}

// FullSync runs the two-phase pass: first import every resource on the
// storage root (external edits made while the app was closed win), then
// export every document in the store (documents that exist only in the store
// get written out). The order matters — importing first ensures an externally
// edited document is not clobbered by a stale in-memory export.
//
// A failing resource or document is logged and skipped; the pass always
// attempts every remaining unit of work.
func (e *Engine) FullSync(ctx context.Context) Result {
	var res Result

	for _, location := range []string{vault.LocationPages, vault.LocationJournals} {
		if err := e.dir.Ensure(ctx, location); err != nil {
			res.Failures = append(res.Failures, Failure{Location: location, Err: err})
			e.log.Warn().Err(err).Str("location", location).Msg("ensuring location failed")
			continue
		}
		entries, err := e.dir.List(ctx, location)
		if err != nil {
			res.Failures = append(res.Failures, Failure{Location: location, Err: err})
			e.log.Warn().Err(err).Str("location", location).Msg("listing location failed")
			continue
		}
		for _, entry := range entries {
			if _, err := e.ImportResource(ctx, location, entry.Name); err != nil {
				res.Failures = append(res.Failures, Failure{Location: location, Name: entry.Name, Err: err})
				e.log.Warn().Err(err).Str("resource", entry.Name).Msg("import failed")
				continue
			}
			res.Imported++
		}
	}

	for _, doc := range e.store.Documents() {
		if err := e.ExportDocument(ctx, doc.ID); err != nil {
			res.Failures = append(res.Failures, Failure{Name: doc.Title, Err: err})
			e.log.Warn().Err(err).Str("doc", doc.ID).Msg("export failed")
			continue
		}
		res.Exported++
	}

	return res
}

// ─────────────────────────────────────────────────────────────────────────────
// Change detection
// ─────────────────────────────────────────────────────────────────────────────

// Start launches the polling change-detection loop. Idempotent: calling Start
// on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	go func(stop <-chan struct{}, done chan<- struct{}) {
		defer close(done)
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.poll(ctx)
			}
		}
	}(e.stopCh, e.doneCh)
}

// Stop halts the polling loop and cancels pending debounced exports.
// Idempotent; an in-flight import or export completes, but no new cycle
// begins after Stop returns.
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	<-e.doneCh
	e.stopCh, e.doneCh = nil, nil

	e.mu.Lock()
	for id, t := range e.pending {
		t.Stop()
		delete(e.pending, id)
	}
	e.mu.Unlock()
}

// poll enumerates the watched locations and imports any resource whose
// reported modification time has advanced past the cached observation.
func (e *Engine) poll(ctx context.Context) {
	for _, location := range []string{vault.LocationPages, vault.LocationJournals} {
		entries, err := e.dir.List(ctx, location)
		if err != nil {
			e.log.Warn().Err(err).Str("location", location).Msg("poll listing failed")
			continue
		}
		for _, entry := range entries {
			e.mu.Lock()
			cached, seen := e.modTimes[resourceKey(location, entry.Name)]
			e.mu.Unlock()
			if seen && !entry.ModTime.After(cached) {
				continue
			}
			if _, err := e.ImportResource(ctx, location, entry.Name); err != nil {
				e.log.Warn().Err(err).Str("resource", entry.Name).Msg("poll import failed")
			}
		}
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Conflicts
// ─────────────────────────────────────────────────────────────────────────────

// Policy selects which side wins when a document and its resource have
// diverged.
type Policy int

const (
	// FileWins re-imports the resource, overwriting in-store state. Default.
	FileWins Policy = iota
	// StoreWins force-exports the in-store state over the resource.
	StoreWins
)

// Conflicted reports whether the document's resource was modified after the
// document's in-store UpdatedAt — the check a caller makes at the moment a
// write-back is attempted. A missing resource is not a conflict, and neither
// is a state the engine itself produced or already imported (tracked via the
// cached modification time). The timestamp comparison runs at second
// granularity, the precision the store's timestamps carry.
func (e *Engine) Conflicted(ctx context.Context, documentID string) (bool, error) {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return false, err
	}
	location, name := e.resourceFor(doc)
	mod, err := e.dir.Stat(ctx, location, name)
	if err != nil {
		return false, nil
	}
	e.mu.Lock()
	cached, seen := e.modTimes[resourceKey(location, name)]
	e.mu.Unlock()
	if seen && !mod.After(cached) {
		return false, nil
	}
	return mod.Truncate(time.Second).After(doc.UpdatedAt), nil
}

// Resolve applies the given policy to a diverged document. The engine
// provides the primitive; choosing a policy is the caller's decision.
func (e *Engine) Resolve(ctx context.Context, documentID string, policy Policy) error {
	doc, err := e.store.GetDocument(documentID)
	if err != nil {
		return err
	}
	if policy == StoreWins {
		return e.ExportDocument(ctx, documentID)
	}
	location, name := e.resourceFor(doc)
	_, err = e.ImportResource(ctx, location, name)
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Resource naming
// ─────────────────────────────────────────────────────────────────────────────

// resourceFor derives the storage location and resource name for a document:
// journals go under the journals location, everything else under pages, named
// by sanitized title (document id when the title is empty).
func (e *Engine) resourceFor(doc block.Document) (location, name string) {
	location = vault.LocationPages
	if doc.Kind == block.KindJournal {
		location = vault.LocationJournals
	}
	stem := SanitizeTitle(doc.Title)
	if stem == "" {
		stem = doc.ID
	}
	return location, stem + ".md"
}

// SanitizeTitle maps a document title to a filesystem-safe resource stem.
// Characters that are illegal or unreliable in file names are replaced with
// "-"; surrounding whitespace and dots are trimmed.
func SanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r < 0x20, r == '<', r == '>', r == ':', r == '"', r == '/', r == '\\', r == '|', r == '?', r == '*':
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), " .")
}

func resourceKey(location, name string) string {
	return location + "/" + name
}

package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// OSDir implements Dir over a real directory tree rooted at a single path.
// Writes are atomic: data goes to a temp file in the same location and is
// renamed into place, so a concurrent reader never observes a partial write.
type OSDir struct {
	root string
}

// NewOSDir returns a Dir rooted at root. The root itself is created on first
// use; missing locations are created on demand, not treated as errors.
func NewOSDir(root string) *OSDir {
	return &OSDir{root: root}
}

// Root returns the root path.
func (d *OSDir) Root() string { return d.root }

// List enumerates the .md resources in location with their modification
// times. A missing location lists as empty.
func (d *OSDir) List(_ context.Context, location string) ([]Entry, error) {
	dirents, err := os.ReadDir(filepath.Join(d.root, location))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", location, err)
	}
	var out []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".md") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{Name: de.Name(), ModTime: info.ModTime()})
	}
	return out, nil
}

// Read returns the resource's bytes.
func (d *OSDir) Read(_ context.Context, location, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(d.root, location, name))
}

// Write creates or replaces the resource atomically via temp file rename.
func (d *OSDir) Write(ctx context.Context, location, name string, data []byte) error {
	if err := d.Ensure(ctx, location); err != nil {
		return err
	}
	dir := filepath.Join(d.root, location)
	tmp, err := os.CreateTemp(dir, ".knot-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", name, err)
	}
	if err = os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", name, err)
	}
	return nil
}

// Remove deletes the resource.
func (d *OSDir) Remove(_ context.Context, location, name string) error {
	return os.Remove(filepath.Join(d.root, location, name))
}

// Ensure creates the location if absent. Idempotent.
func (d *OSDir) Ensure(_ context.Context, location string) error {
	return os.MkdirAll(filepath.Join(d.root, location), 0o755)
}

// Stat reports the resource's last-modified time.
func (d *OSDir) Stat(_ context.Context, location, name string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(d.root, location, name))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

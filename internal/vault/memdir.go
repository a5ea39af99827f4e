package vault

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"
)

// MemDir is an in-memory Dir used by engine and command tests. Modification
// times are driven by an injectable clock so tests can simulate external
// edits that are strictly newer than a previous observation.
type MemDir struct {
	mu        sync.Mutex
	locations map[string]map[string]memResource
	now       func() time.Time
}

type memResource struct {
	data    []byte
	modTime time.Time
}

// NewMemDir returns an empty in-memory Dir using the wall clock.
func NewMemDir() *MemDir {
	return &MemDir{
		locations: make(map[string]map[string]memResource),
		now:       time.Now,
	}
}

// SetClock replaces the clock used to stamp writes.
func (d *MemDir) SetClock(now func() time.Time) { d.now = now }

// List enumerates resources in location, sorted by name.
func (d *MemDir) List(_ context.Context, location string) ([]Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Entry
	for name, res := range d.locations[location] {
		out = append(out, Entry{Name: name, ModTime: res.modTime})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Read returns the resource's bytes, or os.ErrNotExist.
func (d *MemDir) Read(_ context.Context, location, name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.locations[location][name]
	if !ok {
		return nil, os.ErrNotExist
	}
	return append([]byte(nil), res.data...), nil
}

// Write creates or replaces the resource, stamping the current clock time.
func (d *MemDir) Write(_ context.Context, location, name string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locations[location] == nil {
		d.locations[location] = make(map[string]memResource)
	}
	d.locations[location][name] = memResource{
		data:    append([]byte(nil), data...),
		modTime: d.now(),
	}
	return nil
}

// WriteAt is Write with an explicit modification time, for tests that need
// to fabricate an older or newer external edit.
func (d *MemDir) WriteAt(location, name string, data []byte, modTime time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locations[location] == nil {
		d.locations[location] = make(map[string]memResource)
	}
	d.locations[location][name] = memResource{
		data:    append([]byte(nil), data...),
		modTime: modTime,
	}
}

// Remove deletes the resource, or returns os.ErrNotExist.
func (d *MemDir) Remove(_ context.Context, location, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.locations[location][name]; !ok {
		return os.ErrNotExist
	}
	delete(d.locations[location], name)
	return nil
}

// Ensure creates the location if absent. Idempotent.
func (d *MemDir) Ensure(_ context.Context, location string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locations[location] == nil {
		d.locations[location] = make(map[string]memResource)
	}
	return nil
}

// Stat reports the resource's modification time, or os.ErrNotExist.
func (d *MemDir) Stat(_ context.Context, location, name string) (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	res, ok := d.locations[location][name]
	if !ok {
		return time.Time{}, os.ErrNotExist
	}
	return res.modTime, nil
}

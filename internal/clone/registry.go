package clone

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by a Registry for an unknown key.
var ErrNotFound = errors.New("clone: record not found")

// Registry persists clone records. Implementations must normalize keys
// with Key.Normalized.
type Registry interface {
	// Get returns the record for key or ErrNotFound.
	Get(ctx context.Context, key Key) (Record, error)

	// Put inserts or replaces a record.
	Put(ctx context.Context, rec Record) error

	// Remove drops a record. Removing an unknown key is not an error.
	Remove(ctx context.Context, key Key) error

	// List returns every record of app ordered by role, then index.
	List(ctx context.Context, app string) ([]Record, error)
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu      sync.RWMutex
	records map[Key]Record
}

var _ Registry = (*MemoryRegistry)(nil)

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{records: make(map[Key]Record)}
}

func (r *MemoryRegistry) Get(_ context.Context, key Key) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[key.Normalized()]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRegistry) Put(_ context.Context, rec Record) error {
	rec.Key = rec.Key.Normalized()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.Key] = rec
	return nil
}

func (r *MemoryRegistry) Remove(_ context.Context, key Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key.Normalized())
	return nil
}

func (r *MemoryRegistry) List(_ context.Context, app string) ([]Record, error) {
	app = normalize(app)
	r.mu.RLock()
	var out []Record
	for k, rec := range r.records {
		if k.AppID == app {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	SortRecords(out)
	return out, nil
}

// SortRecords orders records by app, role, then index.
func SortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Key, recs[j].Key
		if a.AppID != b.AppID {
			return a.AppID < b.AppID
		}
		if a.Role != b.Role {
			return a.Role < b.Role
		}
		return a.Index < b.Index
	})
}

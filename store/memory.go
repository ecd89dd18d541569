package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Documents are copied through a bson
// round trip on every read and write, so callers never share maps with the store.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (m *MemoryStore) Create(ctx context.Context, collection, id string, fields Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	doc, err := clone(fields)
	if err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	doc[IDField] = id

	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collection(collection)
	if _, exists := coll[id]; exists {
		return "", fmt.Errorf("%s/%s: %w", collection, id, ErrConflict)
	}
	coll[id] = doc
	return id, nil
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	doc, ok := m.collections[collection][id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return clone(doc)
}

func (m *MemoryStore) Update(ctx context.Context, collection, id string, fields Document) error {
	return m.UpdateIf(ctx, collection, id, nil, fields)
}

func (m *MemoryStore) UpdateIf(ctx context.Context, collection, id string, match, fields Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	patch, err := clone(fields)
	if err != nil {
		return err
	}
	delete(patch, IDField)

	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	for k, want := range match {
		if !equal(doc[k], want) {
			return fmt.Errorf("%s/%s: %w", collection, id, ErrStale)
		}
	}
	for k, v := range patch {
		doc[k] = v
	}
	return nil
}

func (m *MemoryStore) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.collections[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	current, _ := toInt64(doc[field])
	if current+delta < 0 {
		return nil
	}
	doc[field] = current + delta
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coll := m.collections[collection]
	if _, ok := coll[id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(coll, id)
	return nil
}

func (m *MemoryStore) QueryEqual(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Document
	for _, id := range m.sortedIDs(collection) {
		doc := m.collections[collection][id]
		if !equal(doc[field], value) {
			continue
		}
		c, err := clone(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MemoryStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Document, 0, len(m.collections[collection]))
	for _, id := range m.sortedIDs(collection) {
		c, err := clone(m.collections[collection][id])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// caller holds m.mu
func (m *MemoryStore) collection(name string) map[string]Document {
	coll, ok := m.collections[name]
	if !ok {
		coll = make(map[string]Document)
		m.collections[name] = coll
	}
	return coll
}

// caller holds m.mu
func (m *MemoryStore) sortedIDs(collection string) []string {
	ids := make([]string, 0, len(m.collections[collection]))
	for id := range m.collections[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func clone(doc Document) (Document, error) {
	if doc == nil {
		return Document{}, nil
	}
	out := Document{}
	if err := Decode(doc, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func equal(stored, want any) bool {
	if a, ok := toInt64(stored); ok {
		if b, ok := toInt64(want); ok {
			return a == b
		}
	}
	// named string types (statuses, categories) are stored as plain strings
	if v := reflect.ValueOf(want); v.Kind() == reflect.String {
		want = v.String()
	}
	return reflect.DeepEqual(stored, want)
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

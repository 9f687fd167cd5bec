package emulator

import (
	"context"
	"sort"
	"sync"
)

type memCollection struct {
	order   []string
	records map[string]Record
}

// Memory is an in memory Repository.
type Memory struct {
	mux         sync.RWMutex
	collections map[string]*memCollection
}

// NewMemory creates empty Memory repository.
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) collection(name string) *memCollection {
	c, ok := m.collections[name]
	if !ok {
		c = &memCollection{records: make(map[string]Record)}
		m.collections[name] = c
	}
	return c
}

// Insert stores a new record.
func (m *Memory) Insert(_ context.Context, collection string, rec Record) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	c := m.collection(collection)
	if _, ok := c.records[rec.ID]; ok {
		return ErrConflict
	}
	c.records[rec.ID] = rec
	c.order = append(c.order, rec.ID)
	return nil
}

// Get reads a record.
func (m *Memory) Get(_ context.Context, collection, id string) (Record, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec, ok := c.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

// List reads records in insertion order and returns the total count of matching records.
func (m *Memory) List(_ context.Context, collection string, filter Filter, offset, limit int) ([]Record, int, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return []Record{}, 0, nil
	}
	matched := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		rec := c.records[id]
		ok, err := Matches(rec.Body, filter)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	from, to := window(len(matched), offset, limit)
	return matched[from:to], len(matched), nil
}

// Replace overwrites an existing record keeping its creation time.
func (m *Memory) Replace(_ context.Context, collection string, rec Record) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	old, ok := c.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	rec.CreatedAt = old.CreatedAt
	c.records[rec.ID] = rec
	return nil
}

// Delete removes a record.
func (m *Memory) Delete(_ context.Context, collection, id string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return ErrNotFound
	}
	if _, ok := c.records[id]; !ok {
		return ErrNotFound
	}
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// Truncate removes all records of the collection.
func (m *Memory) Truncate(_ context.Context, collection string) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	delete(m.collections, collection)
	return nil
}

// Collections lists names of non empty collections.
func (m *Memory) Collections(_ context.Context) ([]string, error) {
	m.mux.RLock()
	defer m.mux.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name, c := range m.collections {
		if len(c.order) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Disconnect is a no-op.
func (m *Memory) Disconnect(context.Context) error {
	return nil
}

package prefs

import (
	"context"
	"sync"
)

// MemoryStore is a concurrency-safe in-memory [Store].
//
// It records every Save call so tests can assert on persisted writes, and
// can be told to fail saves via [MemoryStore.FailWith].
type MemoryStore struct {
	mu     sync.Mutex
	values map[key]string
	saves  [][]Preference
	err    error
}

// NewMemoryStore returns an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[key]string)}
}

// Get implements [Store].
func (m *MemoryStore) Get(category, name string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key{category, name}]
	return v, ok
}

// Set stores a value directly, bypassing save bookkeeping.
func (m *MemoryStore) Set(category, name, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key{category, name}] = value
}

// Save implements [Store].
func (m *MemoryStore) Save(ctx context.Context, userID string, prefs []Preference) error {
	if userID == "" {
		return ErrUserRequired
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	batch := make([]Preference, len(prefs))
	for i, p := range prefs {
		p.UserID = userID
		batch[i] = p
		m.values[key{p.Category, p.Name}] = p.Value
	}
	m.saves = append(m.saves, batch)
	return nil
}

// List implements [Lister]. Values set with [MemoryStore.Set] carry no
// user id.
func (m *MemoryStore) List(ctx context.Context) ([]Preference, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Preference, 0, len(m.values))
	for k, v := range m.values {
		out = append(out, Preference{Category: k.category, Name: k.name, Value: v})
	}
	sortPreferences(out)
	return out, nil
}

// FailWith makes subsequent saves return err. Pass nil to clear.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Saves returns a copy of every successful Save batch in order.
func (m *MemoryStore) Saves() [][]Preference {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]Preference, len(m.saves))
	for i, b := range m.saves {
		out[i] = append([]Preference(nil), b...)
	}
	return out
}

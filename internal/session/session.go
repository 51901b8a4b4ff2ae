// Package session keeps one form.State per browser session.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/gometeo/weathermail/internal/form"
)

// Store persists form state between requests of the same visitor.
type Store interface {
	// Load reports false when nothing is stored for id.
	Load(ctx context.Context, id string) (form.State, bool, error)
	// Update applies fn to the stored state (zero if absent) and writes the
	// result back atomically with respect to other Updates of id.
	Update(ctx context.Context, id string, fn func(*form.State)) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like something NewID produced.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.Mutex
	states map[string]form.State
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]form.State)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (form.State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	return st, ok, nil
}

func (m *MemoryStore) Update(_ context.Context, id string, fn func(*form.State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.states[id]
	fn(&st)
	m.states[id] = st
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, id)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

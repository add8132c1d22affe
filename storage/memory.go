package storage

import (
	"context"
	"sync"

	"repricelab/domain"
)

// MemoryStore keeps boards in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	boards map[string]domain.Board
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{boards: make(map[string]domain.Board)}
}

func (m *MemoryStore) LoadBoard(ctx context.Context, id string) (domain.Board, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.boards[id]
	if !ok {
		return domain.Board{}, domain.ErrBoardNotFound
	}
	return b.Clone(), nil
}

func (m *MemoryStore) SaveBoard(ctx context.Context, b domain.Board, expected int64) (domain.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.boards[b.ID].Version != expected {
		return domain.Board{}, domain.ErrConcurrencyConflict
	}
	b.Version = expected + 1
	m.boards[b.ID] = b.Clone()
	return b, nil
}

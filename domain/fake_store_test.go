package domain

import (
	"context"
	"sync"
)

type fakeStore struct {
	mu        sync.Mutex
	boards    map[string]Board
	saves     int
	conflicts int
	err       error
}

func (f *fakeStore) LoadBoard(ctx context.Context, id string) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.boards[id]
	if !ok {
		return Board{}, ErrBoardNotFound
	}
	return b.Clone(), nil
}

func (f *fakeStore) SaveBoard(ctx context.Context, b Board, expected int64) (Board, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Board{}, f.err
	}
	if f.conflicts > 0 {
		f.conflicts--
		// Simulate another writer landing first.
		cur := f.boards[b.ID]
		cur.ID = b.ID
		cur.Version++
		f.boards[b.ID] = cur
		return Board{}, ErrConcurrencyConflict
	}
	if f.boards == nil {
		f.boards = map[string]Board{}
	}
	if cur := f.boards[b.ID]; cur.Version != expected {
		return Board{}, ErrConcurrencyConflict
	}
	b.Version = expected + 1
	f.boards[b.ID] = b.Clone()
	f.saves++
	return b, nil
}

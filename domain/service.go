package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultApplyAttempts = 5

// BoardStorage persists boards with optimistic concurrency.
type BoardStorage interface {
	// LoadBoard returns ErrBoardNotFound when nothing has been saved yet.
	LoadBoard(ctx context.Context, id string) (Board, error)
	// SaveBoard stores b if the persisted version still equals expected and
	// returns the board with its new version. A mismatch is
	// ErrConcurrencyConflict.
	SaveBoard(ctx context.Context, b Board, expected int64) (Board, error)
}

// BoardService applies commands to stored boards.
type BoardService struct {
	st       BoardStorage
	seed     func(id string) Board
	attempts int
	now      func() time.Time
}

// NewBoardService returns a service that starts unknown boards from SeedBoard.
func NewBoardService(st BoardStorage) *BoardService {
	return &BoardService{st: st, seed: SeedBoard, attempts: defaultApplyAttempts, now: time.Now}
}

// Board returns the stored board, or the seed board if it was never saved.
func (s *BoardService) Board(ctx context.Context, id string) (Board, error) {
	b, err := s.st.LoadBoard(ctx, id)
	if errors.Is(err, ErrBoardNotFound) {
		return s.seed(id), nil
	}
	if err != nil {
		return Board{}, err
	}
	return b, nil
}

// Apply runs cmds in order against the board and saves the result. The batch
// is atomic: a failing command discards the whole batch. On a concurrency
// conflict the batch is replayed against the fresh board.
func (s *BoardService) Apply(ctx context.Context, id string, cmds []Command) (Board, []Event, error) {
	for attempt := 1; ; attempt++ {
		current, err := s.Board(ctx, id)
		if err != nil {
			return Board{}, nil, err
		}
		next := current
		events := make([]Event, 0, len(cmds))
		for _, cmd := range cmds {
			var ev Event
			next, ev, err = Apply(next, cmd)
			if err != nil {
				return current, nil, err
			}
			events = append(events, ev)
		}
		if len(events) == 0 {
			return current, events, nil
		}
		next.UpdatedAt = s.now().UTC()

		saved, err := s.st.SaveBoard(ctx, next, current.Version)
		if err == nil {
			return saved, events, nil
		}
		if !errors.Is(err, ErrConcurrencyConflict) {
			return current, nil, err
		}
		if attempt >= s.attempts {
			log.WithFields(log.Fields{"board": id, "attempts": attempt}).Error("board save kept conflicting")
			return current, nil, fmt.Errorf("board %s: %w", id, err)
		}
		log.WithFields(log.Fields{"board": id, "attempt": attempt}).Debug("board version conflict, retrying")
	}
}

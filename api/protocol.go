package api

import "repricelab/domain"

const postCommandMaxSize = 64 * 1024 // 64 KiB

// GET /admin/api/boards/:board response body
type boardResponse struct {
	Board   domain.Board           `json:"board"`
	Columns []domain.ColumnSummary `json:"columns"`
}

// POST /admin/api/boards/:board/commands response body
type postCommandResponse struct {
	Board           *domain.Board  `json:"board,omitempty"`
	Events          []domain.Event `json:"events,omitempty"`
	IdempotencyKeys []string       `json:"idempotencyKeys,omitempty"`
	Skipped         []string       `json:"skipped,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func newBoardResponse(b domain.Board) boardResponse {
	return boardResponse{Board: b, Columns: b.Summary()}
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"repricelab/domain"
)

const (
	boardRowKey = "board"
	edmInt64    = "Edm.Int64"
)

// tableClient is the subset of *aztables.Client used by TableStore.
type tableClient interface {
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
}

// TableStore keeps each board as a single Azure Table entity. The entity
// ETag guards concurrent saves.
type TableStore struct {
	boards tableClient
}

// NewTableStore creates a TableStore from the given connection string.
func NewTableStore(connStr, boardsTable string) (*TableStore, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	return &TableStore{boards: svc.NewClient(boardsTable)}, nil
}

type boardEntity struct {
	PartitionKey  string    `json:"PartitionKey"`
	RowKey        string    `json:"RowKey"`
	Tasks         string    `json:"Tasks"`
	Version       int64     `json:"Version,string"`
	VersionType   string    `json:"Version@odata.type"`
	UpdatedAt     time.Time `json:"UpdatedAt"`
	UpdatedAtType string    `json:"UpdatedAt@odata.type"`
}

func encodeBoardEntity(b domain.Board) ([]byte, error) {
	tasks, err := json.Marshal(b.Tasks)
	if err != nil {
		return nil, err
	}
	return json.Marshal(boardEntity{
		PartitionKey:  b.ID,
		RowKey:        boardRowKey,
		Tasks:         string(tasks),
		Version:       b.Version,
		VersionType:   edmInt64,
		UpdatedAt:     b.UpdatedAt.UTC(),
		UpdatedAtType: "Edm.DateTime",
	})
}

func decodeBoardEntity(data []byte) (domain.Board, error) {
	var ent boardEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Board{}, err
	}
	b := domain.Board{ID: ent.PartitionKey, Version: ent.Version, UpdatedAt: ent.UpdatedAt, Tasks: []domain.Task{}}
	if ent.Tasks != "" {
		if err := json.Unmarshal([]byte(ent.Tasks), &b.Tasks); err != nil {
			return domain.Board{}, fmt.Errorf("board %s tasks: %w", ent.PartitionKey, err)
		}
	}
	return b, nil
}

func (s *TableStore) get(ctx context.Context, id string) (domain.Board, azcore.ETag, error) {
	resp, err := s.boards.GetEntity(ctx, id, boardRowKey, nil)
	if err != nil {
		if responseStatus(err) == http.StatusNotFound {
			return domain.Board{}, "", domain.ErrBoardNotFound
		}
		return domain.Board{}, "", err
	}
	b, err := decodeBoardEntity(resp.Value)
	if err != nil {
		return domain.Board{}, "", err
	}
	return b, resp.ETag, nil
}

// LoadBoard retrieves the board entity.
func (s *TableStore) LoadBoard(ctx context.Context, id string) (domain.Board, error) {
	b, _, err := s.get(ctx, id)
	return b, err
}

// SaveBoard inserts the first version of a board or replaces the entity when
// its stored version still matches expected.
func (s *TableStore) SaveBoard(ctx context.Context, b domain.Board, expected int64) (domain.Board, error) {
	b.Version = expected + 1
	payload, err := encodeBoardEntity(b)
	if err != nil {
		return domain.Board{}, err
	}

	cur, etag, err := s.get(ctx, b.ID)
	switch {
	case errors.Is(err, domain.ErrBoardNotFound):
		if expected != 0 {
			return domain.Board{}, domain.ErrConcurrencyConflict
		}
		if _, err := s.boards.AddEntity(ctx, payload, nil); err != nil {
			if responseStatus(err) == http.StatusConflict {
				return domain.Board{}, domain.ErrConcurrencyConflict
			}
			return domain.Board{}, err
		}
		return b, nil
	case err != nil:
		return domain.Board{}, err
	}

	if cur.Version != expected {
		return domain.Board{}, domain.ErrConcurrencyConflict
	}
	_, err = s.boards.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
	if err != nil {
		if responseStatus(err) == http.StatusPreconditionFailed {
			return domain.Board{}, domain.ErrConcurrencyConflict
		}
		return domain.Board{}, err
	}
	return b, nil
}

func responseStatus(err error) int {
	var respErr *azcore.ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode
	}
	return 0
}

package api

import (
	"context"

	"repricelab/domain"
	"repricelab/notify"
)

// Boards abstracts the board service for handlers.
type Boards interface {
	Board(ctx context.Context, id string) (domain.Board, error)
	Apply(ctx context.Context, id string, cmds []domain.Command) (domain.Board, []domain.Event, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate commands.
type Deduper interface {
	// AddMany records the keys and reports, per key, whether it was new.
	AddMany(ctx context.Context, scope string, keys []string) ([]bool, error)
	// Remove deletes previously added keys, used when applying the commands fails.
	Remove(ctx context.Context, scope string, keys ...string) error
}

// Notifier hands notifications to the delivery pipeline.
type Notifier interface {
	Dispatch(topic string, n notify.Notification)
}

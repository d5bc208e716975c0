package services

import (
	"context"
	"database/sql"
)

// EventPublisher publishes domain events as part of a database transaction
type EventPublisher interface {
	PublishInTx(ctx context.Context, tx *sql.Tx, event any) error
}

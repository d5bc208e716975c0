package messaging

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	watermillSQL "github.com/ThreeDotsLabs/watermill-sql/v2/pkg/sql"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/components/forwarder"
	"github.com/jmoiron/sqlx"
)

// outboxTopic is the SQL table topic the forwarder drains
const outboxTopic = "events_to_forward"

// Marshaler encodes events as JSON named after their struct
var Marshaler = cqrs.JSONMarshaler{
	GenerateName: cqrs.StructName,
}

// OutboxPublisher writes domain events into the outbox table of the current transaction
type OutboxPublisher struct {
	logger watermill.LoggerAdapter
}

// NewOutboxPublisher creates a new OutboxPublisher
func NewOutboxPublisher(logger watermill.LoggerAdapter) *OutboxPublisher {
	return &OutboxPublisher{logger: logger}
}

// PublishInTx stores the event in the outbox as part of tx.
// It is only forwarded to subscribers once tx commits.
func (p *OutboxPublisher) PublishInTx(ctx context.Context, tx *sql.Tx, event any) error {
	sqlPublisher, err := watermillSQL.NewPublisher(
		tx,
		watermillSQL.PublisherConfig{
			SchemaAdapter: watermillSQL.DefaultPostgreSQLSchema{},
		},
		p.logger,
	)
	if err != nil {
		return fmt.Errorf("creating sql publisher: %w", err)
	}

	publisher := forwarder.NewPublisher(sqlPublisher, forwarder.PublisherConfig{
		ForwarderTopic: outboxTopic,
	})

	eventBus, err := cqrs.NewEventBusWithConfig(CorrelationPublisherDecorator{Publisher: publisher}, cqrs.EventBusConfig{
		GeneratePublishTopic: func(params cqrs.GenerateEventPublishTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: Marshaler,
		Logger:    p.logger,
	})
	if err != nil {
		return fmt.Errorf("creating sql event bus: %w", err)
	}

	if err := eventBus.Publish(ctx, event); err != nil {
		return fmt.Errorf("publishing event: %w", err)
	}
	return nil
}

// InitializeOutbox creates the outbox and offsets tables
func InitializeOutbox(db *sqlx.DB, logger watermill.LoggerAdapter) error {
	subscriber, err := newOutboxSubscriber(db, logger)
	if err != nil {
		return err
	}
	defer subscriber.Close()

	if err := subscriber.SubscribeInitialize(outboxTopic); err != nil {
		return fmt.Errorf("initialising outbox: %w", err)
	}
	return nil
}

func newOutboxSubscriber(db *sqlx.DB, logger watermill.LoggerAdapter) (*watermillSQL.Subscriber, error) {
	subscriber, err := watermillSQL.NewSubscriber(db, watermillSQL.SubscriberConfig{
		SchemaAdapter:  watermillSQL.DefaultPostgreSQLSchema{},
		OffsetsAdapter: watermillSQL.DefaultPostgreSQLOffsetsAdapter{},
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating outbox subscriber: %w", err)
	}
	return subscriber, nil
}

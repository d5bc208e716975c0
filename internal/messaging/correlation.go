package messaging

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/lithammer/shortuuid/v3"
)

type correlationKey struct{}

// ContextWithCorrelationID stores the correlation id of a request or message
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the stored correlation id, or a generated one
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationKey{}).(string); ok && id != "" {
		return id
	}
	return NewCorrelationID()
}

// NewCorrelationID generates a short correlation id
func NewCorrelationID() string {
	return "gen_" + shortuuid.New()
}

// CorrelationPublisherDecorator copies the correlation id of each message's
// context into its metadata before publishing
type CorrelationPublisherDecorator struct {
	message.Publisher
}

func (c CorrelationPublisherDecorator) Publish(topic string, messages ...*message.Message) error {
	for _, msg := range messages {
		if middleware.MessageCorrelationID(msg) == "" {
			middleware.SetCorrelationID(CorrelationIDFromContext(msg.Context()), msg)
		}
	}
	return c.Publisher.Publish(topic, messages...)
}

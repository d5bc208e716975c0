package messaging

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/components/cqrs"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RouterDeps holds what the event consumers need
type RouterDeps struct {
	Logger        watermill.LoggerAdapter
	Log           *logrus.Logger
	RedisClient   *redis.Client
	ConsumerGroup string
	RefundQueue   RefundQueue
}

// Router consumes domain events from Redis streams
type Router struct {
	*message.Router
}

// NewRouter creates the event router with its handlers
func NewRouter(deps RouterDeps) (*Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, deps.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating router: %w", err)
	}

	router.AddMiddleware(middleware.Recoverer)
	router.AddMiddleware(correlationIDMiddleware)
	router.AddMiddleware(handlerLogMiddleware(deps.Log))
	router.AddMiddleware(middleware.Retry{
		MaxRetries:      5,
		InitialInterval: time.Millisecond * 100,
		MaxInterval:     time.Second,
		Multiplier:      2,
		Logger:          deps.Logger,
	}.Middleware)

	ep, err := cqrs.NewEventProcessorWithConfig(router, cqrs.EventProcessorConfig{
		SubscriberConstructor: func(params cqrs.EventProcessorSubscriberConstructorParams) (message.Subscriber, error) {
			return redisstream.NewSubscriber(redisstream.SubscriberConfig{
				Client:        deps.RedisClient,
				ConsumerGroup: deps.ConsumerGroup + "." + params.HandlerName,
			}, deps.Logger)
		},
		GenerateSubscribeTopic: func(params cqrs.EventProcessorGenerateSubscribeTopicParams) (string, error) {
			return params.EventName, nil
		},
		Marshaler: Marshaler,
		Logger:    deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating event processor: %w", err)
	}

	handlers := []cqrs.EventHandler{
		cqrs.NewEventHandler("log-booking-confirmed", handleLogBookingConfirmed(deps.Log)),
		cqrs.NewEventHandler("queue-refund-follow-up", handleRefundFollowUp(deps.RefundQueue, deps.Log)),
	}
	if err := ep.AddHandlers(handlers...); err != nil {
		return nil, fmt.Errorf("adding handlers: %w", err)
	}

	return &Router{router}, nil
}

func correlationIDMiddleware(next message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		correlationID := middleware.MessageCorrelationID(msg)
		if correlationID == "" {
			correlationID = NewCorrelationID()
		}
		msg.SetContext(ContextWithCorrelationID(msg.Context(), correlationID))

		return next(msg)
	}
}

func handlerLogMiddleware(logger *logrus.Logger) message.HandlerMiddleware {
	return func(next message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			log := logger.WithFields(logrus.Fields{
				"message_uuid":   msg.UUID,
				"handler":        message.HandlerNameFromCtx(msg.Context()),
				"correlation_id": middleware.MessageCorrelationID(msg),
			})
			log.Debug("Handling a message")

			msgs, err := next(msg)
			if err != nil {
				log.WithError(err).Error("Message handling error")
			}
			return msgs, err
		}
	}
}

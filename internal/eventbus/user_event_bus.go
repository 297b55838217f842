// User event fanout.
//
// After the webhook pipeline applies a mutation to the local user store, the
// UserEventBus broadcasts a mirror event on a RabbitMQ fanout exchange so
// other services can react to user lifecycle changes without consuming the
// identity provider's webhooks themselves. Fanout semantics: every queue
// bound to the exchange receives its own copy of every event; consumers own
// their queues and bindings.
//
// Published event types:
//   - user.created: a new user record was persisted
//   - user.updated: an existing record was overwritten
//   - user.deleted: a record was removed
//
// The bus mirrors state, it does not own it. Publishing is best-effort from
// the webhook pipeline's point of view: a broker outage never fails a
// delivery that the store already applied.

package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Vadebaba/imageefy-ai/internal/config"
	"github.com/Vadebaba/imageefy-ai/internal/repository"
	"github.com/google/uuid"
)

const sourceServiceID = "ai.imageefy.usersync"

// UserEventBus provides a type-safe API for user lifecycle events.
type UserEventBus struct {
	bus    EventBus
	logger *slog.Logger
}

// NewUserEventBus creates a new UserEventBus instance.
func NewUserEventBus(cfg *config.Config, logger *slog.Logger) (*UserEventBus, error) {
	rabbitMQConnString := fmt.Sprintf("amqp://%s:%s@%s:%d/",
		cfg.RabbitMQConfig.RabbitMQUser,
		cfg.RabbitMQConfig.RabbitMQPass,
		cfg.RabbitMQConfig.RabbitMQAddress,
		cfg.RabbitMQConfig.RabbitMQPort,
	)

	rabbitMQBus, err := NewRabbitMQEventBus(
		rabbitMQConnString,
		cfg.RabbitMQConfig.Exchange,
		FanoutExchangeType,
	)
	if err != nil {
		logger.Error("Failed to initialize RabbitMQ event bus", slog.Any("error", err))
		return nil, fmt.Errorf("failed to initialize RabbitMQ event bus: %w", err)
	}

	return &UserEventBus{
		bus:    rabbitMQBus,
		logger: logger,
	}, nil
}

// PublishUserCreated broadcasts a user created mirror event.
func (b *UserEventBus) PublishUserCreated(ctx context.Context, user repository.User, requestID string) error {
	return b.publish(ctx, "user.created", user, requestID)
}

// PublishUserUpdated broadcasts a user updated mirror event.
func (b *UserEventBus) PublishUserUpdated(ctx context.Context, user repository.User, requestID string) error {
	return b.publish(ctx, "user.updated", user, requestID)
}

// PublishUserDeleted broadcasts a user deleted mirror event.
func (b *UserEventBus) PublishUserDeleted(ctx context.Context, user repository.User, requestID string) error {
	return b.publish(ctx, "user.deleted", user, requestID)
}

func (b *UserEventBus) publish(ctx context.Context, eventType string, user repository.User, requestID string) error {
	event := UserEvent{
		User: user,
		Metadata: UserEventMetadata{
			EventType:       eventType,
			Timestamp:       time.Now(),
			SourceServiceID: sourceServiceID,
			RequestID:       requestID,
		},
	}

	// Routing key is ignored by the fanout exchange.
	routingKey := ""
	b.logger.Info("Publishing user lifecycle event",
		slog.String("event_type", eventType),
		slog.String("user_id", user.ID.String()),
		slog.String("clerk_id", user.ClerkID),
		slog.String("request_id", requestID),
	)

	return b.bus.Publish(ctx, routingKey, event)
}

// Close releases the underlying broker connection.
func (b *UserEventBus) Close() {
	b.bus.Close()
}

// GenerateRequestID generates a unique request ID for event correlation.
func GenerateRequestID() string {
	return uuid.New().String()
}

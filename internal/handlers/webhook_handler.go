package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vadebaba/imageefy-ai/internal/eventbus"
	"github.com/Vadebaba/imageefy-ai/internal/repository"
	"github.com/Vadebaba/imageefy-ai/internal/usersync"
	"github.com/Vadebaba/imageefy-ai/internal/webhook"
	"github.com/google/uuid"
)

const (
	defaultProcessingTimeout = 15 * time.Second
	maxBodyBytes             = 1 << 20
)

// StoreProvider hands the handler a user store scoped to the request. In
// production it wraps the pooled connection leased by the database
// middleware; tests substitute an in-memory store.
type StoreProvider func(ctx context.Context) (usersync.Store, error)

// MetadataPublisher writes our internal user id back to the identity
// provider after a create. Satisfied by clerk.Client.
type MetadataPublisher interface {
	PublishInternalID(ctx context.Context, clerkID string, internalID uuid.UUID) error
}

// UserEventPublisher fans applied mutations out to downstream consumers.
// Satisfied by eventbus.UserEventBus.
type UserEventPublisher interface {
	PublishUserCreated(ctx context.Context, user repository.User, requestID string) error
	PublishUserUpdated(ctx context.Context, user repository.User, requestID string) error
	PublishUserDeleted(ctx context.Context, user repository.User, requestID string) error
}

// IdentityLocker serializes processing per external identity. Satisfied by
// locker.Locker.
type IdentityLocker interface {
	Acquire(ctx context.Context, identity string) func()
}

// WebhookHandler ingests Clerk user lifecycle deliveries: verify the
// signature, parse the envelope, apply the mutation, answer with a status
// the provider's redelivery loop understands. Each delivery is processed
// statelessly; idempotence of the store operations is what makes
// at-least-once delivery safe.
type WebhookHandler struct {
	Logger   *slog.Logger
	Verifier *webhook.Verifier
	Stores   StoreProvider
	Metadata MetadataPublisher
	Events   UserEventPublisher
	Locks    IdentityLocker
	Timeout  time.Duration
}

func (wh *WebhookHandler) RegisterHandlers(router *http.ServeMux) {
	router.HandleFunc("POST /api/webhooks/clerk", wh.HandleClerkWebhook)
}

type syncResponse struct {
	Message string           `json:"message"`
	User    *repository.User `json:"user,omitempty"`
}

func (wh *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	timeout := wh.Timeout
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		wh.Logger.Error("Failed to read webhook body", slog.Any("error", err))
		writeError(w, http.StatusBadRequest, "Could not read the request body")
		return
	}

	delivery := webhook.Delivery{
		ID:        r.Header.Get(webhook.HeaderDeliveryID),
		Timestamp: r.Header.Get(webhook.HeaderTimestamp),
		Signature: r.Header.Get(webhook.HeaderSignature),
		Body:      body,
	}
	if err := wh.Verifier.Verify(delivery); err != nil {
		wh.Logger.Warn("Rejected webhook delivery",
			slog.String("delivery_id", delivery.ID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadRequest, "Webhook verification failed")
		return
	}

	event, err := webhook.ParseEvent(body)
	if err != nil {
		wh.Logger.Warn("Failed to parse webhook envelope",
			slog.String("delivery_id", delivery.ID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadRequest, "Could not parse the event payload")
		return
	}

	// Event types outside the user lifecycle are acknowledged as-is;
	// anything but a 200 would make the provider redeliver them forever.
	if event.Kind == webhook.KindUnhandled {
		wh.Logger.Info("Acknowledged unhandled event kind",
			slog.String("delivery_id", delivery.ID),
		)
		w.WriteHeader(http.StatusOK)
		return
	}

	clerkID := event.Data.ID
	requestID := eventbus.GenerateRequestID()
	logger := wh.Logger.With(
		slog.String("delivery_id", delivery.ID),
		slog.String("event_type", string(event.Kind)),
		slog.String("clerk_id", clerkID),
		slog.String("request_id", requestID),
	)

	if wh.Locks != nil {
		release := wh.Locks.Acquire(ctx, clerkID)
		defer release()
	}

	store, err := wh.Stores(ctx)
	if err != nil {
		logger.Error("Failed to obtain user store", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "We could not reach the user store, please retry")
		return
	}
	service := usersync.NewService(store)

	w.Header().Set("Content-Type", "application/json")

	switch event.Kind {
	case webhook.KindUserCreated:
		wh.handleCreated(ctx, w, logger, service, event, requestID)
	case webhook.KindUserUpdated:
		wh.handleUpdated(ctx, w, logger, service, event, requestID)
	case webhook.KindUserDeleted:
		wh.handleDeleted(ctx, w, logger, service, clerkID, requestID)
	}
}

func (wh *WebhookHandler) handleCreated(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, service *usersync.Service, event webhook.Event, requestID string) {
	user, err := service.Create(ctx, event.Data)
	if err != nil {
		logger.Error("Failed to create user record", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "We could not create this user, please retry")
		return
	}

	// The record is already persisted; the metadata write-back and the
	// mirror event are best-effort and never turn this into a failure.
	if wh.Metadata != nil {
		if err := wh.Metadata.PublishInternalID(ctx, user.ClerkID, user.ID); err != nil {
			logger.Error("User persisted but metadata write-back failed",
				slog.String("user_id", user.ID.String()),
				slog.Any("error", err),
			)
		}
	}
	if wh.Events != nil {
		if err := wh.Events.PublishUserCreated(ctx, user, requestID); err != nil {
			logger.Error("Failed to publish user mirror event", slog.Any("error", err))
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(syncResponse{Message: "OK", User: &user})
}

func (wh *WebhookHandler) handleUpdated(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, service *usersync.Service, event webhook.Event, requestID string) {
	user, err := service.Update(ctx, event.Data.ID, event.Data)
	if errors.Is(err, usersync.ErrNotFound) {
		// Update arrived before its create, or for a user we never knew.
		// A 500 makes the provider redeliver; once the create lands the
		// redelivered update applies cleanly.
		logger.Warn("Update for unknown user, leaving to redelivery")
		writeError(w, http.StatusInternalServerError, "No record for this user yet, please retry")
		return
	}
	if err != nil {
		logger.Error("Failed to update user record", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "We could not update this user, please retry")
		return
	}

	if wh.Events != nil {
		if err := wh.Events.PublishUserUpdated(ctx, user, requestID); err != nil {
			logger.Error("Failed to publish user mirror event", slog.Any("error", err))
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(syncResponse{Message: "OK", User: &user})
}

func (wh *WebhookHandler) handleDeleted(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, service *usersync.Service, clerkID, requestID string) {
	user, err := service.Delete(ctx, clerkID)
	if err != nil {
		logger.Error("Failed to delete user record", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "We could not delete this user, please retry")
		return
	}

	if user != nil && wh.Events != nil {
		if err := wh.Events.PublishUserDeleted(ctx, *user, requestID); err != nil {
			logger.Error("Failed to publish user mirror event", slog.Any("error", err))
		}
	}
	if user == nil {
		logger.Info("Delete for unknown user, acknowledged as no-op")
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(syncResponse{Message: "OK", User: user})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

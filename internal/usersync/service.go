// Package usersync applies identity provider lifecycle events to the local
// user store. Every operation is keyed by the provider's stable user id and
// is idempotent, because the provider delivers at least once and in no
// particular order.
package usersync

import (
	"context"
	"errors"

	"github.com/Vadebaba/imageefy-ai/internal/repository"
	"github.com/Vadebaba/imageefy-ai/internal/webhook"
	"github.com/jackc/pgx/v5"
)

// Sentinel values stored in place of absent payload fields. Downstream
// consumers assume total records, so no column is ever left empty-by-accident.
const (
	DefaultEmail    = "no-email@example.com"
	DefaultUsername = "Anonymous"
	DefaultName     = "Unknown"
)

// ErrNotFound is returned by Update when no record matches the external
// identity. Updates never originate records: a partial payload must not
// become a full row.
var ErrNotFound = errors.New("usersync: no user record for external identity")

// Store is the slice of the repository the service needs. The production
// implementation is repository.Queries; tests supply in-memory fakes.
// Implementations must report a missing record as pgx.ErrNoRows.
type Store interface {
	CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error)
	UpdateUser(ctx context.Context, arg repository.UpdateUserParams) (repository.User, error)
	DeleteUser(ctx context.Context, clerkID string) (repository.User, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create persists a new user from the payload, defaulting absent fields.
// A duplicate delivery returns the already-persisted record unchanged; the
// store's atomic upsert guarantees at most one record per external identity
// even when duplicate deliveries race.
func (s *Service) Create(ctx context.Context, payload webhook.UserPayload) (repository.User, error) {
	return s.store.CreateUser(ctx, repository.CreateUserParams{
		ClerkID:   payload.ID,
		Email:     withDefault(payload.Email(), DefaultEmail),
		Username:  withDefault(payload.Username, DefaultUsername),
		FirstName: withDefault(payload.FirstName, DefaultName),
		LastName:  withDefault(payload.LastName, DefaultName),
		Photo:     payload.ImageURL,
	})
}

// Update overwrites the record matching the external identity with the
// payload's fields, applying the same defaults as Create for cleared ones.
// The stored email is only replaced when the payload carries an address.
func (s *Service) Update(ctx context.Context, clerkID string, payload webhook.UserPayload) (repository.User, error) {
	params := repository.UpdateUserParams{
		ClerkID:   clerkID,
		Username:  withDefault(payload.Username, DefaultUsername),
		FirstName: withDefault(payload.FirstName, DefaultName),
		LastName:  withDefault(payload.LastName, DefaultName),
		Photo:     payload.ImageURL,
	}
	if email := payload.Email(); email != "" {
		params.Email = &email
	}

	user, err := s.store.UpdateUser(ctx, params)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.User{}, ErrNotFound
	}
	return user, err
}

// Delete removes the record matching the external identity and returns it.
// Deleting an unknown identity is a successful no-op (nil record), so
// duplicate and late deletion deliveries acknowledge cleanly.
func (s *Service) Delete(ctx context.Context, clerkID string) (*repository.User, error) {
	user, err := s.store.DeleteUser(ctx, clerkID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func withDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

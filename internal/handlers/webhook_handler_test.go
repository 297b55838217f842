package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/Vadebaba/imageefy-ai/internal/handlers"
	"github.com/Vadebaba/imageefy-ai/internal/repository"
	"github.com/Vadebaba/imageefy-ai/internal/usersync"
	"github.com/Vadebaba/imageefy-ai/internal/webhook"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

var testNow = time.Unix(1700000000, 0)

// memoryStore mimics the repository contract in memory, including the
// idempotent-upsert behavior of CreateUser and pgx.ErrNoRows for misses.
type memoryStore struct {
	users map[string]repository.User
}

func newMemoryStore() *memoryStore {
	return &memoryStore{users: map[string]repository.User{}}
}

func (s *memoryStore) CreateUser(_ context.Context, arg repository.CreateUserParams) (repository.User, error) {
	if existing, ok := s.users[arg.ClerkID]; ok {
		return existing, nil
	}
	user := repository.User{
		ID:        uuid.New(),
		ClerkID:   arg.ClerkID,
		Email:     arg.Email,
		Username:  arg.Username,
		FirstName: arg.FirstName,
		LastName:  arg.LastName,
		Photo:     arg.Photo,
	}
	s.users[arg.ClerkID] = user
	return user, nil
}

func (s *memoryStore) UpdateUser(_ context.Context, arg repository.UpdateUserParams) (repository.User, error) {
	user, ok := s.users[arg.ClerkID]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	if arg.Email != nil {
		user.Email = *arg.Email
	}
	user.Username = arg.Username
	user.FirstName = arg.FirstName
	user.LastName = arg.LastName
	user.Photo = arg.Photo
	s.users[arg.ClerkID] = user
	return user, nil
}

func (s *memoryStore) DeleteUser(_ context.Context, clerkID string) (repository.User, error) {
	user, ok := s.users[clerkID]
	if !ok {
		return repository.User{}, pgx.ErrNoRows
	}
	delete(s.users, clerkID)
	return user, nil
}

type recordingPublisher struct {
	calls []string
	err   error
}

func (p *recordingPublisher) PublishInternalID(_ context.Context, clerkID string, internalID uuid.UUID) error {
	p.calls = append(p.calls, clerkID+"="+internalID.String())
	return p.err
}

func newTestHandler(t *testing.T, store *memoryStore, metadata *recordingPublisher) *handlers.WebhookHandler {
	t.Helper()
	verifier, err := webhook.NewVerifier(webhook.VerifierConfig{
		Secret: "whsec_" + base64.StdEncoding.EncodeToString(testKey),
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)

	handler := &handlers.WebhookHandler{
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Verifier: verifier,
		Stores: func(context.Context) (usersync.Store, error) {
			return store, nil
		},
	}
	if metadata != nil {
		handler.Metadata = metadata
	}
	return handler
}

func signedRequest(id string, body []byte) *http.Request {
	ts := strconv.FormatInt(testNow.Unix(), 10)
	mac := hmac.New(sha256.New, testKey)
	fmt.Fprintf(mac, "%s.%s.", id, ts)
	mac.Write(body)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set(webhook.HeaderDeliveryID, id)
	req.Header.Set(webhook.HeaderTimestamp, ts)
	req.Header.Set(webhook.HeaderSignature, "v1,"+base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return req
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) (string, *repository.User) {
	t.Helper()
	var resp struct {
		Message string           `json:"message"`
		User    *repository.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Message, resp.User
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	body := []byte(`{"type":"user.created","data":{"id":"u_1"}}`)
	req := signedRequest("evt_1", body)
	req.Header.Set(webhook.HeaderSignature, "v1,"+base64.StdEncoding.EncodeToString([]byte("forged")))

	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, store.users, "a rejected delivery must not mutate the store")
}

func TestWebhookRejectsMissingDeliveryHeaders(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	req := signedRequest("evt_1", []byte(`{"type":"user.created","data":{"id":"u_1"}}`))
	req.Header.Del(webhook.HeaderTimestamp)

	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, store.users)
}

func TestWebhookRejectsMalformedEnvelope(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", []byte(`so not json`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Empty(t, store.users)
}

func TestWebhookCreatesUser(t *testing.T) {
	store := newMemoryStore()
	metadata := &recordingPublisher{}
	handler := newTestHandler(t, store, metadata)

	body := []byte(`{"type":"user.created","data":{"id":"u_1","email_addresses":[{"email_address":"a@b.com"}]}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))

	require.Equal(t, http.StatusOK, rr.Code)
	message, user := decodeResponse(t, rr)
	assert.Equal(t, "OK", message)
	require.NotNil(t, user)
	assert.Equal(t, "a@b.com", user.Email)
	assert.Equal(t, usersync.DefaultUsername, user.Username)
	assert.Equal(t, usersync.DefaultName, user.FirstName)

	require.Len(t, metadata.calls, 1)
	assert.Equal(t, "u_1="+user.ID.String(), metadata.calls[0])
}

func TestWebhookCreateReplayReturnsSameRecord(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	body := []byte(`{"type":"user.created","data":{"id":"u_1","email_addresses":[{"email_address":"a@b.com"}]}}`)

	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))
	require.Equal(t, http.StatusOK, rr.Code)
	_, first := decodeResponse(t, rr)
	require.NotNil(t, first)

	rr = httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))
	require.Equal(t, http.StatusOK, rr.Code)
	_, second := decodeResponse(t, rr)
	require.NotNil(t, second)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, store.users, 1)
}

func TestWebhookCreateSucceedsWhenMetadataPublishFails(t *testing.T) {
	store := newMemoryStore()
	metadata := &recordingPublisher{err: assert.AnError}
	handler := newTestHandler(t, store, metadata)

	body := []byte(`{"type":"user.created","data":{"id":"u_1"}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))

	// The record is persisted before the write-back; a publish failure
	// must not be reported as a failed creation.
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, store.users, 1)
}

func TestWebhookUpdateUnknownUserAsksForRedelivery(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	body := []byte(`{"type":"user.updated","data":{"id":"u_ghost","username":"ghost"}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Empty(t, store.users, "an update must never originate a record")
}

func TestWebhookUpdatesUser(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	created := []byte(`{"type":"user.created","data":{"id":"u_1","username":"ada","email_addresses":[{"email_address":"ada@example.com"}]}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", created))
	require.Equal(t, http.StatusOK, rr.Code)

	updated := []byte(`{"type":"user.updated","data":{"id":"u_1","username":"countess","image_url":"https://img.example.com/new.png"}}`)
	rr = httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_2", updated))

	require.Equal(t, http.StatusOK, rr.Code)
	message, user := decodeResponse(t, rr)
	assert.Equal(t, "OK", message)
	require.NotNil(t, user)
	assert.Equal(t, "countess", user.Username)
	assert.Equal(t, "https://img.example.com/new.png", user.Photo)
	assert.Equal(t, "ada@example.com", user.Email, "update without addresses keeps the stored email")
}

func TestWebhookDeletesUser(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	created := []byte(`{"type":"user.created","data":{"id":"u_1"}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", created))
	require.Equal(t, http.StatusOK, rr.Code)

	deleted := []byte(`{"type":"user.deleted","data":{"id":"u_1","deleted":true}}`)
	rr = httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_2", deleted))

	require.Equal(t, http.StatusOK, rr.Code)
	message, user := decodeResponse(t, rr)
	assert.Equal(t, "OK", message)
	require.NotNil(t, user)
	assert.Equal(t, "u_1", user.ClerkID)
	assert.Empty(t, store.users)
}

func TestWebhookDeleteUnknownUserIsNoOp(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	body := []byte(`{"type":"user.deleted","data":{"id":"u_ghost","deleted":true}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))

	require.Equal(t, http.StatusOK, rr.Code)
	message, user := decodeResponse(t, rr)
	assert.Equal(t, "OK", message)
	assert.Nil(t, user)
}

func TestWebhookAcknowledgesUnhandledKinds(t *testing.T) {
	store := newMemoryStore()
	handler := newTestHandler(t, store, nil)

	body := []byte(`{"type":"organization.created","data":{"id":"org_1"}}`)
	rr := httptest.NewRecorder()
	handler.HandleClerkWebhook(rr, signedRequest("evt_1", body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Body.Bytes(), "unhandled kinds acknowledge with an empty body")
	assert.Empty(t, store.users)
}

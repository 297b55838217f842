// Package clerk is a minimal client for the Clerk Backend API, covering the
// single write-back this service performs: storing our internal user id in
// the Clerk user's public metadata so the two systems can cross-reference.
package clerk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const DefaultAPIURL = "https://api.clerk.com/v1"

// ErrPublish wraps any transport or API failure while writing metadata.
var ErrPublish = errors.New("clerk: metadata publish failed")

type Client struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewClient builds a Backend API client. baseURL may be empty, in which
// case the public Clerk API is used; tests point it at a local server.
func NewClient(secretKey, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL:   baseURL,
		secretKey: secretKey,
		client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// PublishInternalID writes the internal record id into the Clerk user's
// public metadata under the "userId" key. It is invoked after a successful
// local create and must not be treated as part of that create's outcome.
func (c *Client) PublishInternalID(ctx context.Context, clerkID string, internalID uuid.UUID) error {
	payload, err := json.Marshal(map[string]any{
		"public_metadata": map[string]string{
			"userId": internalID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}

	url := fmt.Sprintf("%s/users/%s/metadata", c.baseURL, clerkID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: unexpected status %d", ErrPublish, resp.StatusCode)
	}
	return nil
}

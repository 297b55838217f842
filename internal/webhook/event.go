package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind discriminates the event envelope. Every envelope decodes to exactly
// one kind; types outside the user lifecycle decode to KindUnhandled so the
// dispatcher can acknowledge them without guessing.
type Kind string

const (
	KindUserCreated Kind = "user.created"
	KindUserUpdated Kind = "user.updated"
	KindUserDeleted Kind = "user.deleted"
	KindUnhandled   Kind = "unhandled"
)

// ErrMalformedEnvelope is returned when the verified body is not valid JSON
// or lacks the fields a recognized event kind requires.
var ErrMalformedEnvelope = errors.New("webhook: malformed event envelope")

// EmailAddress is one entry of the payload's email address list. The first
// entry is the canonical address.
type EmailAddress struct {
	EmailAddress string `json:"email_address"`
}

// UserPayload is the event data for user lifecycle events. Everything but
// ID is optional; deleted events carry only the ID.
type UserPayload struct {
	ID             string         `json:"id"`
	Username       string         `json:"username"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	ImageURL       string         `json:"image_url"`
	EmailAddresses []EmailAddress `json:"email_addresses"`
}

// Email returns the canonical email address, or "" when the payload
// carries none.
func (p UserPayload) Email() string {
	if len(p.EmailAddresses) == 0 {
		return ""
	}
	return p.EmailAddresses[0].EmailAddress
}

// Event is the typed result of parsing a verified delivery body.
type Event struct {
	Kind Kind
	Data UserPayload
}

// ParseEvent decodes verified body bytes into an Event. Unknown event types
// are not an error: they yield KindUnhandled, and the caller is expected to
// acknowledge them so the provider does not redeliver forever.
func ParseEvent(body []byte) (Event, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if envelope.Type == "" {
		return Event{}, fmt.Errorf("%w: missing event type", ErrMalformedEnvelope)
	}

	switch kind := Kind(envelope.Type); kind {
	case KindUserCreated, KindUserUpdated, KindUserDeleted:
		var payload UserPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
		}
		if payload.ID == "" {
			return Event{}, fmt.Errorf("%w: %s event without a user id", ErrMalformedEnvelope, kind)
		}
		return Event{Kind: kind, Data: payload}, nil
	default:
		return Event{Kind: KindUnhandled}, nil
	}
}

package eventbus

import (
	"time"

	"github.com/Vadebaba/imageefy-ai/internal/repository"
)

// UserEventMetadata describes the event occurrence itself.
type UserEventMetadata struct {
	EventType       string    `json:"event_type"`
	Timestamp       time.Time `json:"timestamp"`
	SourceServiceID string    `json:"source_service_id"`
	RequestID       string    `json:"request_id"`
}

// UserEvent mirrors one applied user store mutation to downstream
// consumers. It carries the full record as persisted, not the raw payload
// the identity provider delivered.
type UserEvent struct {
	User     repository.User   `json:"user"`
	Metadata UserEventMetadata `json:"meta"`
}

package ingest

import (
	"encoding/json"
	"time"
)

// EventPost is the JSON body of POST /events.
type EventPost struct {
	ApplicationID      string          `json:"application_id"`
	EventID             string          `json:"event_id"`
	ApplicationSecret   string          `json:"application_secret"`
	EventType           string          `json:"event_type"`
	Payload             string          `json:"payload"` // base64-encoded
	PayloadContentType  string          `json:"payload_content_type"`
	Metadata            json.RawMessage `json:"metadata,omitempty"`
	OccurredAt          time.Time       `json:"occurred_at"`
	Labels              json.RawMessage `json:"labels"`
}

// EventCreated is the 201 response body.
type EventCreated struct {
	ApplicationID string    `json:"application_id"`
	EventID       string    `json:"event_id"`
	ReceivedAt    time.Time `json:"received_at"`
}

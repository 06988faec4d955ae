package api

import "encoding/json"

// PushResponse is the body returned by POST: the generated child key.
type PushResponse struct {
	Name string `json:"name"`
}

// Stream event names sent by the database.
const (
	EventPut         = "put"
	EventPatch       = "patch"
	EventKeepAlive   = "keep-alive"
	EventCancel      = "cancel"
	EventAuthRevoked = "auth_revoked"
)

// StreamEvent is one server-sent event from a streaming GET.
type StreamEvent struct {
	// Event is the event name, one of the Event constants.
	Event string
	// Path is relative to the streamed location; "/" is the location itself.
	Path string
	// Data is the new value at Path. It is "null" when the value was removed.
	Data json.RawMessage
}

// streamPayload is the JSON carried in the data line of put and patch events.
type streamPayload struct {
	Path string          `json:"path"`
	Data json.RawMessage `json:"data"`
}

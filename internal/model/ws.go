package model

import "encoding/json"

type EventType string

const (
	EventTypeInitialData  EventType = "initial_data"
	EventTypeOrderCreated EventType = "order_created"
	EventTypeOrderUpdated EventType = "order_updated"
	EventTypeOrderDeleted EventType = "order_deleted"

	// EventTypeOrderSucceeded is the name the order backend broadcasts for a
	// newly paid order; it is handled exactly like order_created.
	EventTypeOrderSucceeded EventType = "order_succeeded"
)

// --- WebSocket Messages ---

// Frame is the raw envelope of every inbound feed message.
type Frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"` // Keep raw to decode per event type
}

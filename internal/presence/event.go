package presence

import (
	"encoding/json"
	"fmt"
)

// Event types pushed to clients.
const (
	EventMessageReceived = "message_received"
	EventMatched         = "matched"
	EventMessagesRead    = "messages_read"
	EventAck             = "ack"
	EventError           = "error"
	EventPong            = "pong"
)

// Event is one live notification. Payload is pre-encoded so the same bytes go
// to every subscriber and survive the Redis relay unchanged.
type Event struct {
	Type    string          `json:"type"`
	Room    RoomID          `json:"room_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEvent encodes payload into an Event.
func NewEvent(typ string, room RoomID, payload any) (Event, error) {
	ev := Event{Type: typ, Room: room}
	if payload == nil {
		return ev, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	ev.Payload = raw
	return ev, nil
}

// Decode unmarshals the payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

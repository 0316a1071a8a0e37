package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// wireMessage mirrors the provider's JSON message shape. IDs arrive as either
// numbers or strings depending on the endpoint, and older payloads carry
// "timestamp" instead of "created_at".
type wireMessage struct {
	ID             json.RawMessage `json:"id"`
	ConversationID json.RawMessage `json:"conversation_id"`
	PhoneNumber    string          `json:"phone_number"`
	Direction      string          `json:"direction"`
	Content        string          `json:"content"`
	Type           string          `json:"type"`
	Status         string          `json:"status"`
	CreatedAt      string          `json:"created_at"`
	Timestamp      string          `json:"timestamp"`
}

// DecodeMessage parses a provider message payload into the canonical form.
// Direction synonyms and flexible id encodings are resolved here so the rest
// of the system never sees them. A message without an id is an error; a
// message without a usable time falls back to epoch 0 rather than failing.
func DecodeMessage(data []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("failed to decode message payload: %w", err)
	}

	id := flexString(w.ID)
	if id == "" {
		return Message{}, fmt.Errorf("message payload has no id")
	}

	return Message{
		ID:             id,
		ConversationID: flexString(w.ConversationID),
		PhoneNumber:    w.PhoneNumber,
		Direction:      NormalizeDirection(w.Direction),
		Content:        w.Content,
		Type:           w.Type,
		Status:         MessageStatus(w.Status),
		CreatedAt:      parseWireTime(w.CreatedAt, w.Timestamp),
	}, nil
}

// flexString reads a JSON value that may be a string or a number.
func flexString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}

	return ""
}

// parseWireTime resolves created_at, falling back to timestamp and finally
// to epoch 0. Missing time data must not crash ingestion.
func parseWireTime(createdAt, timestamp string) time.Time {
	for _, candidate := range []string{createdAt, timestamp} {
		if candidate == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339Nano, candidate); err == nil {
			return t
		}
		if t, err := time.Parse(time.RFC3339, candidate); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}

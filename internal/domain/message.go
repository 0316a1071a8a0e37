package domain

import (
	"strings"
	"time"
)

// Direction is the canonical travel direction of a message. Raw provider
// payloads use several synonyms; they are normalized once at the ingestion
// boundary via NormalizeDirection.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// NormalizeDirection maps provider synonyms onto the canonical values.
// Anything that is not recognizably inbound is treated as outbound so that
// junk values can never extend the customer service window.
func NormalizeDirection(raw string) Direction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "inbound", "incoming":
		return DirectionInbound
	default:
		return DirectionOutbound
	}
}

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

// statusRank orders the delivery lifecycle. Unknown statuses rank below
// pending so any recognized status wins over them.
func statusRank(s MessageStatus) int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return -1
	}
}

// CanAdvanceTo reports whether a status transition moves forward. Failed is
// terminal; every other transition must strictly increase rank.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	if s == StatusFailed {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return statusRank(next) > statusRank(s)
}

// Message is a single timeline entry. ID is the server-assigned identity;
// locally created drafts carry a client temp id until the server confirms
// them (see IsTemp).
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	PhoneNumber    string        `json:"phone_number"`
	Direction      Direction     `json:"direction"`
	Content        string        `json:"content"`
	Type           string        `json:"type"`
	Status         MessageStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
}

const TempIDPrefix = "temp-"

func (m Message) IsTemp() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

package domain

import "time"

type ConversationStatus string

const (
	ConversationPending  ConversationStatus = "pending"
	ConversationActive   ConversationStatus = "active"
	ConversationResolved ConversationStatus = "resolved"
)

// Conversation is the list-level summary supplied by the upstream REST API.
// It is read-only here; the console never mutates it.
type Conversation struct {
	ID            string             `json:"id"`
	PhoneNumber   string             `json:"phone_number"`
	ContactName   string             `json:"contact_name"`
	IsGroup       bool               `json:"is_group"`
	Status        ConversationStatus `json:"status"`
	AssignedTo    string             `json:"assigned_to"`
	UnreadCount   int                `json:"unread_count"`
	LastMessageAt time.Time          `json:"last_message_at"`
	CreatedAt     time.Time          `json:"created_at"`
}

// LastActivity is the sort key for the inbox: whichever of last message time
// and creation time is later.
func (c Conversation) LastActivity() time.Time {
	if c.LastMessageAt.After(c.CreatedAt) {
		return c.LastMessageAt
	}
	return c.CreatedAt
}

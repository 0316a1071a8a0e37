package domain

import "time"

// SessionWindow is the derived outbound-eligibility state for one
// conversation. MinutesRemaining is nil when no inbound message exists yet
// (the window is open with no deadline).
type SessionWindow struct {
	ConversationID   string     `json:"conversationId"`
	LastInboundAt    *time.Time `json:"lastInboundAt,omitempty"`
	IsOpen           bool       `json:"isOpen"`
	MinutesRemaining *int       `json:"minutesRemaining,omitempty"`
}

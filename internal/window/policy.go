package window

import (
	"math"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
)

// DefaultDuration is the provider-enforced customer service window: outbound
// free-form messages are only allowed within this period after the
// customer's last inbound message.
const DefaultDuration = 24 * time.Hour

// Policy derives outbound eligibility from a message timeline. Evaluate is a
// pure function of its inputs; no I/O, no clock reads.
type Policy struct {
	Duration time.Duration
}

func NewPolicy(duration time.Duration) Policy {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return Policy{Duration: duration}
}

// Evaluate computes the window state at the given instant. With no inbound
// message the window is open with no deadline (MinutesRemaining nil). Once
// the newest inbound message is older than the window duration, the window
// is closed with zero minutes remaining.
func (p Policy) Evaluate(conversationID string, messages []domain.Message, now time.Time) domain.SessionWindow {
	var lastInbound time.Time
	for _, m := range messages {
		if m.Direction != domain.DirectionInbound {
			continue
		}
		if m.CreatedAt.After(lastInbound) {
			lastInbound = m.CreatedAt
		}
	}

	if lastInbound.IsZero() {
		return domain.SessionWindow{
			ConversationID: conversationID,
			IsOpen:         true,
		}
	}

	elapsed := now.Sub(lastInbound)
	if elapsed >= p.Duration {
		zero := 0
		return domain.SessionWindow{
			ConversationID:   conversationID,
			LastInboundAt:    &lastInbound,
			IsOpen:           false,
			MinutesRemaining: &zero,
		}
	}

	minutes := int(math.Round((p.Duration - elapsed).Minutes()))
	return domain.SessionWindow{
		ConversationID:   conversationID,
		LastInboundAt:    &lastInbound,
		IsOpen:           true,
		MinutesRemaining: &minutes,
	}
}

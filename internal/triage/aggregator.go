package triage

import (
	"sort"
	"strings"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
)

type Tab string

const (
	TabAll    Tab = "all"
	TabUnread Tab = "unread"
	TabGroups Tab = "groups"
)

// Query selects and orders conversations for the inbox. Text matches
// case-insensitively against phone number or contact name.
type Query struct {
	Text string
	Tab  Tab
}

// View is a conversation summary with its derived triage flags.
type View struct {
	domain.Conversation
	NeedsAttention bool `json:"needs_attention"`
	Overdue        bool `json:"overdue"`
	WindowOpen     bool `json:"window_open"`
}

// Aggregator derives list-level triage state over conversation summaries.
// It is pure: no I/O, no clock reads outside explicit now parameters.
type Aggregator struct {
	OverdueAfter time.Duration
}

func NewAggregator(overdueAfter time.Duration) Aggregator {
	if overdueAfter <= 0 {
		overdueAfter = 24 * time.Hour
	}
	return Aggregator{OverdueAfter: overdueAfter}
}

// Filter applies the query and returns conversations ordered by last
// activity, newest first. Ties are broken by id for a deterministic order.
func (a Aggregator) Filter(conversations []domain.Conversation, q Query) []domain.Conversation {
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	out := make([]domain.Conversation, 0, len(conversations))
	for _, c := range conversations {
		if !matchesTab(c, q.Tab) {
			continue
		}
		if needle != "" && !matchesText(c, needle) {
			continue
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		ai, aj := out[i].LastActivity(), out[j].LastActivity()
		if !ai.Equal(aj) {
			return ai.After(aj)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func matchesTab(c domain.Conversation, tab Tab) bool {
	switch tab {
	case TabUnread:
		return c.UnreadCount > 0
	case TabGroups:
		return c.IsGroup
	default:
		return true
	}
}

func matchesText(c domain.Conversation, needle string) bool {
	return strings.Contains(strings.ToLower(c.PhoneNumber), needle) ||
		strings.Contains(strings.ToLower(c.ContactName), needle)
}

// NeedsAttention flags conversations an agent has to act on: a pending
// status or unread customer messages. Bare recency is deliberately not part
// of this; it is already the sort key and would over-count every active
// conversation for a full day.
func (a Aggregator) NeedsAttention(c domain.Conversation) bool {
	return c.Status == domain.ConversationPending || c.UnreadCount > 0
}

// PendingCount counts conversations needing attention across the whole
// collection, independent of the current filter.
func (a Aggregator) PendingCount(conversations []domain.Conversation) int {
	count := 0
	for _, c := range conversations {
		if a.NeedsAttention(c) {
			count++
		}
	}
	return count
}

// IsOverdue reports whether the last customer activity is older than the
// overdue cutoff. Conversations with no message yet are not overdue.
func (a Aggregator) IsOverdue(c domain.Conversation, now time.Time) bool {
	if c.LastMessageAt.IsZero() {
		return false
	}
	return now.Sub(c.LastMessageAt) > a.OverdueAfter
}

// Annotate attaches triage flags to each conversation. WindowOpen is the
// lightweight list-level signal: it uses the summary's last message time as
// a stand-in for the per-timeline inbound rule, which only the open
// conversation computes exactly.
func (a Aggregator) Annotate(conversations []domain.Conversation, now time.Time) []View {
	views := make([]View, 0, len(conversations))
	for _, c := range conversations {
		overdue := a.IsOverdue(c, now)
		views = append(views, View{
			Conversation:   c,
			NeedsAttention: a.NeedsAttention(c),
			Overdue:        overdue,
			WindowOpen:     !overdue,
		})
	}
	return views
}

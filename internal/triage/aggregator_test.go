package triage

import (
	"testing"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
)

var base = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleConversations() []domain.Conversation {
	return []domain.Conversation{
		{
			ID:            "c-quiet",
			PhoneNumber:   "+905551110000",
			ContactName:   "Ayşe Yılmaz",
			Status:        domain.ConversationResolved,
			LastMessageAt: base.Add(-48 * time.Hour),
			CreatedAt:     base.Add(-72 * time.Hour),
		},
		{
			ID:            "c-unread",
			PhoneNumber:   "+905552220000",
			ContactName:   "Mehmet Demir",
			Status:        domain.ConversationActive,
			UnreadCount:   3,
			LastMessageAt: base.Add(-time.Hour),
			CreatedAt:     base.Add(-24 * time.Hour),
		},
		{
			ID:          "c-group",
			PhoneNumber: "+905553330000",
			ContactName: "Support Crew",
			IsGroup:     true,
			Status:      domain.ConversationActive,
			CreatedAt:   base.Add(-2 * time.Hour),
		},
		{
			ID:            "c-pending",
			PhoneNumber:   "+905554440000",
			ContactName:   "Fatma Kaya",
			Status:        domain.ConversationPending,
			LastMessageAt: base.Add(-30 * time.Minute),
			CreatedAt:     base.Add(-10 * time.Hour),
		},
	}
}

func ids(convs []domain.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.ID)
	}
	return out
}

func TestFilter_SortsByLastActivityDescending(t *testing.T) {
	a := NewAggregator(0)

	got := ids(a.Filter(sampleConversations(), Query{Tab: TabAll}))
	want := []string{"c-pending", "c-unread", "c-group", "c-quiet"}

	if len(got) != len(want) {
		t.Fatalf("expected %d conversations, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestFilter_GroupUsesCreatedAtWhenNewer(t *testing.T) {
	// c-group has no messages; its CreatedAt (2h ago) must place it after
	// c-unread (1h ago) but before c-quiet (48h ago).
	a := NewAggregator(0)
	got := ids(a.Filter(sampleConversations(), Query{Tab: TabAll}))

	groupIdx, quietIdx := -1, -1
	for i, id := range got {
		switch id {
		case "c-group":
			groupIdx = i
		case "c-quiet":
			quietIdx = i
		}
	}
	if groupIdx == -1 || quietIdx == -1 || groupIdx > quietIdx {
		t.Errorf("expected c-group before c-quiet, got order %v", got)
	}
}

func TestFilter_QueryMatchesPhoneSubstring(t *testing.T) {
	a := NewAggregator(0)

	got := a.Filter(sampleConversations(), Query{Text: "5552", Tab: TabAll})
	if len(got) != 1 || got[0].ID != "c-unread" {
		t.Fatalf("expected only c-unread, got %v", ids(got))
	}
}

func TestFilter_QueryMatchesNameCaseInsensitively(t *testing.T) {
	a := NewAggregator(0)

	got := a.Filter(sampleConversations(), Query{Text: "fatma", Tab: TabAll})
	if len(got) != 1 || got[0].ID != "c-pending" {
		t.Fatalf("expected only c-pending, got %v", ids(got))
	}
}

func TestFilter_UnreadTab(t *testing.T) {
	a := NewAggregator(0)

	got := a.Filter(sampleConversations(), Query{Tab: TabUnread})
	if len(got) != 1 || got[0].ID != "c-unread" {
		t.Fatalf("expected only c-unread, got %v", ids(got))
	}
}

func TestFilter_GroupsTab(t *testing.T) {
	a := NewAggregator(0)

	got := a.Filter(sampleConversations(), Query{Tab: TabGroups})
	if len(got) != 1 || got[0].ID != "c-group" {
		t.Fatalf("expected only c-group, got %v", ids(got))
	}
}

func TestPendingCount_CountsPendingStatusAndUnread(t *testing.T) {
	a := NewAggregator(0)

	// c-unread (unread>0) and c-pending (status pending). Recency alone
	// does not count.
	if got := a.PendingCount(sampleConversations()); got != 2 {
		t.Errorf("expected pending count 2, got %d", got)
	}
}

func TestIsOverdue(t *testing.T) {
	a := NewAggregator(24 * time.Hour)
	convs := sampleConversations()

	overdue := map[string]bool{}
	for _, c := range convs {
		overdue[c.ID] = a.IsOverdue(c, base)
	}

	if !overdue["c-quiet"] {
		t.Errorf("expected c-quiet (48h silent) overdue")
	}
	if overdue["c-unread"] || overdue["c-pending"] {
		t.Errorf("recent conversations must not be overdue: %v", overdue)
	}
	if overdue["c-group"] {
		t.Errorf("conversation with no messages must not be overdue")
	}
}

func TestAnnotate_Flags(t *testing.T) {
	a := NewAggregator(24 * time.Hour)

	views := a.Annotate(sampleConversations(), base)
	byID := make(map[string]View, len(views))
	for _, v := range views {
		byID[v.ID] = v
	}

	if v := byID["c-unread"]; !v.NeedsAttention || v.Overdue || !v.WindowOpen {
		t.Errorf("unexpected flags for c-unread: %+v", v)
	}
	if v := byID["c-quiet"]; v.NeedsAttention || !v.Overdue || v.WindowOpen {
		t.Errorf("unexpected flags for c-quiet: %+v", v)
	}
}

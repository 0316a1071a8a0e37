package send

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/timeline"
	"github.com/chatdesk/agent-core/pkg/apiclient"
)

//
// Test fakes – only for this file.
//

type fakePoster struct {
	response domain.Message
	err      error

	calls []apiclient.SendMessageRequest

	// beforeRespond runs after the request is recorded, before the response
	// is returned. Used to simulate a status event racing the HTTP reply.
	beforeRespond func()
}

func (f *fakePoster) PostMessage(ctx context.Context, req apiclient.SendMessageRequest) (domain.Message, error) {
	f.calls = append(f.calls, req)
	if f.beforeRespond != nil {
		f.beforeRespond()
	}
	return f.response, f.err
}

func openWindow() domain.SessionWindow {
	return domain.SessionWindow{ConversationID: "conv-1", IsOpen: true}
}

func closedWindow() domain.SessionWindow {
	zero := 0
	return domain.SessionWindow{ConversationID: "conv-1", IsOpen: false, MinutesRemaining: &zero}
}

func newCoordinator(store *timeline.Store, poster *fakePoster, window func() domain.SessionWindow) *Coordinator {
	return NewCoordinator("conv-1", "+905551234567", store, poster, window)
}

func TestSend_EmptyContentRejectedBeforeNetwork(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{}
	c := newCoordinator(store, poster, openWindow)

	_, err := c.Send(context.Background(), domain.Draft{Content: "   "})
	if !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store must stay empty, got %d", store.Len())
	}
	if len(poster.calls) != 0 {
		t.Errorf("no network call expected, got %d", len(poster.calls))
	}
}

func TestSend_WindowClosedRejectedBeforeNetwork(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{}
	c := newCoordinator(store, poster, closedWindow)

	_, err := c.Send(context.Background(), domain.Draft{Content: "hi"})
	if !errors.Is(err, ErrWindowClosed) {
		t.Fatalf("expected ErrWindowClosed, got %v", err)
	}
	if store.Len() != 0 {
		t.Errorf("store must stay empty (no optimistic message), got %d", store.Len())
	}
	if len(poster.calls) != 0 {
		t.Errorf("no network call expected, got %d", len(poster.calls))
	}
}

func TestSend_ConfirmationSwapsTempForServerRecord(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{
		response: domain.Message{
			ID:             "42",
			ConversationID: "conv-1",
			PhoneNumber:    "+905551234567",
			Direction:      domain.DirectionOutbound,
			Content:        "hi",
			Type:           "text",
			Status:         domain.StatusSent,
			CreatedAt:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		},
	}
	c := newCoordinator(store, poster, openWindow)

	saved, err := c.Send(context.Background(), domain.Draft{Content: "hi"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if saved.ID != "42" || saved.Status != domain.StatusSent {
		t.Errorf("unexpected confirmed message: %+v", saved)
	}
	if store.Len() != 1 {
		t.Fatalf("expected exactly 1 message after reconciliation, got %d", store.Len())
	}
	got, ok := store.Get("42")
	if !ok {
		t.Fatalf("server record not found in store")
	}
	if got.Status != domain.StatusSent {
		t.Errorf("expected status sent, got %q", got.Status)
	}
	if len(c.Attempts()) != 0 {
		t.Errorf("attempt must be gone after confirmation, got %d", len(c.Attempts()))
	}
	if len(poster.calls) != 1 {
		t.Fatalf("expected 1 network call, got %d", len(poster.calls))
	}
	req := poster.calls[0]
	if req.ConversationID != "conv-1" || req.PhoneNumber != "+905551234567" || req.Content != "hi" || req.Type != "text" {
		t.Errorf("unexpected request: %+v", req)
	}
}

func TestSend_OptimisticRecordVisibleDuringFlight(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{response: domain.Message{ID: "42", Status: domain.StatusSent}}
	poster.beforeRespond = func() {
		if store.Len() != 1 {
			t.Errorf("expected pending temp record during flight, got %d messages", store.Len())
		}
		all := store.All()
		if len(all) == 1 {
			if !all[0].IsTemp() {
				t.Errorf("expected temp id during flight, got %s", all[0].ID)
			}
			if all[0].Status != domain.StatusPending {
				t.Errorf("expected pending status during flight, got %q", all[0].Status)
			}
		}
	}
	c := newCoordinator(store, poster, openWindow)

	if _, err := c.Send(context.Background(), domain.Draft{Content: "hi"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
}

func TestSend_FailureLeavesFailedTempRecord(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{
		err: &apiclient.Error{Kind: apiclient.KindNetwork, Err: errors.New("connection refused")},
	}
	c := newCoordinator(store, poster, openWindow)

	_, err := c.Send(context.Background(), domain.Draft{Content: "hi"})

	var sendErr *SendError
	if !errors.As(err, &sendErr) {
		t.Fatalf("expected *SendError, got %v", err)
	}
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) || apiErr.Kind != apiclient.KindNetwork {
		t.Errorf("expected network cause, got %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected failed temp record kept, got %d messages", store.Len())
	}
	got, ok := store.Get(sendErr.TempID)
	if !ok {
		t.Fatalf("failed temp record %s not in store", sendErr.TempID)
	}
	if got.Status != domain.StatusFailed {
		t.Errorf("expected status failed, got %q", got.Status)
	}
	if len(c.Attempts()) != 0 {
		t.Errorf("attempt must be gone after failure, got %d", len(c.Attempts()))
	}
}

func TestSend_EarlyStatusEventSurvivesReconciliation(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{
		response: domain.Message{ID: "42", Status: domain.StatusSent, CreatedAt: time.Unix(1000, 0)},
	}
	// The push channel delivers message:new + message:status for id 42
	// before the HTTP response comes back.
	poster.beforeRespond = func() {
		store.Upsert(domain.Message{
			ID:             "42",
			ConversationID: "conv-1",
			Direction:      domain.DirectionOutbound,
			Content:        "hi",
			Status:         domain.StatusDelivered,
			CreatedAt:      time.Unix(1000, 0),
		})
	}
	c := newCoordinator(store, poster, openWindow)

	if _, err := c.Send(context.Background(), domain.Draft{Content: "hi"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if store.Len() != 1 {
		t.Fatalf("expected 1 message after convergence, got %d", store.Len())
	}
	got, _ := store.Get("42")
	if got.Status != domain.StatusDelivered {
		t.Errorf("expected delivered (racing event must not regress), got %q", got.Status)
	}
}

func TestSend_TempIDsAreUnique(t *testing.T) {
	store := timeline.NewStore()
	poster := &fakePoster{err: &apiclient.Error{Kind: apiclient.KindServer, Err: errors.New("boom")}}
	c := newCoordinator(store, poster, openWindow)

	c.Send(context.Background(), domain.Draft{Content: "one"})
	c.Send(context.Background(), domain.Draft{Content: "two"})

	if store.Len() != 2 {
		t.Errorf("expected 2 failed temp records, got %d", store.Len())
	}
}

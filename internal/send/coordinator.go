package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/timeline"
	"github.com/chatdesk/agent-core/pkg/apiclient"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// Pre-network rejections. Neither touches the store or the wire.
var (
	ErrWindowClosed = errors.New("customer service window is closed")
	ErrEmptyContent = errors.New("message content is empty")
)

// SendError reports a send that made it onto the wire and failed. The
// underlying cause is an *apiclient.Error carrying the failure kind; the
// temp record stays in the store with status failed so the agent can see
// which message did not go out.
type SendError struct {
	TempID string
	Err    error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s failed: %v", e.TempID, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Small consumer-side interfaces for testability.
type timelineStore interface {
	Upsert(msg domain.Message) timeline.UpsertOutcome
	Delete(id string) bool
}

type messagePoster interface {
	PostMessage(ctx context.Context, req apiclient.SendMessageRequest) (domain.Message, error)
}

// Coordinator runs the optimistic-send lifecycle for one conversation:
// draft -> pending temp record -> confirmed server record or failed temp
// record. The temp-to-server reconciliation and any racing status events
// converge through the store's idempotent upsert.
type Coordinator struct {
	conversationID string
	phoneNumber    string
	store          timelineStore
	api            messagePoster
	windowState    func() domain.SessionWindow
	now            func() time.Time

	mu       sync.Mutex
	attempts map[string]domain.SendAttempt
	seq      atomic.Int64
}

func NewCoordinator(
	conversationID, phoneNumber string,
	store timelineStore,
	api messagePoster,
	windowState func() domain.SessionWindow,
) *Coordinator {
	return &Coordinator{
		conversationID: conversationID,
		phoneNumber:    phoneNumber,
		store:          store,
		api:            api,
		windowState:    windowState,
		now:            time.Now,
		attempts:       make(map[string]domain.SendAttempt),
	}
}

// Send validates the draft, places an optimistic pending record in the
// store, and submits it upstream. On confirmation the temp record is
// swapped for the canonical one: store size is unchanged, the bubble now
// carries the server id and status sent.
func (c *Coordinator) Send(ctx context.Context, draft domain.Draft) (domain.Message, error) {
	if strings.TrimSpace(draft.Content) == "" {
		return domain.Message{}, ErrEmptyContent
	}
	if !c.windowState().IsOpen {
		return domain.Message{}, ErrWindowClosed
	}

	if draft.Type == "" {
		draft.Type = "text"
	}

	tempID := c.nextTempID()
	temp := domain.Message{
		ID:             tempID,
		ConversationID: c.conversationID,
		PhoneNumber:    c.phoneNumber,
		Direction:      domain.DirectionOutbound,
		Content:        draft.Content,
		Type:           draft.Type,
		Status:         domain.StatusPending,
		CreatedAt:      c.now(),
	}
	c.store.Upsert(temp)
	c.track(domain.SendAttempt{TempID: tempID, Draft: draft, State: domain.SendPending})

	saved, err := c.api.PostMessage(ctx, apiclient.SendMessageRequest{
		ConversationID: c.conversationID,
		PhoneNumber:    c.phoneNumber,
		Content:        draft.Content,
		Type:           draft.Type,
	})
	if err != nil {
		logger.Errorf("Send %s failed: %v", tempID, err)
		temp.Status = domain.StatusFailed
		c.store.Upsert(temp)
		c.untrack(tempID)
		return domain.Message{}, &SendError{TempID: tempID, Err: err}
	}

	// Fill gaps the server left and make sure the confirmed bubble reads as
	// at least sent. A racing status event for the server id may already
	// have advanced it further; the monotonic merge keeps that.
	if saved.ConversationID == "" {
		saved.ConversationID = c.conversationID
	}
	if saved.PhoneNumber == "" {
		saved.PhoneNumber = c.phoneNumber
	}
	if saved.Direction == "" {
		saved.Direction = domain.DirectionOutbound
	}
	if saved.Status == "" || saved.Status == domain.StatusPending {
		saved.Status = domain.StatusSent
	}
	if saved.CreatedAt.Equal(time.Unix(0, 0).UTC()) || saved.CreatedAt.IsZero() {
		saved.CreatedAt = temp.CreatedAt
	}

	c.store.Delete(tempID)
	c.store.Upsert(saved)
	c.untrack(tempID)

	logger.Infof("Send confirmed: %s -> %s", tempID, saved.ID)
	return saved, nil
}

// Attempts returns a snapshot of in-flight sends.
func (c *Coordinator) Attempts() []domain.SendAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]domain.SendAttempt, 0, len(c.attempts))
	for _, a := range c.attempts {
		out = append(out, a)
	}
	return out
}

func (c *Coordinator) track(a domain.SendAttempt) {
	c.mu.Lock()
	c.attempts[a.TempID] = a
	c.mu.Unlock()
}

func (c *Coordinator) untrack(tempID string) {
	c.mu.Lock()
	delete(c.attempts, tempID)
	c.mu.Unlock()
}

func (c *Coordinator) nextTempID() string {
	return fmt.Sprintf("%s%d-%d", domain.TempIDPrefix, c.now().UnixNano(), c.seq.Add(1))
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/timeline"
	"github.com/chatdesk/agent-core/pkg/logger"
	"github.com/chatdesk/agent-core/pkg/push"
)

// Small consumer-side interfaces so the router can be tested without a real
// websocket or store.
type timelineSink interface {
	Upsert(msg domain.Message) timeline.UpsertOutcome
	ApplyStatus(id string, status domain.MessageStatus) timeline.StatusOutcome
}

type pushChannel interface {
	Subscribe(event string, handler push.Handler) func()
	Emit(ctx context.Context, event string, payload any) error
}

// eventEnvelope is the data payload of message:new and message:status.
type eventEnvelope struct {
	Message json.RawMessage `json:"message"`
}

// Router forwards push events for exactly one conversation into its
// timeline store. Events for any other conversation are dropped silently:
// they must never leak into the active store. Close releases the
// subscriptions and leaves the room; it is safe on every exit path.
type Router struct {
	conversationID string
	phoneNumber    string
	store          timelineSink
	channel        pushChannel

	unsubs    []func()
	closeOnce sync.Once
}

// Attach joins the conversation room and starts forwarding events. If the
// join emit fails the subscriptions are released before returning.
func Attach(ctx context.Context, channel pushChannel, store timelineSink, conversationID, phoneNumber string) (*Router, error) {
	r := &Router{
		conversationID: conversationID,
		phoneNumber:    phoneNumber,
		store:          store,
		channel:        channel,
	}

	r.unsubs = append(r.unsubs,
		channel.Subscribe(push.EventMessageNew, r.handleNewMessage),
		channel.Subscribe(push.EventMessageStatus, r.handleStatusUpdate),
	)

	room := push.RoomRef{ConversationID: conversationID, PhoneNumber: phoneNumber}
	if err := channel.Emit(ctx, push.EventConversationJoin, room); err != nil {
		r.release()
		return nil, fmt.Errorf("failed to join conversation %s: %w", conversationID, err)
	}

	return r, nil
}

func (r *Router) handleNewMessage(data json.RawMessage) {
	msg, ok := r.decode(data)
	if !ok || !r.accepts(msg) {
		return
	}
	r.store.Upsert(msg)
}

func (r *Router) handleStatusUpdate(data json.RawMessage) {
	msg, ok := r.decode(data)
	if !ok || !r.accepts(msg) {
		return
	}
	if msg.Status == "" {
		logger.Debugf("Dropped status update without status for message %s", msg.ID)
		return
	}
	r.store.ApplyStatus(msg.ID, msg.Status)
}

// decode unwraps the {message: ...} envelope. Malformed payloads are logged
// and dropped; they never propagate as errors.
func (r *Router) decode(data json.RawMessage) (domain.Message, bool) {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warnf("Dropped malformed push payload: %v", err)
		return domain.Message{}, false
	}
	if len(env.Message) == 0 {
		logger.Warnf("Dropped push payload without message body")
		return domain.Message{}, false
	}

	msg, err := domain.DecodeMessage(env.Message)
	if err != nil {
		logger.Warnf("Dropped undecodable push message: %v", err)
		return domain.Message{}, false
	}
	return msg, true
}

// accepts scopes events to the active conversation, matching on either the
// conversation id or the phone number.
func (r *Router) accepts(msg domain.Message) bool {
	if msg.ConversationID != "" && msg.ConversationID == r.conversationID {
		return true
	}
	if msg.PhoneNumber != "" && msg.PhoneNumber == r.phoneNumber {
		return true
	}
	return false
}

// Close unsubscribes all handlers and notifies the transport that the room
// is left. Idempotent; the leave failure is logged, never surfaced.
func (r *Router) Close(ctx context.Context) {
	r.closeOnce.Do(func() {
		r.release()

		room := push.RoomRef{ConversationID: r.conversationID, PhoneNumber: r.phoneNumber}
		if err := r.channel.Emit(ctx, push.EventConversationLeave, room); err != nil {
			logger.Warnf("Failed to leave conversation %s: %v", r.conversationID, err)
		}
	})
}

func (r *Router) release() {
	for _, unsub := range r.unsubs {
		unsub()
	}
	r.unsubs = nil
}

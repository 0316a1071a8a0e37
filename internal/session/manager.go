package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/chatdesk/agent-core/environments"
	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/internal/realtime"
	"github.com/chatdesk/agent-core/internal/send"
	"github.com/chatdesk/agent-core/internal/timeline"
	"github.com/chatdesk/agent-core/internal/window"
	"github.com/chatdesk/agent-core/pkg/apiclient"
	"github.com/chatdesk/agent-core/pkg/logger"
	"github.com/chatdesk/agent-core/pkg/push"
)

// upstream is the slice of the REST client the session layer needs.
type upstream interface {
	FetchMessages(ctx context.Context, conversationID string) ([]domain.Message, error)
	PostMessage(ctx context.Context, req apiclient.SendMessageRequest) (domain.Message, error)
}

type pushChannel interface {
	Subscribe(event string, handler push.Handler) func()
	Emit(ctx context.Context, event string, payload any) error
}

// Session is one open conversation: its timeline store, the push router
// scoped to it, the window watcher and the send coordinator. The whole set
// is discarded when the agent switches conversations.
type Session struct {
	ConversationID string
	PhoneNumber    string
	Store          *timeline.Store
	Router         *realtime.Router
	Watcher        *window.Watcher
	Sender         *send.Coordinator
}

// Manager owns the single live session. Opening a conversation always
// releases the previous one first, on every path, so a stale router can
// never mutate a store that is no longer displayed.
type Manager struct {
	api       upstream
	channel   pushChannel
	windowCfg environments.WindowConfig

	mu     sync.Mutex
	active *Session
}

func NewManager(api upstream, channel pushChannel, windowCfg environments.WindowConfig) *Manager {
	return &Manager{
		api:       api,
		channel:   channel,
		windowCfg: windowCfg,
	}
}

// Open switches the console to a conversation: tear down the previous
// session, hydrate the timeline from the history endpoint, join the push
// room, and start the window watcher.
func (m *Manager) Open(ctx context.Context, conversationID, phoneNumber string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Release the previous conversation before anything can fail below.
	m.closeActiveLocked(ctx)

	history, err := m.api.FetchMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history for %s: %w", conversationID, err)
	}

	store := timeline.NewStore()
	store.UpsertBatch(history)

	router, err := realtime.Attach(ctx, m.channel, store, conversationID, phoneNumber)
	if err != nil {
		return nil, err
	}

	watcher := window.NewWatcher(
		window.NewPolicy(m.windowCfg.Duration),
		conversationID,
		store.All,
		m.windowCfg.TickInterval,
	)
	store.OnChange(watcher.Recompute)
	watcher.Start()

	sess := &Session{
		ConversationID: conversationID,
		PhoneNumber:    phoneNumber,
		Store:          store,
		Router:         router,
		Watcher:        watcher,
		Sender:         send.NewCoordinator(conversationID, phoneNumber, store, m.api, watcher.Current),
	}
	m.active = sess

	logger.Infof("Opened conversation %s (%d history messages)", conversationID, store.Len())
	return sess, nil
}

// Active returns the live session, or nil.
func (m *Manager) Active() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// ActiveFor returns the live session if it is the given conversation.
func (m *Manager) ActiveFor(conversationID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil || m.active.ConversationID != conversationID {
		return nil, false
	}
	return m.active, true
}

// Close tears down the live session, if any.
func (m *Manager) Close(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeActiveLocked(ctx)
}

func (m *Manager) closeActiveLocked(ctx context.Context) {
	if m.active == nil {
		return
	}

	m.active.Watcher.Stop()
	m.active.Router.Close(ctx)
	logger.Infof("Closed conversation %s", m.active.ConversationID)
	m.active = nil
}

package window

import (
	"sync"
	"time"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// DefaultTick is how often the watcher re-evaluates with no traffic, so the
// window flips closed even when nothing new arrives.
const DefaultTick = 60 * time.Second

// Watcher keeps a SessionWindow continuously up to date: Recompute is wired
// to store changes, and an internal ticker covers the quiet case.
type Watcher struct {
	policy         Policy
	conversationID string
	source         func() []domain.Message
	interval       time.Duration
	now            func() time.Time

	mu       sync.RWMutex
	current  domain.SessionWindow
	onUpdate func(domain.SessionWindow)
	running  bool
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewWatcher builds a watcher over a message source (typically Store.All).
// The first state is computed immediately so Current never returns a zero
// value for an open watcher.
func NewWatcher(policy Policy, conversationID string, source func() []domain.Message, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = DefaultTick
	}
	w := &Watcher{
		policy:         policy,
		conversationID: conversationID,
		source:         source,
		interval:       interval,
		now:            time.Now,
	}
	w.current = policy.Evaluate(conversationID, source(), w.now())
	return w
}

// OnUpdate registers a callback invoked whenever the derived state changes.
func (w *Watcher) OnUpdate(fn func(domain.SessionWindow)) {
	w.mu.Lock()
	w.onUpdate = fn
	w.mu.Unlock()
}

func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.stopChan = make(chan struct{})
	w.doneChan = make(chan struct{})
	w.mu.Unlock()

	go w.run()
}

func (w *Watcher) run() {
	defer close(w.doneChan)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.Recompute()
		case <-w.stopChan:
			return
		}
	}
}

// Recompute re-evaluates the window immediately. Safe to call from any
// goroutine; wired to the store's change notification.
func (w *Watcher) Recompute() {
	messages := w.source()

	w.mu.Lock()
	next := w.policy.Evaluate(w.conversationID, messages, w.now())
	changed := !equalWindows(w.current, next)
	w.current = next
	notify := w.onUpdate
	w.mu.Unlock()

	if changed {
		logger.Debugf("Session window for %s: open=%v", next.ConversationID, next.IsOpen)
		if notify != nil {
			notify(next)
		}
	}
}

func (w *Watcher) Current() domain.SessionWindow {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopChan := w.stopChan
	doneChan := w.doneChan
	w.mu.Unlock()

	close(stopChan)
	<-doneChan
}

func equalWindows(a, b domain.SessionWindow) bool {
	if a.IsOpen != b.IsOpen {
		return false
	}
	if (a.MinutesRemaining == nil) != (b.MinutesRemaining == nil) {
		return false
	}
	if a.MinutesRemaining != nil && *a.MinutesRemaining != *b.MinutesRemaining {
		return false
	}
	if (a.LastInboundAt == nil) != (b.LastInboundAt == nil) {
		return false
	}
	if a.LastInboundAt != nil && !a.LastInboundAt.Equal(*b.LastInboundAt) {
		return false
	}
	return true
}

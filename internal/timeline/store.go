package timeline

import (
	"sort"
	"sync"

	"github.com/chatdesk/agent-core/internal/domain"
	"github.com/chatdesk/agent-core/pkg/logger"
)

// UpsertOutcome reports what an upsert actually did. Backward status
// transitions are Unchanged, never an error.
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	Updated
	Unchanged
)

// StatusOutcome reports the result of applying a bare status update.
type StatusOutcome int

const (
	StatusApplied StatusOutcome = iota
	StatusIgnored
	StatusUnknownID
)

// Store holds the ordered, deduplicated message timeline of a single
// conversation. Both the history fetch and the push channel feed it through
// the same idempotent merge, so arrival order never affects final state.
// The total order (ascending CreatedAt, ties broken by ID) is imposed after
// every write.
type Store struct {
	mu       sync.RWMutex
	byID     map[string]domain.Message
	ordered  []domain.Message
	dropped  int64
	onChange func()
}

func NewStore() *Store {
	return &Store{
		byID: make(map[string]domain.Message),
	}
}

// OnChange registers a callback fired after every mutating write. The
// callback runs outside the store lock.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Upsert inserts the message if its id is unseen, otherwise merges it into
// the existing record. The merge is idempotent: replaying the same message,
// or an older snapshot after a newer one, never regresses the status.
func (s *Store) Upsert(msg domain.Message) UpsertOutcome {
	s.mu.Lock()
	outcome := s.upsertLocked(msg)
	if outcome != Unchanged {
		s.resortLocked()
	}
	notify := s.onChange
	s.mu.Unlock()

	if outcome != Unchanged && notify != nil {
		notify()
	}
	return outcome
}

// UpsertBatch merges many messages and sorts once at the end. Used for the
// initial history fetch.
func (s *Store) UpsertBatch(msgs []domain.Message) {
	if len(msgs) == 0 {
		return
	}

	s.mu.Lock()
	changed := false
	for _, msg := range msgs {
		if s.upsertLocked(msg) != Unchanged {
			changed = true
		}
	}
	if changed {
		s.resortLocked()
	}
	notify := s.onChange
	s.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}

func (s *Store) upsertLocked(msg domain.Message) UpsertOutcome {
	existing, ok := s.byID[msg.ID]
	if !ok {
		s.byID[msg.ID] = msg
		return Inserted
	}

	merged, changed := merge(existing, msg)
	if !changed {
		return Unchanged
	}
	s.byID[msg.ID] = merged
	return Updated
}

// merge overlays incoming onto existing: non-empty incoming fields win,
// except status, which only moves forward.
func merge(existing, incoming domain.Message) (domain.Message, bool) {
	merged := existing
	changed := false

	if incoming.ConversationID != "" && incoming.ConversationID != merged.ConversationID {
		merged.ConversationID = incoming.ConversationID
		changed = true
	}
	if incoming.PhoneNumber != "" && incoming.PhoneNumber != merged.PhoneNumber {
		merged.PhoneNumber = incoming.PhoneNumber
		changed = true
	}
	if incoming.Direction != "" && incoming.Direction != merged.Direction {
		merged.Direction = incoming.Direction
		changed = true
	}
	if incoming.Content != "" && incoming.Content != merged.Content {
		merged.Content = incoming.Content
		changed = true
	}
	if incoming.Type != "" && incoming.Type != merged.Type {
		merged.Type = incoming.Type
		changed = true
	}
	if !incoming.CreatedAt.IsZero() && !incoming.CreatedAt.Equal(merged.CreatedAt) {
		merged.CreatedAt = incoming.CreatedAt
		changed = true
	}
	if incoming.Status != "" && incoming.Status != merged.Status {
		if merged.Status.CanAdvanceTo(incoming.Status) {
			merged.Status = incoming.Status
			changed = true
		}
	}

	return merged, changed
}

// ApplyStatus applies a bare status update matched on id. Updates for an
// unseen id are dropped and counted; backward transitions are ignored.
// Neither case is an error.
func (s *Store) ApplyStatus(id string, status domain.MessageStatus) StatusOutcome {
	s.mu.Lock()

	existing, ok := s.byID[id]
	if !ok {
		s.dropped++
		s.mu.Unlock()
		logger.Debugf("Dropped status update %q for unknown message id %s", status, id)
		return StatusUnknownID
	}

	if !existing.Status.CanAdvanceTo(status) {
		s.mu.Unlock()
		return StatusIgnored
	}

	existing.Status = status
	s.byID[id] = existing
	s.resortLocked()
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return StatusApplied
}

// All returns a snapshot of the timeline in total order. The snapshot is
// independent of later writes.
func (s *Store) All() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Message, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func (s *Store) Get(id string) (domain.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.byID[id]
	return msg, ok
}

// Delete removes a message by id. Used when an optimistic temp record is
// replaced by its server-confirmed counterpart.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()

	if _, ok := s.byID[id]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.byID, id)
	s.resortLocked()
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// DroppedUpdates counts status updates discarded because their message id
// was never seen. Exposed so the data-loss edge is observable.
func (s *Store) DroppedUpdates() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *Store) resortLocked() {
	s.ordered = s.ordered[:0]
	for _, msg := range s.byID {
		s.ordered = append(s.ordered, msg)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		a, b := s.ordered[i], s.ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

package transcript

import (
	"fmt"
	"sync"

	"voicechat/core"
)

// Store is the ordered log of conversation turns. It enforces that at most one
// assistant reply is pending and that no user turn is added while one is.
type Store struct {
	mu       sync.RWMutex
	messages []core.Message
	pending  int // index of the pending assistant message, or -1
}

func NewStore() *Store {
	return &Store{pending: -1}
}

// Append adds msg at the end of the transcript.
func (s *Store) Append(msg core.Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("transcript: append role %q: %w", msg.Role, core.ErrInvalidSequence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending >= 0 && (msg.Role == core.MessageRoleUser || msg.IsPending()) {
		return fmt.Errorf("transcript: append %s while reply %s is pending: %w",
			msg.Role, s.messages[s.pending].ID, core.ErrInvalidSequence)
	}
	if msg.Role == core.MessageRoleAssistant && !msg.IsPending() && !msg.Status.Terminal() {
		return fmt.Errorf("transcript: append assistant with status %q: %w", msg.Status, core.ErrInvalidSequence)
	}
	if msg.Role != core.MessageRoleAssistant {
		msg.Status = core.MessageStatusNone
	}

	s.messages = append(s.messages, msg)
	if msg.IsPending() {
		s.pending = len(s.messages) - 1
	}
	return nil
}

// UpdatePending resolves the pending assistant message id to a terminal status
// with its final content.
func (s *Store) UpdatePending(id, content string, status core.MessageStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("transcript: update %s to %q: %w", id, status, core.ErrInvalidSequence)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending < 0 || s.messages[s.pending].ID != id {
		return fmt.Errorf("transcript: message %s is not pending: %w", id, core.ErrInvalidSequence)
	}
	s.messages[s.pending].Content = content
	s.messages[s.pending].Status = status
	s.pending = -1
	return nil
}

// Pending returns the in-flight assistant placeholder, if any.
func (s *Store) Pending() (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pending < 0 {
		return core.Message{}, false
	}
	return s.messages[s.pending], true
}

func (s *Store) Get(id string) (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return core.Message{}, false
}

// LastCompletedAssistant returns the most recent assistant message with status complete.
func (s *Store) LastCompletedAssistant() (core.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		m := s.messages[i]
		if m.Role == core.MessageRoleAssistant && m.Status == core.MessageStatusComplete {
			return m, true
		}
	}
	return core.Message{}, false
}

// History returns up to limit of the most recent turns eligible as chat context:
// user and system messages plus completed assistant replies. limit <= 0 means all.
func (s *Store) History(limit int) []core.ChatTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := make([]core.ChatTurn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Role == core.MessageRoleAssistant && m.Status != core.MessageStatusComplete {
			continue
		}
		turns = append(turns, core.ChatTurn{Role: m.Role, Content: m.Content})
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Snapshot returns a copy of every message in order.
func (s *Store) Snapshot() []core.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.pending = -1
}

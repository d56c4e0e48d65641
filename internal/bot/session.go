package bot

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lottery-bot/internal/metrics"
)

// Session is the per-user conversation state. One session per user,
// created on first interaction, mutated by every transition and logically
// cleared when the machine reaches its terminal state.
type Session struct {
	UserID int64
	ChatID int64

	State State

	// StartOver makes the next main-menu render edit the current message
	// in place instead of sending a fresh one, so exactly one visible
	// message represents the menu at any time.
	StartOver bool

	// WithdrawAddress is the validated destination of an in-progress
	// withdraw flow.
	WithdrawAddress common.Address

	// mu serializes event handling for this user. The transport fans
	// updates out concurrently; a second event arriving while one is
	// being handled is rejected rather than queued.
	mu sync.Mutex
}

// reset clears flow-scoped fields when a session ends.
func (s *Session) reset() {
	s.State = StateStopped
	s.StartOver = false
	s.WithdrawAddress = common.Address{}
}

// SessionStore owns every live session. In-memory only; a restart loses
// all conversations.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

// NewSessionStore creates an empty session table.
func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[int64]*Session)}
}

// GetOrCreate returns the user's session, creating an empty one on first
// interaction.
func (st *SessionStore) GetOrCreate(userID, chatID int64) *Session {
	st.mu.RLock()
	s, ok := st.sessions[userID]
	st.mu.RUnlock()
	if ok {
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.sessions[userID]; ok {
		return s
	}
	s = &Session{UserID: userID, ChatID: chatID, State: StateNone}
	st.sessions[userID] = s
	metrics.ActiveSessions.Set(float64(len(st.sessions)))
	return s
}

// Count returns the number of live sessions.
func (st *SessionStore) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Get returns the user's session if one exists.
func (st *SessionStore) Get(userID int64) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[userID]
	return s, ok
}

package session

import "sync"

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[SenderID]State
}

// NewMemoryStore constructs an empty in-memory Store.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[SenderID]State),
	}
}

// Get returns the state for a sender, or StateNone when the sender has no session.
func (m *memoryStore) Get(id SenderID) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return StateNone, false
	}
	return st, true
}

// Set updates the state for a sender, creating the entry if necessary.
func (m *memoryStore) Set(id SenderID, st State) {
	if !st.Active() {
		m.Remove(id)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = st
}

// Remove deletes the session of a sender.
func (m *memoryStore) Remove(id SenderID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false
	}
	delete(m.sessions, id)
	return true
}

// Len reports the number of stored sessions.
func (m *memoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package session

// SenderID identifies the originator of inbound messages.
type SenderID string

// State identifies a step of the dialogue flow.
type State uint8

const (
	// StateNone indicates there is no active conversation with the sender.
	StateNone State = iota
	// StateGreeted indicates the menu was shown and a choice is expected.
	StateGreeted
	// StateFreeform indicates a valid choice was made and the chat is open-ended.
	StateFreeform
)

// String returns the log-friendly name of the state.
func (s State) String() string {
	switch s {
	case StateNone:
		return "none"
	case StateGreeted:
		return "greeted"
	case StateFreeform:
		return "freeform"
	default:
		return "unknown"
	}
}

// Active reports whether the state represents a live session.
func (s State) Active() bool {
	return s == StateGreeted || s == StateFreeform
}

// Store holds at most one State per sender.
type Store interface {
	// Get returns the sender state and whether an entry exists.
	Get(id SenderID) (State, bool)
	// Set stores the state for the sender. Setting StateNone removes the entry.
	Set(id SenderID, st State)
	// Remove deletes the entry and reports whether one existed.
	Remove(id SenderID) bool
	// Len returns the number of active sessions.
	Len() int
}

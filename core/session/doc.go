// Package session keeps the dialogue state of every sender with an active conversation.
// A sender without an entry is in StateNone.
package session

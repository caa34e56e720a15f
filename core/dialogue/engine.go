// Package dialogue decides the reply and next state for an incoming message.
// It has no side effects.
package dialogue

import (
	"strings"

	"github.com/m3rciful/menubot/core/session"
)

// Outcome is the result of a dialogue decision.
type Outcome struct {
	// Reply is the text to send back; empty means stay silent.
	Reply string
	// Next is the state to store when End is false.
	Next session.State
	// End requests removal of the session.
	End bool
}

// Engine maps (state, message) to an Outcome using a Catalog.
type Engine struct {
	catalog Catalog
}

// NewEngine validates c and returns an Engine using it.
func NewEngine(c Catalog) (*Engine, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &Engine{catalog: c}, nil
}

// Decide computes the reply and transition for text received in state.
// Choices and the exit keyword must match the whole message; only letter case is ignored.
// name is interpolated into the menu; a blank name uses the catalog fallback.
func (e *Engine) Decide(state session.State, text, name string) Outcome {
	switch state {
	case session.StateGreeted:
		if reply, ok := e.catalog.Options[text]; ok {
			return Outcome{Reply: reply, Next: session.StateFreeform}
		}
		return Outcome{Reply: e.catalog.InvalidChoice, Next: session.StateGreeted}
	case session.StateFreeform:
		if strings.EqualFold(text, e.catalog.ExitKeyword) {
			return Outcome{Reply: e.catalog.Farewell, Next: session.StateNone, End: true}
		}
		// Free chat is passive: no reply, no transition.
		return Outcome{Next: session.StateFreeform}
	default:
		return Outcome{Reply: e.Menu(name), Next: session.StateGreeted}
	}
}

// Menu renders the greeting menu for name.
func (e *Engine) Menu(name string) string {
	return strings.ReplaceAll(e.catalog.Menu, NamePlaceholder, e.DisplayName(name))
}

// DisplayName returns name trimmed, or the catalog fallback when blank.
func (e *Engine) DisplayName(name string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return e.catalog.FallbackName
}

// InactivityNotice is sent when a session expires.
func (e *Engine) InactivityNotice() string {
	return e.catalog.InactivityNotice
}

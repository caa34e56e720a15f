package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreGetAbsent(t *testing.T) {
	s := NewMemoryStore()

	st, ok := s.Get("+1000")
	assert.False(t, ok)
	assert.Equal(t, StateNone, st)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreSetOverwritesInPlace(t *testing.T) {
	s := NewMemoryStore()

	s.Set("+1000", StateGreeted)
	s.Set("+1000", StateFreeform)

	st, ok := s.Get("+1000")
	require.True(t, ok)
	assert.Equal(t, StateFreeform, st)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStoreSetNoneRemoves(t *testing.T) {
	s := NewMemoryStore()
	s.Set("+1000", StateGreeted)

	s.Set("+1000", StateNone)

	_, ok := s.Get("+1000")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestMemoryStoreRemove(t *testing.T) {
	s := NewMemoryStore()
	s.Set("a", StateGreeted)
	s.Set("b", StateFreeform)

	assert.True(t, s.Remove("a"))
	assert.False(t, s.Remove("a"), "second removal is a no-op")

	_, ok := s.Get("b")
	assert.True(t, ok, "other senders are untouched")
	assert.Equal(t, 1, s.Len())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "none", StateNone.String())
	assert.Equal(t, "greeted", StateGreeted.String())
	assert.Equal(t, "freeform", StateFreeform.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.False(t, StateNone.Active())
	assert.True(t, StateGreeted.Active())
}

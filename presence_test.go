package gigsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresenceSetLastEventWins(t *testing.T) {
	p := NewPresenceSet()

	assert.True(t, p.Join("u1"))
	assert.False(t, p.Join("u1"))
	assert.True(t, p.IsOnline("u1"))

	assert.True(t, p.Leave("u1"))
	assert.False(t, p.Leave("u1"))
	assert.False(t, p.IsOnline("u1"))

	// A late join after a leave puts the user back online.
	p.Leave("u2")
	p.Join("u2")
	assert.True(t, p.IsOnline("u2"))
}

func TestPresenceSetReplace(t *testing.T) {
	p := NewPresenceSet()
	p.Join("stale")

	p.Replace([]string{"u3", "", "u1", "u3"})

	assert.Equal(t, []string{"u1", "u3"}, p.Online())
	assert.Equal(t, 2, p.Len())
	assert.False(t, p.IsOnline("stale"))
}

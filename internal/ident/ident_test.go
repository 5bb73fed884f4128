package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPlayerID(t *testing.T) {
	id := NewPlayerID()
	assert.Len(t, id, 26)
	assert.NoError(t, Validate(id))
}

func TestIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewPlayerID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestIDsSortByIssueTime(t *testing.T) {
	a := NewPlayerID()
	b := NewPlayerID()
	// UUIDv7 timestamps are millisecond-granular, so ids issued in the
	// same instant may share a prefix but never sort backwards.
	assert.LessOrEqual(t, a[:8], b[:8])
}

func TestValidate(t *testing.T) {
	assert.Error(t, Validate("short"))
	assert.Error(t, Validate("z2345678901234567890123456"))
	assert.Error(t, Validate("0234567890123456789012345!"))
	assert.NoError(t, Validate("01hqv4x7e0abcdefghjkmnpqrs"))
}

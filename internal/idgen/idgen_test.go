package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomCodes(t *testing.T) {
	g, err := NewRoomCodeGenerator(DefaultRoomCodeSize)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := g.Generate()
		require.NoError(t, err)
		ok, reason := g.Validate(code)
		assert.True(t, ok, reason)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 190)

	ok, _ := g.Validate("ABCD1O")
	assert.False(t, ok)
	ok, _ = g.Validate("ABC")
	assert.False(t, ok)
}

func TestRoomCodeSizeBounds(t *testing.T) {
	_, err := NewRoomCodeGenerator(3)
	assert.Error(t, err)
	_, err = NewRoomCodeGenerator(33)
	assert.Error(t, err)
}

func TestULIDs(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	g := &ULIDGenerator{now: func() time.Time { return fixed }}

	id, err := g.Generate()
	require.NoError(t, err)
	ok, reason := g.Validate(id)
	assert.True(t, ok, reason)

	ts, err := g.Time(id)
	require.NoError(t, err)
	assert.True(t, fixed.Equal(ts))

	ok, _ = g.Validate("not-a-ulid")
	assert.False(t, ok)
}

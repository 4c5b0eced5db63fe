package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	k := NewKeyspace()
	k.Set("foo", "bar")

	v, ok := k.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestExpirySoundness(t *testing.T) {
	k := NewKeyspace()
	k.SetPX("foo", "bar", 10)

	time.Sleep(30 * time.Millisecond)

	_, ok := k.Get("foo")
	assert.False(t, ok)

	// Observing an expired key removes it from both maps.
	_, hasExpiry := k.expiries["foo"]
	assert.False(t, hasExpiry)
	_, hasValue := k.values["foo"]
	assert.False(t, hasValue)
}

func TestOverwriteClearsExpiry(t *testing.T) {
	k := NewKeyspace()
	k.SetPX("foo", "bar", 10)
	k.Set("foo", "baz")

	time.Sleep(30 * time.Millisecond)

	v, ok := k.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "baz", v)
}

func TestKeysAll(t *testing.T) {
	k := NewKeyspace()
	k.Set("a", "1")
	k.Set("b", "2")

	keys := k.KeysAll()
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestLoadEntryWithoutExpiry(t *testing.T) {
	k := NewKeyspace()
	k.LoadEntry("foo", "bar", nil)

	v, ok := k.Get("foo")
	require.True(t, ok)
	assert.Equal(t, "bar", v)
}

func TestLoadEntryWithPastExpiry(t *testing.T) {
	k := NewKeyspace()
	past := time.Now().Add(-time.Hour)
	k.LoadEntry("foo", "bar", &past)

	_, ok := k.Get("foo")
	assert.False(t, ok)
}

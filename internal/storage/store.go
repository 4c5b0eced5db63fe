// Package storage implements the keyspace: a mapping from string keys to
// string values plus a parallel mapping of per-key absolute expiry instants.
package storage

import "time"

// Keyspace holds the in-memory key/value data and the expiry index.
// It is not safe for concurrent use on its own - callers are expected to
// serialize access (see internal/processor), which plays the role of the
// single coarse lock called for by a multi-threaded event loop.
type Keyspace struct {
	values   map[string]string
	expiries map[string]time.Time
}

// NewKeyspace creates an empty keyspace.
func NewKeyspace() *Keyspace {
	return &Keyspace{
		values:   make(map[string]string),
		expiries: make(map[string]time.Time),
	}
}

// deleteKey removes a key from both maps.
func (k *Keyspace) deleteKey(key string) {
	delete(k.values, key)
	delete(k.expiries, key)
}

// Set writes value for key and clears any existing expiry.
func (k *Keyspace) Set(key, value string) {
	k.values[key] = value
	delete(k.expiries, key)
}

// SetPX writes value for key with an expiry ms milliseconds in the future.
func (k *Keyspace) SetPX(key, value string, ms int64) {
	k.values[key] = value
	k.expiries[key] = time.Now().Add(time.Duration(ms) * time.Millisecond)
}

// Get returns the value for key iff it is visible: present in values and,
// if it has an expiry, not yet past it. Observing an expired key removes it
// from both maps before reporting the miss.
func (k *Keyspace) Get(key string) (string, bool) {
	value, exists := k.values[key]
	if !exists {
		return "", false
	}

	if expiry, hasExpiry := k.expiries[key]; hasExpiry && !time.Now().Before(expiry) {
		k.deleteKey(key)
		return "", false
	}

	return value, true
}

// KeysAll returns a stable-order snapshot of every key currently stored.
// Expired-but-not-yet-swept keys may or may not be included, per the lazy
// expiration contract.
func (k *Keyspace) KeysAll() []string {
	keys := make([]string, 0, len(k.values))
	for key := range k.values {
		keys = append(keys, key)
	}
	return keys
}

// LoadEntry installs a key/value pair with an optional absolute expiry,
// used by RDB loading and by applying a replicated write. It has identical
// semantics to Set/SetPX.
func (k *Keyspace) LoadEntry(key, value string, expiry *time.Time) {
	k.values[key] = value
	if expiry != nil {
		k.expiries[key] = *expiry
	} else {
		delete(k.expiries, key)
	}
}

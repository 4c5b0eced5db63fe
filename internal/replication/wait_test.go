package replication

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitReturnsImmediatelyWhenThresholdMet(t *testing.T) {
	server, client := pipePair(t)
	defer server.Close()
	defer client.Close()

	m := NewMaster(testLogger())
	session := m.Registry.Add(server)

	// Wait resets every ack counter when it broadcasts GETACK, so a real
	// replica's ack always arrives after that broadcast, never before it.
	// Stand in for that replica: once the GETACK bytes show up, ack back
	// immediately.
	go func() {
		buf := make([]byte, len(getAckFrame))
		if _, err := io.ReadFull(client, buf); err == nil {
			m.Registry.Ack(session)
		}
	}()

	start := time.Now()
	count := m.Wait(1, 500)
	elapsed := time.Since(start)

	assert.Equal(t, 1, count)
	assert.Less(t, elapsed, 200*time.Millisecond)
}

func TestWaitTimesOutBelowThreshold(t *testing.T) {
	server, client := pipePair(t)
	defer server.Close()
	defer client.Close()
	go io.Copy(io.Discard, client)

	m := NewMaster(testLogger())
	m.Registry.Add(server)

	start := time.Now()
	count := m.Wait(1, 100)
	elapsed := time.Since(start)

	assert.Equal(t, 0, count)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 300*time.Millisecond)
}

func TestWaitNeverExceedsReplicaCount(t *testing.T) {
	server, client := pipePair(t)
	defer server.Close()
	defer client.Close()

	m := NewMaster(testLogger())
	session := m.Registry.Add(server)
	go func() {
		buf := make([]byte, len(getAckFrame))
		if _, err := io.ReadFull(client, buf); err == nil {
			m.Registry.Ack(session)
		}
	}()

	count := m.Wait(5, 50)
	require.LessOrEqual(t, count, m.Registry.Len())
}

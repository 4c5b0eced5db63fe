package replication

import "time"

// getAckFrame is the exact byte encoding WAIT broadcasts, confirmed
// against the reference implementation: REPLCONF GETACK *.
var getAckFrame = []byte("*3\r\n$8\r\nREPLCONF\r\n$6\r\nGETACK\r\n$1\r\n*\r\n")

// pollInterval bounds how often Wait re-checks the ack count, per the
// "poll at <=10ms intervals" requirement.
const pollInterval = 10 * time.Millisecond

// Wait broadcasts REPLCONF GETACK to every replica, then polls the
// registry's acked count until it reaches n or timeoutMs elapses. The
// returned count is whatever was observed at the moment of return - it
// may be less than n on timeout, or more if late acks arrived during the
// final sleep.
func (m *Master) Wait(n int, timeoutMs int) int {
	m.Registry.Broadcast(getAckFrame)

	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		count := m.Registry.CountAcked()
		if count >= n {
			return count
		}
		if time.Now().After(deadline) {
			return count
		}
		time.Sleep(pollInterval)
	}
}

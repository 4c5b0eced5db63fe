// Package replication implements both sides of the master/replica
// relationship: the registry of attached replica sessions and the
// broadcast/ack-counting protocol a master uses (registry.go, master.go,
// wait.go), and the handshake/stream-apply loop a replica runs against its
// master (replica.go).
package replication

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Session is one replica connection promoted out of the client-command
// loop. ackCounter is reset to 0 by every Broadcast and incremented by
// every observed REPLCONF ACK.
type Session struct {
	conn       net.Conn
	addr       string
	ackCounter atomic.Int64
}

func (s *Session) Addr() string {
	return s.addr
}

// Registry is the set of connected replica sessions. All of its
// operations are non-blocking with respect to each other; the mutex is
// held only for the duration of the in-memory bookkeeping, never across a
// socket write, mirroring the "single coarse
// lock held only for a non-I/O operation" discipline the single-threaded
// model calls for.
type Registry struct {
	mu       sync.Mutex
	sessions map[*Session]struct{}
	logger   *logrus.Logger
}

func NewRegistry(logger *logrus.Logger) *Registry {
	return &Registry{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// Add installs conn as a replica session with an ack counter starting at
// 0. It is called at REPLCONF listening-port (or PSYNC), before the
// connection is promoted out of the client-command loop.
func (r *Registry) Add(conn net.Conn) *Session {
	s := &Session{conn: conn, addr: conn.RemoteAddr().String()}
	r.mu.Lock()
	r.sessions[s] = struct{}{}
	r.mu.Unlock()
	r.logger.WithField("component", "replication").WithField("addr", s.addr).Info("replica attached")
	return s
}

// Remove is idempotent.
func (r *Registry) Remove(s *Session) {
	r.mu.Lock()
	_, existed := r.sessions[s]
	delete(r.sessions, s)
	r.mu.Unlock()
	if existed {
		r.logger.WithField("component", "replication").WithField("addr", s.addr).Info("replica detached")
	}
}

// Len reports the number of currently attached replicas.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Broadcast resets every replica's ack counter to 0, then writes data to
// each replica's socket. A write failure removes that replica without
// aborting delivery to the others.
func (r *Registry) Broadcast(data []byte) {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions))
	for s := range r.sessions {
		s.ackCounter.Store(0)
		targets = append(targets, s)
	}
	r.mu.Unlock()

	for _, s := range targets {
		if _, err := s.conn.Write(data); err != nil {
			r.logger.WithField("component", "replication").WithField("addr", s.addr).WithError(err).Warn("replica write failed, detaching")
			r.Remove(s)
		}
	}
}

// Ack increments a session's ack counter, called when a REPLCONF ACK
// frame arrives on that session's passive reader.
func (r *Registry) Ack(s *Session) {
	s.ackCounter.Add(1)
}

// CountAcked returns the number of sessions whose ack counter is at least
// 1 since the most recent Broadcast.
func (r *Registry) CountAcked() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for s := range r.sessions {
		if s.ackCounter.Load() >= 1 {
			count++
		}
	}
	return count
}

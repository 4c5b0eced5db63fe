package replication

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Master is this process's replication identity when acting as a master:
// a stable replication ID and a monotonically increasing replication
// offset, plus the registry of attached replicas.
type Master struct {
	ReplID   string
	offset   atomic.Int64
	Registry *Registry
	logger   *logrus.Logger
}

// NewMaster generates a 40-hex-digit replication ID from two concatenated
// UUIDv4s, trimmed of dashes, mirroring the shape of a real Redis replid
// without hand-rolling hex encoding.
func NewMaster(logger *logrus.Logger) *Master {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Master{
		ReplID:   raw[:40],
		Registry: NewRegistry(logger),
		logger:   logger,
	}
}

// Offset returns the current master replication offset.
func (m *Master) Offset() int64 {
	return m.offset.Load()
}

// Advance bumps the master offset by n bytes, called once per SET frame
// forwarded to replicas.
func (m *Master) Advance(n int) {
	m.offset.Add(int64(n))
}

// Info renders the master-side payload for the INFO command: a single
// colon-joined string, matching the reference implementation's layout
// rather than real Redis's newline-delimited one.
func (m *Master) Info() string {
	return fmt.Sprintf("role:master:master_replid:%s:master_repl_offset:%d", m.ReplID, m.Offset())
}

// FullResyncLine is the reply to PSYNC ? -1 before the snapshot bulk.
func (m *Master) FullResyncLine() []byte {
	return []byte(fmt.Sprintf("+FULLRESYNC %s 0\r\n", m.ReplID))
}

// cannedSnapshot is a known-good empty-dataset RDB dump (header, a handful
// of metadata attributes, and an EOF marker with its trailing CRC64), the
// same fixture bytes the reference implementation embeds for its PSYNC
// response. Its length prefix in SnapshotBulk is computed from this slice,
// so the two can never drift apart.
var cannedSnapshot = []byte{
	0x52, 0x45, 0x44, 0x49, 0x53, 0x30, 0x30, 0x31, 0x31, 0xfa, 0x09, 0x72,
	0x65, 0x64, 0x69, 0x73, 0x2d, 0x76, 0x65, 0x72, 0x05, 0x37, 0x2e, 0x32,
	0x2e, 0x30, 0xfa, 0x0a, 0x72, 0x65, 0x64, 0x69, 0x73, 0x2d, 0x62, 0x69,
	0x74, 0x73, 0xc0, 0x40, 0xfa, 0x05, 0x63, 0x74, 0x69, 0x6d, 0x65, 0xc2,
	0x6d, 0x08, 0xbc, 0x65, 0xfa, 0x08, 0x75, 0x73, 0x65, 0x64, 0x2d, 0x6d,
	0x65, 0x6d, 0xc2, 0xb0, 0xc4, 0x10, 0x00, 0xfa, 0x08, 0x61, 0x6f, 0x66,
	0x2d, 0x62, 0x61, 0x73, 0x65, 0xc0, 0x00, 0xff, 0xf0, 0x6e, 0x3b, 0xfe,
	0xc0, 0xff, 0x5a, 0xa2,
}

// SnapshotBulk renders the canned RDB payload as the non-standard
// "$<len>\r\n<bytes>" framing PSYNC uses - no trailing CRLF.
func SnapshotBulk() []byte {
	return append([]byte(fmt.Sprintf("$%d\r\n", len(cannedSnapshot))), cannedSnapshot...)
}

// RegisterReplica installs conn in the registry, called as soon as
// REPLCONF listening-port is seen - before PSYNC, while the connection is
// still nominally a client.
func (m *Master) RegisterReplica(conn net.Conn) *Session {
	return m.Registry.Add(conn)
}

// Promote detaches the connection from client-command duty: it spawns
// the passive ACK reader that is a replica session's only further inbound
// traffic, once PSYNC has been answered with the FULLRESYNC line and
// snapshot.
func (m *Master) Promote(session *Session, reader *bufio.Reader) {
	go m.readAcks(session, reader)
}

// readAcks consumes REPLCONF ACK <offset> frames until the connection
// closes or a read fails, per C6's "passive reader" contract.
func (m *Master) readAcks(session *Session, reader *bufio.Reader) {
	defer m.Registry.Remove(session)
	buf := make([]byte, 0, 256)
	chunk := make([]byte, 4096)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			buf = consumeAckFrames(m, session, buf)
		}
		if err != nil {
			return
		}
	}
}

// consumeAckFrames parses as many complete RESP command arrays as buf
// holds and, for each one that is REPLCONF ACK <offset>, calls Ack. It
// returns the unconsumed remainder.
func consumeAckFrames(m *Master, session *Session, buf []byte) []byte {
	for {
		cmd, n, err := parseFrame(buf)
		if err != nil {
			return buf
		}
		if len(cmd) >= 2 && strings.EqualFold(cmd[0], "REPLCONF") && strings.EqualFold(cmd[1], "ACK") {
			m.Registry.Ack(session)
		}
		buf = buf[n:]
	}
}

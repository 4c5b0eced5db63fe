package replication

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"respkv/internal/processor"
	"respkv/internal/protocol"
	"respkv/internal/rdb"
)

// Replica drives the client side of the master/replica relationship: the
// handshake, the snapshot ingest, and the streamed-write apply loop.
type Replica struct {
	masterHost string
	masterPort int
	ownPort    int
	processor  *processor.Processor
	logger     *logrus.Logger
	offset     atomic.Int64
}

func NewReplica(masterHost string, masterPort, ownPort int, proc *processor.Processor, logger *logrus.Logger) *Replica {
	return &Replica{
		masterHost: masterHost,
		masterPort: masterPort,
		ownPort:    ownPort,
		processor:  proc,
		logger:     logger,
	}
}

// Offset returns the current replication offset, echoed back in ACK
// frames.
func (r *Replica) Offset() int64 {
	return r.offset.Load()
}

// Run connects to the master, performs the handshake, ingests the
// snapshot, and then applies the streamed replication log until ctx is
// canceled or the connection fails. A handshake error is logged and
// terminates only this task; it never propagates to the client acceptor.
func (r *Replica) Run(ctx context.Context) error {
	log := r.logger.WithField("component", "replica")

	addr := fmt.Sprintf("%s:%d", r.masterHost, r.masterPort)
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("replica: dial master %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reader := bufio.NewReader(conn)

	if err := r.handshake(conn, reader); err != nil {
		log.WithError(err).Warn("handshake failed")
		return err
	}
	log.Info("handshake complete")

	remainder, err := r.ingestSnapshot(reader)
	if err != nil {
		log.WithError(err).Warn("snapshot ingest failed")
		return err
	}
	log.WithField("offset", r.Offset()).Info("snapshot loaded")

	return r.streamLoop(conn, reader, remainder)
}

func (r *Replica) handshake(conn net.Conn, reader *bufio.Reader) error {
	if err := r.step(conn, reader, []string{"PING"}, "PONG"); err != nil {
		return fmt.Errorf("replica: PING: %w", err)
	}
	if err := r.step(conn, reader, []string{"REPLCONF", "listening-port", strconv.Itoa(r.ownPort)}, "OK"); err != nil {
		return fmt.Errorf("replica: REPLCONF listening-port: %w", err)
	}
	if err := r.step(conn, reader, []string{"REPLCONF", "capa", "psync2"}, "OK"); err != nil {
		return fmt.Errorf("replica: REPLCONF capa psync2: %w", err)
	}
	if _, err := conn.Write(protocol.EncodeCommandArray("PSYNC", "?", "-1")); err != nil {
		return fmt.Errorf("replica: send PSYNC: %w", err)
	}
	return nil
}

// step sends a command and expects a simple-string reply whose payload
// matches want, case-insensitively.
func (r *Replica) step(conn net.Conn, reader *bufio.Reader, args []string, want string) error {
	if _, err := conn.Write(protocol.EncodeCommandArray(args...)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, "+") || !strings.EqualFold(strings.TrimPrefix(line, "+"), want) {
		return fmt.Errorf("unexpected reply %q, want +%s", line, want)
	}
	return nil
}

// ingestSnapshot reads the first post-PSYNC chunk, locates the RDB header
// within it, decodes the snapshot into the keyspace, and returns whatever
// trailing bytes belong to the replication stream. The replication offset
// is initialized to the full length of this first chunk - including the
// FULLRESYNC line and the snapshot bytes - deliberately, per the
// documented accounting quirk.
func (r *Replica) ingestSnapshot(reader *bufio.Reader) ([]byte, error) {
	chunk := make([]byte, 65536)
	n, err := reader.Read(chunk)
	if err != nil {
		return nil, fmt.Errorf("read post-PSYNC chunk: %w", err)
	}
	chunk = chunk[:n]
	r.offset.Store(int64(n))

	idx := bytes.Index(chunk, []byte("REDIS"))
	if idx == -1 {
		return nil, fmt.Errorf("no RDB header found in post-PSYNC chunk")
	}
	if idx+9 > len(chunk) {
		return nil, fmt.Errorf("post-PSYNC chunk too short for RDB header")
	}
	for _, b := range chunk[idx+5 : idx+9] {
		if b < '0' || b > '9' {
			return nil, fmt.Errorf("non-numeric RDB version digit %q", b)
		}
	}

	body := chunk[idx+9:]
	entries, consumed, err := rdb.DecodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for _, e := range entries {
		r.processor.Submit(&processor.Command{
			Type:     processor.CmdLoadEntry,
			Key:      e.Key,
			Value:    e.Value,
			Expiry:   e.Expiry,
			Response: make(chan any, 1),
		})
	}

	return body[consumed:], nil
}

// streamLoop applies SET commands from the replication stream and replies
// to REPLCONF GETACK with the current offset, accumulating offset by the
// byte length of every chunk read from the socket.
func (r *Replica) streamLoop(conn net.Conn, reader *bufio.Reader, buf []byte) error {
	chunk := make([]byte, 65536)
	for {
		for {
			args, n, err := parseFrame(buf)
			if err != nil {
				break
			}
			buf = buf[n:]
			r.applyStreamed(conn, args)
		}

		n, err := reader.Read(chunk)
		if err != nil {
			return fmt.Errorf("replication stream read: %w", err)
		}
		r.offset.Add(int64(n))
		buf = append(buf, chunk[:n]...)
	}
}

func (r *Replica) applyStreamed(conn net.Conn, args []string) {
	if len(args) == 0 {
		return
	}
	switch {
	case strings.EqualFold(args[0], "REPLCONF") && len(args) >= 2 && strings.EqualFold(args[1], "GETACK"):
		r.replyAck(conn)

	case strings.EqualFold(args[0], "SET"):
		r.applySet(args)

	default:
		// Other commands are silently ignored, per the replica's
		// read-only contract.
	}
}

func (r *Replica) applySet(args []string) {
	if len(args) < 3 {
		return
	}
	key, value := args[1], args[2]
	cmd := &processor.Command{Key: key, Value: value, Response: make(chan any, 1)}
	if len(args) >= 5 && strings.EqualFold(args[3], "PX") {
		ms, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			return
		}
		cmd.Type = processor.CmdSetPX
		cmd.ExpiryMs = ms
	} else {
		cmd.Type = processor.CmdSet
	}
	r.processor.Submit(cmd)
}

func (r *Replica) replyAck(conn net.Conn) {
	offset := strconv.FormatInt(r.Offset(), 10)
	frame := fmt.Sprintf("*3\r\n$8\r\nREPLCONF\r\n$3\r\nACK\r\n$%d\r\n%s\r\n", len(offset), offset)
	if _, err := conn.Write([]byte(frame)); err != nil {
		r.logger.WithField("component", "replica").WithError(err).Warn("ACK write failed")
	}
}

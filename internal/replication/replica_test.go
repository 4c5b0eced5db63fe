package replication

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"respkv/internal/processor"
	"respkv/internal/protocol"
	"respkv/internal/storage"
)

// frameReader accumulates bytes off a net.Conn and hands back one parsed
// command array at a time, mirroring the server's own read-parse-consume
// loop (internal/server.handleConnection) so the fake master below drives
// the replica exactly the way a real one would.
type frameReader struct {
	conn net.Conn
	buf  []byte
}

func (f *frameReader) next() ([]string, error) {
	chunk := make([]byte, 4096)
	for {
		cmd, n, err := protocol.ParseCommand(f.buf)
		if err == nil {
			f.buf = f.buf[n:]
			return cmd.Args, nil
		}
		if err != protocol.ErrNeedMore {
			return nil, err
		}
		n, rerr := f.conn.Read(chunk)
		if rerr != nil {
			return nil, rerr
		}
		f.buf = append(f.buf, chunk[:n]...)
	}
}

// TestReplicaHandshakeSnapshotAndStreamApply drives a Replica against a
// hand-rolled fake master over a real TCP socket: PING/REPLCONF/PSYNC
// handshake, canned snapshot ingest, one streamed SET, then a GETACK round
// trip - the replica-convergence scenario from the spec's testable
// properties.
func TestReplicaHandshakeSnapshotAndStreamApply(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	masterDone := make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			masterDone <- err
			return
		}
		defer conn.Close()
		fr := &frameReader{conn: conn}

		if args, err := fr.next(); err != nil || len(args) != 1 || !strings.EqualFold(args[0], "PING") {
			masterDone <- fmt.Errorf("expected PING, got %v (err=%v)", args, err)
			return
		}
		conn.Write(protocol.EncodeSimpleString("PONG"))

		if args, err := fr.next(); err != nil || len(args) < 2 || !strings.EqualFold(args[0], "REPLCONF") || !strings.EqualFold(args[1], "listening-port") {
			masterDone <- fmt.Errorf("expected REPLCONF listening-port, got %v (err=%v)", args, err)
			return
		}
		conn.Write(protocol.EncodeSimpleString("OK"))

		if args, err := fr.next(); err != nil || len(args) < 2 || !strings.EqualFold(args[0], "REPLCONF") || !strings.EqualFold(args[1], "capa") {
			masterDone <- fmt.Errorf("expected REPLCONF capa, got %v (err=%v)", args, err)
			return
		}
		conn.Write(protocol.EncodeSimpleString("OK"))

		if args, err := fr.next(); err != nil || len(args) != 3 || !strings.EqualFold(args[0], "PSYNC") {
			masterDone <- fmt.Errorf("expected PSYNC, got %v (err=%v)", args, err)
			return
		}
		conn.Write([]byte("+FULLRESYNC 0123456789012345678901234567890123456789 0\r\n"))
		conn.Write(SnapshotBulk())
		conn.Write(protocol.EncodeCommandArray("SET", "foo", "bar"))
		conn.Write(getAckFrame)

		ackArgs, err := fr.next()
		if err != nil {
			masterDone <- fmt.Errorf("expected ACK, got err=%v", err)
			return
		}
		if len(ackArgs) != 3 || !strings.EqualFold(ackArgs[0], "REPLCONF") || !strings.EqualFold(ackArgs[1], "ACK") {
			masterDone <- fmt.Errorf("unexpected ack frame %v", ackArgs)
			return
		}
		masterDone <- nil
	}()

	proc := processor.NewProcessor(storage.NewKeyspace())
	defer proc.Shutdown()

	r := NewReplica(host, port, 9999, proc, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- r.Run(ctx) }()

	select {
	case err := <-masterDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fake master handshake")
	}

	require.Eventually(t, func() bool {
		cmd := &processor.Command{Type: processor.CmdGet, Key: "foo", Response: make(chan any, 1)}
		proc.Submit(cmd)
		res := (<-cmd.Response).(processor.GetResult)
		return res.Exists && res.Value == "bar"
	}, time.Second, 10*time.Millisecond, "streamed SET should be applied to the replica's keyspace")
}

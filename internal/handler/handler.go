// Package handler implements the command dispatch table (C5): it turns a
// parsed RESP command array into a reply, mutating the keyspace and
// forwarding writes to attached replicas along the way.
package handler

import (
	"net"
	"strings"

	"github.com/sirupsen/logrus"

	"respkv/internal/config"
	"respkv/internal/processor"
	"respkv/internal/protocol"
	"respkv/internal/replication"
)

// ClientConn carries the per-connection state Dispatch needs beyond the
// command itself: the socket to reply on (or, for a promoted replica, to
// register), and the replica session once REPLCONF listening-port has
// registered one.
type ClientConn struct {
	Conn    net.Conn
	Replica *replication.Session
}

// Engine holds everything command dispatch needs: the keyspace processor,
// this server's replication identity, and its startup configuration.
type Engine struct {
	Processor *processor.Processor
	Master    *replication.Master
	Config    config.Config
	Logger    *logrus.Logger
}

func NewEngine(proc *processor.Processor, master *replication.Master, cfg config.Config, logger *logrus.Logger) *Engine {
	return &Engine{Processor: proc, Master: master, Config: cfg, Logger: logger}
}

// Result is what Dispatch hands back to the connection loop.
type Result struct {
	// Response is the bytes to write back to the client, if any. PSYNC's
	// response already includes both the FULLRESYNC line and the
	// snapshot bulk.
	Response []byte
	// Detach is true when the connection must stop being a client
	// command loop and become a passive replica reader (PSYNC).
	Detach bool
}

// Dispatch executes one parsed command. raw is the verbatim bytes the
// client sent for this command - required so SET can be forwarded to
// replicas byte-for-byte rather than re-serialized.
func (e *Engine) Dispatch(cc *ClientConn, args []string, raw []byte) Result {
	if len(args) == 0 {
		return Result{Response: protocol.EncodeError("ERR unknown command")}
	}

	switch strings.ToUpper(args[0]) {
	case "PING":
		return Result{Response: protocol.EncodeSimpleString("PONG")}
	case "ECHO":
		return e.handleEcho(args)
	case "SET":
		return e.handleSet(args, raw)
	case "GET":
		return e.handleGet(args)
	case "CONFIG":
		return e.handleConfig(args)
	case "KEYS":
		return e.handleKeys(args)
	case "INFO":
		return e.handleInfo(args)
	case "REPLCONF":
		return e.handleReplconf(cc, args)
	case "PSYNC":
		return e.handlePsync(cc, args)
	case "WAIT":
		return e.handleWait(args)
	default:
		return Result{Response: protocol.EncodeError("ERR unknown command")}
	}
}

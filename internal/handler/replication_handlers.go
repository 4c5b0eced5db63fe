package handler

import (
	"strconv"
	"strings"

	"respkv/internal/protocol"
	"respkv/internal/replication"
)

func (e *Engine) handleReplconf(cc *ClientConn, args []string) Result {
	if len(args) < 2 {
		return Result{Response: protocol.EncodeError("ERR wrong number of arguments for 'replconf' command")}
	}
	if strings.EqualFold(args[1], "listening-port") && cc.Replica == nil {
		cc.Replica = e.Master.RegisterReplica(cc.Conn)
	}
	return Result{Response: protocol.EncodeSimpleString("OK")}
}

func (e *Engine) handlePsync(cc *ClientConn, args []string) Result {
	response := append(e.Master.FullResyncLine(), replication.SnapshotBulk()...)
	if cc.Replica == nil {
		cc.Replica = e.Master.RegisterReplica(cc.Conn)
	}
	return Result{Response: response, Detach: true}
}

func (e *Engine) handleWait(args []string) Result {
	if len(args) != 3 {
		return Result{Response: protocol.EncodeInteger(0)}
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return Result{Response: protocol.EncodeInteger(0)}
	}
	timeoutMs, err := strconv.Atoi(args[2])
	if err != nil {
		return Result{Response: protocol.EncodeInteger(0)}
	}

	count := e.Master.Wait(n, timeoutMs)
	return Result{Response: protocol.EncodeInteger(int64(count))}
}

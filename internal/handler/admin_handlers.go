package handler

import (
	"strings"

	"respkv/internal/protocol"
)

func (e *Engine) handleConfig(args []string) Result {
	if len(args) != 3 || !strings.EqualFold(args[1], "GET") {
		return Result{Response: protocol.EncodeError("ERR unsupported CONFIG subcommand")}
	}

	var value string
	switch strings.ToLower(args[2]) {
	case "dir":
		value = e.Config.Dir
	case "dbfilename":
		value = e.Config.DBFilename
	default:
		return Result{Response: protocol.EncodeArray(nil)}
	}
	return Result{Response: protocol.EncodeArray([]string{args[2], value})}
}

func (e *Engine) handleInfo(args []string) Result {
	if e.Config.IsReplica() {
		return Result{Response: protocol.EncodeBulkString("role:slave")}
	}
	return Result{Response: protocol.EncodeBulkString(e.Master.Info())}
}

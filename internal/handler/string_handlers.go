package handler

import (
	"strconv"
	"strings"

	"respkv/internal/processor"
	"respkv/internal/protocol"
)

func (e *Engine) handleEcho(args []string) Result {
	if len(args) != 2 {
		return Result{Response: protocol.EncodeError("ERR wrong number of arguments for 'echo' command")}
	}
	return Result{Response: protocol.EncodeSimpleString(args[1])}
}

func (e *Engine) handleSet(args []string, raw []byte) Result {
	if len(args) < 3 {
		return Result{Response: protocol.EncodeError("ERR wrong number of arguments for 'set' command")}
	}
	key, value := args[1], args[2]

	cmd := &processor.Command{Key: key, Value: value, Response: make(chan any, 1)}
	if len(args) >= 5 && strings.EqualFold(args[3], "PX") {
		ms, err := strconv.ParseInt(args[4], 10, 64)
		if err != nil {
			return Result{Response: protocol.EncodeError("ERR value is not an integer or out of range")}
		}
		cmd.Type = processor.CmdSetPX
		cmd.ExpiryMs = ms
	} else {
		cmd.Type = processor.CmdSet
	}

	e.Processor.Submit(cmd)
	<-cmd.Response

	e.Master.Registry.Broadcast(raw)
	e.Master.Advance(len(raw))

	return Result{Response: protocol.EncodeSimpleString("OK")}
}

func (e *Engine) handleGet(args []string) Result {
	if len(args) != 2 {
		return Result{Response: protocol.EncodeError("ERR wrong number of arguments for 'get' command")}
	}

	cmd := &processor.Command{Type: processor.CmdGet, Key: args[1], Response: make(chan any, 1)}
	e.Processor.Submit(cmd)
	result := (<-cmd.Response).(processor.GetResult)

	if !result.Exists {
		return Result{Response: protocol.EncodeNullBulkString()}
	}
	return Result{Response: protocol.EncodeBulkString(result.Value)}
}

func (e *Engine) handleKeys(args []string) Result {
	if len(args) != 2 {
		return Result{Response: protocol.EncodeError("ERR wrong number of arguments for 'keys' command")}
	}
	if args[1] != "*" {
		return Result{Response: protocol.EncodeArray(nil)}
	}

	cmd := &processor.Command{Type: processor.CmdKeysAll, Response: make(chan any, 1)}
	e.Processor.Submit(cmd)
	keys := (<-cmd.Response).([]string)

	return Result{Response: protocol.EncodeArray(keys)}
}

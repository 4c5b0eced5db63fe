package replication

import "respkv/internal/protocol"

// parseFrame parses one RESP command array from buf, returning its
// argument strings and the number of bytes consumed. It is a thin
// adapter so both the ack reader and the replica-side stream loop share
// the same protocol-level parsing.
func parseFrame(buf []byte) ([]string, int, error) {
	cmd, n, err := protocol.ParseCommand(buf)
	if err != nil {
		return nil, 0, err
	}
	return cmd.Args, n, nil
}

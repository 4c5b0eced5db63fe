// Package processor serializes all access to the keyspace through a single
// goroutine, so the in-memory maps never need their own lock: every
// command, whether it arrived from a client, the RDB loader, or the
// replication stream, is executed one at a time in Submit order.
package processor

import (
	"context"
	"time"

	"respkv/internal/storage"
)

// CommandType identifies which keyspace operation a Command requests.
type CommandType int

const (
	CmdSet CommandType = iota
	CmdSetPX
	CmdGet
	CmdKeysAll
	CmdLoadEntry
)

// Command is submitted to the Processor and carries its own response
// channel; the caller blocks on Response until the serializing goroutine
// has executed it.
type Command struct {
	Type     CommandType
	Key      string
	Value    string
	ExpiryMs int64
	Expiry   *time.Time // used by CmdLoadEntry
	Response chan any
}

// GetResult is the payload returned for CmdGet.
type GetResult struct {
	Value  string
	Exists bool
}

// Processor owns a Keyspace and executes one Command at a time.
type Processor struct {
	store       *storage.Keyspace
	commandChan chan *Command
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewProcessor starts the serializing goroutine over store.
func NewProcessor(store *storage.Keyspace) *Processor {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		store:       store,
		commandChan: make(chan *Command, 1000),
		ctx:         ctx,
		cancel:      cancel,
	}
	go p.run()
	return p
}

// Store returns the underlying keyspace. Access through it bypasses the
// serializing goroutine; the RDB loader and the replica-side applier use
// Submit instead.
func (p *Processor) Store() *storage.Keyspace {
	return p.store
}

func (p *Processor) run() {
	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return
		case cmd := <-p.commandChan:
			p.execute(cmd)
		}
	}
}

func (p *Processor) drain() {
	for {
		select {
		case cmd := <-p.commandChan:
			p.execute(cmd)
		default:
			return
		}
	}
}

func (p *Processor) execute(cmd *Command) {
	switch cmd.Type {
	case CmdSet:
		p.store.Set(cmd.Key, cmd.Value)
		cmd.Response <- struct{}{}
	case CmdSetPX:
		p.store.SetPX(cmd.Key, cmd.Value, cmd.ExpiryMs)
		cmd.Response <- struct{}{}
	case CmdGet:
		value, exists := p.store.Get(cmd.Key)
		cmd.Response <- GetResult{Value: value, Exists: exists}
	case CmdKeysAll:
		cmd.Response <- p.store.KeysAll()
	case CmdLoadEntry:
		p.store.LoadEntry(cmd.Key, cmd.Value, cmd.Expiry)
		cmd.Response <- struct{}{}
	}
}

// Submit enqueues cmd for execution. The caller supplies Response.
func (p *Processor) Submit(cmd *Command) {
	p.commandChan <- cmd
}

// Shutdown stops the serializing goroutine after draining queued commands.
func (p *Processor) Shutdown() {
	p.cancel()
}

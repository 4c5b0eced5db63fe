// Package server owns the TCP acceptor and per-connection command loop:
// the glue between a raw socket, the RESP codec, and the command engine.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"respkv/internal/config"
	"respkv/internal/handler"
	"respkv/internal/processor"
	"respkv/internal/protocol"
	"respkv/internal/replication"
	"respkv/internal/storage"
)

// Server wires together the keyspace, the command engine, and - in
// replica mode - the handshake task, per the "fields of a single value
// constructed at startup, passed by reference to every task" design.
type Server struct {
	config    config.Config
	keyspace  *storage.Keyspace
	processor *processor.Processor
	master    *replication.Master
	engine    *handler.Engine
	logger    *logrus.Logger
}

func New(cfg config.Config, logger *logrus.Logger) *Server {
	keyspace := storage.NewKeyspace()
	proc := processor.NewProcessor(keyspace)
	master := replication.NewMaster(logger)
	engine := handler.NewEngine(proc, master, cfg, logger)

	return &Server{
		config:    cfg,
		keyspace:  keyspace,
		processor: proc,
		master:    master,
		engine:    engine,
		logger:    logger,
	}
}

// Run loads any configured RDB snapshot, binds the listener, and runs the
// acceptor loop plus - when configured as a replica - the handshake task,
// until ctx is canceled or a fatal error occurs.
func (s *Server) Run(ctx context.Context) error {
	if err := s.loadRDB(); err != nil {
		s.logger.WithField("component", "server").WithError(err).Warn("RDB load failed, starting with empty keyspace")
	}

	addr := fmt.Sprintf("localhost:%d", s.config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	defer listener.Close()
	s.logger.WithField("component", "server").WithField("addr", addr).Info("listening")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.acceptLoop(ctx, listener)
	})

	if host, port, ok, err := s.config.ReplicaHostPort(); err != nil {
		return err
	} else if ok {
		replica := replication.NewReplica(host, port, s.config.Port, s.processor, s.logger)
		g.Go(func() error {
			if err := replica.Run(ctx); err != nil {
				s.logger.WithField("component", "replica").WithError(err).Warn("replication task stopped")
			}
			return nil
		})
	}

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	return g.Wait()
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("server: accept: %w", err)
			}
		}
		go s.handleConnection(conn)
	}
}

// handleConnection runs the read -> parse -> dispatch -> write loop for
// one client connection until it closes, a write fails, or PSYNC detaches
// it into a replica session.
func (s *Server) handleConnection(conn net.Conn) {
	log := s.logger.WithField("component", "server").WithField("addr", conn.RemoteAddr().String())
	reader := bufio.NewReader(conn)
	cc := &handler.ClientConn{Conn: conn}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)

	for {
		cmd, n, err := protocol.ParseCommand(buf)
		if err == nil {
			raw := append([]byte(nil), buf[:n]...)
			buf = buf[n:]

			result := s.engine.Dispatch(cc, cmd.Args, raw)
			if len(result.Response) > 0 {
				if _, werr := conn.Write(result.Response); werr != nil {
					log.WithError(werr).Debug("write failed")
					conn.Close()
					return
				}
			}
			if result.Detach {
				s.master.Promote(cc.Replica, reader)
				return
			}
			continue
		}
		if err != protocol.ErrNeedMore {
			if _, werr := conn.Write(protocol.EncodeError("ERR parse error: " + err.Error())); werr != nil {
				conn.Close()
				return
			}
			// Drop the buffer: without a reliable frame boundary we
			// cannot know where the next command starts.
			buf = buf[:0]
			continue
		}

		n, rerr := reader.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if rerr != nil {
			conn.Close()
			return
		}
	}
}

package mllp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hl7tools/internal/hl7"
)

// Handler answers one inbound message. A nil response sends nothing back.
type Handler interface {
	Handle(ctx context.Context, msg *hl7.Message) (*hl7.Message, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *hl7.Message) (*hl7.Message, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg *hl7.Message) (*hl7.Message, error) {
	return f(ctx, msg)
}

// Server accepts MLLP connections and answers every frame through Handler.
type Server struct {
	Handler Handler
	Logger  *zap.Logger
}

// Serve accepts connections on ln until ctx is done. It closes ln and
// waits for open connections to finish before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return ln.Close()
	})

	var conns sync.WaitGroup
	g.Go(func() error {
		defer conns.Wait()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				return err
			}
			logger.Info("HL7 connection accepted", zap.Stringer("remote", conn.RemoteAddr()))

			conns.Add(1)
			go func() {
				defer conns.Done()
				s.serveConn(gctx, conn, logger)
			}()
		}
	})

	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// ServeStream answers frames arriving on one already open stream, such as a
// serial port, until ctx is done or the stream ends.
func (s *Server) ServeStream(ctx context.Context, rwc io.ReadWriteCloser) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s.serveConn(ctx, rwc, logger)
	return ctx.Err()
}

func (s *Server) serveConn(ctx context.Context, conn io.ReadWriteCloser, logger *zap.Logger) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		payload, err := ReadFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("HL7 read error", zap.Error(err))
			}
			return
		}

		msg, err := hl7.Parse(hl7.NormalizeTerminators(string(payload)))
		if err != nil {
			logger.Warn("Dropping unparseable HL7 message", zap.Error(err))
			continue
		}
		logger.Info("HL7 message received",
			zap.String("type", msg.Type()),
			zap.String("control_id", msg.ControlID()))

		resp, err := s.Handler.Handle(ctx, msg)
		if err != nil {
			logger.Warn("HL7 handler failed", zap.String("control_id", msg.ControlID()), zap.Error(err))
		}
		if resp == nil {
			continue
		}
		if err := WriteFrame(conn, []byte(resp.Encode())); err != nil {
			logger.Warn("HL7 write error", zap.Error(err))
			return
		}
	}
}

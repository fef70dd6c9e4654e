package pingpong

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/session"
)

// Server answers Pings until each peer hangs up.
type Server struct {
	pool *buffer.Pool
	cfg  session.Config

	conns atomic.Int64
	pings atomic.Uint64
}

func NewServer(pool *buffer.Pool, cfg session.Config) *Server {
	return &Server{pool: pool, cfg: cfg}
}

// Serve accepts on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	return session.Serve(ctx, ln, s.pool, s.cfg, s.Handle)
}

// ListenAndServe listens on addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("pingpong: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Handle serves one connection. A clean hangup returns nil.
func (s *Server) Handle(ctx context.Context, c *session.Conn) error {
	lg := c.Logger()
	active := s.conns.Add(1)
	lg.Info().Int64("active", active).Msg("pingpong client connected")
	defer func() {
		lg.Info().Int64("active", s.conns.Add(-1)).Msg("pingpong client disconnected")
	}()

	for ctx.Err() == nil {
		f, err := c.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := expect(f, PingMsgType); err != nil {
			f.Release()
			lg.Warn().Err(err).Msg("pingpong halting")
			return err
		}
		var ping Ping
		err = ping.UnmarshalBinary(f.Payload())
		f.Release()
		if err != nil {
			return fmt.Errorf("pingpong: decode ping: %w", err)
		}
		s.pings.Add(1)
		lg.Debug().Uint64("nonce", ping.Nonce).Msg("received ping")

		pong, err := NewPong(ping.Nonce).Frame()
		if err != nil {
			return err
		}
		if err := c.WriteFrame(pong); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Pings is the number of well-formed Pings received so far.
func (s *Server) Pings() uint64 { return s.pings.Load() }

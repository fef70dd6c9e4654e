package session

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"time"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/rs/zerolog/log"
)

// Dial connects to addr and opens a client Conn, retrying failed dials and
// handshakes with backoff until cfg.MaxConnectAttempts or ctx ends.
func Dial(ctx context.Context, addr string, pool *buffer.Pool, cfg Config) (*Conn, error) {
	cfg = cfg.WithDefaults()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var attempt int
	for {
		attempt++
		c, err := dialOnce(ctx, addr, pool, cfg)
		if err == nil {
			return c, nil
		}
		log.Warn().Int("attempt", attempt).Str("addr", addr).Err(err).Msg("session dial failed")
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cfg.MaxConnectAttempts > 0 && attempt >= cfg.MaxConnectAttempts {
			return nil, err
		}
		if err := sleepBackoff(ctx, cfg.Backoff, attempt, rng); err != nil {
			return nil, err
		}
	}
}

func dialOnce(ctx context.Context, addr string, pool *buffer.Pool, cfg Config) (*Conn, error) {
	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	nc, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return Client(ctx, nc, pool, cfg)
}

// Handler serves one accepted Conn. The Conn is closed when it returns.
type Handler func(ctx context.Context, c *Conn) error

// Serve accepts on ln until ctx is done, opening a server Conn for each
// socket and running h in its own goroutine. It returns nil on ctx
// cancellation.
func Serve(ctx context.Context, ln net.Listener, pool *buffer.Pool, cfg Config, h Handler) error {
	cfg = cfg.WithDefaults()
	log.Info().Str("addr", ln.Addr().String()).Bool("encrypted", cfg.Encrypted).Msg("session listening")

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go func() {
			c, err := Server(ctx, nc, pool, cfg)
			if err != nil {
				return
			}
			defer c.Close()
			if err := h(ctx, c); err != nil {
				c.log.Debug().Err(err).Msg("handler done")
			}
		}()
	}
}

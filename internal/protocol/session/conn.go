package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/codec"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrClosed = errors.New("session: connection closed")

type Role uint8

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleResponder {
		return "responder"
	}
	return "initiator"
}

type Direction uint8

const (
	Inbound Direction = iota
	Outbound
)

func (d Direction) String() string {
	if d == Outbound {
		return "out"
	}
	return "in"
}

// Observer sees every frame a Conn moves and every error that closes it.
type Observer interface {
	FrameDone(dir Direction, h frame.Header, handshake bool)
	FrameFailed(dir Direction, err error)
}

// Conn is one framed connection. ReadFrame and WriteFrame may be called
// from different goroutines; each is serialized with itself.
type Conn struct {
	id   uuid.UUID
	role Role
	nc   net.Conn
	cfg  Config
	log  zerolog.Logger

	rmu sync.Mutex
	dec *codec.Decoder
	wmu sync.Mutex
	enc *codec.Encoder

	closeOnce sync.Once
	closed    chan struct{}
}

func newConn(nc net.Conn, pool *buffer.Pool, cfg Config, role Role) *Conn {
	id := uuid.New()
	return &Conn{
		id:   id,
		role: role,
		nc:   nc,
		cfg:  cfg,
		log: log.With().
			Str("conn", id.String()).
			Str("role", role.String()).
			Str("remote", nc.RemoteAddr().String()).
			Logger(),
		dec:    codec.NewDecoder(pool, cfg.Limits),
		enc:    codec.NewEncoder(pool),
		closed: make(chan struct{}),
	}
}

// Client wraps nc as the initiating side, running the handshake first when
// cfg.Encrypted is set.
func Client(ctx context.Context, nc net.Conn, pool *buffer.Pool, cfg Config) (*Conn, error) {
	return open(ctx, nc, pool, cfg, RoleInitiator)
}

// Server wraps an accepted nc as the responding side.
func Server(ctx context.Context, nc net.Conn, pool *buffer.Pool, cfg Config) (*Conn, error) {
	return open(ctx, nc, pool, cfg, RoleResponder)
}

func open(ctx context.Context, nc net.Conn, pool *buffer.Pool, cfg Config, role Role) (*Conn, error) {
	cfg = cfg.WithDefaults()
	c := newConn(nc, pool, cfg, role)
	if cfg.Encrypted {
		if err := c.handshake(ctx); err != nil {
			c.fail(Inbound, err)
			return nil, fmt.Errorf("session: handshake: %w", err)
		}
	}
	c.log.Debug().Bool("encrypted", cfg.Encrypted).Msg("session open")
	return c, nil
}

func (c *Conn) ID() uuid.UUID { return c.id }

func (c *Conn) Role() Role { return c.role }

func (c *Conn) Encrypted() bool { return c.cfg.Encrypted }

func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// Logger carries the connection id for callers that log per connection.
func (c *Conn) Logger() zerolog.Logger { return c.log }

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.closed }

// ReadFrame blocks until one frame arrives. Any error closes the connection.
// The caller owns the frame and must Release it.
func (c *Conn) ReadFrame() (frame.Frame, error) {
	f, err := c.readFrame()
	if err != nil {
		c.fail(Inbound, err)
		return nil, err
	}
	h, _ := f.Header()
	c.observe(Inbound, h, false)
	return f, nil
}

func (c *Conn) readFrame() (frame.Frame, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()
	if c.isClosed() {
		return nil, ErrClosed
	}
	if c.cfg.ReadTimeout > 0 {
		_ = c.nc.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
	return codec.ReadFrame(c.nc, c.dec)
}

// WriteFrame encodes f, writes it, and releases f. Any error closes the
// connection.
func (c *Conn) WriteFrame(f frame.Frame) error {
	if f == nil {
		return codec.ErrNilFrame
	}
	h, _ := f.Header()
	if err := c.writeFrame(f); err != nil {
		c.fail(Outbound, err)
		return err
	}
	c.observe(Outbound, h, false)
	return nil
}

func (c *Conn) writeFrame(f frame.Frame) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.isClosed() {
		f.Release()
		return ErrClosed
	}
	if c.cfg.WriteTimeout > 0 {
		_ = c.nc.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return codec.WriteFrame(c.nc, c.enc, f)
}

func (c *Conn) observe(dir Direction, h frame.Header, handshake bool) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.FrameDone(dir, h, handshake)
	}
	if e := c.log.Trace(); e.Enabled() {
		if handshake {
			e.Str("dir", dir.String()).Msg("handshake frame")
		} else {
			e.Str("dir", dir.String()).Stringer("header", h).Msg("frame")
		}
	}
}

func (c *Conn) fail(dir Direction, err error) {
	if c.isClosed() && errors.Is(err, ErrClosed) {
		return
	}
	if c.cfg.Observer != nil && !errors.Is(err, io.EOF) {
		c.cfg.Observer.FrameFailed(dir, err)
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		c.log.Debug().Str("dir", dir.String()).Err(err).Msg("session ended")
	default:
		c.log.Warn().Str("dir", dir.String()).Err(err).Msg("session failed")
	}
	_ = c.Close()
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Close closes the socket and returns buffers to the pool. Safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.nc.Close()

		c.rmu.Lock()
		c.dec.Reset()
		c.rmu.Unlock()

		c.wmu.Lock()
		c.enc.Release()
		c.wmu.Unlock()
	})
	return err
}

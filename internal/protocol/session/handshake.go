package session

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/sv2wire/internal/protocol/codec"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/danmuck/sv2wire/internal/protocol/noise"
)

// handshake runs before the Conn is handed out, so it uses the codec
// without taking the read/write locks.
func (c *Conn) handshake(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.nc.SetDeadline(deadline)
	defer c.nc.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetDeadline(time.Now())
	})
	defer stop()

	var err error
	if c.role == RoleInitiator {
		err = c.initiate()
	} else {
		err = c.respond()
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (c *Conn) initiate() error {
	hs, err := noise.NewInitiator(nil)
	if err != nil {
		return err
	}
	if err := c.sendHandshake(hs.Hello()); err != nil {
		return err
	}
	reply, err := c.recvHandshake(noise.ResponderMsgLen)
	if err != nil {
		return err
	}
	keys, err := hs.Finish(reply)
	if err != nil {
		return err
	}
	return c.install(keys)
}

func (c *Conn) respond() error {
	hs, err := noise.NewResponder(nil)
	if err != nil {
		return err
	}
	hello, err := c.recvHandshake(noise.InitiatorMsgLen)
	if err != nil {
		return err
	}
	reply, keys, err := hs.Accept(hello)
	if err != nil {
		return err
	}
	if err := c.sendHandshake(reply); err != nil {
		return err
	}
	return c.install(keys)
}

func (c *Conn) sendHandshake(f *frame.HandshakeFrame) error {
	if err := codec.WriteFrame(c.nc, c.enc, f); err != nil {
		return err
	}
	c.observe(Outbound, frame.Header{}, true)
	return nil
}

// recvHandshake returns a copy of the message; the pooled frame is released.
func (c *Conn) recvHandshake(size int) ([]byte, error) {
	if err := c.dec.ExpectHandshake(size); err != nil {
		return nil, err
	}
	f, err := codec.ReadFrame(c.nc, c.dec)
	if err != nil {
		return nil, err
	}
	defer f.Release()
	c.observe(Inbound, frame.Header{}, true)
	return append([]byte(nil), f.Payload()...), nil
}

func (c *Conn) install(keys noise.Keys) error {
	if err := c.dec.SetCipher(keys.Recv); err != nil {
		return fmt.Errorf("install recv cipher: %w", err)
	}
	c.enc.SetCipher(keys.Send)
	return nil
}

package pingpong

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/session"
)

// Result summarizes one client run.
type Result struct {
	RoundTrips int
	Total      time.Duration
}

type Client struct {
	pool *buffer.Pool
	cfg  session.Config
	// Interval between pings; zero sends back to back.
	Interval time.Duration
}

func NewClient(pool *buffer.Pool, cfg session.Config) *Client {
	return &Client{pool: pool, cfg: cfg}
}

// Run dials addr and completes count ping/pong round trips.
func (cl *Client) Run(ctx context.Context, addr string, count int) (Result, error) {
	c, err := session.Dial(ctx, addr, cl.pool, cl.cfg)
	if err != nil {
		return Result{}, err
	}
	defer c.Close()
	return cl.Exchange(ctx, c, count)
}

// Exchange runs count round trips on an open connection.
func (cl *Client) Exchange(ctx context.Context, c *session.Conn, count int) (Result, error) {
	lg := c.Logger()
	var res Result
	start := time.Now()
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if i > 0 && cl.Interval > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(cl.Interval):
			}
		}
		nonce := rand.Uint64()
		if err := cl.roundTrip(c, nonce); err != nil {
			return res, err
		}
		res.RoundTrips++
		lg.Debug().Uint64("nonce", nonce).Int("round", i+1).Msg("pong matched")
	}
	res.Total = time.Since(start)
	lg.Info().Int("round_trips", res.RoundTrips).Dur("total", res.Total).Msg("pingpong client done")
	return res, nil
}

func (cl *Client) roundTrip(c *session.Conn, nonce uint64) error {
	ping, err := NewPing(nonce).Frame()
	if err != nil {
		return err
	}
	if err := c.WriteFrame(ping); err != nil {
		return err
	}
	f, err := c.ReadFrame()
	if err != nil {
		return err
	}
	defer f.Release()
	if err := expect(f, PongMsgType); err != nil {
		return err
	}
	var pong Pong
	if err := pong.UnmarshalBinary(f.Payload()); err != nil {
		return fmt.Errorf("pingpong: decode pong: %w", err)
	}
	if pong.Nonce != nonce {
		return fmt.Errorf("%w: got %d want %d", ErrNonceMismatch, pong.Nonce, nonce)
	}
	return nil
}

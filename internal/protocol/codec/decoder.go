package codec

import (
	"fmt"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
)

// Result is the outcome of one assembly attempt: either a complete Frame or
// the number of bytes still Missing before the next attempt can progress.
type Result struct {
	Frame   frame.Frame
	Missing int
}

func (r Result) Ready() bool { return r.Frame != nil }

type phase uint8

const (
	awaitingHeader phase = iota
	awaitingPayload
)

// Decoder assembles frames from bytes delivered in arbitrary chunks.
//
// Two driving styles are supported. The two-call style fills the whole
// region returned by Writable and then calls NextFrame. The streaming style
// hands any number of bytes to Feed.
type Decoder struct {
	pool   *buffer.Pool
	limits frame.Limits
	cipher Cipher

	handshakeLen int
	phase        phase
	buf          *buffer.Slice
	have         int
	want         int
	payloadAt    int
	header       frame.Header
}

func NewDecoder(pool *buffer.Pool, limits frame.Limits) *Decoder {
	return &Decoder{pool: pool, limits: limits}
}

// ExpectHandshake switches to opaque handshake frames of exactly size bytes.
// It must be called between frames.
func (d *Decoder) ExpectHandshake(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: %d", ErrBadLength, size)
	}
	if err := d.idle(); err != nil {
		return err
	}
	d.handshakeLen = size
	return nil
}

// SetCipher leaves handshake mode and decodes standard frames, opening them
// with c. A nil c decodes plaintext frames.
func (d *Decoder) SetCipher(c Cipher) error {
	if err := d.idle(); err != nil {
		return err
	}
	d.handshakeLen = 0
	d.cipher = c
	return nil
}

func (d *Decoder) idle() error {
	if d.have > 0 || d.phase != awaitingHeader {
		return ErrMidFrame
	}
	d.buf.Release()
	d.buf = nil
	d.want = 0
	return nil
}

// Missing reports how many bytes the current phase still needs.
func (d *Decoder) Missing() int {
	if d.buf == nil {
		return d.initialLen()
	}
	return d.want - d.have
}

func (d *Decoder) initialLen() int {
	if d.handshakeLen > 0 {
		return d.handshakeLen
	}
	return frame.HeaderLen + overhead(d.cipher)
}

func (d *Decoder) ensureBuffer() {
	if d.buf != nil {
		return
	}
	n := d.initialLen()
	d.buf = d.pool.Acquire(n)
	d.have = 0
	d.want = n
}

// Writable returns the bytes the caller must fill before calling NextFrame:
// the header (6 bytes, or 6 plus cipher overhead in transport mode), then the
// payload, or the whole handshake message in handshake mode.
func (d *Decoder) Writable() []byte {
	d.ensureBuffer()
	return d.buf.Bytes()[d.have:d.want]
}

// NextFrame treats the region last returned by Writable as filled and
// advances the state machine. A Result with Missing > 0 asks for another
// Writable/NextFrame round; it is not an error. Errors are fatal for the
// connection.
func (d *Decoder) NextFrame() (Result, error) {
	d.ensureBuffer()
	d.have = d.want

	if d.handshakeLen > 0 {
		buf := d.take()
		return Result{Frame: frame.HandshakeFromSlice(buf)}, nil
	}

	switch d.phase {
	case awaitingHeader:
		return d.onHeader()
	default:
		return d.onPayload()
	}
}

func (d *Decoder) onHeader() (Result, error) {
	raw := d.buf.Bytes()[:d.want]
	if d.cipher != nil {
		plain, err := d.cipher.Open(raw[:0], raw)
		if err != nil {
			d.Reset()
			return Result{}, fmt.Errorf("%w: header: %v", ErrDecrypt, err)
		}
		raw = plain
	}
	h, err := frame.ParseHeader(raw)
	if err == nil {
		err = d.limits.Check(h)
	}
	if err != nil {
		d.Reset()
		return Result{}, err
	}

	d.header = h
	d.payloadAt = d.want
	if h.MsgLength() == 0 {
		return d.emit(d.buf.Bytes()[d.payloadAt:d.payloadAt])
	}

	wire := sealedLen(d.cipher, h.MsgLength())
	d.buf = d.buf.Grow(d.payloadAt + wire)
	d.want = d.payloadAt + wire
	d.phase = awaitingPayload
	return Result{Missing: wire}, nil
}

func (d *Decoder) onPayload() (Result, error) {
	payload := d.buf.Bytes()[d.payloadAt:d.want]
	if d.cipher != nil {
		plain, err := d.cipher.Open(payload[:0], payload)
		if err != nil {
			d.Reset()
			return Result{}, fmt.Errorf("%w: payload: %v", ErrDecrypt, err)
		}
		payload = plain
	}
	return d.emit(payload)
}

func (d *Decoder) emit(payload []byte) (Result, error) {
	h := d.header
	buf := d.take()
	f, err := frame.NewStandardFrame(h, payload, buf)
	if err != nil {
		buf.Release()
		return Result{}, err
	}
	return Result{Frame: f}, nil
}

// take hands the current buffer to the caller and rearms the header phase.
func (d *Decoder) take() *buffer.Slice {
	buf := d.buf
	d.buf = nil
	d.have, d.want, d.payloadAt = 0, 0, 0
	d.phase = awaitingHeader
	return buf
}

// Feed copies as much of p as the current frame needs. It stops after one
// frame completes, so callers loop until consumed == len(p).
func (d *Decoder) Feed(p []byte) (consumed int, res Result, err error) {
	for {
		d.ensureBuffer()
		n := copy(d.buf.Bytes()[d.have:d.want], p[consumed:])
		consumed += n
		d.have += n
		if d.have < d.want {
			return consumed, Result{Missing: d.want - d.have}, nil
		}
		res, err = d.NextFrame()
		if err != nil || res.Ready() || consumed == len(p) {
			return consumed, res, err
		}
	}
}

// Reset drops any partial frame and returns to the header phase. The mode
// (handshake or standard, cipher) is kept.
func (d *Decoder) Reset() {
	d.take().Release()
}

package codec

import (
	"fmt"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
)

// Encoder serializes frames into one contiguous region. The returned bytes
// are valid until the next Encode or Release.
type Encoder struct {
	pool    *buffer.Pool
	cipher  Cipher
	scratch *buffer.Slice
}

func NewEncoder(pool *buffer.Pool) *Encoder {
	return &Encoder{pool: pool}
}

// SetCipher seals standard frames with c from the next Encode on. Handshake
// frames are never sealed.
func (e *Encoder) SetCipher(c Cipher) {
	e.cipher = c
}

func (e *Encoder) Encode(f frame.Frame) ([]byte, error) {
	if f == nil {
		return nil, ErrNilFrame
	}
	payload := f.Payload()
	h, ok := f.Header()
	if !ok {
		out := e.reserve(len(payload))
		copy(out, payload)
		return out, nil
	}
	if len(payload) != h.MsgLength() {
		return nil, fmt.Errorf("%w: header=%d payload=%d", frame.ErrLengthMismatch, h.MsgLength(), len(payload))
	}

	headerWire := frame.HeaderLen + overhead(e.cipher)
	out := e.reserve(headerWire + sealedLen(e.cipher, len(payload)))
	h.Encode(out[:frame.HeaderLen])
	copy(out[headerWire:], payload)
	if e.cipher == nil {
		return out, nil
	}

	if _, err := e.cipher.Seal(out[:0], out[:frame.HeaderLen]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrEncrypt, err)
	}
	if len(payload) > 0 {
		body := out[headerWire : headerWire+len(payload)]
		if _, err := e.cipher.Seal(body[:0], body); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", ErrEncrypt, err)
		}
	}
	return out, nil
}

func (e *Encoder) reserve(n int) []byte {
	if e.scratch != nil && !e.scratch.Pooled() && n <= e.pool.SlotSize() {
		e.scratch.Release()
		e.scratch = nil
	}
	if e.scratch == nil {
		e.scratch = e.pool.Acquire(n)
	} else {
		e.scratch = e.scratch.Grow(n)
	}
	return e.scratch.Bytes()
}

// Release returns the scratch buffer to the pool.
func (e *Encoder) Release() {
	e.scratch.Release()
	e.scratch = nil
}

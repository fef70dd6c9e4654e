package frame

import (
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/danmuck/sv2wire/internal/buffer"
)

var (
	ErrMalformedHeader  = errors.New("frame: malformed header")
	ErrShortHeader      = fmt.Errorf("%w: short header", ErrMalformedHeader)
	ErrPayloadTooLarge  = fmt.Errorf("%w: payload too large", ErrMalformedHeader)
	ErrMissingChannelID = fmt.Errorf("%w: channel message without channel id", ErrMalformedHeader)
	ErrLengthMismatch   = errors.New("frame: payload length does not match header")
)

// Frame is one protocol unit: an opaque handshake blob or a header plus
// payload. A Frame is consumed once; Release returns any pool slot behind it.
type Frame interface {
	// Header returns false for handshake frames.
	Header() (Header, bool)
	Payload() []byte
	// EncodedLen is the plaintext wire size.
	EncodedLen() int
	Release()
}

// Limits constrains decode memory use.
type Limits struct {
	MaxPayload int
}

func DefaultLimits() Limits {
	return Limits{MaxPayload: MaxPayloadLen}
}

// Check rejects headers announcing more than MaxPayload bytes.
func (l Limits) Check(h Header) error {
	max := l.MaxPayload
	if max <= 0 || max > MaxPayloadLen {
		max = MaxPayloadLen
	}
	if h.MsgLength() > max {
		return fmt.Errorf("%w: msg_length %d exceeds limit %d", ErrPayloadTooLarge, h.MsgLength(), max)
	}
	return nil
}

// StandardFrame is a header plus payload used in transport mode.
type StandardFrame struct {
	header  Header
	payload []byte
	buf     *buffer.Slice
}

var _ Frame = (*StandardFrame)(nil)

// NewStandardFrame binds payload to h. buf, when non-nil, is the Slice that
// owns payload memory and is released with the frame.
func NewStandardFrame(h Header, payload []byte, buf *buffer.Slice) (*StandardFrame, error) {
	if len(payload) != h.MsgLength() {
		return nil, fmt.Errorf("%w: header=%d payload=%d", ErrLengthMismatch, h.MsgLength(), len(payload))
	}
	return &StandardFrame{header: h, payload: payload, buf: buf}, nil
}

// FromBytes frames an already serialized payload. It reports false when the
// payload cannot be described by a 24-bit length.
func FromBytes(payload []byte, msgType uint8, extType uint16, channelMsg bool) (*StandardFrame, bool) {
	if channelMsg {
		extType |= ChannelMsgBit
	}
	h, err := NewHeader(extType, msgType, len(payload))
	if err != nil {
		return nil, false
	}
	return &StandardFrame{header: h, payload: payload}, true
}

// FromMessage serializes m and frames the result.
func FromMessage(m encoding.BinaryAppender, msgType uint8, extType uint16, channelMsg bool) (*StandardFrame, error) {
	payload, err := m.AppendBinary(nil)
	if err != nil {
		return nil, fmt.Errorf("frame: serialize msg_type 0x%02x: %w", msgType, err)
	}
	f, ok := FromBytes(payload, msgType, extType, channelMsg)
	if !ok {
		return nil, fmt.Errorf("%w: msg_length %d", ErrPayloadTooLarge, len(payload))
	}
	return f, nil
}

func (f *StandardFrame) Header() (Header, bool) { return f.header, true }

func (f *StandardFrame) Payload() []byte { return f.payload }

func (f *StandardFrame) EncodedLen() int { return HeaderLen + len(f.payload) }

// ChannelID returns the little-endian channel id prefix of channel messages.
func (f *StandardFrame) ChannelID() (uint32, bool) {
	if !f.header.ChannelMsg() || len(f.payload) < ChannelIDLen {
		return 0, false
	}
	return binary.LittleEndian.Uint32(f.payload[:ChannelIDLen]), true
}

// Pooled reports whether the payload lives in pool memory.
func (f *StandardFrame) Pooled() bool { return f.buf.Pooled() }

func (f *StandardFrame) Release() {
	f.payload = nil
	f.buf.Release()
	f.buf = nil
}

// HandshakeFrame carries one opaque handshake message. Its length is fixed
// by the handshake protocol, not by a Header.
type HandshakeFrame struct {
	payload []byte
	buf     *buffer.Slice
}

var _ Frame = (*HandshakeFrame)(nil)

func NewHandshakeFrame(b []byte) *HandshakeFrame {
	return &HandshakeFrame{payload: b}
}

// HandshakeFromSlice wraps a filled decode buffer; the frame owns buf.
func HandshakeFromSlice(buf *buffer.Slice) *HandshakeFrame {
	return &HandshakeFrame{payload: buf.Bytes(), buf: buf}
}

func (f *HandshakeFrame) Header() (Header, bool) { return Header{}, false }

func (f *HandshakeFrame) Payload() []byte { return f.payload }

func (f *HandshakeFrame) EncodedLen() int { return len(f.payload) }

func (f *HandshakeFrame) Release() {
	f.payload = nil
	f.buf.Release()
	f.buf = nil
}

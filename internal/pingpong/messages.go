package pingpong

import (
	"errors"
	"fmt"

	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/danmuck/sv2wire/internal/protocol/tlv"
)

const (
	PingMsgType uint8 = 0xfe
	PongMsgType uint8 = 0xff
)

const (
	fieldMessage uint16 = 1
	fieldNonce   uint16 = 2
)

var (
	ErrUnexpectedMessage = errors.New("pingpong: unexpected message")
	ErrNonceMismatch     = errors.New("pingpong: nonce mismatch")
)

var required = []tlv.Requirement{
	{ID: fieldMessage, Type: tlv.TypeString},
	{ID: fieldNonce, Type: tlv.TypeU64},
}

type Ping struct {
	Message string
	Nonce   uint64
}

func NewPing(nonce uint64) Ping {
	return Ping{Message: "ping", Nonce: nonce}
}

func (p Ping) AppendBinary(b []byte) ([]byte, error) {
	return appendMessage(b, p.Message, p.Nonce), nil
}

func (p *Ping) UnmarshalBinary(b []byte) error {
	var err error
	p.Message, p.Nonce, err = decodeMessage(b)
	return err
}

func (p Ping) Frame() (*frame.StandardFrame, error) {
	return frame.FromMessage(p, PingMsgType, 0, false)
}

type Pong struct {
	Message string
	Nonce   uint64
}

func NewPong(nonce uint64) Pong {
	return Pong{Message: "pong", Nonce: nonce}
}

func (p Pong) AppendBinary(b []byte) ([]byte, error) {
	return appendMessage(b, p.Message, p.Nonce), nil
}

func (p *Pong) UnmarshalBinary(b []byte) error {
	var err error
	p.Message, p.Nonce, err = decodeMessage(b)
	return err
}

func (p Pong) Frame() (*frame.StandardFrame, error) {
	return frame.FromMessage(p, PongMsgType, 0, false)
}

func appendMessage(b []byte, msg string, nonce uint64) []byte {
	return tlv.AppendFields(b, tlv.String(fieldMessage, msg), tlv.U64(fieldNonce, nonce))
}

func decodeMessage(b []byte) (string, uint64, error) {
	fields, err := tlv.DecodeFields(b)
	if err != nil {
		return "", 0, err
	}
	if err := tlv.Require(fields, required...); err != nil {
		return "", 0, err
	}
	mf, _ := tlv.GetField(fields, fieldMessage)
	nf, _ := tlv.GetField(fields, fieldNonce)
	msg, err := mf.AsString()
	if err != nil {
		return "", 0, err
	}
	nonce, err := nf.AsU64()
	if err != nil {
		return "", 0, err
	}
	return msg, nonce, nil
}

// expect checks that f is a standard frame of msgType.
func expect(f frame.Frame, msgType uint8) error {
	h, ok := f.Header()
	if !ok {
		return fmt.Errorf("%w: handshake frame", ErrUnexpectedMessage)
	}
	if h.MsgType() != msgType {
		return fmt.Errorf("%w: msg_type=0x%02x want 0x%02x", ErrUnexpectedMessage, h.MsgType(), msgType)
	}
	return nil
}

package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/sv2wire/internal/buffer"
)

func TestHeaderWireLayoutIsLittleEndian(t *testing.T) {
	h, err := NewHeader(0, 0x18, 8)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	got := h.Bytes()
	want := [HeaderLen]byte{0x00, 0x00, 0x18, 0x08, 0x00, 0x00}
	if got != want {
		t.Fatalf("header bytes=% x want % x", got, want)
	}

	h, err = NewHeader(0x8001, 0x42, 0x030201)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	got = h.Bytes()
	want = [HeaderLen]byte{0x01, 0x80, 0x42, 0x01, 0x02, 0x03}
	if got != want {
		t.Fatalf("header bytes=% x want % x", got, want)
	}
}

func TestParseHeaderRoundTrip(t *testing.T) {
	in, err := NewHeader(0x8002, 0x1f, 1234)
	if err != nil {
		t.Fatalf("new header: %v", err)
	}
	b := in.Bytes()
	out, err := ParseHeader(b[:])
	if err != nil {
		t.Fatalf("parse header: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got=%s want=%s", out, in)
	}
	if !out.ChannelMsg() || out.Extension() != 0x0002 || out.ExtensionType() != 0x8002 {
		t.Fatalf("unexpected extension fields: %s", out)
	}
}

func TestParseHeaderShortInput(t *testing.T) {
	_, err := ParseHeader([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortHeader) || !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestHeaderLengthAboveMaxRejected(t *testing.T) {
	_, err := NewHeader(0, 1, 1<<24)
	if !errors.Is(err, ErrPayloadTooLarge) || !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if _, err := NewHeader(0, 1, MaxPayloadLen); err != nil {
		t.Fatalf("max length should be accepted: %v", err)
	}
}

func TestChannelMessageRequiresChannelID(t *testing.T) {
	if _, err := NewHeader(ChannelMsgBit, 1, 3); !errors.Is(err, ErrMissingChannelID) {
		t.Fatalf("expected ErrMissingChannelID, got %v", err)
	}
	_, err := ParseHeader([]byte{0x00, 0x80, 0x01, 0x02, 0x00, 0x00})
	if !errors.Is(err, ErrMissingChannelID) {
		t.Fatalf("expected ErrMissingChannelID from parse, got %v", err)
	}
}

func TestLimitsCheck(t *testing.T) {
	h, _ := NewHeader(0, 1, 100)
	if err := (Limits{MaxPayload: 99}).Check(h); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected limit rejection, got %v", err)
	}
	if err := DefaultLimits().Check(h); err != nil {
		t.Fatalf("default limits rejected header: %v", err)
	}
}

func TestFromBytesSetsChannelBitAndID(t *testing.T) {
	payload := []byte{0x07, 0x00, 0x00, 0x00, 0xAA}
	f, ok := FromBytes(payload, 0x1a, 0, true)
	if !ok {
		t.Fatalf("expected frame")
	}
	h, ok := f.Header()
	if !ok || !h.ChannelMsg() || h.MsgLength() != len(payload) {
		t.Fatalf("unexpected header: %s", h)
	}
	id, ok := f.ChannelID()
	if !ok || id != 7 {
		t.Fatalf("channel id=%d ok=%v", id, ok)
	}
	if f.EncodedLen() != HeaderLen+len(payload) {
		t.Fatalf("encoded len=%d", f.EncodedLen())
	}
}

type appender []byte

func (a appender) AppendBinary(b []byte) ([]byte, error) { return append(b, a...), nil }

type failingAppender struct{}

func (failingAppender) AppendBinary([]byte) ([]byte, error) { return nil, errors.New("boom") }

func TestFromMessage(t *testing.T) {
	f, err := FromMessage(appender("ping"), 0xfe, 0, false)
	if err != nil {
		t.Fatalf("from message: %v", err)
	}
	if !bytes.Equal(f.Payload(), []byte("ping")) {
		t.Fatalf("payload=%q", f.Payload())
	}
	if _, err := FromMessage(failingAppender{}, 0xfe, 0, false); err == nil {
		t.Fatalf("expected serializer error")
	}
}

func TestHandshakeFrameHasNoHeader(t *testing.T) {
	f := NewHandshakeFrame(make([]byte, 32))
	if _, ok := f.Header(); ok {
		t.Fatalf("handshake frame must not expose a header")
	}
	if f.EncodedLen() != 32 {
		t.Fatalf("encoded len=%d", f.EncodedLen())
	}
}

func TestReleaseReturnsPoolSlot(t *testing.T) {
	p := buffer.New(1, 32)
	buf := p.Acquire(HeaderLen + 4)
	h, _ := NewHeader(0, 1, 4)
	f, err := NewStandardFrame(h, buf.Bytes()[HeaderLen:], buf)
	if err != nil {
		t.Fatalf("new frame: %v", err)
	}
	if !f.Pooled() || p.InUse() != 1 {
		t.Fatalf("expected pool-backed frame")
	}
	f.Release()
	f.Release()
	if p.InUse() != 0 {
		t.Fatalf("frame release did not free slot")
	}
	if _, err := NewStandardFrame(h, []byte{1}, nil); !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
}

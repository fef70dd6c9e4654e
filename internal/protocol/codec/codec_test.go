package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/danmuck/sv2wire/internal/buffer"
	"github.com/danmuck/sv2wire/internal/protocol/frame"
	"github.com/danmuck/sv2wire/internal/testutil/testlog"
)

func mustFrame(t *testing.T, payload []byte, msgType uint8, ext uint16, channel bool) *frame.StandardFrame {
	t.Helper()
	f, ok := frame.FromBytes(payload, msgType, ext, channel)
	if !ok {
		t.Fatalf("frame from %d bytes", len(payload))
	}
	return f
}

func TestEncodeKnownWireBytes(t *testing.T) {
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	enc := NewEncoder(buffer.New(2, 64))
	out, err := enc.Encode(mustFrame(t, payload, 0x18, 0, false))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := append([]byte{0x00, 0x00, 0x18, 0x08, 0x00, 0x00}, payload...)
	if !bytes.Equal(out, want) {
		t.Fatalf("wire=% x want % x", out, want)
	}
	if len(out) != 14 {
		t.Fatalf("expected 14 bytes, got %d", len(out))
	}
}

func TestDecodeHeaderThenPayload(t *testing.T) {
	testlog.Start(t)
	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	wire := append([]byte{0x00, 0x00, 0x18, 0x08, 0x00, 0x00}, payload...)

	dec := NewDecoder(buffer.New(2, 64), frame.DefaultLimits())
	w := dec.Writable()
	if len(w) != frame.HeaderLen {
		t.Fatalf("header writable len=%d", len(w))
	}
	copy(w, wire[:6])
	res, err := dec.NextFrame()
	if err != nil {
		t.Fatalf("header step: %v", err)
	}
	if res.Ready() || res.Missing != 8 {
		t.Fatalf("expected Missing=8, got %+v", res)
	}

	w = dec.Writable()
	if len(w) != 8 {
		t.Fatalf("payload writable len=%d", len(w))
	}
	copy(w, wire[6:])
	res, err = dec.NextFrame()
	if err != nil {
		t.Fatalf("payload step: %v", err)
	}
	if !res.Ready() {
		t.Fatalf("expected frame, got %+v", res)
	}
	h, ok := res.Frame.Header()
	if !ok || h.MsgType() != 0x18 || h.MsgLength() != 8 || h.ExtensionType() != 0 {
		t.Fatalf("unexpected header: %s", h)
	}
	if !bytes.Equal(res.Frame.Payload(), payload) {
		t.Fatalf("payload=% x", res.Frame.Payload())
	}
	testlog.Logf(t, "codec/decode: header=%s", h)
	res.Frame.Release()
}

func TestRoundTripAcrossChunkings(t *testing.T) {
	pool := buffer.New(buffer.MaxSlots, 4096)
	enc := NewEncoder(pool)

	for _, n := range []int{0, 1, 4, 5, 63, 64, 257, 3000, 9000} {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i * 7)
		}
		channel := n >= frame.ChannelIDLen && n%2 == 1
		wire, err := enc.Encode(mustFrame(t, payload, uint8(n), 0x0003, channel))
		if err != nil {
			t.Fatalf("encode n=%d: %v", n, err)
		}
		if len(wire) != frame.HeaderLen+n {
			t.Fatalf("wire len=%d for payload %d", len(wire), n)
		}
		wire = append([]byte(nil), wire...)

		for _, chunk := range []int{1, 2, 5, len(wire)} {
			dec := NewDecoder(pool, frame.DefaultLimits())
			var got frame.Frame
			fed := 0
			for fed < len(wire) {
				if m := dec.Missing(); m > len(wire)-fed {
					t.Fatalf("n=%d chunk=%d: decoder asked for %d with %d left", n, chunk, m, len(wire)-fed)
				}
				end := fed + chunk
				if end > len(wire) {
					end = len(wire)
				}
				used, res, err := dec.Feed(wire[fed:end])
				if err != nil {
					t.Fatalf("n=%d chunk=%d feed: %v", n, chunk, err)
				}
				fed += used
				if res.Ready() {
					got = res.Frame
					break
				}
			}
			if got == nil || fed != len(wire) {
				t.Fatalf("n=%d chunk=%d: frame not completed after %d bytes", n, chunk, fed)
			}
			h, _ := got.Header()
			if h.MsgType() != uint8(n) || h.ChannelMsg() != channel || h.Extension() != 0x0003 {
				t.Fatalf("n=%d header mismatch: %s", n, h)
			}
			if !bytes.Equal(got.Payload(), payload) {
				t.Fatalf("n=%d chunk=%d payload mismatch", n, chunk)
			}
			got.Release()
		}
	}
	enc.Release()
	if pool.InUse() != 0 {
		t.Fatalf("slots leaked after round trips: %08b", pool.State().Load())
	}
}

func TestFeedStopsAfterOneFrame(t *testing.T) {
	enc := NewEncoder(nil)
	a, _ := enc.Encode(mustFrame(t, []byte("one"), 1, 0, false))
	wire := append([]byte(nil), a...)
	b, _ := enc.Encode(mustFrame(t, []byte("two!"), 2, 0, false))
	wire = append(wire, b...)

	dec := NewDecoder(nil, frame.DefaultLimits())
	used, res, err := dec.Feed(wire)
	if err != nil || !res.Ready() || used != frame.HeaderLen+3 {
		t.Fatalf("first frame: used=%d res=%+v err=%v", used, res, err)
	}
	used2, res, err := dec.Feed(wire[used:])
	if err != nil || !res.Ready() || used+used2 != len(wire) {
		t.Fatalf("second frame: used=%d res=%+v err=%v", used2, res, err)
	}
	if string(res.Frame.Payload()) != "two!" {
		t.Fatalf("payload=%q", res.Frame.Payload())
	}
}

func TestZeroLengthPayloadCompletesAtHeader(t *testing.T) {
	dec := NewDecoder(nil, frame.DefaultLimits())
	copy(dec.Writable(), []byte{0x00, 0x00, 0x07, 0x00, 0x00, 0x00})
	res, err := dec.NextFrame()
	if err != nil || !res.Ready() {
		t.Fatalf("expected immediate frame, res=%+v err=%v", res, err)
	}
	if len(res.Frame.Payload()) != 0 {
		t.Fatalf("expected empty payload")
	}
}

func TestDecoderRejectsPayloadAboveLimit(t *testing.T) {
	pool := buffer.New(1, 64)
	dec := NewDecoder(pool, frame.Limits{MaxPayload: 16})
	copy(dec.Writable(), []byte{0x00, 0x00, 0x01, 0x11, 0x00, 0x00})
	_, err := dec.NextFrame()
	if !errors.Is(err, frame.ErrPayloadTooLarge) || !errors.Is(err, frame.ErrMalformedHeader) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
	if pool.InUse() != 0 {
		t.Fatalf("failed decode leaked a slot")
	}
	if len(dec.Writable()) != frame.HeaderLen {
		t.Fatalf("decoder should rearm the header phase")
	}
}

func TestDecoderPayloadUsesPoolSlot(t *testing.T) {
	pool := buffer.New(2, 128)
	dec := NewDecoder(pool, frame.DefaultLimits())
	copy(dec.Writable(), []byte{0x00, 0x00, 0x01, 0x04, 0x00, 0x00})
	if _, err := dec.NextFrame(); err != nil {
		t.Fatalf("header: %v", err)
	}
	copy(dec.Writable(), []byte("abcd"))
	res, err := dec.NextFrame()
	if err != nil || !res.Ready() {
		t.Fatalf("payload: res=%+v err=%v", res, err)
	}
	sf := res.Frame.(*frame.StandardFrame)
	if !sf.Pooled() || pool.InUse() != 1 {
		t.Fatalf("expected pool-backed frame, in use=%d", pool.InUse())
	}
	sf.Release()
	if pool.InUse() != 0 {
		t.Fatalf("frame release did not free slot")
	}
}

func TestHandshakeMode(t *testing.T) {
	dec := NewDecoder(nil, frame.DefaultLimits())
	if err := dec.ExpectHandshake(32); err != nil {
		t.Fatalf("expect handshake: %v", err)
	}
	w := dec.Writable()
	if len(w) != 32 {
		t.Fatalf("handshake writable len=%d", len(w))
	}
	for i := range w {
		w[i] = byte(i)
	}
	res, err := dec.NextFrame()
	if err != nil || !res.Ready() {
		t.Fatalf("handshake frame: res=%+v err=%v", res, err)
	}
	if _, ok := res.Frame.Header(); ok {
		t.Fatalf("handshake frame must not carry a header")
	}
	if res.Frame.EncodedLen() != 32 || res.Frame.Payload()[31] != 31 {
		t.Fatalf("unexpected handshake payload")
	}

	enc := NewEncoder(nil)
	out, err := enc.Encode(res.Frame)
	if err != nil || !bytes.Equal(out, res.Frame.Payload()) {
		t.Fatalf("handshake encode must be the raw payload: err=%v", err)
	}

	if err := dec.SetCipher(nil); err != nil {
		t.Fatalf("leave handshake mode: %v", err)
	}
	if len(dec.Writable()) != frame.HeaderLen {
		t.Fatalf("expected header phase after handshake")
	}
	if err := dec.ExpectHandshake(0); !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestModeChangeMidFrameRejected(t *testing.T) {
	dec := NewDecoder(nil, frame.DefaultLimits())
	copy(dec.Writable(), []byte{0x00, 0x00, 0x01, 0x04, 0x00, 0x00})
	if _, err := dec.NextFrame(); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := dec.SetCipher(nil); !errors.Is(err, ErrMidFrame) {
		t.Fatalf("expected ErrMidFrame, got %v", err)
	}
}

// xorCipher is a toy transform with a 4-byte counter tag.
type xorCipher struct {
	key byte
	n   uint32
}

var errTag = errors.New("bad tag")

func (c *xorCipher) Overhead() int { return 4 }

func (c *xorCipher) Seal(dst, p []byte) ([]byte, error) {
	k := c.key ^ byte(c.n)
	start := len(dst)
	out := append(dst, p...)
	for i := start; i < len(out); i++ {
		out[i] ^= k
	}
	out = binary.LittleEndian.AppendUint32(out, c.n)
	c.n++
	return out, nil
}

func (c *xorCipher) Open(dst, ct []byte) ([]byte, error) {
	if len(ct) < 4 || binary.LittleEndian.Uint32(ct[len(ct)-4:]) != c.n {
		return nil, errTag
	}
	k := c.key ^ byte(c.n)
	c.n++
	start := len(dst)
	out := append(dst, ct[:len(ct)-4]...)
	for i := start; i < len(out); i++ {
		out[i] ^= k
	}
	return out, nil
}

func TestCipherTransportRoundTrip(t *testing.T) {
	pool := buffer.New(4, 256)
	enc := NewEncoder(pool)
	enc.SetCipher(&xorCipher{key: 0x5a})
	dec := NewDecoder(pool, frame.DefaultLimits())
	if err := dec.SetCipher(&xorCipher{key: 0x5a}); err != nil {
		t.Fatalf("set cipher: %v", err)
	}

	for _, payload := range [][]byte{[]byte("hello"), {}, bytes.Repeat([]byte{0xEE}, 300)} {
		wire, err := enc.Encode(mustFrame(t, payload, 0x30, 0, false))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		want := frame.HeaderLen + 4
		if len(payload) > 0 {
			want += len(payload) + 4
		}
		if len(wire) != want {
			t.Fatalf("sealed wire len=%d want %d", len(wire), want)
		}
		if len(dec.Writable()) != frame.HeaderLen+4 {
			t.Fatalf("transport header writable len=%d", len(dec.Writable()))
		}
		f, err := ReadFrame(bytes.NewReader(wire), dec)
		if err != nil {
			t.Fatalf("read sealed frame: %v", err)
		}
		if !bytes.Equal(f.Payload(), payload) {
			t.Fatalf("payload mismatch after open")
		}
		f.Release()
	}

	wire, _ := enc.Encode(mustFrame(t, []byte("x"), 1, 0, false))
	wire = append([]byte(nil), wire...)
	wire[len(wire)-1] ^= 0xFF
	if _, err := ReadFrame(bytes.NewReader(wire), dec); !errors.Is(err, ErrDecrypt) {
		t.Fatalf("expected ErrDecrypt, got %v", err)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := NewEncoder(buffer.New(1, 64))
	a, _ := enc.Encode(mustFrame(t, []byte("same"), 9, 1, false))
	first := append([]byte(nil), a...)
	b, _ := enc.Encode(mustFrame(t, []byte("same"), 9, 1, false))
	if !bytes.Equal(first, b) {
		t.Fatalf("encode output differs between calls")
	}
	big := bytes.Repeat([]byte{1}, 100)
	c, err := enc.Encode(mustFrame(t, big, 9, 1, false))
	if err != nil || len(c) != frame.HeaderLen+100 {
		t.Fatalf("oversized encode: len=%d err=%v", len(c), err)
	}
	enc.Release()
}

func TestReadWriteFrameOverPipe(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	pool := buffer.New(4, 1024)
	out := mustFrame(t, []byte("over the pipe"), 0x42, 0, false)
	errc := make(chan error, 1)
	go func() {
		enc := NewEncoder(pool)
		defer enc.Release()
		errc <- WriteFrame(client, enc, out)
	}()

	f, err := ReadFrame(server, NewDecoder(pool, frame.DefaultLimits()))
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if err := <-errc; err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if string(f.Payload()) != "over the pipe" {
		t.Fatalf("payload=%q", f.Payload())
	}
	f.Release()

	_ = client.Close()
	if _, err := ReadFrame(server, NewDecoder(pool, frame.DefaultLimits())); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF after close, got %v", err)
	}
}

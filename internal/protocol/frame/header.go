package frame

import (
	"encoding/binary"
	"fmt"
)

const (
	// HeaderLen is the fixed wire header size.
	HeaderLen = 6
	// MaxPayloadLen is the largest length a 24-bit msg_length can carry.
	MaxPayloadLen = 1<<24 - 1
	// ChannelMsgBit is the top bit of extension_type.
	ChannelMsgBit uint16 = 0x8000
	// ChannelIDLen is the channel id prefix carried by channel messages.
	ChannelIDLen = 4
)

// Header is the 6-byte wire header:
//
//	extension_type u16 LE | msg_type u8 | msg_length u24 LE
//
// msg_length counts payload bytes only, including the channel id when
// ChannelMsg is set.
type Header struct {
	extType   uint16
	msgType   uint8
	msgLength uint32
}

// NewHeader builds a header for a payload of length bytes.
func NewHeader(extType uint16, msgType uint8, length int) (Header, error) {
	if length < 0 || length > MaxPayloadLen {
		return Header{}, fmt.Errorf("%w: msg_length %d", ErrPayloadTooLarge, length)
	}
	h := Header{extType: extType, msgType: msgType, msgLength: uint32(length)}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// ParseHeader decodes the first HeaderLen bytes of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(b))
	}
	h := Header{
		extType:   binary.LittleEndian.Uint16(b[0:2]),
		msgType:   b[2],
		msgLength: uint32(b[3]) | uint32(b[4])<<8 | uint32(b[5])<<16,
	}
	if err := h.validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

func (h Header) validate() error {
	if h.ChannelMsg() && h.msgLength < ChannelIDLen {
		return fmt.Errorf("%w: msg_length %d", ErrMissingChannelID, h.msgLength)
	}
	return nil
}

// ExtensionType returns the raw extension_type including the channel bit.
func (h Header) ExtensionType() uint16 { return h.extType }

// Extension returns extension_type without the channel bit.
func (h Header) Extension() uint16 { return h.extType &^ ChannelMsgBit }

func (h Header) MsgType() uint8 { return h.msgType }

func (h Header) MsgLength() int { return int(h.msgLength) }

// ChannelMsg reports whether the payload starts with a channel id.
func (h Header) ChannelMsg() bool { return h.extType&ChannelMsgBit != 0 }

// Encode writes the header into dst, which must hold HeaderLen bytes.
func (h Header) Encode(dst []byte) {
	_ = dst[HeaderLen-1]
	binary.LittleEndian.PutUint16(dst[0:2], h.extType)
	dst[2] = h.msgType
	dst[3] = byte(h.msgLength)
	dst[4] = byte(h.msgLength >> 8)
	dst[5] = byte(h.msgLength >> 16)
}

// AppendTo appends the encoded header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	var b [HeaderLen]byte
	h.Encode(b[:])
	return append(dst, b[:]...)
}

func (h Header) Bytes() [HeaderLen]byte {
	var b [HeaderLen]byte
	h.Encode(b[:])
	return b
}

func (h Header) String() string {
	return fmt.Sprintf("ext=0x%04x type=0x%02x len=%d channel=%t", h.extType, h.msgType, h.msgLength, h.ChannelMsg())
}

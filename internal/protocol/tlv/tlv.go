// Package tlv is the field codec the pingpong roles use for message payloads.
// The framing layer treats these payloads as opaque bytes.
//
// Each field is id (u16 LE), type (u8), length (u32 LE), value.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrTypeMismatch     = errors.New("tlv: field type mismatch")
	ErrInvalidLength    = errors.New("tlv: invalid value length")
	ErrMissingField     = errors.New("tlv: missing required field")
)

const (
	TypeU8     uint8 = 1
	TypeU16    uint8 = 2
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeBool   uint8 = 5
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded field. Value aliases the decoded payload.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

// AppendField appends the wire form of f to dst.
func AppendField(dst []byte, f Field) []byte {
	var hdr [HeaderLen]byte
	binary.LittleEndian.PutUint16(hdr[0:2], f.ID)
	hdr[2] = f.Type
	binary.LittleEndian.PutUint32(hdr[3:7], uint32(len(f.Value)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Value...)
}

// AppendFields appends every field in order.
func AppendFields(dst []byte, fields ...Field) []byte {
	for _, f := range fields {
		dst = AppendField(dst, f)
	}
	return dst
}

// EncodedLen is the wire size of fields.
func EncodedLen(fields ...Field) int {
	n := 0
	for _, f := range fields {
		n += HeaderLen + len(f.Value)
	}
	return n
}

// DecodeFields splits payload into fields without copying values. Unknown
// ids are kept.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	for i := 0; i < len(payload); {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.LittleEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.LittleEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, fmt.Errorf("%w: field %d wants %d bytes, %d left", ErrShortFieldValue, id, l, len(payload)-i)
		}
		end := i + int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: payload[i:end:end]})
		i = end
	}
	return fields, nil
}

func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// Requirement names a field a message must carry.
type Requirement struct {
	ID   uint16
	Type uint8
}

// Require checks that every requirement is present with the right type.
func Require(fields []Field, reqs ...Requirement) error {
	for _, r := range reqs {
		f, ok := GetField(fields, r.ID)
		if !ok {
			return fmt.Errorf("%w: id=%d", ErrMissingField, r.ID)
		}
		if f.Type != r.Type {
			return fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, r.ID, f.Type, r.Type)
		}
	}
	return nil
}

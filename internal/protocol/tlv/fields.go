package tlv

import (
	"encoding/binary"
	"fmt"
)

func U8(id uint16, v uint8) Field {
	return Field{ID: id, Type: TypeU8, Value: []byte{v}}
}

func U16(id uint16, v uint16) Field {
	return Field{ID: id, Type: TypeU16, Value: binary.LittleEndian.AppendUint16(nil, v)}
}

func U32(id uint16, v uint32) Field {
	return Field{ID: id, Type: TypeU32, Value: binary.LittleEndian.AppendUint32(nil, v)}
}

func U64(id uint16, v uint64) Field {
	return Field{ID: id, Type: TypeU64, Value: binary.LittleEndian.AppendUint64(nil, v)}
}

func Bool(id uint16, v bool) Field {
	b := byte(0)
	if v {
		b = 1
	}
	return Field{ID: id, Type: TypeBool, Value: []byte{b}}
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

// Bytes does not copy v.
func Bytes(id uint16, v []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: v}
}

func (f Field) fixed(want uint8, n int) error {
	if f.Type != want {
		return fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, f.ID, f.Type, want)
	}
	if len(f.Value) != n {
		return fmt.Errorf("%w: id=%d len=%d", ErrInvalidLength, f.ID, len(f.Value))
	}
	return nil
}

func (f Field) AsU8() (uint8, error) {
	if err := f.fixed(TypeU8, 1); err != nil {
		return 0, err
	}
	return f.Value[0], nil
}

func (f Field) AsU16() (uint16, error) {
	if err := f.fixed(TypeU16, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(f.Value), nil
}

func (f Field) AsU32() (uint32, error) {
	if err := f.fixed(TypeU32, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(f.Value), nil
}

func (f Field) AsU64() (uint64, error) {
	if err := f.fixed(TypeU64, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(f.Value), nil
}

func (f Field) AsBool() (bool, error) {
	if err := f.fixed(TypeBool, 1); err != nil {
		return false, err
	}
	switch f.Value[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: id=%d bool byte 0x%02x", ErrInvalidLength, f.ID, f.Value[0])
}

func (f Field) AsString() (string, error) {
	if f.Type != TypeString {
		return "", fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, f.ID, f.Type, TypeString)
	}
	return string(f.Value), nil
}

// AsBytes returns a copy of the value.
func (f Field) AsBytes() ([]byte, error) {
	if f.Type != TypeBytes {
		return nil, fmt.Errorf("%w: id=%d got=%d want=%d", ErrTypeMismatch, f.ID, f.Type, TypeBytes)
	}
	return append([]byte(nil), f.Value...), nil
}

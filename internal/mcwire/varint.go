package mcwire

import (
	"errors"
	"io"
)

// VarInt limits per the Java edition protocol.
const maxVarIntBytes = 5

var errVarIntTooLong = errors.New("mcwire: varint exceeds 5 bytes")

// ReadVarInt reads a protocol VarInt from r.
func ReadVarInt(r io.ByteReader) (int32, error) {
	var value uint32
	for i := 0; i < maxVarIntBytes; i++ {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return int32(value), nil
		}
	}
	return 0, errVarIntTooLong
}

// WriteVarInt writes v to w in protocol VarInt encoding.
func WriteVarInt(w io.ByteWriter, v int32) error {
	u := uint32(v)
	for {
		b := byte(u & 0x7f)
		u >>= 7
		if u != 0 {
			b |= 0x80
		}
		if err := w.WriteByte(b); err != nil {
			return err
		}
		if u == 0 {
			return nil
		}
	}
}

// VarIntLen returns the encoded size of v in bytes.
func VarIntLen(v int32) int {
	u := uint32(v)
	n := 1
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

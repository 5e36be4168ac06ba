// Package mcwire implements the modern (1.20.5+) Minecraft Java edition
// packet framing and the handful of packets this proxy speaks: handshake,
// status, login and the config-state transfer packet.
package mcwire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/google/uuid"
)

// maxPacketLen bounds inbound frames. The proxy only ever receives tiny
// handshake/status/login packets, so anything larger is a protocol error.
const maxPacketLen = 1 << 16

// Packet is one decoded frame: the packet id plus its raw payload.
type Packet struct {
	ID      int32
	Payload []byte
}

// Decoder reads framed packets from a stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r for packet reading.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ReadPacket reads exactly one framed packet.
func (d *Decoder) ReadPacket() (*Packet, error) {
	length, err := ReadVarInt(d.r)
	if err != nil {
		return nil, err
	}
	if length <= 0 || length > maxPacketLen {
		return nil, fmt.Errorf("mcwire: invalid packet length %d", length)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(d.r, frame); err != nil {
		return nil, err
	}
	buf := bytes.NewBuffer(frame)
	id, err := ReadVarInt(buf)
	if err != nil {
		return nil, err
	}
	return &Packet{ID: id, Payload: buf.Bytes()}, nil
}

// Encoder writes framed packets to a stream.
type Encoder struct {
	w io.Writer
}

// NewEncoder wraps w for packet writing.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WritePacket frames and writes one packet: length, id, payload.
func (e *Encoder) WritePacket(id int32, payload []byte) error {
	var frame bytes.Buffer
	if err := WriteVarInt(&frame, int32(VarIntLen(id)+len(payload))); err != nil {
		return err
	}
	if err := WriteVarInt(&frame, id); err != nil {
		return err
	}
	frame.Write(payload)
	_, err := e.w.Write(frame.Bytes())
	return err
}

// Field readers over a packet payload.

func readString(buf *bytes.Buffer) (string, error) {
	length, err := ReadVarInt(buf)
	if err != nil {
		return "", err
	}
	if length < 0 || int(length) > buf.Len() {
		return "", fmt.Errorf("mcwire: invalid string length %d", length)
	}
	s := string(buf.Next(int(length)))
	if !utf8.ValidString(s) {
		return "", fmt.Errorf("mcwire: string is not valid UTF-8")
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, s string) {
	_ = WriteVarInt(buf, int32(len(s)))
	buf.WriteString(s)
}

func readUint16(buf *bytes.Buffer) (uint16, error) {
	var v uint16
	if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func readInt64(buf *bytes.Buffer) (int64, error) {
	var v int64
	if err := binary.Read(buf, binary.BigEndian, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func readUUID(buf *bytes.Buffer) (uuid.UUID, error) {
	var id uuid.UUID
	if _, err := io.ReadFull(buf, id[:]); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

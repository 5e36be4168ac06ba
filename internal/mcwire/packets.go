package mcwire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Packet ids for the states this proxy participates in.
const (
	IDHandshake         int32 = 0x00
	IDStatusRequest     int32 = 0x00
	IDStatusResponse    int32 = 0x00
	IDPingRequest       int32 = 0x01
	IDPongResponse      int32 = 0x01
	IDLoginStart        int32 = 0x00
	IDLoginSuccess      int32 = 0x02
	IDLoginAcknowledged int32 = 0x03
	IDTransfer          int32 = 0x0B
)

// Handshake intents declared by the client.
const (
	IntentStatus   int32 = 1
	IntentLogin    int32 = 2
	IntentTransfer int32 = 3
)

// Handshake is the first serverbound packet on every connection.
type Handshake struct {
	ProtocolVersion int32
	ServerAddress   string
	ServerPort      uint16
	Intent          int32
}

// UnmarshalHandshake decodes a handshake payload.
func UnmarshalHandshake(payload []byte) (*Handshake, error) {
	buf := bytes.NewBuffer(payload)
	proto, err := ReadVarInt(buf)
	if err != nil {
		return nil, err
	}
	addr, err := readString(buf)
	if err != nil {
		return nil, err
	}
	port, err := readUint16(buf)
	if err != nil {
		return nil, err
	}
	intent, err := ReadVarInt(buf)
	if err != nil {
		return nil, err
	}
	if intent < IntentStatus || intent > IntentTransfer {
		return nil, fmt.Errorf("mcwire: invalid handshake intent %d", intent)
	}
	return &Handshake{
		ProtocolVersion: proto,
		ServerAddress:   addr,
		ServerPort:      port,
		Intent:          intent,
	}, nil
}

// Marshal encodes the handshake payload.
func (h *Handshake) Marshal() []byte {
	var buf bytes.Buffer
	_ = WriteVarInt(&buf, h.ProtocolVersion)
	writeString(&buf, h.ServerAddress)
	_ = binary.Write(&buf, binary.BigEndian, h.ServerPort)
	_ = WriteVarInt(&buf, h.Intent)
	return buf.Bytes()
}

// StatusResponse carries the status JSON document.
type StatusResponse struct {
	JSON string
}

func UnmarshalStatusResponse(payload []byte) (*StatusResponse, error) {
	buf := bytes.NewBuffer(payload)
	s, err := readString(buf)
	if err != nil {
		return nil, err
	}
	return &StatusResponse{JSON: s}, nil
}

func (s *StatusResponse) Marshal() []byte {
	var buf bytes.Buffer
	writeString(&buf, s.JSON)
	return buf.Bytes()
}

// PingRequest is echoed back verbatim as a PongResponse.
type PingRequest struct {
	Payload int64
}

func UnmarshalPingRequest(payload []byte) (*PingRequest, error) {
	buf := bytes.NewBuffer(payload)
	v, err := readInt64(buf)
	if err != nil {
		return nil, err
	}
	return &PingRequest{Payload: v}, nil
}

// MarshalPong encodes a pong payload echoing v.
func MarshalPong(v int64) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, v)
	return buf.Bytes()
}

// LoginStart carries the client's claimed identity.
type LoginStart struct {
	Name string
	UUID uuid.UUID
}

func UnmarshalLoginStart(payload []byte) (*LoginStart, error) {
	buf := bytes.NewBuffer(payload)
	name, err := readString(buf)
	if err != nil {
		return nil, err
	}
	id, err := readUUID(buf)
	if err != nil {
		return nil, err
	}
	return &LoginStart{Name: name, UUID: id}, nil
}

func (l *LoginStart) Marshal() []byte {
	var buf bytes.Buffer
	writeString(&buf, l.Name)
	buf.Write(l.UUID[:])
	return buf.Bytes()
}

// LoginSuccess echoes the identity back; the property list is always empty.
type LoginSuccess struct {
	UUID uuid.UUID
	Name string
}

func (l *LoginSuccess) Marshal() []byte {
	var buf bytes.Buffer
	buf.Write(l.UUID[:])
	writeString(&buf, l.Name)
	_ = WriteVarInt(&buf, 0) // no properties
	return buf.Bytes()
}

func UnmarshalLoginSuccess(payload []byte) (*LoginSuccess, error) {
	buf := bytes.NewBuffer(payload)
	id, err := readUUID(buf)
	if err != nil {
		return nil, err
	}
	name, err := readString(buf)
	if err != nil {
		return nil, err
	}
	return &LoginSuccess{UUID: id, Name: name}, nil
}

// Transfer tells the client to reconnect elsewhere.
type Transfer struct {
	Host string
	Port int32
}

func (t *Transfer) Marshal() []byte {
	var buf bytes.Buffer
	writeString(&buf, t.Host)
	_ = WriteVarInt(&buf, t.Port)
	return buf.Bytes()
}

func UnmarshalTransfer(payload []byte) (*Transfer, error) {
	buf := bytes.NewBuffer(payload)
	host, err := readString(buf)
	if err != nil {
		return nil, err
	}
	port, err := ReadVarInt(buf)
	if err != nil {
		return nil, err
	}
	return &Transfer{Host: host, Port: port}, nil
}

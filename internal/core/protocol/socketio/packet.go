package socketio

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/protocol"
	"github.com/pkg/errors"
)

// Engine.IO v4 packet types, the first byte of every WebSocket frame.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// PacketType is a Socket.IO v5 packet type carried inside an Engine.IO
// message.
type PacketType int

const (
	PacketConnect PacketType = iota
	PacketDisconnect
	PacketEvent
	PacketAck
	PacketConnectError
	PacketBinaryEvent
	PacketBinaryAck
)

// EventMessage is the event name plain send() uses on both ends.
const EventMessage = "message"

var ErrBinaryUnsupported = errors.New("binary socket.io packets are not supported")

// Packet is one Socket.IO packet.
type Packet struct {
	Type PacketType
	// Namespace is "/" for the main namespace.
	Namespace string
	ID        int
	HasID     bool
	Data      json.RawMessage
}

// Encode renders p as an Engine.IO message frame.
func (p Packet) Encode() string {
	var b strings.Builder
	b.WriteByte(EngineMessage)
	b.WriteString(strconv.Itoa(int(p.Type)))
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.HasID {
		b.WriteString(strconv.Itoa(p.ID))
	}
	b.Write(p.Data)
	return b.String()
}

// DecodePacket parses the Socket.IO part of an Engine.IO message frame, that
// is everything after the leading '4'.
func DecodePacket(s string) (Packet, error) {
	if s == "" {
		return Packet{}, errors.Wrap(protocol.ErrMalformedFrame, "empty socket.io packet")
	}
	typ := PacketType(s[0] - '0')
	if typ > PacketBinaryAck {
		return Packet{}, errors.Wrapf(protocol.ErrMalformedFrame, "unknown socket.io packet type %q", s[0])
	}
	if typ == PacketBinaryEvent || typ == PacketBinaryAck {
		return Packet{}, ErrBinaryUnsupported
	}

	p := Packet{Type: typ, Namespace: "/"}
	rest := s[1:]

	if strings.HasPrefix(rest, "/") {
		if i := strings.IndexByte(rest, ','); i >= 0 {
			p.Namespace, rest = rest[:i], rest[i+1:]
		} else {
			p.Namespace, rest = rest, ""
		}
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return Packet{}, errors.Wrap(protocol.ErrMalformedFrame, "bad ack id")
		}
		p.ID, p.HasID = id, true
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return Packet{}, errors.Wrap(protocol.ErrMalformedFrame, "socket.io packet data is not json")
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Event splits an event packet into its name and first argument.
// Further arguments are ignored.
func (p Packet) Event() (string, json.RawMessage, error) {
	var args []json.RawMessage
	if err := json.Unmarshal(p.Data, &args); err != nil || len(args) == 0 {
		return "", nil, errors.Wrap(protocol.ErrMalformedFrame, "event packet without arguments")
	}
	var name string
	if err := json.Unmarshal(args[0], &name); err != nil {
		return "", nil, errors.Wrap(protocol.ErrMalformedFrame, "event name is not a string")
	}
	if len(args) < 2 {
		return name, nil, nil
	}
	return name, args[1], nil
}

// EventPacket builds a 42 packet emitting event with a single argument.
func EventPacket(namespace, event string, data json.RawMessage) (Packet, error) {
	name, err := json.Marshal(event)
	if err != nil {
		return Packet{}, err
	}
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	buf := make([]byte, 0, len(name)+len(data)+3)
	buf = append(buf, '[')
	buf = append(buf, name...)
	buf = append(buf, ',')
	buf = append(buf, data...)
	buf = append(buf, ']')
	return Packet{Type: PacketEvent, Namespace: namespace, Data: buf}, nil
}

// ConnectPacket builds the namespace CONNECT carrying the auth payload.
func ConnectPacket(namespace, token string) Packet {
	p := Packet{Type: PacketConnect, Namespace: namespace}
	if token != "" {
		p.Data, _ = json.Marshal(map[string]string{"token": token})
	}
	return p
}

// ConnectErrorMessage extracts the reason of a CONNECT_ERROR packet. Servers
// send either {"message": "..."} or a bare string.
func (p Packet) ConnectErrorMessage() string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(p.Data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(p.Data, &s); err == nil {
		return s
	}
	return "connect error"
}

// Handshake is the Engine.IO OPEN packet payload.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload"`
}

// DecodeHandshake parses a full "0{...}" frame.
func DecodeHandshake(frame []byte) (Handshake, error) {
	if len(frame) == 0 || frame[0] != EngineOpen {
		return Handshake{}, errors.Wrap(protocol.ErrMalformedFrame, "expected engine.io open packet")
	}
	var hs Handshake
	if err := json.Unmarshal(frame[1:], &hs); err != nil {
		return Handshake{}, errors.Wrap(protocol.ErrMalformedFrame, err.Error())
	}
	return hs, nil
}

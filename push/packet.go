package push

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO v4 packet types, the first byte of every websocket frame.
const (
	EngineOpen    byte = '0'
	EngineClose   byte = '1'
	EnginePing    byte = '2'
	EnginePong    byte = '3'
	EngineMessage byte = '4'
	EngineUpgrade byte = '5'
	EngineNoop    byte = '6'
)

// Handshake is the payload of the Engine.IO open packet. Intervals are in
// milliseconds.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

func ParseHandshake(frame []byte) (Handshake, error) {
	var h Handshake
	if len(frame) == 0 || frame[0] != EngineOpen {
		return h, fmt.Errorf("expected open packet, got %q", truncate(frame))
	}
	if err := json.Unmarshal(frame[1:], &h); err != nil {
		return h, fmt.Errorf("decoding handshake: %w", err)
	}
	if h.SID == "" {
		return h, errors.New("handshake without sid")
	}
	return h, nil
}

type SocketPacketType int

// Socket.IO v5 packet types, carried inside an Engine.IO message.
const (
	SocketConnect SocketPacketType = iota
	SocketDisconnect
	SocketEvent
	SocketAck
	SocketConnectError
	SocketBinaryEvent
	SocketBinaryAck
)

func (t SocketPacketType) binary() bool {
	return t == SocketBinaryEvent || t == SocketBinaryAck
}

type SocketPacket struct {
	ID          *int
	Namespace   string
	Data        json.RawMessage
	Type        SocketPacketType
	Attachments int
}

// Encode renders p as a full websocket frame, including the Engine.IO
// message prefix.
func (p SocketPacket) Encode() string {
	var b strings.Builder
	b.WriteByte(EngineMessage)
	b.WriteString(strconv.Itoa(int(p.Type)))
	if p.Type.binary() {
		b.WriteString(strconv.Itoa(p.Attachments))
		b.WriteByte('-')
	}
	if p.Namespace != "" && p.Namespace != "/" {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.ID != nil {
		b.WriteString(strconv.Itoa(*p.ID))
	}
	b.Write(p.Data)
	return b.String()
}

// DecodeSocketPacket parses the body of an Engine.IO message, the frame
// without its leading '4'.
func DecodeSocketPacket(s string) (SocketPacket, error) {
	var p SocketPacket
	if s == "" {
		return p, errors.New("empty socket packet")
	}
	if s[0] < '0' || s[0] > '6' {
		return p, fmt.Errorf("unknown socket packet type %q", s[0])
	}
	p.Type = SocketPacketType(s[0] - '0')
	i := 1

	if p.Type.binary() {
		j := strings.IndexByte(s[i:], '-')
		if j < 0 {
			return p, errors.New("binary packet without attachment count")
		}
		n, err := strconv.Atoi(s[i : i+j])
		if err != nil {
			return p, fmt.Errorf("bad attachment count: %w", err)
		}
		p.Attachments = n
		i += j + 1
	}

	p.Namespace = "/"
	if i < len(s) && s[i] == '/' {
		j := strings.IndexByte(s[i:], ',')
		if j < 0 {
			p.Namespace = s[i:]
			i = len(s)
		} else {
			p.Namespace = s[i : i+j]
			i += j + 1
		}
	}

	start := i
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > start {
		id, err := strconv.Atoi(s[start:i])
		if err != nil {
			return p, fmt.Errorf("bad ack id: %w", err)
		}
		p.ID = &id
	}

	if i < len(s) {
		data := json.RawMessage(s[i:])
		if !json.Valid(data) {
			return p, fmt.Errorf("invalid packet payload %q", truncate([]byte(s[i:])))
		}
		p.Data = data
	}
	return p, nil
}

// EventArgs splits an EVENT payload ["name", arg...].
func (p SocketPacket) EventArgs() (string, []json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(p.Data, &parts); err != nil {
		return "", nil, fmt.Errorf("decoding event payload: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event without a name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("decoding event name: %w", err)
	}
	return name, parts[1:], nil
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}

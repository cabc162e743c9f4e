package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.io packet types.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioNoop    = '6'
)

// Socket.io packet types, carried inside engine.io messages.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

var errMalformedPacket = errors.New("malformed packet")

type packetKind int

const (
	kindIgnore packetKind = iota
	kindOpen
	kindClose
	kindPing
	kindConnect
	kindConnectError
	kindDisconnect
	kindEvent
)

// packet is a decoded engine.io frame, flattened with its socket.io payload.
type packet struct {
	kind    packetKind
	name    string          // event name
	payload json.RawMessage // first event argument, connect data or open handshake
}

// handshake is the engine.io open payload.
type handshake struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// liveness is how long the reader waits for the next server frame.
func (h handshake) liveness() time.Duration {
	if h.PingInterval <= 0 {
		return 0
	}
	return time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
}

func decodePacket(msg []byte) (packet, error) {
	if len(msg) == 0 {
		return packet{}, errMalformedPacket
	}
	switch msg[0] {
	case eioOpen:
		return packet{kind: kindOpen, payload: json.RawMessage(msg[1:])}, nil
	case eioClose:
		return packet{kind: kindClose}, nil
	case eioPing:
		return packet{kind: kindPing}, nil
	case eioPong, eioNoop:
		return packet{kind: kindIgnore}, nil
	case eioMessage:
		return decodeSocketPacket(msg[1:])
	}
	return packet{}, fmt.Errorf("%w: unknown engine.io type %q", errMalformedPacket, msg[0])
}

func decodeSocketPacket(msg []byte) (packet, error) {
	if len(msg) == 0 {
		return packet{}, errMalformedPacket
	}
	typ, rest := msg[0], skipNamespace(msg[1:])

	switch typ {
	case sioConnect:
		return packet{kind: kindConnect, payload: json.RawMessage(rest)}, nil
	case sioConnectError:
		return packet{kind: kindConnectError, payload: json.RawMessage(rest)}, nil
	case sioDisconnect:
		return packet{kind: kindDisconnect}, nil
	case sioAck:
		return packet{kind: kindIgnore}, nil
	case sioEvent:
		rest = skipAckID(rest)
		var args []json.RawMessage
		if err := json.Unmarshal(rest, &args); err != nil || len(args) == 0 {
			return packet{}, fmt.Errorf("%w: event body", errMalformedPacket)
		}
		var name string
		if err := json.Unmarshal(args[0], &name); err != nil {
			return packet{}, fmt.Errorf("%w: event name", errMalformedPacket)
		}
		p := packet{kind: kindEvent, name: name}
		if len(args) > 1 {
			p.payload = args[1]
		}
		return p, nil
	}
	return packet{}, fmt.Errorf("%w: unknown socket.io type %q", errMalformedPacket, typ)
}

// skipNamespace drops a "/nsp," prefix.
func skipNamespace(b []byte) []byte {
	if len(b) == 0 || b[0] != '/' {
		return b
	}
	for i, c := range b {
		if c == ',' {
			return b[i+1:]
		}
	}
	return nil
}

func skipAckID(b []byte) []byte {
	i := 0
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return b[i:]
}

func encodeConnect(auth any) ([]byte, error) {
	out := []byte{eioMessage, sioConnect}
	if auth == nil {
		return out, nil
	}
	b, err := json.Marshal(auth)
	if err != nil {
		return nil, fmt.Errorf("encode connect: %w", err)
	}
	return append(out, b...), nil
}

func encodeEvent(name string, args ...any) ([]byte, error) {
	body := make([]any, 0, len(args)+1)
	body = append(body, name)
	body = append(body, args...)
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}
	return append([]byte{eioMessage, sioEvent}, b...), nil
}

var (
	pongFrame       = []byte{eioPong}
	disconnectFrame = []byte{eioMessage, sioDisconnect}
)

package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// engine.io packet types
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// socket.io packet types carried in engine messages
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketConnectError = '4'
)

var ErrMalformedPacket = errors.New("malformed packet")

type packetKind int

const (
	kindOpen packetKind = iota
	kindClose
	kindPing
	kindPong
	kindNoop
	kindConnect
	kindDisconnect
	kindConnectError
	kindEvent
)

// Handshake is the payload of the engine open packet.
type Handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload,omitempty"`
}

type packet struct {
	kind    packetKind
	payload []byte
	name    string
	args    []json.RawMessage
}

func parsePacket(raw []byte) (packet, error) {
	if len(raw) == 0 {
		return packet{}, ErrMalformedPacket
	}
	switch raw[0] {
	case engineOpen:
		return packet{kind: kindOpen, payload: raw[1:]}, nil
	case engineClose:
		return packet{kind: kindClose}, nil
	case enginePing:
		return packet{kind: kindPing, payload: raw[1:]}, nil
	case enginePong:
		return packet{kind: kindPong, payload: raw[1:]}, nil
	case engineNoop:
		return packet{kind: kindNoop}, nil
	case engineMessage:
	default:
		return packet{}, errors.Join(ErrMalformedPacket, fmt.Errorf("engine type %q", raw[0]))
	}

	if len(raw) < 2 {
		return packet{}, ErrMalformedPacket
	}
	body := skipNamespace(raw[2:])
	switch raw[1] {
	case socketConnect:
		return packet{kind: kindConnect, payload: body}, nil
	case socketDisconnect:
		return packet{kind: kindDisconnect}, nil
	case socketConnectError:
		return packet{kind: kindConnectError, payload: body}, nil
	case socketEvent:
		body = bytes.TrimLeft(body, "0123456789")
		var arr []json.RawMessage
		if err := json.Unmarshal(body, &arr); err != nil || len(arr) == 0 {
			return packet{}, errors.Join(ErrMalformedPacket, fmt.Errorf("event payload %q", body))
		}
		var name string
		if err := json.Unmarshal(arr[0], &name); err != nil {
			return packet{}, errors.Join(ErrMalformedPacket, err)
		}
		return packet{kind: kindEvent, name: name, args: arr[1:]}, nil
	}
	return packet{}, errors.Join(ErrMalformedPacket, fmt.Errorf("socket type %q", raw[1]))
}

func skipNamespace(b []byte) []byte {
	if len(b) == 0 || b[0] != '/' {
		return b
	}
	if i := bytes.IndexByte(b, ','); i >= 0 {
		return b[i+1:]
	}
	return nil
}

// EncodeEvent encodes socket.io event packet.
func EncodeEvent(name string, args ...any) ([]byte, error) {
	arr := make([]any, 0, len(args)+1)
	arr = append(arr, name)
	arr = append(arr, args...)
	raw, err := json.Marshal(arr)
	if err != nil {
		return nil, err
	}
	return append([]byte{engineMessage, socketEvent}, raw...), nil
}

// EncodeOpen encodes engine open packet.
func EncodeOpen(h Handshake) ([]byte, error) {
	raw, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	return append([]byte{engineOpen}, raw...), nil
}

// EncodeConnect encodes namespace connect packet with optional payload.
func EncodeConnect(payload any) ([]byte, error) {
	out := []byte{engineMessage, socketConnect}
	if payload == nil {
		return out, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append(out, raw...), nil
}

var (
	pingPacket = []byte{enginePing}
	pongPacket = []byte{enginePong}
)

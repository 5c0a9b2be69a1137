package push

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/elijahnyp/node1_dashboard/state"
)

// Event names as they appear on the channel. The first five come from the
// client's own lifecycle, the rest from the device.
const (
	EventConnect         = "connect"
	EventDisconnect      = "disconnect"
	EventConnectError    = "connect_error"
	EventReconnect       = "reconnect"
	EventReconnectFailed = "reconnect_failed"
	EventMotion          = "motion"
	EventState           = "state"
	EventLedUpdate       = "led_update"
)

// Disconnect reasons, same strings socket.io-client uses.
const (
	ReasonServerDisconnect = "io server disconnect"
	ReasonClientDisconnect = "io client disconnect"
	ReasonPingTimeout      = "ping timeout"
	ReasonTransportClose   = "transport close"
	ReasonTransportError   = "transport error"
)

// Event is one of the types below.
type Event interface {
	EventName() string
}

type Connected struct {
	SID string
}

type Disconnected struct {
	Reason string
}

type ConnectError struct {
	Err error
}

// Reconnected follows the first successful connect after Attempt failed or
// lost connections.
type Reconnected struct {
	Attempt int
}

type ReconnectFailed struct {
	Attempts int
}

type MotionUpdate struct {
	Motion state.Motion
}

// StateUpdate is a full resync.
type StateUpdate struct {
	Snapshot state.Snapshot
}

// LedUpdate carries only the fields the device sent; nil means absent.
type LedUpdate struct {
	Led1 *state.LedBinary `json:"led1,omitempty"`
	Led2 *state.LedLevel  `json:"led2,omitempty"`
}

func (Connected) EventName() string       { return EventConnect }
func (Disconnected) EventName() string    { return EventDisconnect }
func (ConnectError) EventName() string    { return EventConnectError }
func (Reconnected) EventName() string     { return EventReconnect }
func (ReconnectFailed) EventName() string { return EventReconnectFailed }
func (MotionUpdate) EventName() string    { return EventMotion }
func (StateUpdate) EventName() string     { return EventState }
func (LedUpdate) EventName() string       { return EventLedUpdate }

// ErrUnknownEvent is returned by DecodeEvent for names the dashboard doesn't
// track.
var ErrUnknownEvent = errors.New("unknown event")

// DecodeEvent turns a device event into its typed form. Only the first
// argument is looked at.
func DecodeEvent(name string, args []json.RawMessage) (Event, error) {
	var payload json.RawMessage
	if len(args) > 0 {
		payload = args[0]
	}
	switch name {
	case EventMotion:
		var p struct {
			Motion *state.Motion `json:"motion"`
		}
		if err := decodePayload(name, payload, &p); err != nil {
			return nil, err
		}
		if p.Motion == nil {
			return nil, fmt.Errorf("%s event without motion", name)
		}
		return MotionUpdate{Motion: *p.Motion}, nil
	case EventState:
		var p struct {
			Motion *state.Motion    `json:"motion"`
			Led1   *state.LedBinary `json:"led1"`
			Led2   *state.LedLevel  `json:"led2"`
		}
		if err := decodePayload(name, payload, &p); err != nil {
			return nil, err
		}
		if p.Motion == nil || p.Led1 == nil || p.Led2 == nil {
			return nil, fmt.Errorf("%s event missing fields", name)
		}
		return StateUpdate{Snapshot: state.Snapshot{Motion: *p.Motion, Led1: *p.Led1, Led2: *p.Led2}}, nil
	case EventLedUpdate:
		var p LedUpdate
		if err := decodePayload(name, payload, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownEvent, name)
	}
}

func decodePayload(name string, payload json.RawMessage, into interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("%s event without payload", name)
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("decoding %s payload: %w", name, err)
	}
	return nil
}

// connectErrorMessage pulls the message out of a CONNECT_ERROR payload,
// which is {"message": ...} from v5 servers and a bare string from older
// ones.
func connectErrorMessage(data json.RawMessage) string {
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil && s != "" {
		return s
	}
	return "connection refused"
}

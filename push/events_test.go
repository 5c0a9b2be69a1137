package push

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/elijahnyp/node1_dashboard/state"
)

func raw(s string) []json.RawMessage {
	return []json.RawMessage{json.RawMessage(s)}
}

func TestDecodeEvent_Motion(t *testing.T) {
	ev, err := DecodeEvent("motion", raw(`{"motion":"motion"}`))
	if err != nil {
		t.Fatalf("DecodeEvent returned %v", err)
	}
	if m, ok := ev.(MotionUpdate); !ok || m.Motion != state.MotionDetected {
		t.Errorf("decoded %#v", ev)
	}
	if ev.EventName() != EventMotion {
		t.Errorf("EventName = %s", ev.EventName())
	}

	if _, err := DecodeEvent("motion", raw(`{}`)); err == nil {
		t.Error("motion without a motion field should fail")
	}
}

func TestDecodeEvent_State(t *testing.T) {
	ev, err := DecodeEvent("state", raw(`{"motion":"no-motion","led1":"on","led2":4}`))
	if err != nil {
		t.Fatalf("DecodeEvent returned %v", err)
	}
	want := state.Snapshot{Motion: state.NoMotion, Led1: state.LedOn, Led2: 4}
	if s, ok := ev.(StateUpdate); !ok || s.Snapshot != want {
		t.Errorf("decoded %#v", ev)
	}

	if _, err := DecodeEvent("state", raw(`{"motion":"motion","led1":"on"}`)); err == nil {
		t.Error("state without led2 should fail")
	}
}

func TestDecodeEvent_LedUpdateOptionalFields(t *testing.T) {
	tests := []struct {
		payload  string
		wantLed1 *state.LedBinary
		wantLed2 *state.LedLevel
	}{
		{`{"led1":"off"}`, ledPtr(state.LedOff), nil},
		{`{"led2":2}`, nil, levelPtr(2)},
		{`{"led1":"on","led2":0}`, ledPtr(state.LedOn), levelPtr(0)},
		{`{}`, nil, nil},
	}
	for _, tt := range tests {
		ev, err := DecodeEvent("led_update", raw(tt.payload))
		if err != nil {
			t.Fatalf("DecodeEvent(%s) returned %v", tt.payload, err)
		}
		u := ev.(LedUpdate)
		if !sameLed(u.Led1, tt.wantLed1) || !sameLevel(u.Led2, tt.wantLed2) {
			t.Errorf("DecodeEvent(%s) = %+v", tt.payload, u)
		}
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	if _, err := DecodeEvent("weather", raw(`{}`)); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("unknown event error = %v", err)
	}
	if _, err := DecodeEvent("motion", nil); err == nil {
		t.Error("event without payload should fail")
	}
	if _, err := DecodeEvent("led_update", raw(`{"led2":"bright"}`)); err == nil {
		t.Error("non-numeric level should fail")
	}
}

func TestConnectErrorMessage(t *testing.T) {
	if got := connectErrorMessage(json.RawMessage(`{"message":"not authorized"}`)); got != "not authorized" {
		t.Errorf("got %s", got)
	}
	if got := connectErrorMessage(json.RawMessage(`"Invalid namespace"`)); got != "Invalid namespace" {
		t.Errorf("got %s", got)
	}
	if got := connectErrorMessage(nil); got != "connection refused" {
		t.Errorf("got %s", got)
	}
}

func ledPtr(l state.LedBinary) *state.LedBinary { return &l }
func levelPtr(l state.LedLevel) *state.LedLevel { return &l }

func sameLed(a, b *state.LedBinary) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameLevel(a, b *state.LedLevel) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Package state holds the values the dashboard tracks for the Node1 device.
package state

import "strings"

// Motion is reported by the device and only ever read by the dashboard.
type Motion string

const (
	MotionUnknown  Motion = "unknown"
	MotionDetected Motion = "motion"
	NoMotion       Motion = "no-motion"
)

// Detected matches the device's "motion" value case-insensitively.
func (m Motion) Detected() bool {
	return strings.ToLower(string(m)) == string(MotionDetected)
}

type LedBinary string

const (
	LedOn  LedBinary = "on"
	LedOff LedBinary = "off"
)

func (l LedBinary) On() bool {
	return l == LedOn
}

// Toggled returns off for on and on for anything else.
func (l LedBinary) Toggled() LedBinary {
	if l.On() {
		return LedOff
	}
	return LedOn
}

func (l LedBinary) Valid() bool {
	return l == LedOn || l == LedOff
}

// ParseLedBinary accepts on/off in any case.
func ParseLedBinary(s string) (LedBinary, bool) {
	l := LedBinary(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// LedLevel is LED2's brightness.
type LedLevel int

const (
	MinLevel LedLevel = 0
	MaxLevel LedLevel = 5
)

func (l LedLevel) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// Clamp pulls l into [MinLevel, MaxLevel].
func (l LedLevel) Clamp() LedLevel {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Snapshot is the full device state, the shape of GET /api/status and of the
// "state" push event.
type Snapshot struct {
	Motion Motion    `json:"motion"`
	Led1   LedBinary `json:"led1"`
	Led2   LedLevel  `json:"led2"`
}

// Defaults is what the dashboard shows before the device has answered.
func Defaults() Snapshot {
	return Snapshot{
		Motion: MotionUnknown,
		Led1:   LedOff,
		Led2:   MinLevel,
	}
}

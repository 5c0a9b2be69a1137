// Package view renders the dashboard's three cards: in a terminal with
// bubbletea and as a JPEG snapshot for the web page and MQTT.
package view

import (
	"strconv"
	"strings"

	"github.com/elijahnyp/node1_dashboard/state"
)

const (
	ColorMotion   = "#ff0000"
	ColorNoMotion = "#009f00"
	ColorLedOn    = "#ff9900"
	ColorLedOff   = "#333333"
)

type Badge struct {
	Text  string
	Color string // hex, empty for plain text
}

// Card is one panel of the dashboard, independent of how it is drawn.
type Card struct {
	Title  string
	Label  string
	Action string // label of the card's control, if it has a button
	Badge  Badge
}

func MotionCard(s state.Snapshot) Card {
	badge := Badge{Text: "NO MOTION", Color: ColorNoMotion}
	if s.Motion.Detected() {
		badge = Badge{Text: "MOTION DETECTED", Color: ColorMotion}
	}
	return Card{Title: "Motion Sensor", Label: "Status", Badge: badge}
}

func Led1Card(s state.Snapshot) Card {
	c := Card{
		Title:  "LED1",
		Label:  "State",
		Badge:  Badge{Text: strings.ToUpper(string(s.Led1)), Color: ColorLedOff},
		Action: "Turn ON",
	}
	if s.Led1.On() {
		c.Badge.Color = ColorLedOn
		c.Action = "Turn OFF"
	}
	return c
}

func Led2Card(s state.Snapshot) Card {
	return Card{
		Title: "LED2",
		Label: "Brightness",
		Badge: Badge{Text: strconv.Itoa(int(s.Led2))},
	}
}

func Cards(s state.Snapshot) []Card {
	return []Card{MotionCard(s), Led1Card(s), Led2Card(s)}
}

// Slider draws the LED2 range control as text, e.g. "0 ███░░ 5". Levels
// outside the range are drawn at the nearest end.
func Slider(level state.LedLevel) string {
	level = level.Clamp()
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(state.MinLevel)))
	b.WriteByte(' ')
	for l := state.MinLevel + 1; l <= state.MaxLevel; l++ {
		if l <= level {
			b.WriteString("█")
		} else {
			b.WriteString("░")
		}
	}
	b.WriteByte(' ')
	b.WriteString(strconv.Itoa(int(state.MaxLevel)))
	return b.String()
}

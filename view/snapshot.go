package view

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"strconv"

	"github.com/elijahnyp/node1_dashboard/state"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/inconsolata"
	"golang.org/x/image/math/fixed"
)

const (
	snapshotWidth  = 600
	snapshotHeight = 200
	columnWidth    = snapshotWidth / 3
	glyphWidth     = 8
	badgeTop       = 80
	badgeHeight    = 24
	sliderTop      = 130
)

var (
	backgroundColor = color.RGBA{0x12, 0x12, 0x12, 0xff}
	cardColor       = color.RGBA{0x1f, 0x1f, 0x1f, 0xff}
	textColor       = color.RGBA{0xff, 0xff, 0xff, 0xff}
	sliderOff       = color.RGBA{0x44, 0x44, 0x44, 0xff}
	sliderOn        = color.RGBA{0x1e, 0x90, 0xff, 0xff}
)

// parseHex reads #rrggbb.
func parseHex(s string) (color.RGBA, error) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, fmt.Errorf("bad color %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("bad color %q: %w", s, err)
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}, nil
}

func fill(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}

func drawText(dst draw.Image, x, y int, c color.Color, s string) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: inconsolata.Bold8x16,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(s)
}

// badgeRect is where the badge of the card in column col is drawn.
func badgeRect(col int, text string) image.Rectangle {
	x := col*columnWidth + 12
	return image.Rect(x, badgeTop, x+len(text)*glyphWidth+12, badgeTop+badgeHeight)
}

// sliderCell is the box for level l on the LED2 card.
func sliderCell(l state.LedLevel) image.Rectangle {
	x := 2*columnWidth + 12 + int(l-1)*30
	return image.Rect(x, sliderTop, x+24, sliderTop+16)
}

func RenderSnapshot(s state.Snapshot) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, snapshotWidth, snapshotHeight))
	fill(img, img.Bounds(), backgroundColor)
	drawText(img, 12, 24, textColor, "Node1 Dashboard")

	for col, c := range Cards(s) {
		x := col * columnWidth
		fill(img, image.Rect(x+4, 36, x+columnWidth-4, snapshotHeight-8), cardColor)
		drawText(img, x+12, 60, textColor, c.Title)

		r := badgeRect(col, c.Badge.Text)
		if c.Badge.Color != "" {
			if bg, err := parseHex(c.Badge.Color); err == nil {
				fill(img, r, bg)
			}
		}
		drawText(img, r.Min.X+6, r.Max.Y-6, textColor, c.Badge.Text)
		if c.Action != "" {
			drawText(img, x+12, sliderTop+12, textColor, "["+c.Action+"]")
		}
	}

	for l := state.MinLevel + 1; l <= state.MaxLevel; l++ {
		c := sliderOff
		if l <= s.Led2 {
			c = sliderOn
		}
		fill(img, sliderCell(l), c)
	}
	return img
}

// SnapshotJPEG renders s and encodes it for /snapshot.jpg and MQTT.
func SnapshotJPEG(s state.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, RenderSnapshot(s), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

package hsv

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is an HSV triple with each channel in [0,1], rounded to 3 decimals.
type Color struct {
	H float64 `json:"h" toml:"h"`
	S float64 `json:"s" toml:"s"`
	V float64 `json:"v" toml:"v"`
}

// New returns the rounded color (h, s, v).
func New(h, s, v float64) Color {
	return Color{H: Round3(h), S: Round3(s), V: Round3(v)}
}

// FromRGB converts 8-bit RGB channels to an unrounded HSV color.
// Hue is returned in turns (degrees / 360).
func FromRGB(r, g, b uint8) Color {
	h, s, v := rgbToHSV(r, g, b)
	return Color{H: h, S: s, V: v}
}

func rgbToHSV(r, g, b uint8) (h, s, v float64) {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	deg, s, v := c.Hsv()
	return deg / 360, s, v
}

// Valid reports whether every channel lies within [0,1].
func (c Color) Valid() bool {
	return inUnit(c.H) && inUnit(c.S) && inUnit(c.V)
}

func inUnit(x float64) bool {
	return x >= 0 && x <= 1
}

// Distance returns the Euclidean distance between a and b in HSV space.
func Distance(a, b Color) float64 {
	dh := a.H - b.H
	ds := a.S - b.S
	dv := a.V - b.V
	return math.Sqrt(dh*dh + ds*ds + dv*dv)
}

// Round3 rounds x to three decimal places, halves away from zero.
func Round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}

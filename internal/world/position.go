package world

import (
	"math"
	"strconv"
	"strings"
)

// Position is a world-space coordinate as reported by the host.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// String renders the position in the "x,y,z" wire layout.
func (p Position) String() string {
	var b strings.Builder
	b.Grow(24)
	b.WriteString(FormatNumber(p.X))
	b.WriteByte(',')
	b.WriteString(FormatNumber(p.Y))
	b.WriteByte(',')
	b.WriteString(FormatNumber(p.Z))
	return b.String()
}

// Pixel maps the position onto raster pixel coordinates.
func (p Position) Pixel() (int, int) {
	return WorldToPixel(p.X, p.Z)
}

// FormatNumber renders a float with at most two decimals and no trailing zeros.
func FormatNumber(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	rounded := math.Round(v*100) / 100
	if rounded == 0 {
		rounded = 0
	}
	return strconv.FormatFloat(rounded, 'f', -1, 64)
}

// ParsePosition parses the three components written by Position.String.
func ParsePosition(x, y, z string) (Position, error) {
	px, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
	if err != nil {
		return Position{}, err
	}
	py, err := strconv.ParseFloat(strings.TrimSpace(y), 64)
	if err != nil {
		return Position{}, err
	}
	pz, err := strconv.ParseFloat(strings.TrimSpace(z), 64)
	if err != nil {
		return Position{}, err
	}
	return Position{X: px, Y: py, Z: pz}, nil
}

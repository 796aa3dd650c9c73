package world

import (
	"math"
	"testing"
)

func TestWorldToPixelOriginMapsToCentre(t *testing.T) {
	px, py := WorldToPixel(0, 0)
	if px != TextureSize/2 || py != TextureSize/2 {
		t.Fatalf("expected origin at (%d,%d), got (%d,%d)", TextureSize/2, TextureSize/2, px, py)
	}
}

func TestWorldToPixelRoundsToNearest(t *testing.T) {
	cases := []struct {
		x, z   float64
		px, py int
	}{
		{x: 12, z: -12, px: 1025, py: 1023},
		{x: 5.9, z: 6.1, px: 1024, py: 1025},
		{x: -100, z: 250, px: 1016, py: 1045},
	}
	for _, tc := range cases {
		px, py := WorldToPixel(tc.x, tc.z)
		if px != tc.px || py != tc.py {
			t.Fatalf("WorldToPixel(%v,%v) = (%d,%d), want (%d,%d)", tc.x, tc.z, px, py, tc.px, tc.py)
		}
	}
}

func TestPixelToWorldRecoversPositionWithinHalfPixel(t *testing.T) {
	samples := []float64{-12287.4, -999.99, -6, 0, 0.01, 5.99, 6, 431.5, 12000}
	for _, x := range samples {
		for _, z := range samples {
			px, py := WorldToPixel(x, z)
			wx, wz := PixelToWorld(px, py)
			if math.Abs(wx-x) > PixelSize/2.0 || math.Abs(wz-z) > PixelSize/2.0 {
				t.Fatalf("inverse of (%v,%v) drifted to (%v,%v)", x, z, wx, wz)
			}
			again, againY := WorldToPixel(x, z)
			if again != px || againY != py {
				t.Fatalf("WorldToPixel is not deterministic for (%v,%v)", x, z)
			}
		}
	}
}

func TestInBoundsRejectsEdges(t *testing.T) {
	if !InBounds(0, 0) || !InBounds(TextureSize-1, TextureSize-1) {
		t.Fatalf("expected raster corners in bounds")
	}
	if InBounds(-1, 0) || InBounds(0, TextureSize) || InBounds(TextureSize, 5) {
		t.Fatalf("expected out-of-range pixels rejected")
	}
}

func TestPixelRadius(t *testing.T) {
	if got := PixelRadius(DefaultExploreRadius); got != 9 {
		t.Fatalf("expected radius 9 for default explore radius, got %d", got)
	}
	if got := PixelRadius(0); got != 0 {
		t.Fatalf("expected zero radius, got %d", got)
	}
}

func TestPositionString(t *testing.T) {
	p := Position{X: 1.005, Y: -0.001, Z: 250}
	if got := p.String(); got != "1,0,250" && got != "1.01,0,250" {
		t.Fatalf("unexpected position format %q", got)
	}
	if got := (Position{X: 12.5, Y: 30.25, Z: -7.125}).String(); got != "12.5,30.25,-7.13" && got != "12.5,30.25,-7.12" {
		t.Fatalf("unexpected position format %q", got)
	}
}

func TestParsePositionRoundTrip(t *testing.T) {
	p := Position{X: -41.5, Y: 12, Z: 900.25}
	parsed, err := ParsePosition("-41.5", "12", "900.25")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed != p {
		t.Fatalf("expected %+v, got %+v", p, parsed)
	}
	if _, err := ParsePosition("x", "0", "0"); err == nil {
		t.Fatalf("expected error for malformed component")
	}
}

func TestClockString(t *testing.T) {
	cases := map[float64]string{
		0:       "00:00:00",
		0.5:     "12:00:00",
		0.75:    "18:00:00",
		1.25:    "06:00:00",
		0.99999: "23:59:59",
	}
	for fraction, want := range cases {
		if got := ClockString(fraction); got != want {
			t.Fatalf("ClockString(%v) = %q, want %q", fraction, got, want)
		}
	}
}

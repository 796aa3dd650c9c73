package world

import (
	"fmt"
	"math"
)

const secondsPerDay = 24 * 60 * 60

// ClockString converts a day fraction into an HH:mm:ss wall clock.
func ClockString(fraction float64) string {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		fraction = 0
	}
	fraction -= math.Floor(fraction)
	total := int(fraction * secondsPerDay)
	if total >= secondsPerDay {
		total = secondsPerDay - 1
	}
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

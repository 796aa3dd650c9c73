package world

import "math"

const (
	// TextureSize is the side length, in pixels, of every map raster.
	TextureSize = 2048
	// PixelSize is the number of world units covered by one raster pixel.
	PixelSize = 12
	// DefaultExploreRadius is the world-unit radius cleared around a player.
	DefaultExploreRadius = 100.0

	halfTexture = TextureSize / 2
)

// WorldToPixel maps a world x/z coordinate onto raster pixel coordinates.
// The result may lie outside the raster; callers skip it with InBounds.
func WorldToPixel(x, z float64) (int, int) {
	px := math.Round(x/PixelSize + halfTexture)
	py := math.Round(z/PixelSize + halfTexture)
	return int(px), int(py)
}

// PixelToWorld returns the world x/z that maps exactly onto the pixel.
func PixelToWorld(px, py int) (float64, float64) {
	return float64(px-halfTexture) * PixelSize, float64(py-halfTexture) * PixelSize
}

// PixelCenter returns the world x/z sampled by the renderer for a pixel.
func PixelCenter(px, py int) (float64, float64) {
	x, z := PixelToWorld(px, py)
	return x + PixelSize/2.0, z + PixelSize/2.0
}

// InBounds reports whether the pixel lies on the raster.
func InBounds(px, py int) bool {
	return px >= 0 && py >= 0 && px < TextureSize && py < TextureSize
}

// PixelRadius converts a world-unit radius to the integer pixel radius used
// by the fog reveal.
func PixelRadius(radius float64) int {
	if radius <= 0 {
		return 0
	}
	return int(math.Ceil(radius / PixelSize))
}

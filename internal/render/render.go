package render

import (
	"context"
	"errors"
	"image"
	"math"

	"webmap/server/internal/world"
)

// sun is the fixed light direction used by the shading pass.
var sun = vec3{-0.57735, 0.57735, 0.57735}

const (
	forestOn  = 0xff
	forestOff = 0x00
)

// Result is the output of one bake. Row py of Image and Forest holds the
// pixels sampled at world z for that row.
type Result struct {
	Image  *image.NRGBA
	Forest *image.Gray
}

// Render samples the terrain for a size×size raster and shades it. The
// context is checked between rows.
func Render(ctx context.Context, sampler world.BiomeSampler, size int) (*Result, error) {
	if sampler == nil {
		return nil, errors.New("render: nil sampler")
	}
	if size <= 0 {
		size = world.TextureSize
	}

	// Heights and biome codes are kept per pixel. Colours are looked up in
	// the shading pass.
	heights := make([]float64, size*size)
	biomes := make([]uint16, size*size)
	forest := image.NewGray(image.Rect(0, 0, size, size))
	half := size / 2
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		z := float64(i-half)*world.PixelSize + world.PixelSize/2.0
		for j := 0; j < size; j++ {
			x := float64(j-half)*world.PixelSize + world.PixelSize/2.0
			biome := sampler.Biome(x, z)
			height := sampler.Height(biome, x, z)
			heights[i*size+j] = height
			biomes[i*size+j] = biomeCode(biome)
			if forested(sampler, biome, x, z, height) {
				forest.Pix[i*forest.Stride+j] = forestOn
			} else {
				forest.Pix[i*forest.Stride+j] = forestOff
			}
		}
	}

	water := sampler.WaterLevel()
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	for i := 0; i < size; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for j := 0; j < size; j++ {
			t := i*size + j
			light := lightAt(heights, size, i, j)

			depth := heights[t] - water
			c := lerp(shore, baseColor(world.Biome(biomes[t])), depth)
			c = lerp(shallowWater, c, (depth+2.5)*0.5)
			c = lerp(deepWater, c, (depth+12.5)*0.1)

			off := img.PixOffset(j, i)
			img.Pix[off+0] = channel(c.r * light)
			img.Pix[off+1] = channel(c.g * light)
			img.Pix[off+2] = channel(c.b * light)
			img.Pix[off+3] = channel(c.a)
		}
	}
	return &Result{Image: img, Forest: forest}, nil
}

// biomeCode packs a biome into the per-pixel code. Values that do not fit
// become BiomeNone, which renders white like any unknown biome.
func biomeCode(biome world.Biome) uint16 {
	if biome < 0 || biome > math.MaxUint16 {
		return uint16(world.BiomeNone)
	}
	return uint16(biome)
}

// lightAt estimates the surface normal from the four axis neighbours and
// maps its dot with the sun onto [0.75, 1]. A missing neighbour at the
// raster edge is replaced by the centre height.
func lightAt(heights []float64, size, i, j int) float64 {
	centre := heights[i*size+j]
	neighbour := func(ni, nj int) float64 {
		if ni < 0 || nj < 0 || ni >= size || nj >= size {
			return centre
		}
		return heights[ni*size+nj]
	}
	hUp := neighbour(i-1, j)
	hDown := neighbour(i+1, j)
	hLeft := neighbour(i, j-1)
	hRight := neighbour(i, j+1)

	va := vec3{2, 0, hRight - hLeft}.normalized()
	vb := vec3{0, 2, hUp - hDown}.normalized()
	normal := va.cross(vb)
	return 0.75 + 0.25*clamp01(normal.dot(sun))
}

type vec3 struct {
	x, y, z float64
}

func (v vec3) normalized() vec3 {
	length := math.Sqrt(v.x*v.x + v.y*v.y + v.z*v.z)
	if length == 0 {
		return v
	}
	return vec3{v.x / length, v.y / length, v.z / length}
}

func (v vec3) cross(o vec3) vec3 {
	return vec3{
		v.y*o.z - v.z*o.y,
		v.z*o.x - v.x*o.z,
		v.x*o.y - v.y*o.x,
	}
}

func (v vec3) dot(o vec3) float64 {
	return v.x*o.x + v.y*o.y + v.z*o.z
}

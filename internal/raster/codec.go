package raster

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"webmap/server/internal/world"
)

// ErrSize is returned when a decoded image is not TextureSize square.
var ErrSize = errors.New("raster: unexpected image size")

// Fogged and Revealed are the two mask values used by the fog raster.
var (
	Fogged   = color.Gray{Y: 0x00}
	Revealed = color.Gray{Y: 0xff}
)

// Rows are stored with py=0 at index 0, but the viewer reads images with the
// texture origin at the bottom-left, so every codec flips vertically.

// EncodeRGBA encodes an RGBA raster as PNG.
func EncodeRGBA(img *image.NRGBA) ([]byte, error) {
	if img == nil {
		return nil, errors.New("raster: nil image")
	}
	return encode(flipNRGBA(img))
}

// EncodeMask encodes a single-channel mask as a greyscale PNG.
func EncodeMask(mask *image.Gray) ([]byte, error) {
	if mask == nil {
		return nil, errors.New("raster: nil mask")
	}
	return encode(flipGray(mask))
}

// DecodeMask decodes a PNG into a greyscale mask, converting colour images
// by luminance. The image must be TextureSize square.
func DecodeMask(data []byte) (*image.Gray, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() != world.TextureSize || bounds.Dy() != world.TextureSize {
		return nil, fmt.Errorf("%w: %dx%d", ErrSize, bounds.Dx(), bounds.Dy())
	}
	gray, ok := src.(*image.Gray)
	if !ok || bounds.Min != (image.Point{}) {
		gray = image.NewGray(image.Rect(0, 0, world.TextureSize, world.TextureSize))
		draw.Draw(gray, gray.Bounds(), src, bounds.Min, draw.Src)
	}
	return flipGray(gray), nil
}

// NewMask returns a TextureSize square mask filled with the given value.
func NewMask(fill uint8) *image.Gray {
	mask := image.NewGray(image.Rect(0, 0, world.TextureSize, world.TextureSize))
	if fill != 0 {
		for i := range mask.Pix {
			mask.Pix[i] = fill
		}
	}
	return mask
}

// CloneMask copies a mask so it can be encoded without holding a lock.
func CloneMask(mask *image.Gray) *image.Gray {
	cloned := image.NewGray(mask.Rect)
	copy(cloned.Pix, mask.Pix)
	return cloned
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func flipGray(src *image.Gray) *image.Gray {
	bounds := src.Bounds()
	dst := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	height := bounds.Dy()
	for y := 0; y < height; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+bounds.Dx()]
		dstStart := (height - 1 - y) * dst.Stride
		copy(dst.Pix[dstStart:dstStart+bounds.Dx()], srcRow)
	}
	return dst
}

func flipNRGBA(src *image.NRGBA) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	height := bounds.Dy()
	rowBytes := bounds.Dx() * 4
	for y := 0; y < height; y++ {
		srcRow := src.Pix[y*src.Stride : y*src.Stride+rowBytes]
		dstStart := (height - 1 - y) * dst.Stride
		copy(dst.Pix[dstStart:dstStart+rowBytes], srcRow)
	}
	return dst
}

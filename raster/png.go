package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// BitmapToPNG unpacks a device bitmap into a PNG for browser preview.
// This is the exact inverse of the packing in DitherToBitmap: bit 1
// becomes a black pixel, bit 0 a white pixel. The device itself never
// sees this representation.
func BitmapToPNG(packed []byte) ([]byte, error) {
	if len(packed) != BitmapBytes {
		return nil, fmt.Errorf("raster: bitmap must be %d bytes, got %d", BitmapBytes, len(packed))
	}

	rowBytes := (DisplayW + 7) / 8
	img := image.NewGray(image.Rect(0, 0, DisplayW, DisplayH))
	for y := 0; y < DisplayH; y++ {
		for x := 0; x < DisplayW; x++ {
			bit := (packed[y*rowBytes+x/8] >> (7 - uint(x%8))) & 1
			if bit == 1 {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("raster: png encode failed: %w", err)
	}
	return buf.Bytes(), nil
}

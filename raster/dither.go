// Package raster converts source material into the packed 1-bit bitmaps
// the e-ink display renders directly.
//
// Every function in this package is pure: identical inputs produce
// byte-identical outputs regardless of where the source image came from.
// The only internal state is the error-diffusion accumulator, which is
// local to a single call.
package raster

// Display target dimensions. The device panel is 296x128 pixels, 1 bit
// per pixel, rows padded to a byte boundary.
const (
	DisplayW = 296
	DisplayH = 128

	// BitmapBytes is ceil(DisplayW/8) * DisplayH = 4736.
	BitmapBytes = ((DisplayW + 7) / 8) * DisplayH
)

// DitherToBitmap applies Floyd-Steinberg error diffusion to grayscale
// samples and packs the result into a 1-bit bitmap.
//
// Pixels are processed in row-major raster order. The quantization error
// of each pixel is distributed to its right (7/16), below-left (3/16),
// below (5/16) and below-right (1/16) neighbors. Samples below 128
// quantize to black, which is bit 1 in the packed output, MSB first.
//
// The returned slice is always exactly ceil(w/8)*h bytes, for any w and h.
func DitherToBitmap(gray []uint8, w, h int) []byte {
	rowBytes := (w + 7) / 8
	out := make([]byte, rowBytes*h)
	if w <= 0 || h <= 0 {
		return out
	}

	// Working copy: error diffusion pushes samples outside [0,255].
	pixels := make([]float64, w*h)
	for i := 0; i < w*h && i < len(gray); i++ {
		pixels[i] = float64(gray[i])
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := y*w + x
			oldVal := pixels[idx]
			newVal := 255.0
			if oldVal < 128 {
				newVal = 0.0
			}
			err := oldVal - newVal
			pixels[idx] = newVal

			if x+1 < w {
				pixels[idx+1] += err * 7 / 16
			}
			if y+1 < h {
				if x > 0 {
					pixels[(y+1)*w+(x-1)] += err * 3 / 16
				}
				pixels[(y+1)*w+x] += err * 5 / 16
				if x+1 < w {
					pixels[(y+1)*w+(x+1)] += err * 1 / 16
				}
			}

			if newVal == 0 {
				out[y*rowBytes+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out
}

package raster

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"regexp"
	"strings"

	"golang.org/x/image/draw"

	"eink_backend/core"
)

var dataURIPrefix = regexp.MustCompile(`^data:image/[a-zA-Z0-9.+-]+;base64,`)

// ImageToBitmap decodes an arbitrary source image (PNG, JPEG or GIF),
// resizes it to the display dimensions with cover/center-crop semantics,
// converts it to grayscale and dithers it into a packed 1-bit bitmap.
func ImageToBitmap(imageBytes []byte) ([]byte, error) {
	if len(imageBytes) == 0 {
		return nil, fmt.Errorf("raster: %w: empty input", core.ErrImageDecodeFailed)
	}

	img, _, err := image.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		return nil, fmt.Errorf("raster: %w: %v", core.ErrImageDecodeFailed, err)
	}

	gray := coverGrayscale(img, DisplayW, DisplayH)
	return DitherToBitmap(gray.Pix, DisplayW, DisplayH), nil
}

// Base64ToBitmap strips a data-URI prefix from user-uploaded image data,
// decodes the base64 payload and delegates to ImageToBitmap.
func Base64ToBitmap(dataURI string) ([]byte, error) {
	cleaned := dataURIPrefix.ReplaceAllString(strings.TrimSpace(dataURI), "")
	raw, err := base64.StdEncoding.DecodeString(cleaned)
	if err != nil {
		// Uploads from some clients omit the padding.
		raw, err = base64.RawStdEncoding.DecodeString(cleaned)
		if err != nil {
			return nil, fmt.Errorf("raster: %w: invalid base64: %v", core.ErrImageDecodeFailed, err)
		}
	}
	return ImageToBitmap(raw)
}

// coverGrayscale scales img to fill w x h completely, cropping the
// overflow equally on both sides, and returns the grayscale result.
// High-quality CatmullRom resampling keeps the midtones the dither
// stage depends on.
func coverGrayscale(img image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))

	b := img.Bounds()
	srcW, srcH := b.Dx(), b.Dy()
	if srcW == 0 || srcH == 0 {
		return dst
	}

	// Pick the largest centered source window with the target aspect ratio.
	srcRect := b
	if srcW*h > w*srcH {
		// Source is wider than the target: crop left and right.
		cropW := srcH * w / h
		x0 := b.Min.X + (srcW-cropW)/2
		srcRect = image.Rect(x0, b.Min.Y, x0+cropW, b.Max.Y)
	} else if srcW*h < w*srcH {
		// Source is taller than the target: crop top and bottom.
		cropH := srcW * h / w
		y0 := b.Min.Y + (srcH-cropH)/2
		srcRect = image.Rect(b.Min.X, y0, b.Max.X, y0+cropH)
	}

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, srcRect, draw.Src, nil)
	return dst
}

package raster

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// TestDitherToBitmap_OutputLength verifies the packed length invariant
// ceil(w/8)*h for dimensions beyond the display target.
func TestDitherToBitmap_OutputLength(t *testing.T) {
	tests := []struct {
		w, h, want int
	}{
		{DisplayW, DisplayH, BitmapBytes},
		{1, 1, 1},
		{8, 1, 1},
		{9, 1, 2},
		{7, 3, 3},
		{100, 50, 13 * 50},
		{296, 128, 4736},
	}

	for _, tt := range tests {
		gray := make([]uint8, tt.w*tt.h)
		got := DitherToBitmap(gray, tt.w, tt.h)
		if len(got) != tt.want {
			t.Errorf("DitherToBitmap(%dx%d) length = %d, want %d", tt.w, tt.h, len(got), tt.want)
		}
	}
}

func TestDitherToBitmap_AllBlack(t *testing.T) {
	gray := make([]uint8, DisplayW*DisplayH) // all zero = black
	out := DitherToBitmap(gray, DisplayW, DisplayH)
	for i, b := range out {
		if b != 0xFF {
			t.Fatalf("byte %d = %#x, want 0xFF for all-black input", i, b)
		}
	}
}

func TestDitherToBitmap_AllWhite(t *testing.T) {
	gray := make([]uint8, DisplayW*DisplayH)
	for i := range gray {
		gray[i] = 255
	}
	out := DitherToBitmap(gray, DisplayW, DisplayH)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want 0 for all-white input", i, b)
		}
	}
}

// TestDitherToBitmap_MidGray verifies error diffusion produces a mix of
// black and white rather than a flat field.
func TestDitherToBitmap_MidGray(t *testing.T) {
	gray := make([]uint8, DisplayW*DisplayH)
	for i := range gray {
		gray[i] = 128
	}
	out := DitherToBitmap(gray, DisplayW, DisplayH)

	black := 0
	for _, b := range out {
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				black++
			}
		}
	}
	total := DisplayW * DisplayH
	if black == 0 || black == total {
		t.Fatalf("mid-gray dither produced %d/%d black pixels, expected a mix", black, total)
	}
}

func TestDitherToBitmap_Deterministic(t *testing.T) {
	gray := make([]uint8, DisplayW*DisplayH)
	for i := range gray {
		gray[i] = uint8(i % 251)
	}
	a := DitherToBitmap(gray, DisplayW, DisplayH)
	b := DitherToBitmap(gray, DisplayW, DisplayH)
	if !bytes.Equal(a, b) {
		t.Fatal("identical inputs produced different bitmaps")
	}
}

// TestBitmapToPNG_RoundTripIsOneBit dithers a gradient, unpacks it to PNG
// and verifies no gray values appear.
func TestBitmapToPNG_RoundTripIsOneBit(t *testing.T) {
	gray := make([]uint8, DisplayW*DisplayH)
	for y := 0; y < DisplayH; y++ {
		for x := 0; x < DisplayW; x++ {
			gray[y*DisplayW+x] = uint8(x * 255 / DisplayW)
		}
	}
	packed := DitherToBitmap(gray, DisplayW, DisplayH)

	pngBytes, err := BitmapToPNG(packed)
	if err != nil {
		t.Fatalf("BitmapToPNG: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		t.Fatalf("decoding preview PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != DisplayW || b.Dy() != DisplayH {
		t.Fatalf("preview is %dx%d, want %dx%d", b.Dx(), b.Dy(), DisplayW, DisplayH)
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y
			if g != 0 && g != 255 {
				t.Fatalf("pixel (%d,%d) = %d, preview must be strictly black/white", x, y, g)
			}
		}
	}
}

func TestBitmapToPNG_RejectsWrongLength(t *testing.T) {
	if _, err := BitmapToPNG(make([]byte, 10)); err == nil {
		t.Fatal("expected error for short bitmap")
	}
}

func TestImageToBitmap_FixedLength(t *testing.T) {
	// Encode a small gradient PNG and run it through the full path.
	src := image.NewGray(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			src.SetGray(x, y, color.Gray{Y: uint8((x + y) * 2)})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}

	bitmap, err := ImageToBitmap(buf.Bytes())
	if err != nil {
		t.Fatalf("ImageToBitmap: %v", err)
	}
	if len(bitmap) != BitmapBytes {
		t.Fatalf("bitmap length = %d, want %d", len(bitmap), BitmapBytes)
	}
}

func TestImageToBitmap_RejectsGarbage(t *testing.T) {
	if _, err := ImageToBitmap([]byte("not an image")); err == nil {
		t.Fatal("expected decode error")
	}
	if _, err := ImageToBitmap(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestBase64ToBitmap_StripsDataURI(t *testing.T) {
	src := image.NewGray(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		t.Fatal(err)
	}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	bitmap, err := Base64ToBitmap(uri)
	if err != nil {
		t.Fatalf("Base64ToBitmap: %v", err)
	}
	if len(bitmap) != BitmapBytes {
		t.Fatalf("bitmap length = %d, want %d", len(bitmap), BitmapBytes)
	}
}

func TestBase64ToBitmap_RejectsInvalid(t *testing.T) {
	if _, err := Base64ToBitmap("data:image/png;base64,@@@not-base64@@@"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
}

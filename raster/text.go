package raster

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Text layout constants matching the device's readable line length.
const (
	wrapWidth  = 30 // characters per line, greedy wrap
	lineHeight = 18 // pixels between baselines
	topMargin  = 20 // minimum baseline of the first line
)

// TextToBitmap renders text as word-wrapped monochrome lines, vertically
// centered on a white canvas, and dithers the result into a packed 1-bit
// bitmap. Used for quote-only views and as the fallback when image
// generation fails.
func TextToBitmap(text string) []byte {
	lines := wrapText(text, wrapWidth)

	canvas := image.NewGray(image.Rect(0, 0, DisplayW, DisplayH))
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	face := basicfont.Face7x13
	startY := (DisplayH - len(lines)*lineHeight) / 2
	if startY < topMargin {
		startY = topMargin
	}

	for i, line := range lines {
		width := font.MeasureString(face, line).Ceil()
		x := (DisplayW - width) / 2
		if x < 0 {
			x = 0
		}
		d := font.Drawer{
			Dst:  canvas,
			Src:  image.NewUniform(color.Black),
			Face: face,
			Dot:  fixed.P(x, startY+i*lineHeight),
		}
		d.DrawString(line)
	}

	return DitherToBitmap(canvas.Pix, DisplayW, DisplayH)
}

// wrapText splits text into lines of at most limit characters using
// greedy word wrapping. Words longer than the limit get a line of
// their own rather than being broken.
func wrapText(text string, limit int) []string {
	var lines []string
	var line string
	for _, w := range strings.Fields(text) {
		if len(line)+len(w)+1 > limit && len(line) > 0 {
			lines = append(lines, line)
			line = w
		} else if line == "" {
			line = w
		} else {
			line = line + " " + w
		}
	}
	if line != "" {
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	return lines
}

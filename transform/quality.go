package transform

import (
	"image/png"
	"math"
)

const (
	defaultJPEGQuality = 90
	defaultWEBPQuality = 85
)

// jpegQuality maps the spec's [0,1] quality to the encoder's 1-100 scale.
// Zero means unset and takes the default.
func jpegQuality(q float64) int {
	if q == 0 {
		return defaultJPEGQuality
	}
	n := int(math.Round(q * 100))
	if n < 1 {
		n = 1
	}
	if n > 100 {
		n = 100
	}
	return n
}

// pngCompression is a binary choice: max compression unless the caller asked
// for any quality above zero. (1-q)*9 >= 9 only holds at q == 0.
func pngCompression(q float64) png.CompressionLevel {
	if (1-q)*9 >= 9 {
		return png.BestCompression
	}
	return png.NoCompression
}

// webpQuality maps [0,1] to 0-100, defaulting to 85 when unset.
func webpQuality(q float64) float32 {
	if q == 0 {
		return defaultWEBPQuality
	}
	n := math.Round(q * 100)
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return float32(n)
}

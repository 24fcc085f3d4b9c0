package transform

import (
	"image/png"
	"testing"
)

func TestJPEGQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{0, 90},
		{0.5, 50},
		{1.0, 100},
		{0.004, 1},
		{2.0, 100},
	}
	for _, tt := range tests {
		if got := jpegQuality(tt.in); got != tt.want {
			t.Errorf("jpegQuality(%g) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPNGCompression(t *testing.T) {
	if got := pngCompression(0); got != png.BestCompression {
		t.Errorf("pngCompression(0) = %v, want BestCompression", got)
	}
	if got := pngCompression(0.5); got != png.NoCompression {
		t.Errorf("pngCompression(0.5) = %v, want NoCompression", got)
	}
	if got := pngCompression(1.0); got != png.NoCompression {
		t.Errorf("pngCompression(1.0) = %v, want NoCompression", got)
	}
}

func TestWEBPQuality(t *testing.T) {
	tests := []struct {
		in   float64
		want float32
	}{
		{0, 85},
		{0.5, 50},
		{1.0, 100},
		{1.5, 100},
	}
	for _, tt := range tests {
		if got := webpQuality(tt.in); got != tt.want {
			t.Errorf("webpQuality(%g) = %g, want %g", tt.in, got, tt.want)
		}
	}
}

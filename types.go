// Package variants defines the core value types for the image variant
// pipeline: variant specifications, output formats, and the deterministic
// ordering keys the orchestration layer relies on.
package variants

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ImageFormat selects the encoding of a produced variant.
type ImageFormat string

const (
	// FormatDefault keeps the source image's format.
	FormatDefault ImageFormat = "default"
	FormatJPEG    ImageFormat = "jpeg"
	FormatPNG     ImageFormat = "png"
	FormatWEBP    ImageFormat = "webp"
)

// Valid reports whether f is one of the supported formats. The empty string
// is accepted as an alias for FormatDefault.
func (f ImageFormat) Valid() bool {
	switch f {
	case "", FormatDefault, FormatJPEG, FormatPNG, FormatWEBP:
		return true
	}
	return false
}

// VariantSpec describes one derived image to produce from an original.
// It is an immutable value; Name must be unique within a variant set.
//
// Width and Height are target pixel dimensions (0 = unset). Ratio is the
// target width/height aspect ratio (0 = unset). Rotation is in degrees and
// only 0, 90, 180 and 270 are honored. Quality is in [0,1] where 0 selects
// the per-format default.
type VariantSpec struct {
	Name           string      `json:"name"`
	Width          int         `json:"width,omitempty"`
	Height         int         `json:"height,omitempty"`
	Ratio          float64     `json:"ratio,omitempty"`
	Rotation       int         `json:"rotation,omitempty"`
	FlipHorizontal bool        `json:"flip_horizontal,omitempty"`
	FlipVertical   bool        `json:"flip_vertical,omitempty"`
	Quality        float64     `json:"quality,omitempty"`
	Format         ImageFormat `json:"format,omitempty"`
}

// Key returns a stable ordering key for the spec.
//
// The orchestration workflow sorts specs by this key so that re-execution
// after a crash replays activities in the same order. The key is a content
// hash over every field, so it is stable across processes and releases,
// unlike ordering by input position or by a runtime-dependent hash.
func (s VariantSpec) Key() string {
	canonical := fmt.Sprintf("%s|%d|%d|%g|%d|%t|%t|%g|%s",
		s.Name, s.Width, s.Height, s.Ratio, s.Rotation,
		s.FlipHorizontal, s.FlipVertical, s.Quality, s.Format)
	h := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(h[:])
}

// Validate checks the spec for values the pipeline cannot process at all.
// Out-of-range rotations are deliberately NOT rejected here; the transform
// engine treats them as a no-op with a warning.
func (s VariantSpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("variant spec name is required")
	}
	if s.Width < 0 || s.Height < 0 {
		return fmt.Errorf("variant spec %q: negative dimensions", s.Name)
	}
	if s.Ratio < 0 {
		return fmt.Errorf("variant spec %q: negative ratio", s.Name)
	}
	if s.Quality < 0 || s.Quality > 1 {
		return fmt.Errorf("variant spec %q: quality %g outside [0,1]", s.Name, s.Quality)
	}
	if !s.Format.Valid() {
		return fmt.Errorf("variant spec %q: unknown format %q", s.Name, s.Format)
	}
	return nil
}

// ValidateSpecs validates a whole spec list and enforces name uniqueness
// within the future variant set.
func ValidateSpecs(specs []VariantSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no variant specs provided")
	}
	seen := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if _, dup := seen[s.Name]; dup {
			return fmt.Errorf("duplicate variant spec name %q", s.Name)
		}
		seen[s.Name] = struct{}{}
	}
	return nil
}

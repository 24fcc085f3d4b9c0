package variants

import (
	"testing"
)

func TestVariantSpecKeyDeterministic(t *testing.T) {
	a := VariantSpec{Name: "thumb", Width: 300, Format: FormatJPEG}
	b := VariantSpec{Name: "thumb", Width: 300, Format: FormatJPEG}
	if a.Key() != b.Key() {
		t.Error("equal specs produced different keys")
	}

	c := VariantSpec{Name: "thumb", Width: 301, Format: FormatJPEG}
	if a.Key() == c.Key() {
		t.Error("different specs produced the same key")
	}
}

func TestVariantSpecValidate(t *testing.T) {
	valid := []VariantSpec{
		{Name: "thumb", Width: 300},
		{Name: "exact", Width: 10, Height: 10, Quality: 1},
		{Name: "weird-rotation", Width: 10, Rotation: 45},
		{Name: "webp", Format: FormatWEBP},
	}
	for _, s := range valid {
		if err := s.Validate(); err != nil {
			t.Errorf("Validate(%+v) = %v, want nil", s, err)
		}
	}

	invalid := []VariantSpec{
		{},
		{Name: "neg", Width: -1},
		{Name: "ratio", Ratio: -2},
		{Name: "q", Quality: 1.1},
		{Name: "fmt", Format: "bmp"},
	}
	for _, s := range invalid {
		if err := s.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", s)
		}
	}
}

func TestValidateSpecsUniqueNames(t *testing.T) {
	err := ValidateSpecs([]VariantSpec{
		{Name: "thumb", Width: 100},
		{Name: "thumb", Width: 200},
	})
	if err == nil {
		t.Fatal("duplicate names accepted")
	}
}

package variants

import (
	"strings"
	"testing"
)

func TestIDPrefixes(t *testing.T) {
	cases := map[string]func() string{
		"set_": NewVariantSetID,
		"res_": NewVariantResultID,
		"att_": NewAttachmentID,
	}
	for prefix, gen := range cases {
		id := gen()
		if !strings.HasPrefix(id, prefix) {
			t.Errorf("id %s missing prefix %s", id, prefix)
		}
		if id != strings.ToLower(id) {
			t.Errorf("id %s is not lowercase", id)
		}
		if len(id) != len(prefix)+26 {
			t.Errorf("id %s has unexpected length %d", id, len(id))
		}
	}
}

func TestIDsUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		id := NewVariantSetID()
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

package variants

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/superfly/variants/database"
)

type fakeSetStore struct {
	sets    map[string]*database.VariantSet
	results map[string][]database.VariantResult
}

func newFakeSetStore() *fakeSetStore {
	return &fakeSetStore{sets: map[string]*database.VariantSet{}, results: map[string][]database.VariantResult{}}
}

func (f *fakeSetStore) CreateVariantSet(_ context.Context, set *database.VariantSet) error {
	f.sets[set.ID] = set
	return nil
}

func (f *fakeSetStore) GetVariantSet(_ context.Context, id string) (*database.VariantSet, error) {
	return f.sets[id], nil
}

func (f *fakeSetStore) ListVariantResults(_ context.Context, setID string) ([]database.VariantResult, error) {
	return f.results[setID], nil
}

type fakeBlobStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeBlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	f.objects[key] = data
	f.types[key] = contentType
	return nil
}

type fakeStarter struct {
	field  string
	setID  string
	specs  []VariantSpec
	err    error
	called int
}

func (f *fakeStarter) StartVariantProcessing(_ context.Context, field, setID string, specs []VariantSpec) (string, error) {
	f.called++
	f.field, f.setID, f.specs = field, setID, specs
	if f.err != nil {
		return "", f.err
	}
	return "variant-workflow-" + field + "-" + setID + "-123", nil
}

func pngPayload(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	return buf.Bytes()
}

func TestCreateVariantSet(t *testing.T) {
	store := newFakeSetStore()
	blobs := newFakeBlobStore()
	starter := &fakeStarter{}
	svc := NewService(store, blobs, starter, nil)

	set, workflowID, err := svc.CreateVariantSet(context.Background(), Upload{
		Filename: "photo.png",
		Data:     pngPayload(t),
		Field:    "profile_picture",
		Kind:     "user",
		KindID:   "usr_1",
		Specs:    []VariantSpec{{Name: "thumb", Width: 100}},
	})
	if err != nil {
		t.Fatalf("CreateVariantSet: %v", err)
	}
	if !strings.HasPrefix(set.ID, "set_") {
		t.Errorf("set id = %s, want set_ prefix", set.ID)
	}
	if set.OriginalContentType != "image/png" {
		t.Errorf("content type = %s, want image/png", set.OriginalContentType)
	}
	if !strings.HasPrefix(set.OriginalKey, "pictures/originals/att_") {
		t.Errorf("original key = %s", set.OriginalKey)
	}
	if !strings.HasSuffix(set.OriginalKey, "_photo.png") {
		t.Errorf("original key = %s, want filename suffix", set.OriginalKey)
	}
	if _, ok := blobs.objects[set.OriginalKey]; !ok {
		t.Error("original blob not stored")
	}
	if store.sets[set.ID] == nil {
		t.Error("set row not created")
	}
	if starter.called != 1 || starter.setID != set.ID || starter.field != "profile_picture" {
		t.Errorf("starter = %+v", starter)
	}
	if workflowID == "" {
		t.Error("empty workflow id")
	}
}

func TestCreateVariantSetRejectsOversized(t *testing.T) {
	svc := NewService(newFakeSetStore(), newFakeBlobStore(), &fakeStarter{}, nil)

	_, _, err := svc.CreateVariantSet(context.Background(), Upload{
		Filename: "big.png",
		Data:     make([]byte, MaxUploadSize+1),
		Specs:    []VariantSpec{{Name: "thumb", Width: 100}},
	})
	if !errors.Is(err, ErrUploadTooLarge) {
		t.Fatalf("err = %v, want ErrUploadTooLarge", err)
	}
}

func TestCreateVariantSetRejectsNonImage(t *testing.T) {
	blobs := newFakeBlobStore()
	starter := &fakeStarter{}
	svc := NewService(newFakeSetStore(), blobs, starter, nil)

	_, _, err := svc.CreateVariantSet(context.Background(), Upload{
		Filename: "notes.txt",
		Data:     []byte("just some text"),
		Specs:    []VariantSpec{{Name: "thumb", Width: 100}},
	})
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("err = %v, want ErrUnsupportedType", err)
	}
	if len(blobs.objects) != 0 {
		t.Error("rejected upload was stored")
	}
	if starter.called != 0 {
		t.Error("workflow started for rejected upload")
	}
}

func TestCreateVariantSetRejectsBadSpecs(t *testing.T) {
	svc := NewService(newFakeSetStore(), newFakeBlobStore(), &fakeStarter{}, nil)
	payload := pngPayload(t)

	cases := map[string][]VariantSpec{
		"empty list":     nil,
		"duplicate name": {{Name: "a", Width: 10}, {Name: "a", Width: 20}},
		"bad quality":    {{Name: "a", Quality: 1.5}},
	}
	for name, specs := range cases {
		if _, _, err := svc.CreateVariantSet(context.Background(), Upload{
			Filename: "p.png", Data: payload, Specs: specs,
		}); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestOriginalKeySanitizes(t *testing.T) {
	key := originalKey("att_1", "../../etc/pass wd.png")
	if strings.Contains(key, "..") || strings.Contains(key, " ") {
		t.Errorf("key not sanitized: %s", key)
	}
	if key != "pictures/originals/att_1_pass-wd.png" {
		t.Errorf("key = %s", key)
	}
}

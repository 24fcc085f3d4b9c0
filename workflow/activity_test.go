package workflow

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/superfly/variants"
	"github.com/superfly/variants/database"
	"github.com/superfly/variants/transform"
)

// memBlobStore is an in-memory BlobStore.
type memBlobStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	getErrs int
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErrs > 0 {
		m.getErrs--
		return nil, fmt.Errorf("injected storage failure")
	}
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return data, nil
}

func (m *memBlobStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	m.types[key] = contentType
	return nil
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func sourceJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatalf("encode source: %v", err)
	}
	return buf.Bytes()
}

func newTestActivities(t *testing.T) (*Activities, *database.DB, *memBlobStore) {
	t.Helper()
	cfg := database.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "variants.db")
	db, err := database.New(cfg)
	if err != nil {
		t.Fatalf("database.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	blobs := newMemBlobStore()
	acts := NewActivities(db, blobs, transform.NewEngine(discardLogger()), nil, discardLogger())
	return acts, db, blobs
}

func seedSet(t *testing.T, db *database.DB, blobs *memBlobStore, setID string, src []byte) {
	t.Helper()
	key := "pictures/originals/" + setID + ".jpg"
	if err := blobs.Put(context.Background(), key, src, "image/jpeg"); err != nil {
		t.Fatalf("seed blob: %v", err)
	}
	if err := db.CreateVariantSet(context.Background(), &database.VariantSet{
		ID:                  setID,
		OriginalKey:         key,
		OriginalContentType: "image/jpeg",
	}); err != nil {
		t.Fatalf("seed set: %v", err)
	}
}

func TestProcessVariantProducesResult(t *testing.T) {
	acts, db, blobs := newTestActivities(t)
	seedSet(t, db, blobs, "set_p", sourceJPEG(t, 1600, 900))
	ctx := context.Background()

	id, err := acts.ProcessVariant(ctx, ProcessVariantInput{
		VariantSetID: "set_p",
		Spec:         variants.VariantSpec{Name: "thumb", Width: 300},
	})
	if err != nil {
		t.Fatalf("ProcessVariant: %v", err)
	}

	res, err := db.GetVariantResultByName(ctx, "set_p", "thumb")
	if err != nil {
		t.Fatalf("GetVariantResultByName: %v", err)
	}
	if res == nil || res.ID != id {
		t.Fatalf("result row = %+v, want id %s", res, id)
	}
	if res.Width != 300 || res.Height != 169 {
		t.Errorf("result size = %dx%d, want 300x169", res.Width, res.Height)
	}
	if res.Format != "jpeg" {
		t.Errorf("result format = %s, want jpeg", res.Format)
	}

	data, err := blobs.Get(ctx, res.StorageKey)
	if err != nil {
		t.Fatalf("variant blob missing: %v", err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode variant: %v", err)
	}
	if format != "jpeg" || cfg.Width != 300 || cfg.Height != 169 {
		t.Errorf("stored variant = %s %dx%d, want jpeg 300x169", format, cfg.Width, cfg.Height)
	}
}

func TestProcessVariantIdempotentUnderRetry(t *testing.T) {
	acts, db, blobs := newTestActivities(t)
	seedSet(t, db, blobs, "set_r", sourceJPEG(t, 800, 600))
	ctx := context.Background()
	input := ProcessVariantInput{
		VariantSetID: "set_r",
		Spec:         variants.VariantSpec{Name: "thumb", Width: 200},
	}

	first, err := acts.ProcessVariant(ctx, input)
	if err != nil {
		t.Fatalf("first invocation: %v", err)
	}
	second, err := acts.ProcessVariant(ctx, input)
	if err != nil {
		t.Fatalf("second invocation: %v", err)
	}
	if first != second {
		t.Errorf("retry returned %s, want original result id %s", second, first)
	}

	results, err := db.ListVariantResults(ctx, "set_r")
	if err != nil {
		t.Fatalf("ListVariantResults: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d result rows after retry, want 1", len(results))
	}
}

func TestProcessVariantMissingSet(t *testing.T) {
	acts, _, _ := newTestActivities(t)

	_, err := acts.ProcessVariant(context.Background(), ProcessVariantInput{
		VariantSetID: "set_nope",
		Spec:         variants.VariantSpec{Name: "thumb", Width: 100},
	})
	if err == nil {
		t.Fatal("expected error for missing set")
	}
}

func TestWorkflowEndToEnd(t *testing.T) {
	acts, db, blobs := newTestActivities(t)
	src := sourceJPEG(t, 1600, 900)
	seedSet(t, db, blobs, "set_e2e", src)

	// First Get fails once; the retry policy should absorb it.
	blobs.getErrs = 1

	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()
	wfs := NewWorkflows(DefaultConfig())
	env.RegisterWorkflowWithOptions(wfs.ProcessVariants, workflow.RegisterOptions{Name: "ProcessVariants"})
	env.RegisterActivityWithOptions(acts.ProcessVariant, activity.RegisterOptions{Name: "ProcessVariant"})

	env.ExecuteWorkflow("ProcessVariants", ProcessVariantsInput{
		VariantSetID: "set_e2e",
		Specs: []variants.VariantSpec{
			{Name: "thumb", Width: 300},
			{Name: "web", Width: 800, Format: variants.FormatWEBP},
		},
	})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}

	var resultIDs []string
	if err := env.GetWorkflowResult(&resultIDs); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(resultIDs) != 2 {
		t.Fatalf("got %d result ids, want 2", len(resultIDs))
	}

	ctx := context.Background()
	results, err := db.ListVariantResults(ctx, "set_e2e")
	if err != nil {
		t.Fatalf("ListVariantResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d result rows, want 2", len(results))
	}
	for _, res := range results {
		if _, err := blobs.Get(ctx, res.StorageKey); err != nil {
			t.Errorf("variant blob %s missing: %v", res.StorageKey, err)
		}
	}
}

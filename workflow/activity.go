package workflow

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/superfly/variants"
	"github.com/superfly/variants/database"
	"github.com/superfly/variants/perf"
	"github.com/superfly/variants/transform"
)

// BlobStore is the slice of the storage gateway the activities need.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// ResultStore is the slice of the database the activities need.
type ResultStore interface {
	GetVariantSet(ctx context.Context, id string) (*database.VariantSet, error)
	InsertVariantResult(ctx context.Context, res *database.VariantResult) (bool, error)
	GetVariantResultByName(ctx context.Context, setID, name string) (*database.VariantResult, error)
}

// EmailSender delivers notification emails.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Activities holds the activity implementations and their dependencies.
type Activities struct {
	Store  ResultStore
	Blobs  BlobStore
	Engine *transform.Engine
	Sender EmailSender
	Log    logrus.FieldLogger
}

// NewActivities wires the activity set. A nil logger discards.
func NewActivities(store ResultStore, blobs BlobStore, engine *transform.Engine, sender EmailSender, logger logrus.FieldLogger) *Activities {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Activities{Store: store, Blobs: blobs, Engine: engine, Sender: sender, Log: logger}
}

// ProcessVariant produces one variant and returns its result row id.
//
// The activity runs under at-least-once semantics, so every step tolerates a
// rerun: the variant blob key is derived from (set, spec name) and simply
// overwritten, and the result row insert is conflict-ignored on the same
// pair. A retry after a crash between blob write and row insert converges on
// a single row.
func (a *Activities) ProcessVariant(ctx context.Context, input ProcessVariantInput) (string, error) {
	logger := a.Log.WithFields(logrus.Fields{
		"variant_set_id": input.VariantSetID,
		"spec":           input.Spec.Name,
	})

	set, err := a.Store.GetVariantSet(ctx, input.VariantSetID)
	if err != nil {
		return "", err
	}
	if set == nil {
		return "", fmt.Errorf("variant set %s not found", input.VariantSetID)
	}

	// A previous attempt may have finished the whole job before its
	// completion was recorded.
	if existing, err := a.Store.GetVariantResultByName(ctx, input.VariantSetID, input.Spec.Name); err != nil {
		return "", err
	} else if existing != nil {
		logger.WithField("result_id", existing.ID).Info("variant already produced, skipping")
		return existing.ID, nil
	}

	original, err := a.Blobs.Get(ctx, set.OriginalKey)
	if err != nil {
		return "", fmt.Errorf("failed to load original: %w", err)
	}

	timer := perf.Start("transform", logger)
	res, err := a.Engine.Transform(original, input.Spec)
	perf.ObserveTransform(string(input.Spec.Format), timer.Stop(), err)
	if err != nil {
		return "", err
	}

	key := variantKey(input.VariantSetID, input.Spec.Name, res.Format)
	if err := a.Blobs.Put(ctx, key, res.Data, res.MIMEType); err != nil {
		return "", fmt.Errorf("failed to store variant: %w", err)
	}

	result := &database.VariantResult{
		ID:           variants.NewVariantResultID(),
		VariantSetID: input.VariantSetID,
		Name:         input.Spec.Name,
		StorageKey:   key,
		Width:        res.Width,
		Height:       res.Height,
		Format:       string(res.Format),
		Quality:      input.Spec.Quality,
	}
	inserted, err := a.Store.InsertVariantResult(ctx, result)
	if err != nil {
		return "", err
	}
	if !inserted {
		// Lost a race with a concurrent attempt; its row wins.
		existing, err := a.Store.GetVariantResultByName(ctx, input.VariantSetID, input.Spec.Name)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return "", fmt.Errorf("variant result %s/%s vanished after conflict", input.VariantSetID, input.Spec.Name)
		}
		return existing.ID, nil
	}

	logger.WithFields(logrus.Fields{
		"result_id": result.ID,
		"key":       key,
		"size":      fmt.Sprintf("%dx%d", res.Width, res.Height),
		"format":    res.Format,
	}).Info("variant produced")

	return result.ID, nil
}

// SendEmail delivers one notification email.
func (a *Activities) SendEmail(ctx context.Context, input SendEmailInput) error {
	timer := perf.Start("send_email", a.Log.WithField("to", input.To))
	defer timer.StopWithThreshold(5 * time.Second)
	return a.Sender.Send(ctx, input.To, input.Subject, input.Body)
}

// variantKey derives the blob key for a produced variant. The key is a pure
// function of (set, spec name) so a retried attempt overwrites its own
// earlier write instead of orphaning a blob.
func variantKey(setID, specName string, format variants.ImageFormat) string {
	return fmt.Sprintf("image-variants/%s/%s.%s", setID, specName, extension(format))
}

func extension(format variants.ImageFormat) string {
	if format == variants.FormatJPEG {
		return "jpg"
	}
	return string(format)
}

package variants

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/superfly/variants/database"
)

// MaxUploadSize is the largest accepted original image.
const MaxUploadSize = 10 * 1024 * 1024

// ErrUploadTooLarge rejects originals above MaxUploadSize.
var ErrUploadTooLarge = fmt.Errorf("upload exceeds %d bytes", MaxUploadSize)

// ErrUnsupportedType rejects originals that are not JPEG, PNG or WEBP.
var ErrUnsupportedType = fmt.Errorf("unsupported image type")

// BlobStore is the slice of the storage gateway the service needs.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// SetStore is the slice of the database the service needs.
type SetStore interface {
	CreateVariantSet(ctx context.Context, set *database.VariantSet) error
	GetVariantSet(ctx context.Context, id string) (*database.VariantSet, error)
	ListVariantResults(ctx context.Context, setID string) ([]database.VariantResult, error)
}

// WorkflowStarter launches durable variant generation runs.
type WorkflowStarter interface {
	StartVariantProcessing(ctx context.Context, field, setID string, specs []VariantSpec) (string, error)
}

// Upload is one original image submitted for variant generation.
type Upload struct {
	// Filename is the caller-supplied name, used in the storage key
	Filename string

	// Data is the full image payload
	Data []byte

	// Field names the owning attachment slot, e.g. "profile_picture";
	// it becomes part of the workflow id
	Field string

	// Kind and KindID correlate the set with an owning entity
	Kind   string
	KindID string

	// Specs are the variants to produce
	Specs []VariantSpec
}

// Service accepts original uploads and starts their variant generation.
type Service struct {
	store   SetStore
	blobs   BlobStore
	starter WorkflowStarter
	log     logrus.FieldLogger
}

// NewService wires the upload service. A nil logger discards.
func NewService(store SetStore, blobs BlobStore, starter WorkflowStarter, logger logrus.FieldLogger) *Service {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Service{store: store, blobs: blobs, starter: starter, log: logger}
}

// CreateVariantSet validates and stores an original image, records its
// variant set and starts the generation workflow. It returns the new set and
// the started workflow id.
func (s *Service) CreateVariantSet(ctx context.Context, up Upload) (*database.VariantSet, string, error) {
	if len(up.Data) == 0 {
		return nil, "", fmt.Errorf("empty upload")
	}
	if len(up.Data) > MaxUploadSize {
		return nil, "", ErrUploadTooLarge
	}
	if err := ValidateSpecs(up.Specs); err != nil {
		return nil, "", err
	}

	mtype := mimetype.Detect(up.Data)
	if !isSupportedUpload(mtype.String()) {
		return nil, "", fmt.Errorf("%w: %s", ErrUnsupportedType, mtype.String())
	}

	key := originalKey(NewAttachmentID(), up.Filename)
	if err := s.blobs.Put(ctx, key, up.Data, mtype.String()); err != nil {
		return nil, "", fmt.Errorf("failed to store original: %w", err)
	}

	set := &database.VariantSet{
		ID:                  NewVariantSetID(),
		OriginalKey:         key,
		OriginalContentType: mtype.String(),
		Kind:                up.Kind,
		KindID:              up.KindID,
	}
	if err := s.store.CreateVariantSet(ctx, set); err != nil {
		return nil, "", err
	}

	workflowID, err := s.starter.StartVariantProcessing(ctx, up.Field, set.ID, up.Specs)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start processing: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"variant_set_id": set.ID,
		"workflow_id":    workflowID,
		"original_key":   key,
		"content_type":   set.OriginalContentType,
		"specs":          len(up.Specs),
	}).Info("variant set created")

	return set, workflowID, nil
}

// GetVariantSet returns a set and its produced results so far.
func (s *Service) GetVariantSet(ctx context.Context, id string) (*database.VariantSet, []database.VariantResult, error) {
	set, err := s.store.GetVariantSet(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if set == nil {
		return nil, nil, nil
	}
	results, err := s.store.ListVariantResults(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return set, results, nil
}

func isSupportedUpload(mime string) bool {
	switch mime {
	case "image/jpeg", "image/png", "image/webp":
		return true
	}
	return false
}

// originalKey places uploads under a shared prefix, named by attachment id
// plus a sanitized filename so keys stay readable in bucket listings.
func originalKey(attachmentID, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		}
		return '-'
	}, name)
	if name == "" || name == "." {
		name = "upload"
	}
	return fmt.Sprintf("pictures/originals/%s_%s", attachmentID, name)
}

// Package workflow contains the durable orchestration for variant
// generation. One workflow instance per generation request walks the spec
// list in a deterministic order and invokes the transform activity once per
// spec, so a crashed worker resumes mid-list instead of restarting.
package workflow

import (
	"fmt"
	"sort"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/superfly/variants"
)

// TaskQueue is the queue both workers and starters use.
const TaskQueue = "variants"

// VariantProcessingFailedType is the application error type raised when a
// variant exhausts its retry budget. Results produced before the failure
// stay durably stored; there is no compensation.
const VariantProcessingFailedType = "VariantProcessingFailed"

// Config holds the retry and timeout policy values. They are policy
// constants, not architecture, so they stay tunable.
type Config struct {
	// TransformTimeout bounds a single transform activity attempt
	TransformTimeout time.Duration

	// EmailTimeout bounds a single email send attempt
	EmailTimeout time.Duration

	// MaxAttempts is the per-activity retry budget
	MaxAttempts int32
}

// DefaultConfig returns the standard policy values.
func DefaultConfig() Config {
	return Config{
		TransformTimeout: 5 * time.Minute,
		EmailTimeout:     10 * time.Second,
		MaxAttempts:      3,
	}
}

// ProcessVariantsInput starts one generation run.
type ProcessVariantsInput struct {
	VariantSetID string                 `json:"variantSetId"`
	Specs        []variants.VariantSpec `json:"specs"`
}

// ProcessVariantInput is one activity invocation.
type ProcessVariantInput struct {
	VariantSetID string               `json:"variantSetId"`
	Spec         variants.VariantSpec `json:"spec"`
}

// Workflows carries the policy config into workflow code. The config is
// fixed at worker start, so reading it inside workflow code is replay-safe.
type Workflows struct {
	cfg Config
}

// NewWorkflows returns workflow definitions bound to the given policy.
func NewWorkflows(cfg Config) *Workflows {
	return &Workflows{cfg: cfg}
}

// ProcessVariants produces every variant in the set and returns the result
// row ids in processed order.
//
// Specs are sorted by their content key before processing. The input order
// is caller-controlled and not durable; the sorted order is a pure function
// of the spec values, so replay after a crash walks the list identically.
func (w *Workflows) ProcessVariants(ctx workflow.Context, input ProcessVariantsInput) ([]string, error) {
	logger := workflow.GetLogger(ctx)

	specs := append([]variants.VariantSpec(nil), input.Specs...)
	sort.Slice(specs, func(i, j int) bool {
		return specs[i].Key() < specs[j].Key()
	})

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.TransformTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: w.cfg.MaxAttempts,
		},
	})

	resultIDs := make([]string, 0, len(specs))
	for _, spec := range specs {
		var resultID string
		err := workflow.ExecuteActivity(ctx, "ProcessVariant", ProcessVariantInput{
			VariantSetID: input.VariantSetID,
			Spec:         spec,
		}).Get(ctx, &resultID)
		if err != nil {
			logger.Error("variant processing exhausted retries",
				"variant_set_id", input.VariantSetID,
				"spec", spec.Name,
				"error", err)
			return nil, temporal.NewApplicationErrorWithCause(
				fmt.Sprintf("variant %q failed", spec.Name),
				VariantProcessingFailedType,
				err,
				spec.Name)
		}
		resultIDs = append(resultIDs, resultID)
	}

	logger.Info("variant set processed",
		"variant_set_id", input.VariantSetID,
		"count", len(resultIDs))
	return resultIDs, nil
}

// SendEmailInput is one notification request.
type SendEmailInput struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// SendEmail delivers one notification email through the send activity.
// Email sends are cheap and fast, so the attempt timeout is tight.
func (w *Workflows) SendEmail(ctx workflow.Context, input SendEmailInput) error {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: w.cfg.EmailTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: w.cfg.MaxAttempts,
		},
	})
	return workflow.ExecuteActivity(ctx, "SendEmail", input).Get(ctx, nil)
}

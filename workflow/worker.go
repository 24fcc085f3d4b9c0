package workflow

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/superfly/variants"
)

// Worker hosts the variant workflows and activities on the task queue.
type Worker struct {
	w worker.Worker
}

// NewWorker registers the workflow and activity set on a worker bound to
// the variants task queue.
func NewWorker(c client.Client, acts *Activities, cfg Config) *Worker {
	w := worker.New(c, TaskQueue, worker.Options{})

	wfs := NewWorkflows(cfg)
	w.RegisterWorkflowWithOptions(wfs.ProcessVariants, workflow.RegisterOptions{Name: "ProcessVariants"})
	w.RegisterWorkflowWithOptions(wfs.SendEmail, workflow.RegisterOptions{Name: "SendEmail"})
	w.RegisterActivityWithOptions(acts.ProcessVariant, activity.RegisterOptions{Name: "ProcessVariant"})
	w.RegisterActivityWithOptions(acts.SendEmail, activity.RegisterOptions{Name: "SendEmail"})

	return &Worker{w: w}
}

// Run blocks serving tasks until interruptCh fires or the client drops.
func (w *Worker) Run(interruptCh <-chan interface{}) error {
	return w.w.Run(interruptCh)
}

// Starter launches generation runs on the task queue.
type Starter struct {
	Client client.Client

	// now is swappable for tests
	now func() time.Time
}

// NewStarter returns a starter bound to the given client.
func NewStarter(c client.Client) *Starter {
	return &Starter{Client: c, now: time.Now}
}

// StartVariantProcessing launches a ProcessVariants run and returns its
// workflow id. The id embeds a millisecond timestamp so repeated requests
// for the same owner each get a fresh instance.
func (s *Starter) StartVariantProcessing(ctx context.Context, field, setID string, specs []variants.VariantSpec) (string, error) {
	now := s.now
	if now == nil {
		now = time.Now
	}
	workflowID := fmt.Sprintf("variant-workflow-%s-%s-%d", field, setID, now().UnixMilli())

	_, err := s.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "ProcessVariants", ProcessVariantsInput{
		VariantSetID: setID,
		Specs:        specs,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start variant workflow: %w", err)
	}
	return workflowID, nil
}

// StartEmail launches a SendEmail run.
func (s *Starter) StartEmail(ctx context.Context, input SendEmailInput) (string, error) {
	now := s.now
	if now == nil {
		now = time.Now
	}
	workflowID := fmt.Sprintf("email-workflow-%s-%d", input.To, now().UnixMilli())

	_, err := s.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: TaskQueue,
	}, "SendEmail", input)
	if err != nil {
		return "", fmt.Errorf("failed to start email workflow: %w", err)
	}
	return workflowID, nil
}

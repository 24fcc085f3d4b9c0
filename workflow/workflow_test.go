package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"testing"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/superfly/variants"
)

func newTestEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestWorkflowEnvironment()

	wfs := NewWorkflows(DefaultConfig())
	env.RegisterWorkflowWithOptions(wfs.ProcessVariants, workflow.RegisterOptions{Name: "ProcessVariants"})
	env.RegisterWorkflowWithOptions(wfs.SendEmail, workflow.RegisterOptions{Name: "SendEmail"})
	return env
}

func sortedByKey(specs []variants.VariantSpec) []string {
	sorted := append([]variants.VariantSpec(nil), specs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key() < sorted[j].Key() })
	names := make([]string, len(sorted))
	for i, s := range sorted {
		names[i] = s.Name
	}
	return names
}

func TestProcessVariantsDeterministicOrder(t *testing.T) {
	specs := []variants.VariantSpec{
		{Name: "large", Width: 1200},
		{Name: "thumb", Width: 300},
		{Name: "square", Width: 400, Height: 400},
	}
	want := sortedByKey(specs)

	// The processed order must be the same regardless of input order.
	permutations := [][]variants.VariantSpec{
		{specs[0], specs[1], specs[2]},
		{specs[2], specs[0], specs[1]},
		{specs[1], specs[2], specs[0]},
	}

	for i, input := range permutations {
		env := newTestEnv(t)
		var processed []string
		env.RegisterActivityWithOptions(func(ctx context.Context, in ProcessVariantInput) (string, error) {
			processed = append(processed, in.Spec.Name)
			return "res_" + in.Spec.Name, nil
		}, activity.RegisterOptions{Name: "ProcessVariant"})

		env.ExecuteWorkflow("ProcessVariants", ProcessVariantsInput{
			VariantSetID: "set_order",
			Specs:        input,
		})

		if !env.IsWorkflowCompleted() {
			t.Fatalf("permutation %d: workflow did not complete", i)
		}
		if err := env.GetWorkflowError(); err != nil {
			t.Fatalf("permutation %d: workflow error: %v", i, err)
		}

		if len(processed) != len(want) {
			t.Fatalf("permutation %d: processed %d specs, want %d", i, len(processed), len(want))
		}
		for j := range want {
			if processed[j] != want[j] {
				t.Errorf("permutation %d: processed[%d] = %s, want %s", i, j, processed[j], want[j])
			}
		}

		var resultIDs []string
		if err := env.GetWorkflowResult(&resultIDs); err != nil {
			t.Fatalf("permutation %d: result: %v", i, err)
		}
		for j, name := range want {
			if resultIDs[j] != "res_"+name {
				t.Errorf("permutation %d: resultIDs[%d] = %s, want res_%s", i, j, resultIDs[j], name)
			}
		}
	}
}

func TestProcessVariantsRetriesThenFails(t *testing.T) {
	env := newTestEnv(t)

	var attempts atomic.Int32
	env.RegisterActivityWithOptions(func(ctx context.Context, in ProcessVariantInput) (string, error) {
		if in.Spec.Name == "broken" {
			attempts.Add(1)
			return "", fmt.Errorf("decode blew up")
		}
		return "res_" + in.Spec.Name, nil
	}, activity.RegisterOptions{Name: "ProcessVariant"})

	env.ExecuteWorkflow("ProcessVariants", ProcessVariantsInput{
		VariantSetID: "set_fail",
		Specs: []variants.VariantSpec{
			{Name: "broken", Width: 100},
		},
	})

	if !env.IsWorkflowCompleted() {
		t.Fatal("workflow did not complete")
	}
	err := env.GetWorkflowError()
	if err == nil {
		t.Fatal("expected workflow failure")
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("error chain %v contains no ApplicationError", err)
	}
	if appErr.Type() != VariantProcessingFailedType {
		t.Errorf("error type = %s, want %s", appErr.Type(), VariantProcessingFailedType)
	}
	var specName string
	if derr := appErr.Details(&specName); derr != nil || specName != "broken" {
		t.Errorf("error details = %q (%v), want failing spec name", specName, derr)
	}

	if got := attempts.Load(); got != 3 {
		t.Errorf("activity attempts = %d, want 3", got)
	}
}

func TestProcessVariantsTransientFailureRecovers(t *testing.T) {
	env := newTestEnv(t)

	var attempts atomic.Int32
	env.RegisterActivityWithOptions(func(ctx context.Context, in ProcessVariantInput) (string, error) {
		if attempts.Add(1) < 3 {
			return "", fmt.Errorf("storage hiccup")
		}
		return "res_" + in.Spec.Name, nil
	}, activity.RegisterOptions{Name: "ProcessVariant"})

	env.ExecuteWorkflow("ProcessVariants", ProcessVariantsInput{
		VariantSetID: "set_flaky",
		Specs:        []variants.VariantSpec{{Name: "thumb", Width: 300}},
	})

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	var resultIDs []string
	if err := env.GetWorkflowResult(&resultIDs); err != nil {
		t.Fatalf("result: %v", err)
	}
	if len(resultIDs) != 1 || resultIDs[0] != "res_thumb" {
		t.Errorf("resultIDs = %v, want [res_thumb]", resultIDs)
	}
}

func TestSendEmailWorkflow(t *testing.T) {
	env := newTestEnv(t)

	var sent []SendEmailInput
	env.RegisterActivityWithOptions(func(ctx context.Context, in SendEmailInput) error {
		sent = append(sent, in)
		return nil
	}, activity.RegisterOptions{Name: "SendEmail"})

	env.ExecuteWorkflow("SendEmail", SendEmailInput{
		To:      "ops@example.com",
		Subject: "variants ready",
		Body:    "all done",
	})

	if err := env.GetWorkflowError(); err != nil {
		t.Fatalf("workflow error: %v", err)
	}
	if len(sent) != 1 || sent[0].To != "ops@example.com" {
		t.Errorf("sent = %+v", sent)
	}
}

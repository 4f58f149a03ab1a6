package batch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

func testTargets(n int) []Target {
	targets := make([]Target, n)
	for i := range targets {
		targets[i] = Target{Type: "group", ID: fmt.Sprintf("%d", 100+i)}
	}
	return targets
}

// instantExport submits and completes every target immediately, giving
// each task a message count derived from its target id.
func instantExport() (SubmitFunc, AwaitFunc) {
	submit := func(ctx context.Context, target Target) (string, error) {
		return "task-" + target.ID, nil
	}
	await := func(ctx context.Context, taskID string) (*v1.ExportTask, error) {
		return &v1.ExportTask{ID: taskID, Status: v1.TaskStatusCompleted, MessageCount: 10}, nil
	}
	return submit, await
}

func TestRunSequential(t *testing.T) {
	submit, await := instantExport()
	targets := testTargets(3)

	result, err := Run(context.Background(), targets, Options{Submit: submit, Await: await})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Success != 3 || result.Failed != 0 {
		t.Errorf("expected 3/0, got %d/%d", result.Success, result.Failed)
	}
	if result.TotalMessages != 30 {
		t.Errorf("expected 30 total messages, got %d", result.TotalMessages)
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestRunResultsKeepSubmissionOrder(t *testing.T) {
	targets := testTargets(6)
	submit, _ := instantExport()

	// Finish in reverse-ish order: earlier submissions take longer.
	await := func(ctx context.Context, taskID string) (*v1.ExportTask, error) {
		var idx int
		fmt.Sscanf(taskID, "task-1%02d", &idx)
		time.Sleep(time.Duration(len(targets)-idx) * 10 * time.Millisecond)
		return &v1.ExportTask{ID: taskID, Status: v1.TaskStatusCompleted, MessageCount: 1}, nil
	}

	result, err := Run(context.Background(), targets, Options{
		Submit:      submit,
		Await:       await,
		Concurrency: 3,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for i, item := range result.Results {
		if item.Target.ID != targets[i].ID {
			t.Errorf("result %d holds target %s, want %s", i, item.Target.ID, targets[i].ID)
		}
		if item.TaskID != "task-"+targets[i].ID {
			t.Errorf("result %d holds task %s", i, item.TaskID)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	targets := testTargets(3)
	submit := func(ctx context.Context, target Target) (string, error) {
		if target.ID == "101" {
			return "", errors.Validation("peer", "unknown group")
		}
		return "task-" + target.ID, nil
	}
	_, await := instantExport()

	var failedIDs []string
	var mu sync.Mutex
	result, err := Run(context.Background(), targets, Options{
		Submit: submit,
		Await:  await,
		OnError: func(target Target, err error) {
			mu.Lock()
			failedIDs = append(failedIDs, target.ID)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Success != 2 || result.Failed != 1 {
		t.Errorf("expected 2/1, got %d/%d", result.Success, result.Failed)
	}
	if result.Results[1].Err == nil {
		t.Error("expected error recorded at the failed item's index")
	}
	if result.Results[0].Err != nil || result.Results[2].Err != nil {
		t.Error("sibling items should be unaffected by one failure")
	}
	if len(failedIDs) != 1 || failedIDs[0] != "101" {
		t.Errorf("expected OnError for 101, got %v", failedIDs)
	}
}

func TestRunAwaitFailure(t *testing.T) {
	submit, _ := instantExport()
	await := func(ctx context.Context, taskID string) (*v1.ExportTask, error) {
		return nil, errors.TaskFailed(taskID, "failed", "server error")
	}

	result, err := Run(context.Background(), testTargets(1), Options{Submit: submit, Await: await})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", result.Failed)
	}
	if errors.Code(result.Results[0].Err) != errors.ErrCodeTaskFailed {
		t.Errorf("expected TASK_FAILED at index 0, got %v", result.Results[0].Err)
	}
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *fakeRecorder) Record(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func TestRunRecordsOutcomes(t *testing.T) {
	submit := func(ctx context.Context, target Target) (string, error) {
		if target.ID == "102" {
			return "", errors.Network("unreachable", nil)
		}
		return "task-" + target.ID, nil
	}
	_, await := instantExport()
	rec := &fakeRecorder{}

	result, err := Run(context.Background(), testTargets(3), Options{
		Submit:   submit,
		Await:    await,
		Recorder: rec,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(rec.records))
	}
	var failed, completed int
	for _, r := range rec.records {
		if r.RunID != result.RunID {
			t.Errorf("record carries run id %s, want %s", r.RunID, result.RunID)
		}
		switch r.Status {
		case string(v1.TaskStatusCompleted):
			completed++
		case string(v1.TaskStatusFailed):
			failed++
			if r.Error == "" {
				t.Error("failed record should carry the error text")
			}
		}
	}
	if completed != 2 || failed != 1 {
		t.Errorf("expected 2 completed and 1 failed record, got %d/%d", completed, failed)
	}
}

func TestRunRequiresFuncs(t *testing.T) {
	_, err := Run(context.Background(), testTargets(1), Options{})
	if errors.Code(err) != errors.ErrCodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	submit, await := instantExport()
	result, err := Run(ctx, testTargets(2), Options{Submit: submit, Await: await})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Failed == 0 {
		t.Error("cancelled run should mark unstarted items as failed")
	}
}

package client

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

// taskServer serves /api/tasks/{id} from a scripted sequence of snapshots,
// advancing one step per request and holding the last one.
func taskServer(t *testing.T, taskID string, steps []v1.ExportTask) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tasks/"+taskID {
			http.NotFound(w, r)
			return
		}
		n := int(calls.Add(1)) - 1
		if n >= len(steps) {
			n = len(steps) - 1
		}
		ok(w, steps[n])
	}), "")
	return c, &calls
}

func runningTask(id string, progress int) v1.ExportTask {
	return v1.ExportTask{ID: id, Status: v1.TaskStatusRunning, Progress: progress}
}

func TestWaitForCompletionCompletes(t *testing.T) {
	c, _ := taskServer(t, "task-1", []v1.ExportTask{
		runningTask("task-1", 10),
		runningTask("task-1", 60),
		{ID: "task-1", Status: v1.TaskStatusCompleted, Progress: 100, MessageCount: 420},
	})

	task, err := c.Tasks.WaitForCompletion(context.Background(), "task-1", WaitOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
	if task.MessageCount != 420 {
		t.Errorf("expected 420 messages, got %d", task.MessageCount)
	}
}

func TestWaitForCompletionFailedTask(t *testing.T) {
	c, _ := taskServer(t, "task-2", []v1.ExportTask{
		runningTask("task-2", 50),
		{ID: "task-2", Status: v1.TaskStatusFailed, Error: "disk full"},
	})

	_, err := c.Tasks.WaitForCompletion(context.Background(), "task-2", WaitOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if errors.Code(err) != errors.ErrCodeTaskFailed {
		t.Fatalf("expected TASK_FAILED, got %v", err)
	}
}

func TestWaitForCompletionCancelledTask(t *testing.T) {
	c, _ := taskServer(t, "task-3", []v1.ExportTask{
		{ID: "task-3", Status: v1.TaskStatusCancelled},
	})

	_, err := c.Tasks.WaitForCompletion(context.Background(), "task-3", WaitOptions{
		Timeout:      time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if errors.Code(err) != errors.ErrCodeTaskFailed {
		t.Fatalf("expected TASK_FAILED for cancelled task, got %v", err)
	}
}

func TestWaitForCompletionTimeout(t *testing.T) {
	c, _ := taskServer(t, "task-4", []v1.ExportTask{
		runningTask("task-4", 10),
	})

	_, err := c.Tasks.WaitForCompletion(context.Background(), "task-4", WaitOptions{
		Timeout:      50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	})
	if errors.Code(err) != errors.ErrCodeTimeout {
		t.Fatalf("expected TIMEOUT, got %v", err)
	}
}

func TestWaitForCompletionProgressDeduplicated(t *testing.T) {
	c, _ := taskServer(t, "task-5", []v1.ExportTask{
		runningTask("task-5", 10),
		runningTask("task-5", 10),
		runningTask("task-5", 10),
		runningTask("task-5", 40),
		{ID: "task-5", Status: v1.TaskStatusCompleted, Progress: 100},
	})

	var seen []int
	_, err := c.Tasks.WaitForCompletion(context.Background(), "task-5", WaitOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
		OnProgress: func(task *v1.ExportTask) {
			seen = append(seen, task.Progress)
		},
	})
	if err != nil {
		t.Fatalf("WaitForCompletion failed: %v", err)
	}
	// Repeated identical progress values fire the callback once.
	if len(seen) != 2 || seen[0] != 10 || seen[1] != 40 {
		t.Errorf("expected progress callbacks [10 40], got %v", seen)
	}
}

func TestWaitForCompletionRetriesTransientFetch(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Drop the first request mid-flight.
			if hj, okCast := w.(http.Hijacker); okCast {
				conn, _, _ := hj.Hijack()
				conn.Close()
			}
			return
		}
		ok(w, v1.ExportTask{ID: "task-6", Status: v1.TaskStatusCompleted, Progress: 100})
	}), "")

	task, err := c.Tasks.WaitForCompletion(context.Background(), "task-6", WaitOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("expected retry to recover, got %v", err)
	}
	if task.Status != v1.TaskStatusCompleted {
		t.Errorf("expected completed task, got %s", task.Status)
	}
}

func TestWaitForCompletionNonRetryableFetch(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fail(w, "NOT_FOUND", "no such task", "TASK_NOT_FOUND")
	}), "")

	_, err := c.Tasks.WaitForCompletion(context.Background(), "task-7", WaitOptions{
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	})
	if errors.Code(err) != errors.ErrCodeTaskFetchFailed {
		t.Fatalf("expected TASK_FETCH_FAILED, got %v", err)
	}
}

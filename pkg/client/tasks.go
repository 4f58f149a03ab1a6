package client

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

const (
	// DefaultWaitTimeout bounds WaitForCompletion when no timeout is given.
	DefaultWaitTimeout = 300 * time.Second
	// DefaultPollInterval is the cadence of status polls.
	DefaultPollInterval = 2 * time.Second
)

// TasksAPI wraps the export-task endpoints and the completion waiter.
type TasksAPI struct {
	c *Client
}

// List returns all export tasks known to the server.
func (a *TasksAPI) List(ctx context.Context) ([]v1.ExportTask, error) {
	var result struct {
		Tasks []v1.ExportTask `json:"tasks"`
	}
	if err := a.c.get(ctx, "/api/tasks", nil, &result); err != nil {
		return nil, err
	}
	return result.Tasks, nil
}

// Get returns a snapshot of one task.
func (a *TasksAPI) Get(ctx context.Context, taskID string) (*v1.ExportTask, error) {
	var task v1.ExportTask
	if err := a.c.get(ctx, "/api/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Delete removes a task record from the server.
func (a *TasksAPI) Delete(ctx context.Context, taskID string) error {
	_, err := a.c.Call(ctx, http.MethodDelete, "/api/tasks/"+taskID, nil, nil)
	return err
}

// DeleteOriginalFiles removes the unzipped originals of a ZIP export.
func (a *TasksAPI) DeleteOriginalFiles(ctx context.Context, taskID string) error {
	_, err := a.c.Call(ctx, http.MethodDelete, "/api/tasks/"+taskID+"/original-files", nil, nil)
	return err
}

// WaitOptions controls WaitForCompletion.
type WaitOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
	// OnProgress is invoked for each non-terminal snapshot whose progress
	// value changed since the previous observation.
	OnProgress func(task *v1.ExportTask)
}

func (o *WaitOptions) applyDefaults() {
	if o.Timeout <= 0 {
		o.Timeout = DefaultWaitTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
}

// WaitForCompletion polls a task's status until it reaches a terminal state
// or the timeout elapses.
//
// A completed task is returned as-is. A failed or cancelled task yields a
// TASK_FAILED error. Timing out yields TIMEOUT and leaves the remote task
// untouched. Transient fetch errors are retried while budget remains; an
// error on the final allowed attempt yields TASK_FETCH_FAILED.
func (a *TasksAPI) WaitForCompletion(ctx context.Context, taskID string, opts WaitOptions) (*v1.ExportTask, error) {
	opts.applyDefaults()

	log := a.c.logger.WithTaskID(taskID)
	deadline := time.Now().Add(opts.Timeout)

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	lastProgress := -1
	for {
		task, err := a.Get(ctx, taskID)
		if err != nil {
			if time.Now().Add(opts.PollInterval).After(deadline) || !errors.IsRetryable(err) {
				return nil, errors.TaskFetchFailed(taskID, err)
			}
			log.Warn("status poll failed, retrying", zap.Error(err))
		} else {
			switch task.Status {
			case v1.TaskStatusCompleted:
				return task, nil
			case v1.TaskStatusFailed, v1.TaskStatusCancelled:
				return nil, errors.TaskFailed(taskID, string(task.Status), task.Error)
			default:
				if opts.OnProgress != nil && task.Progress != lastProgress {
					lastProgress = task.Progress
					opts.OnProgress(task)
				}
			}
		}

		if time.Now().After(deadline) {
			return nil, errors.Timeout("timed out waiting for task " + taskID)
		}

		select {
		case <-ctx.Done():
			return nil, errors.Timeout("wait for task " + taskID + " cancelled")
		case <-ticker.C:
		}
	}
}

package monitor

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

// taskCache accumulates the latest known snapshot per task id from both
// push events and safety polls. Once a task is observed in a terminal
// state that observation is authoritative: later updates for the same
// task are ignored, whichever path they arrive on.
type taskCache struct {
	mu      sync.Mutex
	tasks   map[string]*v1.ExportTask
	waiters map[string][]chan *v1.ExportTask
}

func newTaskCache() *taskCache {
	return &taskCache{
		tasks:   make(map[string]*v1.ExportTask),
		waiters: make(map[string][]chan *v1.ExportTask),
	}
}

// observeEvent folds a push event into the cache.
func (c *taskCache) observeEvent(event string, data json.RawMessage) {
	switch event {
	case v1.EventExportProgress:
		var ev v1.ExportProgressEvent
		if json.Unmarshal(data, &ev) != nil || ev.TaskID == "" {
			return
		}
		c.apply(&v1.ExportTask{
			ID:           ev.TaskID,
			Status:       v1.TaskStatusRunning,
			Progress:     ev.Progress,
			MessageCount: ev.MessageCount,
		})
	case v1.EventExportComplete:
		var ev v1.ExportCompleteEvent
		if json.Unmarshal(data, &ev) != nil || ev.TaskID == "" {
			return
		}
		c.apply(&v1.ExportTask{
			ID:           ev.TaskID,
			Status:       v1.TaskStatusCompleted,
			Progress:     100,
			MessageCount: ev.MessageCount,
			FileName:     ev.FileName,
			FilePath:     ev.FilePath,
			DownloadURL:  ev.DownloadURL,
		})
	case v1.EventExportError:
		var ev v1.ExportErrorEvent
		if json.Unmarshal(data, &ev) != nil || ev.TaskID == "" {
			return
		}
		c.apply(&v1.ExportTask{
			ID:     ev.TaskID,
			Status: v1.TaskStatusFailed,
			Error:  ev.Error,
		})
	}
}

// apply stores a snapshot and fans it out to waiters. First terminal
// observation wins; anything after it is dropped.
func (c *taskCache) apply(task *v1.ExportTask) {
	c.mu.Lock()
	if prev, ok := c.tasks[task.ID]; ok && prev.Status.IsTerminal() {
		c.mu.Unlock()
		return
	}
	c.tasks[task.ID] = task
	waiters := c.waiters[task.ID]
	c.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- task:
		default:
			// Waiter is behind; it will catch up from the cache.
		}
	}
}

func (c *taskCache) get(taskID string) (*v1.ExportTask, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	task, ok := c.tasks[taskID]
	return task, ok
}

func (c *taskCache) subscribe(taskID string) chan *v1.ExportTask {
	ch := make(chan *v1.ExportTask, 16)
	c.mu.Lock()
	c.waiters[taskID] = append(c.waiters[taskID], ch)
	c.mu.Unlock()
	return ch
}

func (c *taskCache) unsubscribe(taskID string, ch chan *v1.ExportTask) {
	c.mu.Lock()
	defer c.mu.Unlock()
	waiters := c.waiters[taskID]
	for i, w := range waiters {
		if w == ch {
			c.waiters[taskID] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(c.waiters[taskID]) == 0 {
		delete(c.waiters, taskID)
	}
}

// TaskStatus returns the last known snapshot of a task, if any.
func (m *Monitor) TaskStatus(taskID string) (*v1.ExportTask, bool) {
	return m.cache.get(taskID)
}

// TaskFetcher retrieves an authoritative task snapshot from the service.
// (*client.TasksAPI).Get satisfies this signature.
type TaskFetcher func(ctx context.Context, taskID string) (*v1.ExportTask, error)

// WaitTaskOptions controls WaitForTask.
type WaitTaskOptions struct {
	Timeout time.Duration
	// OnProgress is invoked when the task's progress value changes.
	OnProgress func(task *v1.ExportTask)
	// Fetcher enables the safety-net poll path; without it the wait is
	// purely event-driven.
	Fetcher TaskFetcher
	// PollSafetyInterval is the cadence of the safety-net poll.
	PollSafetyInterval time.Duration
}

// WaitForTask blocks until a task reaches a terminal state or the
// timeout elapses.
//
// Two observation paths race: push events on the channel, and (when a
// Fetcher is given) a periodic safety poll that covers lost events. Both
// feed the same cache, so the first terminal observation wins and the
// slower path is discarded.
func (m *Monitor) WaitForTask(ctx context.Context, taskID string, opts WaitTaskOptions) (*v1.ExportTask, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 300 * time.Second
	}
	if opts.PollSafetyInterval <= 0 {
		opts.PollSafetyInterval = 10 * time.Second
	}

	waitCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	updates := m.cache.subscribe(taskID)
	defer m.cache.unsubscribe(taskID, updates)

	// A terminal snapshot may already be cached from before the wait.
	if task, ok := m.cache.get(taskID); ok && task.Status.IsTerminal() {
		return finishWait(taskID, task)
	}

	if opts.Fetcher != nil {
		go m.safetyPoll(waitCtx, taskID, opts)
	}

	log := logger.Default().WithTaskID(taskID)
	lastProgress := -1
	for {
		select {
		case task := <-updates:
			if task.Status.IsTerminal() {
				return finishWait(taskID, task)
			}
			if opts.OnProgress != nil && task.Progress != lastProgress {
				lastProgress = task.Progress
				opts.OnProgress(task)
			}
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, errors.Timeout("wait for task " + taskID + " cancelled")
			}
			// Losing the race against the deadline leaves the task
			// running; check the cache once in case a terminal snapshot
			// arrived between the last receive and the deadline.
			if task, ok := m.cache.get(taskID); ok && task.Status.IsTerminal() {
				return finishWait(taskID, task)
			}
			log.Warn("task wait timed out", zap.Duration("timeout", opts.Timeout))
			return nil, errors.Timeout("timed out waiting for task " + taskID)
		}
	}
}

// safetyPoll periodically fetches the task over HTTP and feeds the
// snapshot into the cache, covering the window where push events are
// lost to a reconnect.
func (m *Monitor) safetyPoll(ctx context.Context, taskID string, opts WaitTaskOptions) {
	ticker := time.NewTicker(opts.PollSafetyInterval)
	defer ticker.Stop()

	log := logger.Default().WithTaskID(taskID)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task, err := opts.Fetcher(ctx, taskID)
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("safety poll failed", zap.Error(err))
				}
				continue
			}
			m.cache.apply(task)
		}
	}
}

// finishWait maps a terminal snapshot to the wait result.
func finishWait(taskID string, task *v1.ExportTask) (*v1.ExportTask, error) {
	switch task.Status {
	case v1.TaskStatusCompleted:
		return task, nil
	default:
		return nil, errors.TaskFailed(taskID, string(task.Status), task.Error)
	}
}

// Package batch runs multiple chat exports as one supervised run with
// bounded concurrency, per-item error isolation and optional history
// recording.
package batch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
)

// Target identifies one chat to export.
type Target struct {
	Type string // "group" or "friend"
	ID   string // group number or friend QQ number
	Name string // optional session name
}

// SubmitFunc starts an export for a target and returns the task id.
type SubmitFunc func(ctx context.Context, target Target) (string, error)

// AwaitFunc blocks until the given task reaches a terminal state.
type AwaitFunc func(ctx context.Context, taskID string) (*v1.ExportTask, error)

// Record is one finished batch item as persisted to a Recorder.
type Record struct {
	RunID        string
	Target       Target
	TaskID       string
	Status       string
	MessageCount int
	FilePath     string
	Error        string
	FinishedAt   time.Time
}

// Recorder persists batch item outcomes.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
}

// ItemResult is the outcome of one target, at its submission index.
type ItemResult struct {
	Target     Target
	TaskID     string
	Task       *v1.ExportTask
	OutputPath string
	Err        error
}

// Result aggregates a whole run.
type Result struct {
	RunID         string
	Success       int
	Failed        int
	TotalMessages int
	// Results is indexed by submission order regardless of completion order.
	Results []ItemResult
}

// Options configures a batch run.
type Options struct {
	Submit SubmitFunc
	Await  AwaitFunc
	// OnProgress is called once per finished item with its final task.
	OnProgress func(target Target, task *v1.ExportTask)
	// OnError is called for each failed item; the run continues.
	OnError func(target Target, err error)
	// Concurrency bounds in-flight exports. Defaults to 1 (sequential).
	Concurrency int
	// OutputDir, when set, receives the exported files.
	OutputDir string
	// Recorder, when set, persists every item outcome.
	Recorder Recorder
}

// Run exports all targets. An individual failure is recorded at that
// item's index and never aborts siblings; only a cancelled context stops
// the run early.
func Run(ctx context.Context, targets []Target, opts Options) (*Result, error) {
	if opts.Submit == nil || opts.Await == nil {
		return nil, errors.Validation("options", "Submit and Await are required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create output directory")
		}
	}

	result := &Result{
		RunID:   uuid.NewString(),
		Results: make([]ItemResult, len(targets)),
	}
	log := logger.Default().WithFields(
		zap.String("component", "batch"),
		zap.String("run_id", result.RunID))
	log.Info("batch run started",
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", concurrency))

	sem := semaphore.NewWeighted(int64(concurrency))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i, target := range targets {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled; unstarted items are marked as such.
			mu.Lock()
			for j := i; j < len(targets); j++ {
				result.Results[j] = ItemResult{
					Target: targets[j],
					Err:    errors.Timeout("batch run cancelled"),
				}
				result.Failed++
			}
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(idx int, target Target) {
			defer wg.Done()
			defer sem.Release(1)

			item := runOne(ctx, target, opts)

			mu.Lock()
			result.Results[idx] = item
			if item.Err != nil {
				result.Failed++
			} else {
				result.Success++
				if item.Task != nil {
					result.TotalMessages += item.Task.MessageCount
				}
			}
			mu.Unlock()

			if item.Err != nil && opts.OnError != nil {
				opts.OnError(target, item.Err)
			}
			if item.Err == nil && opts.OnProgress != nil {
				opts.OnProgress(target, item.Task)
			}
			recordItem(ctx, opts.Recorder, result.RunID, item, log)
		}(i, target)
	}

	wg.Wait()
	log.Info("batch run finished",
		zap.Int("success", result.Success),
		zap.Int("failed", result.Failed),
		zap.Int("total_messages", result.TotalMessages))
	return result, nil
}

func runOne(ctx context.Context, target Target, opts Options) ItemResult {
	item := ItemResult{Target: target}

	taskID, err := opts.Submit(ctx, target)
	if err != nil {
		item.Err = err
		return item
	}
	item.TaskID = taskID

	task, err := opts.Await(ctx, taskID)
	if err != nil {
		item.Err = err
		return item
	}
	item.Task = task

	if opts.OutputDir != "" && task.FileName != "" {
		if moved, err := collectFile(task, opts.OutputDir); err == nil {
			item.OutputPath = moved
		}
		// A file that could not be moved stays where the service put
		// it; the export itself still succeeded.
	}
	return item
}

func recordItem(ctx context.Context, recorder Recorder, runID string, item ItemResult, log *logger.Logger) {
	if recorder == nil {
		return
	}
	rec := Record{
		RunID:      runID,
		Target:     item.Target,
		TaskID:     item.TaskID,
		FilePath:   item.OutputPath,
		FinishedAt: time.Now(),
	}
	if item.Task != nil {
		rec.Status = string(item.Task.Status)
		rec.MessageCount = item.Task.MessageCount
		if rec.FilePath == "" {
			rec.FilePath = item.Task.FilePath
		}
	}
	if item.Err != nil {
		rec.Status = string(v1.TaskStatusFailed)
		rec.Error = item.Err.Error()
	}
	if err := recorder.Record(ctx, rec); err != nil {
		log.Warn("failed to record batch item",
			zap.String("target_id", item.Target.ID), zap.Error(err))
	}
}

// collectFile moves an exported file into the output directory and
// returns its new path.
func collectFile(task *v1.ExportTask, outputDir string) (string, error) {
	src := task.FilePath
	if src == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		src = filepath.Join(home, ".qq-chat-exporter", "exports", task.FileName)
	}
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outputDir, filepath.Base(task.FileName))
	if err := os.Rename(src, dst); err != nil {
		// Rename fails across filesystems; fall back to copy+remove.
		if copyErr := copyFile(src, dst); copyErr != nil {
			return "", copyErr
		}
		os.Remove(src)
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

package client

import (
	"context"
	"strings"
	"sync"
	"time"

	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
	"github.com/shuakami/napcat-qce-go/pkg/batch"
)

// ExportConvenienceOptions configures the one-call export helpers.
type ExportConvenienceOptions struct {
	Format      v1.ExportFormat
	Days        int // export only the last N days; 0 means everything
	Filter      *v1.MessageFilter
	Options     *v1.ExportOptions
	SessionName string
	Timeout     time.Duration
	OnProgress  func(task *v1.ExportTask)
}

func (o *ExportConvenienceOptions) filter() *v1.MessageFilter {
	if o.Filter != nil {
		return o.Filter
	}
	if o.Days > 0 {
		return v1.LastDays(o.Days)
	}
	return nil
}

func (o *ExportConvenienceOptions) waitOptions() WaitOptions {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	return WaitOptions{Timeout: timeout, OnProgress: o.OnProgress}
}

// ExportGroup exports a group chat and waits for the task to complete.
func (c *Client) ExportGroup(ctx context.Context, groupID string, opts ExportConvenienceOptions) (*v1.ExportTask, error) {
	format := opts.Format
	if format == "" {
		format = v1.FormatHTML
	}
	return c.Messages.QuickExport(ctx, ExportRequest{
		Peer:        v1.Peer{ChatType: v1.ChatTypeGroup, PeerUID: groupID},
		Format:      format,
		Filter:      opts.filter(),
		Options:     opts.Options,
		SessionName: opts.SessionName,
	}, opts.waitOptions())
}

// ExportFriend exports a private chat and waits for the task to complete.
// friendID may be either the internal uid or a bare QQ number (uin); a uin
// is resolved against the friend list first.
func (c *Client) ExportFriend(ctx context.Context, friendID string, opts ExportConvenienceOptions) (*v1.ExportTask, error) {
	peerUID := friendID
	if !strings.HasPrefix(friendID, "u_") {
		friends, err := c.Friends.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, friend := range friends {
			if friend.UIN == friendID {
				peerUID = friend.UID
				break
			}
		}
	}

	format := opts.Format
	if format == "" {
		format = v1.FormatHTML
	}
	return c.Messages.QuickExport(ctx, ExportRequest{
		Peer:        v1.Peer{ChatType: v1.ChatTypePrivate, PeerUID: peerUID},
		Format:      format,
		Filter:      opts.filter(),
		Options:     opts.Options,
		SessionName: opts.SessionName,
	}, opts.waitOptions())
}

// BatchExportOptions configures BatchExport.
type BatchExportOptions struct {
	Format      v1.ExportFormat
	Days        int
	OutputDir   string
	Concurrency int
	OnProgress  func(target batch.Target, task *v1.ExportTask)
	OnError     func(target batch.Target, err error)
	Recorder    batch.Recorder
}

// BatchExport exports several chats in one run. Each target is exported
// with ExportGroup or ExportFriend depending on its type; failures are
// isolated per target.
func (c *Client) BatchExport(ctx context.Context, targets []batch.Target, opts BatchExportOptions) (*batch.Result, error) {
	exportOne := func(ctx context.Context, target batch.Target) (*v1.ExportTask, error) {
		convOpts := ExportConvenienceOptions{
			Format:      opts.Format,
			Days:        opts.Days,
			SessionName: target.Name,
		}
		if target.Type == "friend" {
			return c.ExportFriend(ctx, target.ID, convOpts)
		}
		return c.ExportGroup(ctx, target.ID, convOpts)
	}

	// The convenience exporters submit and wait in one call, so the
	// await step only hands the finished task through.
	finished := make(map[string]*v1.ExportTask)
	var mu sync.Mutex

	return batch.Run(ctx, targets, batch.Options{
		Submit: func(ctx context.Context, target batch.Target) (string, error) {
			task, err := exportOne(ctx, target)
			if err != nil {
				return "", err
			}
			mu.Lock()
			finished[task.ID] = task
			mu.Unlock()
			return task.ID, nil
		},
		Await: func(ctx context.Context, taskID string) (*v1.ExportTask, error) {
			mu.Lock()
			defer mu.Unlock()
			return finished[taskID], nil
		},
		OnProgress:  opts.OnProgress,
		OnError:     opts.OnError,
		Concurrency: opts.Concurrency,
		OutputDir:   opts.OutputDir,
		Recorder:    opts.Recorder,
	})
}

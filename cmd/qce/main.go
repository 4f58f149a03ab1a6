package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/config"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
	"github.com/shuakami/napcat-qce-go/internal/history"
	v1 "github.com/shuakami/napcat-qce-go/pkg/api/v1"
	"github.com/shuakami/napcat-qce-go/pkg/batch"
	"github.com/shuakami/napcat-qce-go/pkg/client"
	"github.com/shuakami/napcat-qce-go/pkg/launcher"
	"github.com/shuakami/napcat-qce-go/pkg/monitor"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetDefault(log)

	// 3. Create context cancelled on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Dispatch subcommand
	var cmdErr error
	switch os.Args[1] {
	case "launch":
		cmdErr = runLaunch(ctx, cfg)
	case "export":
		cmdErr = runExport(ctx, cfg, os.Args[2:])
	case "batch":
		cmdErr = runBatch(ctx, cfg, os.Args[2:])
	case "monitor":
		cmdErr = runMonitor(ctx, cfg)
	case "history":
		cmdErr = runHistory(ctx, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}

	if cmdErr != nil {
		color.Red("Error: %v", cmdErr)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: qce <command> [flags]

Commands:
  launch    start the NapCat-QCE service and keep it running
  export    export one chat and wait for completion
  batch     export multiple chats from a targets file
  monitor   print push events as they arrive
  history   show past batch export results`)
}

// runLaunch starts the service and keeps it alive until interrupted.
func runLaunch(ctx context.Context, cfg *config.Config) error {
	l := launcher.NewLauncher(cfg.Service)

	l.Supervisor().OnOutput(func(line string) {
		fmt.Println(line)
	})
	l.Supervisor().OnReady(func(token string) {
		color.Green("Service ready")
		if token != "" {
			color.Green("Access token: %s", token)
		}
	})

	c, err := l.Start(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return l.Close(stopCtx)
}

// runExport exports a single chat.
func runExport(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	targetType := fs.String("type", "group", "target type: group or friend")
	id := fs.String("id", "", "group number or friend QQ number")
	format := fs.String("format", cfg.Export.Format, "export format: HTML, JSON, TXT, EXCEL")
	days := fs.Int("days", 0, "export only the last N days (0 = everything)")
	name := fs.String("name", "", "session name")
	timeout := fs.Duration("timeout", 10*time.Minute, "wait timeout")
	fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("missing -id")
	}

	return launcher.RunWithService(ctx, cfg.Service, func(c *client.Client) error {
		opts := client.ExportConvenienceOptions{
			Format:      v1.ExportFormat(strings.ToUpper(*format)),
			Days:        *days,
			SessionName: *name,
			Timeout:     *timeout,
			OnProgress: func(task *v1.ExportTask) {
				fmt.Printf("\r  progress: %3d%% (%d messages)", task.Progress, task.MessageCount)
			},
		}

		var (
			task *v1.ExportTask
			err  error
		)
		if *targetType == "friend" {
			task, err = c.ExportFriend(ctx, *id, opts)
		} else {
			task, err = c.ExportGroup(ctx, *id, opts)
		}
		fmt.Println()
		if err != nil {
			return err
		}

		color.Green("Exported %d messages to %s", task.MessageCount, task.FileName)
		return nil
	})
}

// runBatch exports every target listed in a file, one per line, in the
// form "group:123456789" or "friend:111222333:Alice".
func runBatch(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	file := fs.String("file", "", "targets file")
	format := fs.String("format", cfg.Export.Format, "export format")
	days := fs.Int("days", 0, "export only the last N days")
	outputDir := fs.String("output", "", "move exported files to this directory")
	concurrency := fs.Int("concurrency", 1, "concurrent exports")
	fs.Parse(args)

	if *file == "" {
		return fmt.Errorf("missing -file")
	}
	targets, err := readTargets(*file)
	if err != nil {
		return err
	}

	store, err := history.NewSQLiteStore(filepath.Join(config.ConfigDir(), "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	return launcher.RunWithService(ctx, cfg.Service, func(c *client.Client) error {
		result, err := c.BatchExport(ctx, targets, client.BatchExportOptions{
			Format:      v1.ExportFormat(strings.ToUpper(*format)),
			Days:        *days,
			OutputDir:   *outputDir,
			Concurrency: *concurrency,
			Recorder:    store,
			OnProgress: func(target batch.Target, task *v1.ExportTask) {
				color.Green("done  %s %s: %d messages", target.Type, target.ID, task.MessageCount)
			},
			OnError: func(target batch.Target, err error) {
				color.Red("fail  %s %s: %v", target.Type, target.ID, err)
			},
		})
		if err != nil {
			return err
		}

		fmt.Printf("\nSuccess: %d  Failed: %d  Total messages: %d\n",
			result.Success, result.Failed, result.TotalMessages)
		return nil
	})
}

func readTargets(path string) ([]batch.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var targets []batch.Target
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("malformed target line: %q", line)
		}
		t := batch.Target{Type: parts[0], ID: parts[1]}
		if len(parts) == 3 {
			t.Name = parts[2]
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// runMonitor connects to the push-event channel and prints every event.
func runMonitor(ctx context.Context, cfg *config.Config) error {
	m := monitor.New(monitor.OptionsFromConfig(cfg.Service, cfg.Monitor))

	for _, event := range []string{
		v1.EventExportProgress, v1.EventExportComplete, v1.EventExportError,
		v1.EventNotification, v1.EventError,
	} {
		event := event
		m.On(event, func(data json.RawMessage) {
			fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), event, data)
		})
	}
	m.On(v1.EventDisconnected, func(json.RawMessage) {
		color.Yellow("disconnected")
	})
	m.On(v1.EventConnected, func(json.RawMessage) {
		color.Green("connected to %s", m.URL())
	})

	if err := m.Connect(ctx); err != nil {
		return err
	}
	defer m.Disconnect()

	<-ctx.Done()
	return nil
}

// runHistory prints recent batch export records.
func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("limit", 20, "number of records")
	runID := fs.String("run", "", "show one run only")
	fs.Parse(args)

	store, err := history.NewSQLiteStore(filepath.Join(config.ConfigDir(), "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	var records []batch.Record
	if *runID != "" {
		records, err = store.ListByRun(ctx, *runID)
	} else {
		records, err = store.Recent(ctx, *limit)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no export history")
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-9s %-7s %-12s %6d msgs  %s",
			rec.FinishedAt.Local().Format("2006-01-02 15:04"),
			rec.Status, rec.Target.Type, rec.Target.ID, rec.MessageCount, rec.FilePath)
		if rec.Status == string(v1.TaskStatusCompleted) {
			fmt.Println(line)
		} else {
			color.Red("%s  %s", line, rec.Error)
		}
	}

	logger.Default().Debug("history listed", zap.Int("records", len(records)))
	return nil
}

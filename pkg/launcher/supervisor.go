package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/errors"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
)

// ProcessState represents the lifecycle state of the supervised process
type ProcessState string

const (
	StateNotStarted ProcessState = "NOT_STARTED"
	StateStarting   ProcessState = "STARTING"
	StateReady      ProcessState = "READY"
	StateStopping   ProcessState = "STOPPING"
	StateStopped    ProcessState = "STOPPED"
	StateFailed     ProcessState = "FAILED"
)

// Readiness markers on the service's output stream. These are an external
// contract with the service and must be kept stable.
const (
	tokenMarkerZH   = "访问令牌"
	tokenMarkerEN   = "Access Token"
	startedBannerZH = "QQ聊天记录导出工具已启动"
)

// DefaultStopGrace is how long Stop waits before force-killing.
const DefaultStopGrace = 5 * time.Second

// SupervisorConfig holds launch settings for the service process.
type SupervisorConfig struct {
	InstallPath  string // NapCat-QCE directory
	QQPath       string // QQ executable (informational; the launcher script locates it)
	UserMode     bool   // launch without elevated privileges
	AutoLoginUin string // account to log in automatically
}

// Supervisor owns at most one NapCat-QCE service process: it spawns it,
// streams its output, detects readiness, and owns shutdown. The process
// handle is exclusively owned; only this supervisor may stop it.
type Supervisor struct {
	cfg    SupervisorConfig
	logger *logger.Logger

	mu              sync.Mutex
	state           ProcessState
	cmd             *exec.Cmd
	token           string
	exitCode        int
	outputObservers []func(line string)
	readyObservers  []func(token string)

	readyCh chan struct{} // closed exactly once on the ready transition
	exitCh  chan struct{} // closed when the process has exited
}

// NewSupervisor creates a supervisor for the given installation.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	return &Supervisor{
		cfg:    cfg,
		state:  StateNotStarted,
		logger: logger.Default().WithFields(zap.String("component", "process-supervisor")),
	}
}

// OnOutput registers an observer that receives every output line in
// arrival order. Callbacks run on the output-draining goroutine and must
// be cheap and non-blocking.
func (s *Supervisor) OnOutput(fn func(line string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputObservers = append(s.outputObservers, fn)
}

// OnReady registers an observer invoked once with the extracted token
// when the service signals readiness.
func (s *Supervisor) OnReady(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyObservers = append(s.readyObservers, fn)
}

// StartOptions controls Start.
type StartOptions struct {
	WaitForReady bool
	Timeout      time.Duration
}

// Start launches the service process and begins draining its output.
// With WaitForReady set, it blocks until the readiness line is observed
// or the timeout elapses; on timeout the process is left running so the
// caller can inspect or stop it.
func (s *Supervisor) Start(ctx context.Context, opts StartOptions) error {
	s.mu.Lock()
	if s.state == StateStarting || s.state == StateReady {
		s.mu.Unlock()
		return nil
	}

	script, err := s.launcherScript()
	if err != nil {
		s.mu.Unlock()
		return err
	}

	args := []string{}
	if s.cfg.AutoLoginUin != "" {
		args = append(args, s.cfg.AutoLoginUin)
	}

	cmd := exec.Command(script, args...)
	cmd.Dir = s.cfg.InstallPath
	cmd.Env = append(os.Environ(), s.napcatEnv()...)

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		s.mu.Unlock()
		return errors.Wrap(err, "failed to start NapCat-QCE")
	}

	s.cmd = cmd
	s.state = StateStarting
	s.token = ""
	s.readyCh = make(chan struct{})
	s.exitCh = make(chan struct{})
	readyCh, exitCh := s.readyCh, s.exitCh
	s.mu.Unlock()

	s.logger.Info("NapCat-QCE started",
		zap.Int("pid", cmd.Process.Pid),
		zap.String("script", script))

	go s.drainOutput(pr)
	go s.watchExit(cmd, pw)

	if !opts.WaitForReady {
		return nil
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return s.awaitReady(ctx, readyCh, exitCh, timeout)
}

func (s *Supervisor) awaitReady(ctx context.Context, readyCh, exitCh <-chan struct{}, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-readyCh:
		return nil
	case <-exitCh:
		s.mu.Lock()
		code := s.exitCode
		s.mu.Unlock()
		return errors.ProcessExitedEarly(code)
	case <-timer.C:
		return errors.StartupTimeout(fmt.Sprintf("service not ready after %s", timeout))
	case <-ctx.Done():
		return errors.Timeout("startup wait cancelled")
	}
}

// launcherScript picks the platform launch script inside the install dir.
func (s *Supervisor) launcherScript() (string, error) {
	if s.cfg.InstallPath == "" {
		return "", errors.Validation("installPath", "NapCat-QCE directory not set and not discovered")
	}

	var names []string
	if runtime.GOOS == "windows" {
		if s.cfg.UserMode {
			names = []string{"launcher-user.bat", "launcher-win10-user.bat", "launcher.bat"}
		} else {
			names = []string{"launcher.bat"}
		}
	} else {
		names = []string{"launcher.sh"}
	}

	for _, name := range names {
		script := filepath.Join(s.cfg.InstallPath, name)
		if _, err := os.Stat(script); err == nil {
			return script, nil
		}
	}
	return "", errors.Validation("installPath",
		fmt.Sprintf("no launcher script found in %s", s.cfg.InstallPath))
}

// napcatEnv returns the NAPCAT_* variables the launcher script expects.
func (s *Supervisor) napcatEnv() []string {
	dir := s.cfg.InstallPath
	return []string{
		"NAPCAT_PATCH_PACKAGE=" + filepath.Join(dir, "qqnt.json"),
		"NAPCAT_LOAD_PATH=" + filepath.Join(dir, "loadNapCat.js"),
		"NAPCAT_INJECT_PATH=" + filepath.Join(dir, "NapCatWinBootHook.dll"),
		"NAPCAT_LAUNCHER_PATH=" + filepath.Join(dir, bootExecutable),
		"NAPCAT_MAIN_PATH=" + filepath.Join(dir, "napcat.mjs"),
	}
}

// drainOutput reads the merged output stream line by line. It is the only
// goroutine that invokes output and readiness observers.
func (s *Supervisor) drainOutput(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.processLine(strings.TrimSpace(scanner.Text()))
	}
}

func (s *Supervisor) processLine(line string) {
	if line == "" {
		return
	}

	s.mu.Lock()
	observers := s.outputObservers
	s.mu.Unlock()

	// Full log visibility: every line reaches output observers, in
	// arrival order, before any readiness handling.
	for _, fn := range observers {
		fn(line)
	}

	if strings.Contains(line, tokenMarkerZH) || strings.Contains(line, tokenMarkerEN) {
		if idx := strings.LastIndex(line, ":"); idx >= 0 && idx < len(line)-1 {
			s.markReady(strings.TrimSpace(line[idx+1:]))
			return
		}
	}
	if strings.Contains(line, startedBannerZH) {
		s.markReady("")
	}
}

// markReady performs the starting→ready transition. It is idempotent:
// later matching lines are ignored and readiness observers fire once.
func (s *Supervisor) markReady(token string) {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return
	}
	if token != "" {
		s.token = token
	}
	token = s.token
	s.state = StateReady
	observers := s.readyObservers
	close(s.readyCh)
	s.mu.Unlock()

	s.logger.Info("NapCat-QCE ready", zap.Bool("token_extracted", token != ""))
	for _, fn := range observers {
		fn(token)
	}
}

// watchExit waits for the process to finish and releases any waiters.
func (s *Supervisor) watchExit(cmd *exec.Cmd, pw *io.PipeWriter) {
	err := cmd.Wait()
	pw.Close()

	code := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		code = exitErr.ExitCode()
	} else if err != nil {
		code = -1
	}

	s.mu.Lock()
	s.exitCode = code
	switch s.state {
	case StateStarting:
		// Died before readiness; not restarted, a half-initialized
		// service is unsafe to relaunch blindly.
		s.state = StateFailed
	case StateReady:
		s.state = StateStopped
	}
	close(s.exitCh)
	s.mu.Unlock()

	s.logger.Info("NapCat-QCE exited", zap.Int("exit_code", code))
}

// Stop terminates the service. It is idempotent: a supervisor that never
// started, already stopped or already failed is a no-op. Otherwise it
// requests graceful termination and waits up to grace before force
// killing. Stop never returns an error for an already-dead process.
func (s *Supervisor) Stop(ctx context.Context, grace time.Duration) error {
	s.mu.Lock()
	switch s.state {
	case StateNotStarted, StateStopped, StateFailed:
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopping
	cmd := s.cmd
	exitCh := s.exitCh
	s.mu.Unlock()

	if grace <= 0 {
		grace = DefaultStopGrace
	}

	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// Signalling may fail for an already-dead process or an
			// unsupported platform; escalate directly.
			_ = cmd.Process.Kill()
		}

		timer := time.NewTimer(grace)
		defer timer.Stop()
		select {
		case <-exitCh:
		case <-timer.C:
			_ = cmd.Process.Kill()
			select {
			case <-exitCh:
			case <-ctx.Done():
			}
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		}
	}

	s.mu.Lock()
	s.state = StateStopped
	s.token = ""
	s.mu.Unlock()

	s.logger.Info("NapCat-QCE stopped")
	return nil
}

// Restart stops the service and starts it again.
func (s *Supervisor) Restart(ctx context.Context, opts StartOptions) error {
	if err := s.Stop(ctx, DefaultStopGrace); err != nil {
		return err
	}
	s.mu.Lock()
	s.state = StateNotStarted
	s.mu.Unlock()
	return s.Start(ctx, opts)
}

// State returns the current lifecycle state.
func (s *Supervisor) State() ProcessState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the access token extracted from the readiness line, or empty.
func (s *Supervisor) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// PID returns the process id, or 0 when no process is owned.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd != nil && s.cmd.Process != nil {
		return s.cmd.Process.Pid
	}
	return 0
}

// IsRunning reports whether the supervised process is alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exitCh == nil {
		return false
	}
	select {
	case <-s.exitCh:
		return false
	default:
		return s.state == StateStarting || s.state == StateReady || s.state == StateStopping
	}
}

// IsReady reports whether the service has signalled readiness and is still running.
func (s *Supervisor) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		return false
	}
	select {
	case <-s.exitCh:
		return false
	default:
		return true
	}
}

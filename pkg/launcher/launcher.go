package launcher

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/shuakami/napcat-qce-go/internal/common/config"
	"github.com/shuakami/napcat-qce-go/internal/common/logger"
	"github.com/shuakami/napcat-qce-go/pkg/client"
)

// Launcher ties the process supervisor and the token resolver together:
// it brings the NapCat-QCE service up, resolves a credential, and hands
// back a ready-to-use client.
type Launcher struct {
	cfg        config.ServiceConfig
	supervisor *Supervisor
	resolver   *TokenResolver
	logger     *logger.Logger

	ownsProcess bool
}

// NewLauncher creates a launcher for the given service configuration.
// Empty install and QQ paths are auto-discovered.
func NewLauncher(cfg config.ServiceConfig) *Launcher {
	if cfg.NapcatPath == "" {
		cfg.NapcatPath = FindInstallPath()
	}
	if cfg.QQPath == "" {
		cfg.QQPath = FindQQPath()
	}

	sup := NewSupervisor(SupervisorConfig{
		InstallPath:  cfg.NapcatPath,
		QQPath:       cfg.QQPath,
		UserMode:     cfg.UserMode,
		AutoLoginUin: cfg.AutoLoginUin,
	})

	resolver := NewTokenResolver()
	resolver.SupervisorToken = sup.Token

	return &Launcher{
		cfg:        cfg,
		supervisor: sup,
		resolver:   resolver,
		logger:     logger.Default().WithFields(zap.String("component", "launcher")),
	}
}

// Supervisor exposes the underlying process supervisor.
func (l *Launcher) Supervisor() *Supervisor {
	return l.supervisor
}

// Start ensures a reachable service and returns an authenticated client.
//
// When the service is already running and answering on the configured
// port, no process is spawned and Close will not stop it. Otherwise the
// service is launched, awaited until ready, and owned by this launcher.
func (l *Launcher) Start(ctx context.Context) (*client.Client, error) {
	// A service someone else started is left alone.
	if probe := l.newClient(""); probe.IsConnected(ctx) {
		cred, err := l.resolver.Resolve(l.cfg.Token)
		if err != nil {
			return nil, err
		}
		l.logger.Info("reusing running NapCat-QCE service",
			zap.String("token_source", cred.Source))
		return l.newClient(cred.Token), nil
	}

	startTimeout := time.Duration(l.cfg.StartTimeout) * time.Second
	if startTimeout <= 0 {
		startTimeout = 60 * time.Second
	}

	if err := l.supervisor.Start(ctx, StartOptions{
		WaitForReady: true,
		Timeout:      startTimeout,
	}); err != nil {
		return nil, err
	}
	l.ownsProcess = true

	cred, err := l.resolver.Resolve(l.cfg.Token)
	if err != nil {
		// The service is up but unusable without a credential; don't
		// leave an orphan behind.
		stopCtx, cancel := context.WithTimeout(context.Background(), DefaultStopGrace+time.Second)
		defer cancel()
		_ = l.supervisor.Stop(stopCtx, l.stopGrace())
		return nil, err
	}

	l.logger.Info("service launched",
		zap.Int("pid", l.supervisor.PID()),
		zap.String("token_source", cred.Source))
	return l.newClient(cred.Token), nil
}

// Close stops the service if this launcher started it. Closing a
// launcher that attached to an external service is a no-op.
func (l *Launcher) Close(ctx context.Context) error {
	if !l.ownsProcess {
		return nil
	}
	return l.supervisor.Stop(ctx, l.stopGrace())
}

func (l *Launcher) stopGrace() time.Duration {
	if l.cfg.StopGrace > 0 {
		return time.Duration(l.cfg.StopGrace) * time.Second
	}
	return DefaultStopGrace
}

func (l *Launcher) newClient(token string) *client.Client {
	return client.New(client.Config{
		Host:  l.cfg.Host,
		Port:  l.cfg.Port,
		Token: token,
	})
}

// RunWithService starts the service, runs fn with a connected client,
// and always tears the service down afterwards, even when fn panics.
func RunWithService(ctx context.Context, cfg config.ServiceConfig, fn func(c *client.Client) error) error {
	l := NewLauncher(cfg)
	c, err := l.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), l.stopGrace()+5*time.Second)
		defer cancel()
		_ = l.Close(stopCtx)
		c.Close()
	}()

	return fn(c)
}

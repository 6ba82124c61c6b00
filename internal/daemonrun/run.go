// Package daemonrun wires configuration, logging, storage, and the platform
// client into a running perch daemon process.
package daemonrun

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"perch/internal/config"
	"perch/internal/daemon"
	"perch/internal/enrich"
	"perch/internal/ledger"
	"perch/internal/lifecycle"
	"perch/internal/logging"
	"perch/internal/metrics"
	"perch/internal/notifications"
	"perch/internal/platform"
	"perch/internal/poller"
	"perch/internal/retry"
	"perch/internal/scheduler"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the perch daemon runtime loop and blocks until a termination
// signal arrives or startup fails.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("perch-%s.log", runID))

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update perch.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "perch-*.log", Exclude: []string{logPath}},
	)

	pidPath := filepath.Join(cfg.Paths.LogDir, "perch.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := ledger.Open(cfg)
	if err != nil {
		logger.Error("open broadcast ledger", logging.Error(err))
		return err
	}
	defer store.Close()

	notifier := notifications.NewService(cfg)
	m := metrics.New()
	client := platform.NewHTTPClient(cfg, logger)
	exec := retry.NewExecutor(cfg.RetryDelay(), logger,
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithAttemptHook(func(operation string, _ int, _ error) {
			m.IncRetryAttempt(operation)
		}),
	)

	manager, err := lifecycle.NewManager(cfg, store, client, exec, notifier, m, logger)
	if err != nil {
		return fmt.Errorf("create lifecycle manager: %w", err)
	}
	driver, err := scheduler.New(cfg, store, client, manager, notifier, m, logger)
	if err != nil {
		return fmt.Errorf("create schedule driver: %w", err)
	}

	var completionPoller *poller.Poller
	if cfg.Enrichment.Enabled {
		pipeline := enrich.NewPipeline(cfg, store, client, exec, notifier, m, logger, nil, nil)
		completionPoller = poller.New(cfg, store, client, pipeline, m, logger)
	} else {
		completionPoller = poller.New(cfg, store, client, nil, m, logger)
	}

	d, err := daemon.New(cfg, store, driver, completionPoller, m, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logger.Error("daemon start failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and platform credentials"),
		)
		notifyFatal(signalCtx, notifier, err)
		return err
	}

	select {
	case <-signalCtx.Done():
		logger.Info("perch daemon shutting down")
		return nil
	case <-d.Failed():
		err := d.RunError()
		logger.Error("perch daemon exiting after driver failure", logging.Error(err))
		notifyFatal(context.Background(), notifier, err)
		return err
	}
}

// notifyFatal reports an unrecoverable failure so the operator hears about
// it even when no one watches the logs.
func notifyFatal(ctx context.Context, notifier notifications.Service, cause error) {
	payload := notifications.Payload{"error": cause.Error()}
	if err := notifier.Publish(ctx, notifications.EventError, payload); err != nil {
		fmt.Fprintf(os.Stderr, "warn: fatal error notification failed: %v\n", err)
	}
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "perch.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

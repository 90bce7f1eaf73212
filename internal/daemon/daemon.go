package daemon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Default timeouts, matching what engines of this kind need on slow hosts.
const (
	DefaultStartTimeout           = 25 * time.Second
	DefaultStopTimeout            = 60 * time.Second
	DefaultLogFileActivityTimeout = 12 * time.Second
)

const (
	// readyPollInterval is how often readiness is re-checked during Start.
	readyPollInterval = 100 * time.Millisecond

	// stopPollInterval is how often process death is re-checked during Stop.
	stopPollInterval = 100 * time.Millisecond

	// startWaitDelay bounds how long we wait for a daemonized child that kept
	// the start command's stdout/stderr open.
	startWaitDelay = time.Second

	// maxLogExcerpt caps the log bytes included in a StartError.
	maxLogExcerpt = 4096
)

// Controller is the daemon-control capability the supervisor depends on.
type Controller interface {
	// Start launches the daemon and blocks until it accepts connections.
	// It returns ErrAlreadyStarted or a *StartError on failure.
	Start(ctx context.Context) error

	// Stop terminates the daemon named by the PID file.
	Stop(ctx context.Context) error

	// PID returns the PID recorded in the PID file.
	PID() (int, error)

	// Ping checks once whether the daemon accepts connections.
	Ping(ctx context.Context) error
}

// Config describes one self-daemonizing process.
type Config struct {
	// Identifier names the daemon in messages and logs.
	Identifier string

	// StartCommand is the argv that makes the daemon go into the background.
	// It is executed directly, without a shell.
	StartCommand []string

	// Env are additional environment variables (key=value format).
	Env []string

	// WorkDir is the working directory for the start command.
	WorkDir string

	// Ping is where the daemon listens once it is ready.
	Ping PingSpec

	// PIDFile is where the daemon writes its PID.
	PIDFile string

	// LogFile is where the daemon writes its log. Optional.
	LogFile string

	// StartTimeout bounds the whole of Start.
	StartTimeout time.Duration

	// StopTimeout is how long Stop waits after SIGTERM before SIGKILL.
	StopTimeout time.Duration

	// LogFileActivityTimeout is how long the log file may stay unchanged while
	// no PID file exists before the daemon is presumed dead.
	LogFileActivityTimeout time.Duration
}

// Logger defines the logging interface for the daemon controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Daemon controls a self-daemonizing process through its PID file, log file
// and listening socket.
type Daemon struct {
	config Config
	logger Logger
	dialer Dialer
}

var _ Controller = (*Daemon)(nil)

// New creates a Daemon, applying defaults for zero timeouts.
func New(cfg Config) (*Daemon, error) {
	if cfg.Identifier == "" {
		cfg.Identifier = "daemon"
	}
	if cfg.StartTimeout == 0 {
		cfg.StartTimeout = DefaultStartTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = DefaultStopTimeout
	}
	if cfg.LogFileActivityTimeout == 0 {
		cfg.LogFileActivityTimeout = DefaultLogFileActivityTimeout
	}

	if len(cfg.StartCommand) == 0 || cfg.StartCommand[0] == "" {
		return nil, fmt.Errorf("%w: start command is required", ErrInvalidConfig)
	}
	if cfg.PIDFile == "" {
		return nil, fmt.Errorf("%w: PID file is required", ErrInvalidConfig)
	}
	if err := cfg.Ping.Validate(); err != nil {
		return nil, err
	}

	return &Daemon{
		config: cfg,
		logger: noopLogger{},
		dialer: &net.Dialer{},
	}, nil
}

// SetLogger sets the logger for the daemon.
func (d *Daemon) SetLogger(logger Logger) {
	d.logger = logger
}

// SetDialer replaces the dialer used for pings.
func (d *Daemon) SetDialer(dialer Dialer) {
	d.dialer = dialer
}

// Config returns the configuration after defaults were applied.
func (d *Daemon) Config() Config {
	return d.config
}

// Start launches the daemon and waits until it is reachable on its ping target.
func (d *Daemon) Start(ctx context.Context) error {
	if err := d.checkExistingPIDFile(); err != nil {
		return err
	}

	logOffset := fileSize(d.config.LogFile)
	startedAt := time.Now()

	startCtx, cancel := context.WithTimeout(ctx, d.config.StartTimeout)
	defer cancel()

	d.logger.Info("starting daemon",
		"identifier", d.config.Identifier,
		"command", d.config.StartCommand,
		"ping", d.config.Ping.String(),
	)

	output, err := d.runStartCommand(startCtx)
	if err != nil {
		message := fmt.Sprintf("start command failed: %v", err)
		if errors.Is(startCtx.Err(), context.DeadlineExceeded) {
			message = fmt.Sprintf("start command did not finish within %v", d.config.StartTimeout)
		}
		d.terminateAfterFailedStart()
		return &StartError{
			Identifier: d.config.Identifier,
			Message:    message,
			Output:     output,
			LogExcerpt: d.logExcerpt(logOffset),
			Err:        err,
		}
	}

	pid, err := d.waitForReady(startCtx)
	if err != nil {
		d.terminateAfterFailedStart()
		return &StartError{
			Identifier: d.config.Identifier,
			Message:    err.Error(),
			Output:     output,
			LogExcerpt: d.logExcerpt(logOffset),
			Err:        err,
		}
	}

	d.logger.Info("daemon ready",
		"identifier", d.config.Identifier,
		"pid", pid,
		"elapsed", time.Since(startedAt),
	)
	return nil
}

// checkExistingPIDFile refuses to start over a live daemon and clears stale
// or malformed PID files. A PID file that cannot be read is left alone.
func (d *Daemon) checkExistingPIDFile() error {
	pid, err := readPIDFile(d.config.PIDFile)
	switch {
	case err == nil:
		if processAlive(pid) {
			return ErrAlreadyStarted
		}
		d.logger.Info("removing stale PID file", "path", d.config.PIDFile, "stale_pid", pid)
	case errors.Is(err, ErrNoPIDFile):
		return nil
	case errors.Is(err, ErrInvalidPIDFile):
		d.logger.Warn("removing malformed PID file", "path", d.config.PIDFile, "error", err)
	default:
		return &StartError{
			Identifier: d.config.Identifier,
			Message:    err.Error(),
			Err:        err,
		}
	}

	if rmErr := removePIDFile(d.config.PIDFile); rmErr != nil {
		return &StartError{
			Identifier: d.config.Identifier,
			Message:    rmErr.Error(),
			Err:        rmErr,
		}
	}
	return nil
}

// runStartCommand executes the start command and returns its combined output.
func (d *Daemon) runStartCommand(ctx context.Context) (string, error) {
	argv := d.config.StartCommand
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) //nolint:gosec // argv comes from operator configuration

	// Keep the daemon out of our process group so terminal signals aimed at
	// the supervisor do not reach it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = startWaitDelay

	if d.config.Env != nil {
		cmd.Env = append(os.Environ(), d.config.Env...)
	}
	if d.config.WorkDir != "" {
		cmd.Dir = d.config.WorkDir
	}

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	if errors.Is(err, exec.ErrWaitDelay) {
		// Exit status was success; the backgrounded daemon still holds the pipes.
		err = nil
	}
	return out.String(), err
}

// waitForReady polls until the PID file names a live process that accepts
// connections on the ping target.
func (d *Daemon) waitForReady(ctx context.Context) (int, error) {
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	lastSize, lastMod := fileStat(d.config.LogFile)
	lastActivity := time.Now()

	for {
		pid, pidErr := readPIDFile(d.config.PIDFile)
		switch {
		case pidErr == nil && processAlive(pid):
			if err := Ping(ctx, d.dialer, d.config.Ping); err == nil {
				return pid, nil
			}
		case pidErr == nil:
			return 0, fmt.Errorf("daemon exited during startup (PID %d)", pid)
		default:
			size, mod := fileStat(d.config.LogFile)
			if size != lastSize || !mod.Equal(lastMod) {
				lastSize, lastMod = size, mod
				lastActivity = time.Now()
			} else if time.Since(lastActivity) > d.config.LogFileActivityTimeout {
				return 0, fmt.Errorf("daemon wrote no PID file and its log file was inactive for %v", d.config.LogFileActivityTimeout)
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return 0, fmt.Errorf("timed out after %v waiting for the daemon to accept connections on %s",
					d.config.StartTimeout, d.config.Ping)
			}
			return 0, fmt.Errorf("cancelled while waiting for daemon: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// terminateAfterFailedStart sends SIGTERM to a daemon that got as far as
// writing its PID file.
func (d *Daemon) terminateAfterFailedStart() {
	pid, err := readPIDFile(d.config.PIDFile)
	if err != nil || !processAlive(pid) {
		return
	}
	d.logger.Warn("terminating daemon after failed start", "identifier", d.config.Identifier, "pid", pid)
	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		d.logger.Warn("failed to terminate daemon", "pid", pid, "error", err)
	}
}

// Stop sends SIGTERM to the daemon and escalates to SIGKILL after StopTimeout.
// Stopping a daemon that is not running is a no-op.
func (d *Daemon) Stop(ctx context.Context) error {
	pid, err := readPIDFile(d.config.PIDFile)
	if errors.Is(err, ErrNoPIDFile) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stopping %s: %w", d.config.Identifier, err)
	}

	if !processAlive(pid) {
		d.logger.Info("removing stale PID file", "path", d.config.PIDFile, "stale_pid", pid)
		return removePIDFile(d.config.PIDFile)
	}

	d.logger.Info("stopping daemon", "identifier", d.config.Identifier, "pid", pid)

	if err := unix.Kill(pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("sending SIGTERM to %s (PID %d): %w", d.config.Identifier, pid, err)
	}

	if d.waitForExit(ctx, pid) {
		d.logger.Info("daemon stopped", "identifier", d.config.Identifier, "pid", pid)
		return removePIDFile(d.config.PIDFile)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stopping %s: %w", d.config.Identifier, err)
	}

	d.logger.Warn("graceful shutdown timeout, sending SIGKILL",
		"identifier", d.config.Identifier,
		"pid", pid,
		"timeout", d.config.StopTimeout,
	)
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("killing %s (PID %d): %w", d.config.Identifier, pid, err)
	}
	if rmErr := removePIDFile(d.config.PIDFile); rmErr != nil {
		d.logger.Warn("failed to remove PID file", "path", d.config.PIDFile, "error", rmErr)
	}
	return fmt.Errorf("%w: %s (PID %d) killed after %v", ErrStopTimeout, d.config.Identifier, pid, d.config.StopTimeout)
}

// waitForExit reports whether pid died within StopTimeout.
func (d *Daemon) waitForExit(ctx context.Context, pid int) bool {
	ticker := time.NewTicker(stopPollInterval)
	defer ticker.Stop()
	timeout := time.NewTimer(d.config.StopTimeout)
	defer timeout.Stop()

	for {
		if !processAlive(pid) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-timeout.C:
			return !processAlive(pid)
		case <-ticker.C:
		}
	}
}

// PID returns the PID recorded in the PID file.
func (d *Daemon) PID() (int, error) {
	return readPIDFile(d.config.PIDFile)
}

// Ping checks once whether the daemon accepts connections.
func (d *Daemon) Ping(ctx context.Context) error {
	return Ping(ctx, d.dialer, d.config.Ping)
}

// fileSize returns the size of path, or 0 if it cannot be read.
func fileSize(path string) int64 {
	size, _ := fileStat(path)
	return size
}

// fileStat returns size and modification time of path; zero values if absent.
func fileStat(path string) (int64, time.Time) {
	if path == "" {
		return 0, time.Time{}
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}
	}
	return info.Size(), info.ModTime()
}

// logExcerpt returns what was appended to the log file after offset, capped to
// its last maxLogExcerpt bytes.
func (d *Daemon) logExcerpt(offset int64) string {
	if d.config.LogFile == "" {
		return ""
	}
	f, err := os.Open(d.config.LogFile)
	if err != nil {
		return ""
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() <= offset {
		return ""
	}
	if info.Size()-offset > maxLogExcerpt {
		offset = info.Size() - maxLogExcerpt
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return ""
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return ""
	}
	return string(data)
}

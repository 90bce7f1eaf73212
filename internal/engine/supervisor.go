package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/gray-logic-edge/internal/daemon"
)

// Logger defines the logging interface for the engine package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ControllerFactory builds the daemon controller for a daemon.Config.
type ControllerFactory func(cfg daemon.Config) (daemon.Controller, error)

// Handle is what the supervisor keeps about a started engine. It never holds
// the OS process; PID is read back from the PID file.
type Handle struct {
	Binary   string
	Ping     daemon.PingSpec
	PIDFile  string
	LogFile  string
	Timeouts Timeouts
	Started  time.Time
}

// Status is a point-in-time view of the engine.
type Status struct {
	State     State  `json:"state"`
	PID       int    `json:"pid,omitempty"`
	Reachable bool   `json:"reachable"`
	Target    string `json:"target"`
}

// Supervisor drives one engine instance through start, reload and stop.
//
// Thread Safety: accessors may be called from any goroutine. Start, Stop and
// Reload are expected to be called from one goroutine at a time.
type Supervisor struct {
	opts      Options
	synth     *Synthesizer
	validator *Validator
	factory   ControllerFactory
	notifier  Notifier
	dialer    daemon.Dialer
	logger    Logger

	// daemonLogger, when set, is handed to the daemon controller instead of logger.
	daemonLogger Logger

	mu         sync.RWMutex
	state      State
	stateSince time.Time
	controller daemon.Controller
	handle     *Handle
}

// NewSupervisor validates opts and creates a stopped Supervisor.
func NewSupervisor(opts Options) (*Supervisor, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Supervisor{
		opts:       opts,
		synth:      NewSynthesizer(),
		validator:  NewValidator(),
		notifier:   noopNotifier{},
		dialer:     &net.Dialer{},
		logger:     noopLogger{},
		state:      StateStopped,
		stateSince: time.Now(),
	}
	s.factory = s.newDaemon
	return s, nil
}

// SetLogger sets the logger for the supervisor and its collaborators.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
	s.synth.SetLogger(logger)
	s.validator.SetLogger(logger)
}

// SetDaemonLogger sets the logger of the default daemon controller. It must be
// called before the first operation that reaches the daemon.
func (s *Supervisor) SetDaemonLogger(logger Logger) {
	s.daemonLogger = logger
}

// SetNotifier sets the receiver of lifecycle events.
func (s *Supervisor) SetNotifier(n Notifier) {
	if n == nil {
		n = noopNotifier{}
	}
	s.notifier = n
}

// SetControllerFactory replaces the daemon controller implementation.
func (s *Supervisor) SetControllerFactory(factory ControllerFactory) {
	s.factory = factory
	s.mu.Lock()
	s.controller = nil
	s.mu.Unlock()
}

// SetDialer sets the dialer used while waiting for the engine to exit.
func (s *Supervisor) SetDialer(dialer daemon.Dialer) {
	s.dialer = dialer
}

// SetOutput sets where config dumps and debug mirrors are written.
func (s *Supervisor) SetOutput(w io.Writer) {
	s.synth.SetOutput(w)
}

// Synthesizer returns the config synthesizer.
func (s *Supervisor) Synthesizer() *Synthesizer {
	return s.synth
}

// Validator returns the config validator.
func (s *Supervisor) Validator() *Validator {
	return s.validator
}

// Options returns the options with defaults applied.
func (s *Supervisor) Options() Options {
	return s.opts
}

// State returns the current supervision state.
func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handle returns the handle of the started engine, or nil.
func (s *Supervisor) Handle() *Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return nil
	}
	h := *s.handle
	return &h
}

// DaemonConfig is the daemon-control record for the engine.
func (s *Supervisor) DaemonConfig() daemon.Config {
	o := s.opts
	return daemon.Config{
		Identifier:             o.Identifier,
		StartCommand:           []string{o.Binary, "-c", o.ConfigPath(), "-p", o.PrefixArg()},
		WorkDir:                o.WorkingDir,
		Ping:                   o.PingTarget(),
		PIDFile:                o.PIDFile,
		LogFile:                o.LogFile,
		StartTimeout:           o.Timeouts.Start,
		StopTimeout:            o.Timeouts.Stop,
		LogFileActivityTimeout: o.Timeouts.LogActivity,
	}
}

func (s *Supervisor) newDaemon(cfg daemon.Config) (daemon.Controller, error) {
	d, err := daemon.New(cfg)
	if err != nil {
		return nil, err
	}
	logger := s.daemonLogger
	if logger == nil {
		logger = s.logger
	}
	d.SetLogger(logger)
	return d, nil
}

func (s *Supervisor) controllerFor() (daemon.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controller != nil {
		return s.controller, nil
	}
	ctrl, err := s.factory(s.DaemonConfig())
	if err != nil {
		return nil, fmt.Errorf("creating daemon controller: %w", err)
	}
	s.controller = ctrl
	return ctrl, nil
}

// Start renders and validates the config and starts the engine.
//
// In debug-config mode the rendered config is printed and ErrConfigDumped is
// returned without validating or starting anything. Start failures are
// *TemplateError, *ConfigInvalidError, *AlreadyRunningError or *StartError.
func (s *Supervisor) Start(ctx context.Context) error {
	if st := s.State(); st == StateStarting || st == StateRunning || st == StateStopping {
		return fmt.Errorf("%w: engine is %s", ErrBusy, st)
	}
	s.transition(ctx, StateStarting, 0, nil)

	configPath, err := s.synth.Write(s.opts)
	if err != nil {
		return s.fail(ctx, err)
	}

	if s.opts.DebugConfig {
		if err := s.synth.Dump(s.opts); err != nil {
			return s.fail(ctx, err)
		}
		s.transition(ctx, StateStopped, 0, nil)
		return ErrConfigDumped
	}

	if err := s.validator.Validate(ctx, s.opts.Binary, configPath, s.opts.WorkingDir, s.opts.ConfigTemplate); err != nil {
		return s.fail(ctx, err)
	}

	ctrl, err := s.controllerFor()
	if err != nil {
		return s.fail(ctx, &StartError{Err: err})
	}

	if err := ctrl.Start(ctx); err != nil {
		if errors.Is(err, daemon.ErrAlreadyStarted) {
			pid, pidErr := ctrl.PID()
			if pidErr != nil {
				s.logger.Debug("could not read PID of running engine", "error", pidErr)
				pid = 0
			}
			return s.fail(ctx, &AlreadyRunningError{PID: pid, Err: err})
		}
		return s.fail(ctx, &StartError{Err: err})
	}

	pid, err := ctrl.PID()
	if err != nil {
		s.logger.Debug("engine started but PID unknown", "error", err)
		pid = 0
	}

	s.mu.Lock()
	s.handle = &Handle{
		Binary:   s.opts.Binary,
		Ping:     s.opts.PingTarget(),
		PIDFile:  s.opts.PIDFile,
		LogFile:  s.opts.LogFile,
		Timeouts: s.opts.Timeouts,
		Started:  time.Now(),
	}
	s.mu.Unlock()

	s.transition(ctx, StateRunning, pid, nil)
	s.logger.Info("engine started", "engine", s.opts.Identifier, "pid", pid, "listen", s.opts.PingTarget().String())
	return nil
}

// Reload rewrites the config and asks the engine at pid to re-read it. The
// config is not validated; an invalid one is reported by the engine in its
// own log. Signal delivery failures are only logged.
func (s *Supervisor) Reload(pid int) error {
	if _, err := s.synth.Write(s.opts); err != nil {
		return err
	}

	if pid <= 0 {
		s.logger.Debug("reload signal not sent", "pid", pid, "reason", "no process")
		return nil
	}
	if err := unix.Kill(pid, unix.SIGHUP); err != nil {
		s.logger.Debug("reload signal not delivered", "pid", pid, "error", err)
		return nil
	}
	s.logger.Info("engine reload requested", "engine", s.opts.Identifier, "pid", pid)
	return nil
}

// ReloadRunning reloads the engine named by the PID file.
func (s *Supervisor) ReloadRunning() error {
	pid, err := s.PID()
	if err != nil {
		return fmt.Errorf("engine %s is not running: %w", s.opts.Identifier, err)
	}
	return s.Reload(pid)
}

// Stop terminates the engine and waits until its socket is gone.
func (s *Supervisor) Stop(ctx context.Context) error {
	ctrl, err := s.controllerFor()
	if err != nil {
		return err
	}

	pid, err := ctrl.PID()
	if err != nil {
		s.logger.Debug("stopping engine with unknown PID", "error", err)
		pid = 0
	}
	s.transition(ctx, StateStopping, pid, nil)

	stopErr := ctrl.Stop(ctx)
	if stopErr != nil && !errors.Is(stopErr, daemon.ErrStopTimeout) {
		return s.fail(ctx, fmt.Errorf("stopping engine: %w", stopErr))
	}
	if stopErr != nil {
		s.logger.Warn("engine did not stop gracefully", "engine", s.opts.Identifier, "pid", pid)
	}

	if err := s.WaitForExit(ctx); err != nil {
		return s.fail(ctx, err)
	}

	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()

	s.transition(ctx, StateStopped, pid, stopErr)
	s.logger.Info("engine stopped", "engine", s.opts.Identifier, "pid", pid)
	return stopErr
}

// WaitForExit blocks until the engine's listener is gone or ctx is done.
func (s *Supervisor) WaitForExit(ctx context.Context) error {
	return WaitForExit(ctx, s.dialer, s.opts.PingTarget())
}

// MarkExited records that the engine went away without Stop being called.
func (s *Supervisor) MarkExited(ctx context.Context) {
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()
	s.transition(ctx, StateStopped, 0, nil)
}

// PID reads the running engine's PID from its PID file.
func (s *Supervisor) PID() (int, error) {
	ctrl, err := s.controllerFor()
	if err != nil {
		return 0, err
	}
	return ctrl.PID()
}

// Status reports the engine as observed through its PID file and listener.
func (s *Supervisor) Status(ctx context.Context) (Status, error) {
	ctrl, err := s.controllerFor()
	if err != nil {
		return Status{}, err
	}

	st := Status{
		State:  s.State(),
		Target: s.opts.PingTarget().String(),
	}
	if pid, err := ctrl.PID(); err == nil {
		st.PID = pid
	}
	st.Reachable = ctrl.Ping(ctx) == nil

	// A fresh supervisor has not started anything itself; report what it sees.
	if st.State == StateStopped && st.Reachable {
		st.State = StateRunning
	}
	return st, nil
}

func (s *Supervisor) fail(ctx context.Context, err error) error {
	s.transition(ctx, StateFailed, 0, err)
	return err
}

func (s *Supervisor) transition(ctx context.Context, next State, pid int, err error) {
	s.mu.Lock()
	prev, since := s.state, s.stateSince
	s.state = next
	s.stateSince = time.Now()
	s.mu.Unlock()

	ev := newEvent(s.opts.Identifier, prev, next, pid, err, since)
	s.logger.Debug("engine state changed",
		"engine", ev.Engine,
		"from", string(prev),
		"to", string(next),
		"event_id", ev.ID,
	)
	s.notifier.Notify(ctx, ev)
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-edge/internal/daemon"
	"github.com/nerrad567/gray-logic-edge/internal/engine"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
)

// stopGrace is added to the engine's stop timeout when the supervisor stops
// the engine on its own shutdown.
const stopGrace = 10 * time.Second

// edge holds what every subcommand needs once the configuration is loaded.
type edge struct {
	configPath string

	cfg *config.Config
	log *logging.Logger
	sup *engine.Supervisor

	mqtt     *mqtt.Client
	influx   *influxdb.Client
	sinkErrs map[string]error
	closers  []func()
}

// newRootCmd builds the command tree. log is used until the configuration
// has been loaded.
func newRootCmd(log *logging.Logger) *cobra.Command {
	e := &edge{log: log, sinkErrs: make(map[string]error)}

	root := &cobra.Command{
		Use:   "graylogic-edge",
		Short: "Supervise an externally managed server engine",
		Long: `graylogic-edge renders the engine configuration from a template, validates
it with the engine's own config test and starts, reloads or stops the engine.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&e.configPath, "config", "c", getConfigPath(),
		"configuration file (env "+configEnv+")")

	root.AddCommand(
		newStartCmd(e),
		newStopCmd(e),
		newReloadCmd(e),
		newStatusCmd(e),
	)
	return root
}

func newStartCmd(e *edge) *cobra.Command {
	var (
		debugConfig bool
		wait        bool
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Render the config, validate it and start the engine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := e.setup(ctx, cmd, func(o *engine.Options) { o.DebugConfig = debugConfig }); err != nil {
				return err
			}
			defer e.close()

			err := e.sup.Start(ctx)
			if errors.Is(err, engine.ErrConfigDumped) {
				return nil
			}
			if err != nil {
				return err
			}
			if !wait {
				return nil
			}
			return e.supervise(ctx)
		},
	}
	cmd.Flags().BoolVar(&debugConfig, "debug-config", false, "print the rendered config and exit without starting")
	cmd.Flags().BoolVar(&wait, "wait", false, "stay in the foreground until the engine exits")
	return cmd
}

func newStopCmd(e *edge) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the engine and wait until its listener is gone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := e.setup(ctx, cmd, nil); err != nil {
				return err
			}
			defer e.close()
			return e.stop(ctx)
		},
	}
}

func newReloadCmd(e *edge) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Rewrite the config and signal the running engine to re-read it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.setup(cmd.Context(), cmd, nil); err != nil {
				return err
			}
			defer e.close()
			return e.sup.ReloadRunning()
		},
	}
}

func newStatusCmd(e *edge) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the engine is running",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := e.load(cmd); err != nil {
				return err
			}
			e.connectSinks(ctx)
			defer e.close()

			st, err := e.sup.Status(ctx)
			if err != nil {
				return err
			}
			report := statusReport{Status: st, Sinks: e.sinkHealth(ctx)}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprint(out, report.text(e.sup.Options().Identifier))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")
	return cmd
}

// statusReport is the output of the status command.
type statusReport struct {
	engine.Status
	Sinks map[string]string `json:"sinks,omitempty"`
}

func (r statusReport) text(identifier string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", identifier, formatStatus(r.Status))
	names := make([]string, 0, len(r.Sinks))
	for name := range r.Sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "  %s: %s\n", name, r.Sinks[name])
	}
	return b.String()
}

func formatStatus(st engine.Status) string {
	s := string(st.State)
	if st.PID > 0 {
		s += fmt.Sprintf(" (pid %d)", st.PID)
	}
	if st.Reachable {
		s += ", listening on " + st.Target
	} else {
		s += ", not listening on " + st.Target
	}
	return s
}

// load reads the configuration and builds the supervisor without connecting
// to any broker.
func (e *edge) load(cmd *cobra.Command, mutate ...func(*engine.Options)) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		e.log.Error("configuration not loaded", "path", e.configPath, "error", err)
		return fmt.Errorf("loading config: %w", err)
	}
	e.cfg = cfg
	e.log = logging.New(cfg.Logging, version)
	e.log.Debug("configuration loaded", "path", e.configPath, "command", cmd.Name(), "commit", commit)

	opts := engineOptions(cfg.Engine)
	for _, m := range mutate {
		if m != nil {
			m(&opts)
		}
	}

	sup, err := engine.NewSupervisor(opts)
	if err != nil {
		return fmt.Errorf("configuring engine: %w", err)
	}
	sup.SetLogger(e.log.With("component", "engine"))
	sup.SetDaemonLogger(e.log.With("component", "daemon"))
	sup.SetOutput(cmd.OutOrStdout())
	e.sup = sup
	return nil
}

// setup loads the configuration and wires the lifecycle notifiers.
func (e *edge) setup(ctx context.Context, cmd *cobra.Command, mutate func(*engine.Options)) error {
	if err := e.load(cmd, mutate); err != nil {
		return err
	}
	e.connectSinks(ctx)
	e.sup.SetNotifier(e.notifier())
	return nil
}

func (e *edge) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// stop stops the engine. A forced kill after the grace period is not an error.
func (e *edge) stop(ctx context.Context) error {
	err := e.sup.Stop(ctx)
	if errors.Is(err, daemon.ErrStopTimeout) {
		return nil
	}
	return err
}

// supervise stays in the foreground until the engine exits, a stop command
// arrives or the supervisor itself is asked to shut down. Remote commands are
// handled here, on one goroutine.
func (e *edge) supervise(ctx context.Context) error {
	commands := make(chan mqtt.Command, 4)
	if e.mqtt != nil {
		e.subscribeCommands(commands)
	}

	waitCtx, cancelWait := context.WithCancel(ctx)
	defer cancelWait()
	exited := make(chan error, 1)
	go func() { exited <- e.sup.WaitForExit(waitCtx) }()

	for {
		select {
		case err := <-exited:
			if err != nil {
				return err
			}
			e.sup.MarkExited(ctx)
			e.log.Info("engine exited", "engine", e.sup.Options().Identifier)
			return nil

		case cmd := <-commands:
			switch cmd.Action {
			case mqtt.ActionReload:
				if err := e.sup.ReloadRunning(); err != nil {
					e.log.Error("remote reload failed", "request_id", cmd.RequestID, "error", err)
				}
			case mqtt.ActionStop:
				e.log.Info("remote stop requested", "request_id", cmd.RequestID)
				cancelWait()
				return e.stop(ctx)
			}

		case <-ctx.Done():
			e.log.Info("shutdown signal received, stopping engine")
			cancelWait()
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx),
				e.sup.Options().Timeouts.Stop+stopGrace)
			defer cancel()
			return e.stop(stopCtx)
		}
	}
}

func (e *edge) subscribeCommands(commands chan<- mqtt.Command) {
	id := e.sup.Options().Identifier
	topic := mqtt.Topics{}.EngineCommand(id)
	err := e.mqtt.SubscribeCommands(id, func(cmd mqtt.Command) error {
		select {
		case commands <- cmd:
			return nil
		default:
			return fmt.Errorf("command %q dropped: supervisor busy", cmd.Action)
		}
	})
	if err != nil {
		e.log.Warn("remote commands unavailable", "topic", topic, "error", err)
		return
	}
	e.log.Info("accepting remote commands", "topic", topic)
}

// engineOptions maps the engine section of the configuration file.
func engineOptions(c config.EngineConfig) engine.Options {
	opts := engine.Options{
		Identifier:           c.Identifier,
		Binary:               c.Binary,
		WorkingDir:           c.WorkingDir,
		SocketFile:           c.SocketFile,
		Address:              c.Address,
		Port:                 c.Port,
		SSLPort:              c.SSL.Port,
		SSLCertificate:       c.SSL.Certificate,
		SSLCertificateKey:    c.SSL.CertificateKey,
		PIDFile:              c.PIDFile,
		LogFile:              c.LogFile,
		User:                 c.User,
		ConfigTemplate:       c.ConfigTemplate,
		Directives:           c.Directives,
		DirectivePrefix:      c.DirectivePrefix,
		RawDirectivePrefixes: c.RawDirectivePrefixes,
		Timeouts: engine.Timeouts{
			Start:       c.Timeouts.Start,
			Stop:        c.Timeouts.Stop,
			LogActivity: c.Timeouts.LogActivity,
		},
	}
	for _, loc := range c.Locations {
		opts.Locations = append(opts.Locations, engine.Location{Path: loc.Path, Directives: loc.Directives})
	}
	return opts
}

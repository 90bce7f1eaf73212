package engine

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-edge/internal/daemon"
)

// Defaults applied by Options.withDefaults.
const (
	DefaultIdentifier      = "Engine"
	DefaultDirectivePrefix = "engine_"

	// ConfigFileName is the rendered config inside the working directory.
	ConfigFileName = "engine.conf"
)

// Timeouts is the timeout policy handed to the daemon controller.
type Timeouts struct {
	Start       time.Duration
	Stop        time.Duration
	LogActivity time.Duration
}

// Location is a named block of per-location directives, rendered with optionIn.
type Location struct {
	Path       string
	Directives map[string]any
}

// Options configures one supervised engine instance.
// Exactly one of SocketFile or Address+Port must be set.
type Options struct {
	// Identifier tags the daemon in messages, logs and event topics.
	Identifier string

	// Binary is the engine executable.
	Binary string

	// WorkingDir holds the rendered config and is passed to the engine as its prefix.
	WorkingDir string

	SocketFile string
	Address    string
	Port       int

	// SSLPort enables an additional SSL listener on Address.
	SSLPort           int
	SSLCertificate    string
	SSLCertificateKey string

	PIDFile string
	LogFile string

	// User, when set, is the account engine workers run as.
	User string

	// ConfigTemplate overrides the built-in template with a file on disk.
	ConfigTemplate string

	// DebugConfig prints the rendered config and stops before validation.
	DebugConfig bool

	// Directives are passthrough engine settings rendered by the option helper.
	Directives map[string]any

	// DirectivePrefix is prepended to option names to form directive names.
	DirectivePrefix string

	// RawDirectivePrefixes mark option names that already are directive names.
	RawDirectivePrefixes []string

	Locations []Location
	Timeouts  Timeouts
}

// withDefaults returns a copy with empty fields filled in.
func (o Options) withDefaults() Options {
	if o.Identifier == "" {
		o.Identifier = DefaultIdentifier
	}
	if o.DirectivePrefix == "" {
		o.DirectivePrefix = DefaultDirectivePrefix
	}
	if o.WorkingDir != "" {
		if o.PIDFile == "" {
			o.PIDFile = filepath.Join(o.WorkingDir, "engine.pid")
		}
		if o.LogFile == "" {
			o.LogFile = filepath.Join(o.WorkingDir, "engine.log")
		}
	}
	if o.Timeouts.Start == 0 {
		o.Timeouts.Start = daemon.DefaultStartTimeout
	}
	if o.Timeouts.Stop == 0 {
		o.Timeouts.Stop = daemon.DefaultStopTimeout
	}
	if o.Timeouts.LogActivity == 0 {
		o.Timeouts.LogActivity = daemon.DefaultLogFileActivityTimeout
	}
	return o
}

// Validate checks the option set. Returned errors wrap ErrInvalidOptions.
func (o Options) Validate() error {
	var errs []error

	if o.Binary == "" {
		errs = append(errs, errors.New("binary is required"))
	}
	if o.WorkingDir == "" {
		errs = append(errs, errors.New("working_dir is required"))
	}

	if o.SocketFile != "" {
		if o.Address != "" || o.Port != 0 {
			errs = append(errs, errors.New("socket_file cannot be combined with address/port"))
		}
		if o.SSLPort != 0 {
			errs = append(errs, errors.New("ssl_port requires address/port instead of socket_file"))
		}
	} else {
		if o.Address == "" {
			errs = append(errs, errors.New("either socket_file or address/port is required"))
		}
		if err := checkPort("port", o.Port); err != nil {
			errs = append(errs, err)
		}
		if o.SSLPort != 0 {
			if err := checkPort("ssl_port", o.SSLPort); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if o.SSLPort != 0 && (o.SSLCertificate == "" || o.SSLCertificateKey == "") {
		errs = append(errs, errors.New("ssl_port requires ssl_certificate and ssl_certificate_key"))
	}

	for _, loc := range o.Locations {
		if loc.Path == "" {
			errs = append(errs, errors.New("location path is required"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, errors.Join(errs...))
	}
	return nil
}

func checkPort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", name, port)
	}
	return nil
}

// ConfigPath is where the rendered config is written.
func (o Options) ConfigPath() string {
	return filepath.Join(o.WorkingDir, ConfigFileName)
}

// PrefixArg is the working directory in the form the engine expects for -p.
func (o Options) PrefixArg() string {
	if strings.HasSuffix(o.WorkingDir, "/") {
		return o.WorkingDir
	}
	return o.WorkingDir + "/"
}

// PingTarget is where the engine accepts connections once ready.
func (o Options) PingTarget() daemon.PingSpec {
	if o.SocketFile != "" {
		return daemon.UnixPing(o.SocketFile)
	}
	return daemon.TCPPing(o.Address, o.Port)
}

// SSLPingTarget is the SSL listener, or the socket when one is configured.
func (o Options) SSLPingTarget() daemon.PingSpec {
	if o.SocketFile != "" {
		return daemon.UnixPing(o.SocketFile)
	}
	return daemon.TCPPing(o.Address, o.SSLPort)
}

// ListenAddress is the engine listen argument: unix:<path> or host:port.
func (o Options) ListenAddress() string {
	if o.SocketFile != "" {
		return "unix:" + o.SocketFile
	}
	return net.JoinHostPort(o.Address, strconv.Itoa(o.Port))
}

// ListenAddressSSL is ListenAddress for the SSL listener.
func (o Options) ListenAddressSSL() string {
	if o.SocketFile != "" {
		return "unix:" + o.SocketFile
	}
	return net.JoinHostPort(o.Address, strconv.Itoa(o.SSLPort))
}

// directiveName maps an option name to the engine directive it renders as.
func (o Options) directiveName(option string) string {
	for _, prefix := range o.RawDirectivePrefixes {
		if prefix != "" && strings.HasPrefix(option, prefix) {
			return option
		}
	}
	return o.DirectivePrefix + option
}

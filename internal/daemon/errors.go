package daemon

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for daemon control.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyStarted is returned by Start when the PID file names a live process.
	ErrAlreadyStarted = errors.New("daemon: already started")

	// ErrNoPIDFile is returned by PID when the PID file does not exist.
	ErrNoPIDFile = errors.New("daemon: no PID file")

	// ErrInvalidPIDFile is returned by PID when the PID file content is not a positive integer.
	ErrInvalidPIDFile = errors.New("daemon: invalid PID file")

	// ErrStopTimeout is returned by Stop when the daemon had to be killed.
	ErrStopTimeout = errors.New("daemon: stop timed out")

	// ErrInvalidConfig is returned by New for an unusable Config.
	ErrInvalidConfig = errors.New("daemon: invalid config")
)

// StartError describes why a daemon could not be started.
//
// Message is suitable for showing to an operator as-is; Output holds whatever
// the start command printed and LogExcerpt the lines the daemon appended to its
// log file during the attempt.
type StartError struct {
	Identifier string
	Message    string
	Output     string
	LogExcerpt string
	Err        error
}

func (e *StartError) Error() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s: %s", e.Identifier, e.Message))
	if out := strings.TrimSpace(e.Output); out != "" {
		b.WriteString("\n")
		b.WriteString(out)
	}
	if excerpt := strings.TrimSpace(e.LogExcerpt); excerpt != "" {
		b.WriteString("\nLog file contents:\n")
		b.WriteString(excerpt)
	}
	return b.String()
}

func (e *StartError) Unwrap() error {
	return e.Err
}

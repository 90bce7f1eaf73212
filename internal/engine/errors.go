package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors for the engine package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, engine.ErrConfigDumped) {
//	    // the rendered config was printed, exit successfully
//	}
var (
	// ErrConfigDumped is returned by Start in debug-config mode after the
	// rendered configuration was printed. It is not a failure.
	ErrConfigDumped = errors.New("engine: configuration dumped")

	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("engine: invalid options")

	// ErrBusy is returned when an operation conflicts with the current state.
	ErrBusy = errors.New("engine: supervisor busy")
)

// productName is how the supervisor refers to itself in operator messages.
const productName = "Gray Logic Edge"

// issueTracker is where operators are asked to report built-in template defects.
const issueTracker = "https://github.com/nerrad567/gray-logic-stack/issues"

// TemplateError reports a template that could not be read, parsed or executed.
type TemplateError struct {
	// Path is the template file, or builtin:<name> for embedded templates.
	Path string
	Err  error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("engine config template %s: %v", e.Path, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// ConfigInvalidError reports that the engine rejected the rendered config.
type ConfigInvalidError struct {
	// Diagnostics is the engine's output with the config path replaced by
	// engine.conf, re-indented for display.
	Diagnostics string

	// TemplatePath is the operator's template override; empty for the
	// built-in template.
	TemplatePath string

	// DumpPath is the saved copy of the rendered config (built-in template only).
	DumpPath string

	// DumpErr is set when the copy could not be saved.
	DumpErr error
}

// UserTemplate reports whether the operator's own template produced the config.
func (e *ConfigInvalidError) UserTemplate() bool {
	return e.TemplatePath != ""
}

func (e *ConfigInvalidError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*** ERROR: the engine configuration that %s generated contains problems. "+
		"The error message returned by the engine is:\n\n%s\n\n", productName, e.Diagnostics)

	if e.UserTemplate() {
		fmt.Fprintf(&b, "This probably means that you have a problem in your engine configuration "+
			"template (%s). Please fix your template.\n\n"+
			"Tip: to debug your template, re-run with the `--debug-config` option. "+
			"This shows you what the final engine config file looks like.", e.TemplatePath)
		return b.String()
	}

	fmt.Fprintf(&b, "This probably means that you have found a bug in %s. "+
		"Please report this bug to our issue tracker: %s\n\n", productName, issueTracker)
	if e.DumpErr != nil {
		fmt.Fprintf(&b, "In the bug report, please include this error message. "+
			"(The generated config could not be saved: %v)", e.DumpErr)
	} else {
		fmt.Fprintf(&b, "In the bug report, please include this error message, as well as "+
			"the contents of the file %s", e.DumpPath)
	}
	return b.String()
}

// AlreadyRunningError is returned by Start when an engine instance is already up.
type AlreadyRunningError struct {
	// PID is the running instance, or 0 if it could not be determined.
	PID int
	Err error
}

func (e *AlreadyRunningError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("%s is already running on PID %d.", productName, e.PID)
	}
	return productName + " is already running."
}

func (e *AlreadyRunningError) Unwrap() error {
	return e.Err
}

// StartError wraps a daemon start failure; the collaborator's message is kept verbatim.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return "could not start the engine:\n" + e.Err.Error()
}

func (e *StartError) Unwrap() error {
	return e.Err
}

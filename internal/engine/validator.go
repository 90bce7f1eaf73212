package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// diagnosticIndent is the indentation applied to engine output in errors.
const diagnosticIndent = 4

// Validator runs the engine's config test against a rendered config.
type Validator struct {
	logger  Logger
	tempDir string
}

// NewValidator creates a Validator that saves diagnostic dumps in the OS temp dir.
func NewValidator() *Validator {
	return &Validator{logger: noopLogger{}}
}

// SetLogger sets the logger.
func (v *Validator) SetLogger(logger Logger) {
	v.logger = logger
}

// SetTempDir sets where diagnostic copies of failing configs are saved.
func (v *Validator) SetTempDir(dir string) {
	v.tempDir = dir
}

// Validate runs "binary -c configPath -p workingDir/ -t". userTemplate is the
// operator's template override, or "" when the built-in template rendered
// configPath; it decides who a failure is blamed on.
func (v *Validator) Validate(ctx context.Context, binary, configPath, workingDir, userTemplate string) error {
	prefix := workingDir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	cmd := exec.CommandContext(ctx, binary, "-c", configPath, "-p", prefix, "-t")
	out, err := cmd.CombinedOutput()
	if err == nil {
		v.logger.Debug("engine config test passed", "path", configPath)
		return nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return fmt.Errorf("running engine config test: %w", err)
	}

	diagnostics := strings.ReplaceAll(string(out), configPath, ConfigFileName)
	invalid := &ConfigInvalidError{
		Diagnostics:  reindent(diagnostics, diagnosticIndent),
		TemplatePath: userTemplate,
	}
	if !invalid.UserTemplate() {
		invalid.DumpPath, invalid.DumpErr = v.saveCopy(configPath)
	}

	v.logger.Error("engine config test failed",
		"path", configPath,
		"exit_code", exitErr.ExitCode(),
		"user_template", invalid.UserTemplate(),
	)
	return invalid
}

// saveCopy keeps a copy of a failing config for bug reports. The file is not removed.
func (v *Validator) saveCopy(configPath string) (string, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp(v.tempDir, "graylogic-edge-*.log")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return f.Name(), err
	}
	return f.Name(), f.Close()
}

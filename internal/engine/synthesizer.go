package engine

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"text/template"
)

//go:embed templates/*.tmpl
var builtinTemplates embed.FS

const (
	mainTemplate = "engine.conf.tmpl"

	// DebugEnv mirrors every rendered config to the output stream when non-empty.
	DebugEnv = "GRAYLOGIC_EDGE_DEBUG"

	maxIncludeDepth = 16
)

// Synthesizer renders engine.conf from a template and Options.
type Synthesizer struct {
	accounts AccountLookup
	output   io.Writer
	logger   Logger
}

// NewSynthesizer creates a Synthesizer that resolves accounts through the OS
// and writes dumps to stdout.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{
		accounts: SystemAccounts{},
		output:   os.Stdout,
		logger:   noopLogger{},
	}
}

// SetAccounts replaces the user/group resolver used by templates.
func (s *Synthesizer) SetAccounts(accounts AccountLookup) {
	s.accounts = accounts
}

// SetOutput sets where debug mirrors and config dumps are written.
func (s *Synthesizer) SetOutput(w io.Writer) {
	s.output = w
}

// SetLogger sets the logger.
func (s *Synthesizer) SetLogger(logger Logger) {
	s.logger = logger
}

// TemplatePath names the template that will render opts.
func (s *Synthesizer) TemplatePath(opts Options) string {
	if opts.ConfigTemplate != "" {
		return opts.ConfigTemplate
	}
	return builtinPath(mainTemplate)
}

func builtinPath(name string) string {
	return "builtin:templates/" + name
}

// Render executes the template for opts and returns the config text.
func (s *Synthesizer) Render(opts Options) ([]byte, error) {
	opts = opts.withDefaults()
	name := s.TemplatePath(opts)

	src, err := s.loadMain(opts)
	if err != nil {
		return nil, &TemplateError{Path: name, Err: err}
	}

	r := &renderer{synth: s, opts: opts}
	out, err := r.execute(name, src)
	if err != nil {
		return nil, &TemplateError{Path: name, Err: err}
	}
	return out, nil
}

func (s *Synthesizer) loadMain(opts Options) (string, error) {
	if opts.ConfigTemplate != "" {
		data, err := os.ReadFile(opts.ConfigTemplate)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	return readBuiltin(mainTemplate)
}

func readBuiltin(name string) (string, error) {
	data, err := builtinTemplates.ReadFile(path.Join("templates", name))
	if err != nil {
		return "", fmt.Errorf("unknown built-in template %q: %w", name, err)
	}
	return string(data), nil
}

// Write renders opts into <WorkingDir>/engine.conf and returns its path.
func (s *Synthesizer) Write(opts Options) (string, error) {
	data, err := s.Render(opts)
	if err != nil {
		return "", err
	}

	configPath := opts.ConfigPath()
	if err := writeConfigFile(configPath, data); err != nil {
		return "", fmt.Errorf("writing engine config %s: %w", configPath, err)
	}

	if os.Getenv(DebugEnv) != "" && !opts.DebugConfig {
		if _, err := s.output.Write(data); err != nil {
			s.logger.Warn("mirroring engine config failed", "error", err)
		}
	}

	s.logger.Debug("engine config written", "path", configPath, "template", s.TemplatePath(opts))
	return configPath, nil
}

// Dump prints the config file written for opts, as it is on disk.
func (s *Synthesizer) Dump(opts Options) error {
	data, err := os.ReadFile(opts.ConfigPath())
	if err != nil {
		return fmt.Errorf("reading engine config: %w", err)
	}
	if _, err := s.output.Write(data); err != nil {
		return fmt.Errorf("printing engine config: %w", err)
	}
	return nil
}

func writeConfigFile(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	// OpenFile only applies the mode on creation.
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// renderer holds the state of one Render call. seq names nested include
// templates uniquely within the call.
type renderer struct {
	synth *Synthesizer
	opts  Options
	seq   int
	depth int
}

func (r *renderer) execute(name, src string) ([]byte, error) {
	tmpl, err := template.New(name).Funcs(r.funcs()).Parse(src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"listenAddress":    r.opts.ListenAddress,
		"listenAddressSSL": r.opts.ListenAddressSSL,
		"option":           r.option,
		"optionAs":         r.optionAs,
		"optionIn":         r.optionIn,
		"onOff":            onOff,
		"defaultGroupFor":  r.synth.accounts.PrimaryGroup,
		"currentUser":      r.synth.accounts.CurrentUser,
		"include":          r.include,
		"serializeStrset":  serializeStrset,
	}
}

func (r *renderer) option(name string) string {
	return lookupDirective(r.opts.Directives, name, r.opts.directiveName(name))
}

func (r *renderer) optionAs(name, directive string) string {
	return lookupDirective(r.opts.Directives, name, directive)
}

func (r *renderer) optionIn(set map[string]any, name string) string {
	return lookupDirective(set, name, r.opts.directiveName(name))
}

// include renders a built-in sub-template: include NAME [INDENT [FIX]].
func (r *renderer) include(name string, args ...any) (string, error) {
	indent, fix := 0, true
	switch len(args) {
	case 2:
		f, ok := args[1].(bool)
		if !ok {
			return "", fmt.Errorf("include %s: fix must be a bool, got %T", name, args[1])
		}
		fix = f
		fallthrough
	case 1:
		n, ok := args[0].(int)
		if !ok {
			return "", fmt.Errorf("include %s: indent must be an int, got %T", name, args[0])
		}
		indent = n
	case 0:
	default:
		return "", fmt.Errorf("include %s: too many arguments", name)
	}

	if r.depth >= maxIncludeDepth {
		return "", errors.New("include nesting too deep")
	}
	r.depth++
	defer func() { r.depth-- }()

	src, err := readBuiltin(name)
	if err != nil {
		return "", err
	}
	r.seq++
	out, err := r.execute(fmt.Sprintf("%s#%d", builtinPath(name), r.seq), src)
	if err != nil {
		return "", err
	}
	return indentInclude(string(out), indent, fix), nil
}

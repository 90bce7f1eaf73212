package engine

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeAccounts struct {
	user  string
	group string
}

func (f fakeAccounts) CurrentUser() (string, error) { return f.user, nil }

func (f fakeAccounts) PrimaryGroup(username string) (string, error) {
	if username == "" {
		return "", errors.New("no user")
	}
	return f.group, nil
}

func testSynthesizer(t *testing.T) (*Synthesizer, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := NewSynthesizer()
	s.SetAccounts(fakeAccounts{user: "edge", group: "edge-data"})
	s.SetOutput(&out)
	return s, &out
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Binary:     "/usr/sbin/engine",
		WorkingDir: t.TempDir(),
		Address:    "127.0.0.1",
		Port:       3000,
	}.withDefaults()
}

func writeTemplate(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custom.conf.tmpl")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}
	return path
}

func TestRender_Builtin(t *testing.T) {
	s, _ := testSynthesizer(t)
	opts := testOptions(t)
	opts.User = "www"
	opts.Directives = map[string]any{"client_max_body_size": "10m", "gzip": true}
	opts.RawDirectivePrefixes = []string{"client_", "proxy_"}
	opts.Locations = []Location{{Path: "/api", Directives: map[string]any{"proxy_buffering": false}}}

	out, err := s.Render(opts)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	text := string(out)

	wants := []string{
		"# Generated by Gray Logic Edge for edge.",
		"user www edge-data;",
		"pid '" + opts.PIDFile + "';",
		"error_log '" + opts.LogFile + "' info;",
		"http {\n    log_format main ",
		"\n    access_log '" + opts.LogFile + "' main;\n",
		"\n    client_max_body_size '10m';\n    engine_gzip on;\n",
		"server {\n        listen 127.0.0.1:3000;\n",
		"\n        location /api {\n            proxy_buffering off;\n        }\n",
	}
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("rendered config missing %q\n%s", want, text)
		}
	}
	if strings.Contains(text, " ssl;") {
		t.Errorf("ssl listener rendered without ssl_port\n%s", text)
	}
}

func TestRender_SocketAndSSL(t *testing.T) {
	s, _ := testSynthesizer(t)

	socket := testOptions(t)
	socket.Address, socket.Port, socket.SocketFile = "", 0, "/run/edge.sock"
	out, err := s.Render(socket)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	if !strings.Contains(string(out), "listen unix:/run/edge.sock;") {
		t.Errorf("socket listener missing\n%s", out)
	}

	ssl := testOptions(t)
	ssl.Address = "::1"
	ssl.SSLPort, ssl.SSLCertificate, ssl.SSLCertificateKey = 3443, "/etc/edge/cert.pem", "/etc/edge/key.pem"
	out, err = s.Render(ssl)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for _, want := range []string{"listen [::1]:3000;", "listen [::1]:3443 ssl;", "ssl_certificate '/etc/edge/cert.pem';"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("rendered config missing %q\n%s", want, out)
		}
	}
}

func TestRender_Idempotent(t *testing.T) {
	s, _ := testSynthesizer(t)
	opts := testOptions(t)
	opts.Directives = map[string]any{"b": 1, "a": "x", "c": false}

	first, err := s.Render(opts)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := s.Render(opts)
		if err != nil {
			t.Fatalf("Render() error: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("render %d differs:\n%s\n---\n%s", i, first, again)
		}
	}
}

func TestRender_OptionHelpers(t *testing.T) {
	s, _ := testSynthesizer(t)
	opts := testOptions(t)
	opts.Directives = map[string]any{"x": "x", "flag": true, "off": false, "n": 5}
	opts.ConfigTemplate = writeTemplate(t,
		`{{ optionAs "x" "name" }}|{{ optionAs "flag" "name" }}|{{ optionAs "off" "name" }}|`+
			`{{ option "missing" }}|{{ option "n" }}|{{ optionIn .Directives "x" }}|{{ onOff true }}|`+
			`{{ serializeStrset "a" "b" }}|{{ listenAddress }}`)

	out, err := s.Render(opts)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}
	want := "name 'x';|name on;|name off;||engine_n 5;|engine_x 'x';|on|" + serializeStrset("a", "b") + "|127.0.0.1:3000"
	if string(out) != want {
		t.Errorf("Render() = %q, want %q", out, want)
	}
}

func TestRender_IncludeCounterPerRender(t *testing.T) {
	s, _ := testSynthesizer(t)
	opts := testOptions(t)

	r := &renderer{synth: s, opts: opts}
	if _, err := r.execute("t", `{{ include "server.tmpl" }}{{ include "server.tmpl" 2 false }}`); err != nil {
		t.Fatalf("execute() error: %v", err)
	}
	if r.seq != 2 {
		t.Errorf("seq = %d, want 2", r.seq)
	}

	fresh := &renderer{synth: s, opts: opts}
	if fresh.seq != 0 {
		t.Errorf("new renderer seq = %d, want 0", fresh.seq)
	}
}

func TestRender_TemplateErrors(t *testing.T) {
	s, _ := testSynthesizer(t)

	tests := []struct {
		name     string
		template func(t *testing.T) string
		contains string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.tmpl") }, "nope.tmpl"},
		{"parse error", func(t *testing.T) string { return writeTemplate(t, "{{ .Port }") }, "custom.conf.tmpl"},
		{"unknown field", func(t *testing.T) string { return writeTemplate(t, "{{ .NoSuchField }}") }, "NoSuchField"},
		{"unknown include", func(t *testing.T) string { return writeTemplate(t, `{{ include "missing.tmpl" }}`) }, "missing.tmpl"},
		{"bad include indent", func(t *testing.T) string { return writeTemplate(t, `{{ include "server.tmpl" "4" }}`) }, "indent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			opts.ConfigTemplate = tt.template(t)

			_, err := s.Render(opts)
			var tmplErr *TemplateError
			if !errors.As(err, &tmplErr) {
				t.Fatalf("Render() error = %v, want *TemplateError", err)
			}
			if tmplErr.Path != opts.ConfigTemplate {
				t.Errorf("Path = %q, want %q", tmplErr.Path, opts.ConfigTemplate)
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q does not mention %q", err, tt.contains)
			}
		})
	}
}

func TestTemplatePath(t *testing.T) {
	s, _ := testSynthesizer(t)
	if got := s.TemplatePath(Options{}); got != "builtin:templates/engine.conf.tmpl" {
		t.Errorf("TemplatePath() = %q", got)
	}
	if got := s.TemplatePath(Options{ConfigTemplate: "/etc/edge/engine.tmpl"}); got != "/etc/edge/engine.tmpl" {
		t.Errorf("TemplatePath() = %q", got)
	}
}

func TestWrite_ReplacesFileWithMode0644(t *testing.T) {
	s, out := testSynthesizer(t)
	opts := testOptions(t)

	if err := os.WriteFile(opts.ConfigPath(), []byte("stale"), 0o600); err != nil {
		t.Fatalf("seeding config: %v", err)
	}

	path, err := s.Write(opts)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if path != opts.ConfigPath() {
		t.Errorf("path = %q, want %q", path, opts.ConfigPath())
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Errorf("mode = %o, want 644", perm)
	}

	data, _ := os.ReadFile(path)
	want, _ := s.Render(opts)
	if !bytes.Equal(data, want) {
		t.Errorf("file content differs from Render()")
	}
	if out.Len() != 0 {
		t.Errorf("output written without debug toggle: %q", out.String())
	}
}

func TestWrite_DebugMirror(t *testing.T) {
	t.Setenv(DebugEnv, "1")

	s, out := testSynthesizer(t)
	opts := testOptions(t)
	if _, err := s.Write(opts); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	data, _ := os.ReadFile(opts.ConfigPath())
	if out.String() != string(data) {
		t.Errorf("mirror differs from file")
	}

	out.Reset()
	opts.DebugConfig = true
	if _, err := s.Write(opts); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("mirrored in debug-config mode")
	}
}

func TestDump(t *testing.T) {
	s, out := testSynthesizer(t)
	opts := testOptions(t)

	if err := s.Dump(opts); err == nil {
		t.Fatal("Dump() before Write should fail")
	}
	if err := os.WriteFile(opts.ConfigPath(), []byte("exact bytes\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Dump(opts); err != nil {
		t.Fatalf("Dump() error: %v", err)
	}
	if out.String() != "exact bytes\n" {
		t.Errorf("Dump() printed %q", out.String())
	}
}

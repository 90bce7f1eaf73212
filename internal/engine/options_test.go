package engine

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/nerrad567/gray-logic-edge/internal/daemon"
)

func TestOptionsValidate(t *testing.T) {
	base := func() Options {
		return Options{Binary: "/usr/sbin/engine", WorkingDir: "/srv/edge", Address: "127.0.0.1", Port: 3000}
	}

	tests := []struct {
		name    string
		mutate  func(*Options)
		wantErr bool
	}{
		{"tcp listener", func(*Options) {}, false},
		{"socket listener", func(o *Options) { o.Address, o.Port, o.SocketFile = "", 0, "/run/edge.sock" }, false},
		{"socket and address", func(o *Options) { o.SocketFile = "/run/edge.sock" }, true},
		{"neither listener", func(o *Options) { o.Address, o.Port = "", 0 }, true},
		{"port out of range", func(o *Options) { o.Port = 70000 }, true},
		{"missing binary", func(o *Options) { o.Binary = "" }, true},
		{"missing working dir", func(o *Options) { o.WorkingDir = "" }, true},
		{"ssl without certificate", func(o *Options) { o.SSLPort = 3443 }, true},
		{"ssl with certificate", func(o *Options) {
			o.SSLPort, o.SSLCertificate, o.SSLCertificateKey = 3443, "/etc/edge/cert.pem", "/etc/edge/key.pem"
		}, false},
		{"ssl with socket", func(o *Options) {
			o.Address, o.Port, o.SocketFile = "", 0, "/run/edge.sock"
			o.SSLPort, o.SSLCertificate, o.SSLCertificateKey = 3443, "c", "k"
		}, true},
		{"location without path", func(o *Options) { o.Locations = []Location{{}} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := base()
			tt.mutate(&opts)
			err := opts.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidOptions) {
					t.Fatalf("Validate() = %v, want ErrInvalidOptions", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{WorkingDir: "/srv/edge"}.withDefaults()

	if opts.Identifier != "Engine" {
		t.Errorf("Identifier = %q, want Engine", opts.Identifier)
	}
	if opts.DirectivePrefix != "engine_" {
		t.Errorf("DirectivePrefix = %q, want engine_", opts.DirectivePrefix)
	}
	if opts.PIDFile != filepath.Join("/srv/edge", "engine.pid") {
		t.Errorf("PIDFile = %q", opts.PIDFile)
	}
	if opts.LogFile != filepath.Join("/srv/edge", "engine.log") {
		t.Errorf("LogFile = %q", opts.LogFile)
	}
	if opts.Timeouts.Start != daemon.DefaultStartTimeout ||
		opts.Timeouts.Stop != daemon.DefaultStopTimeout ||
		opts.Timeouts.LogActivity != daemon.DefaultLogFileActivityTimeout {
		t.Errorf("Timeouts = %+v", opts.Timeouts)
	}
	if got := opts.ConfigPath(); got != "/srv/edge/engine.conf" {
		t.Errorf("ConfigPath() = %q", got)
	}
	if got := opts.PrefixArg(); got != "/srv/edge/" {
		t.Errorf("PrefixArg() = %q", got)
	}
}

func TestListenAddresses(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		listen    string
		listenSSL string
		ping      string
		pingSSL   string
	}{
		{
			name:      "socket",
			opts:      Options{SocketFile: "/run/edge.sock"},
			listen:    "unix:/run/edge.sock",
			listenSSL: "unix:/run/edge.sock",
			ping:      "unix:/run/edge.sock",
			pingSSL:   "unix:/run/edge.sock",
		},
		{
			name:      "ipv4",
			opts:      Options{Address: "127.0.0.1", Port: 3000, SSLPort: 3443},
			listen:    "127.0.0.1:3000",
			listenSSL: "127.0.0.1:3443",
			ping:      "tcp:127.0.0.1:3000",
			pingSSL:   "tcp:127.0.0.1:3443",
		},
		{
			name:      "ipv6",
			opts:      Options{Address: "::1", Port: 3000},
			listen:    "[::1]:3000",
			listenSSL: "[::1]:0",
			ping:      "tcp:[::1]:3000",
			pingSSL:   "tcp:[::1]:0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.ListenAddress(); got != tt.listen {
				t.Errorf("ListenAddress() = %q, want %q", got, tt.listen)
			}
			if got := tt.opts.ListenAddressSSL(); got != tt.listenSSL {
				t.Errorf("ListenAddressSSL() = %q, want %q", got, tt.listenSSL)
			}
			if got := tt.opts.PingTarget().String(); got != tt.ping {
				t.Errorf("PingTarget() = %q, want %q", got, tt.ping)
			}
			if got := tt.opts.SSLPingTarget().String(); got != tt.pingSSL {
				t.Errorf("SSLPingTarget() = %q, want %q", got, tt.pingSSL)
			}
		})
	}
}

func TestDirectiveName(t *testing.T) {
	opts := Options{RawDirectivePrefixes: []string{"client_", "proxy_"}}.withDefaults()

	tests := map[string]string{
		"max_pool_size":        "engine_max_pool_size",
		"client_max_body_size": "client_max_body_size",
		"proxy_buffering":      "proxy_buffering",
		"gzip":                 "engine_gzip",
	}
	for option, want := range tests {
		if got := opts.directiveName(option); got != want {
			t.Errorf("directiveName(%q) = %q, want %q", option, got, want)
		}
	}
}

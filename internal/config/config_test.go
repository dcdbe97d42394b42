package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempFile creates a temporary file with the given content and returns its path.
func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file %s: %v", path, err)
	}
	return path
}

const validYAML = `
server:
  port: 9090
  dashboard_dir: /custom/dist
  hls_dir: /custom/hls
  mcp_enabled: false
probe:
  timeout: 1500ms
  ap_interface: uap0
  exclude_interfaces: [lo, wg0]
classifier:
  debounce: 10s
  min_bitrate_kbps: 0
hub:
  push_interval: 1s
display:
  enabled: true
  size: "0350"
safety:
  services:
    denylist: [camlink]
audit:
  log_path: /custom/audit.log
`

// ---------------------------------------------------------------------------
// LoadConfig
// ---------------------------------------------------------------------------

func Test_LoadConfig_Cases(t *testing.T) {
	tests := []struct {
		name        string
		setupPath   func(t *testing.T) string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, cfg *Config)
	}{
		{
			name: "valid config loads all fields",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "config.yaml", validYAML)
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 9090 {
					t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
				}
				if cfg.Server.DashboardDir != "/custom/dist" {
					t.Errorf("Server.DashboardDir = %q, want /custom/dist", cfg.Server.DashboardDir)
				}
				if cfg.Server.MCPEnabled {
					t.Error("Server.MCPEnabled = true, want false")
				}
				if cfg.Probe.Timeout.Std() != 1500*time.Millisecond {
					t.Errorf("Probe.Timeout = %v, want 1.5s", cfg.Probe.Timeout.Std())
				}
				if cfg.Probe.APInterface != "uap0" {
					t.Errorf("Probe.APInterface = %q, want uap0", cfg.Probe.APInterface)
				}
				if got := strings.Join(cfg.Probe.ExcludeInterfaces, ","); got != "lo,wg0" {
					t.Errorf("Probe.ExcludeInterfaces = %q, want lo,wg0", got)
				}
				if cfg.Classifier.Debounce.Std() != 10*time.Second {
					t.Errorf("Classifier.Debounce = %v, want 10s", cfg.Classifier.Debounce.Std())
				}
				if cfg.Classifier.MinBitrateKbps != 0 {
					t.Errorf("Classifier.MinBitrateKbps = %v, want 0", cfg.Classifier.MinBitrateKbps)
				}
				if cfg.Hub.PushInterval.Std() != time.Second {
					t.Errorf("Hub.PushInterval = %v, want 1s", cfg.Hub.PushInterval.Std())
				}
				if !cfg.Display.Enabled || cfg.Display.Size != DisplayLarge {
					t.Errorf("Display = %+v, want enabled 0350", cfg.Display)
				}
				if len(cfg.Safety.Services.Denylist) != 1 || cfg.Safety.Services.Denylist[0] != "camlink" {
					t.Errorf("Safety.Services.Denylist = %v, want [camlink]", cfg.Safety.Services.Denylist)
				}
				if cfg.Audit.LogPath != "/custom/audit.log" {
					t.Errorf("Audit.LogPath = %q, want /custom/audit.log", cfg.Audit.LogPath)
				}
			},
		},
		{
			name: "keys missing from file keep defaults",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "config.yaml", validYAML)
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Hub.PollInterval.Std() != 2*time.Second {
					t.Errorf("Hub.PollInterval = %v, want default 2s", cfg.Hub.PollInterval.Std())
				}
				if cfg.Probe.HostapdConfig != "/etc/hostapd-ap0.conf" {
					t.Errorf("Probe.HostapdConfig = %q, want default", cfg.Probe.HostapdConfig)
				}
				if cfg.Status.RemoteURLFormat != "https://%s/" {
					t.Errorf("Status.RemoteURLFormat = %q, want default", cfg.Status.RemoteURLFormat)
				}
			},
		},
		{
			name: "missing file returns error",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return "/nonexistent/path/config.yaml"
			},
			wantErr:     true,
			errContains: "no such file",
		},
		{
			name: "malformed yaml returns error",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "bad.yaml", "server: [unterminated")
			},
			wantErr:     true,
			errContains: "unmarshal",
		},
		{
			name: "bad duration returns error",
			setupPath: func(t *testing.T) string {
				t.Helper()
				return writeTempFile(t, "bad.yaml", "hub:\n  poll_interval: soon\n")
			},
			wantErr:     true,
			errContains: "soon",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadConfig(tt.setupPath(t))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errContains != "" && !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("error = %q, want it to contain %q", err.Error(), tt.errContains)
				}
				if cfg != nil {
					t.Error("expected nil config on error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func Test_DefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != 80 {
		t.Errorf("Server.Port = %d, want 80", cfg.Server.Port)
	}
	if cfg.Classifier.Debounce.Std() != 3*time.Second {
		t.Errorf("Classifier.Debounce = %v, want 3s", cfg.Classifier.Debounce.Std())
	}
	if cfg.Classifier.MinBitrateKbps != 100 {
		t.Errorf("Classifier.MinBitrateKbps = %v, want 100", cfg.Classifier.MinBitrateKbps)
	}
	if cfg.Hub.PushInterval.Std() != 2*time.Second {
		t.Errorf("Hub.PushInterval = %v, want 2s", cfg.Hub.PushInterval.Std())
	}
	if cfg.Display.SwitchInterval.Std() != 5*time.Second {
		t.Errorf("Display.SwitchInterval = %v, want 5s", cfg.Display.SwitchInterval.Std())
	}
	if cfg.Display.RefreshInterval.Std() != time.Second {
		t.Errorf("Display.RefreshInterval = %v, want 1s", cfg.Display.RefreshInterval.Std())
	}
	wantExclude := map[string]bool{"lo": true, "tailscale0": true, "ap0": true}
	if len(cfg.Probe.ExcludeInterfaces) != len(wantExclude) {
		t.Fatalf("Probe.ExcludeInterfaces = %v, want lo, tailscale0, ap0", cfg.Probe.ExcludeInterfaces)
	}
	for _, name := range cfg.Probe.ExcludeInterfaces {
		if !wantExclude[name] {
			t.Errorf("unexpected excluded interface %q", name)
		}
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("Validate(DefaultConfig()) = %v, want nil", err)
	}
}

func Test_DefaultConfig_ReturnsNewInstance(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a == b {
		t.Fatal("DefaultConfig() returned the same pointer twice")
	}
	a.Probe.ExcludeInterfaces[0] = "changed"
	if b.Probe.ExcludeInterfaces[0] == "changed" {
		t.Error("DefaultConfig() instances share the ExcludeInterfaces slice")
	}
}

// ---------------------------------------------------------------------------
// ApplyEnvOverrides
// ---------------------------------------------------------------------------

func Test_ApplyEnvOverrides_Cases(t *testing.T) {
	tests := []struct {
		name     string
		env      map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "port override",
			env:  map[string]string{"SRT_AGENT_PORT": "8081"},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 8081 {
					t.Errorf("Server.Port = %d, want 8081", cfg.Server.Port)
				}
			},
		},
		{
			name: "non-numeric port is ignored",
			env:  map[string]string{"SRT_AGENT_PORT": "eighty"},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.Port != 80 {
					t.Errorf("Server.Port = %d, want 80", cfg.Server.Port)
				}
			},
		},
		{
			name: "directories and debug",
			env: map[string]string{
				"SRT_AGENT_DASHBOARD_DIR": "/tmp/dist",
				"SRT_AGENT_HLS_DIR":       "/tmp/hls",
				"SRT_AGENT_DEBUG":         "1",
			},
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Server.DashboardDir != "/tmp/dist" {
					t.Errorf("Server.DashboardDir = %q", cfg.Server.DashboardDir)
				}
				if cfg.Server.HLSDir != "/tmp/hls" {
					t.Errorf("Server.HLSDir = %q", cfg.Server.HLSDir)
				}
				if cfg.Log.Level != "debug" {
					t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			ApplyEnvOverrides(cfg)
			tt.validate(t, cfg)
		})
	}
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func Test_Validate_Cases(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *Config)
		errContains string
	}{
		{name: "defaults are valid", mutate: func(cfg *Config) {}},
		{
			name:        "zero poll interval",
			mutate:      func(cfg *Config) { cfg.Hub.PollInterval = 0 },
			errContains: "hub.poll_interval",
		},
		{
			name:        "negative bitrate",
			mutate:      func(cfg *Config) { cfg.Classifier.MinBitrateKbps = -1 },
			errContains: "min_bitrate_kbps",
		},
		{
			name: "unknown display size",
			mutate: func(cfg *Config) {
				cfg.Display.Enabled = true
				cfg.Display.Size = "0240"
			},
			errContains: "0240",
		},
		{
			name: "unknown display size ignored while display is off",
			mutate: func(cfg *Config) {
				cfg.Display.Enabled = false
				cfg.Display.Size = "0200"
			},
		},
		{
			name:        "port out of range",
			mutate:      func(cfg *Config) { cfg.Server.Port = 70000 },
			errContains: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// ApplyDisplayEnv
// ---------------------------------------------------------------------------

func Test_ApplyDisplayEnv_Cases(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		missing  bool
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name: "large rgb screen enabled",
			content: `# written by installer
SCREEN=TRUE
SCREEN_SIZE="0350"
SCREEN_RGB=true
SCREEN_TOUCH=false
UNRELATED=1
`,
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if !cfg.Display.Enabled {
					t.Error("Display.Enabled = false, want true")
				}
				if cfg.Display.Size != DisplayLarge {
					t.Errorf("Display.Size = %q, want 0350", cfg.Display.Size)
				}
				if !cfg.Display.RGB {
					t.Error("Display.RGB = false, want true")
				}
				if cfg.Display.Touch {
					t.Error("Display.Touch = true, want false")
				}
			},
		},
		{
			name:    "screen disabled",
			content: "SCREEN=false\n",
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Display.Enabled {
					t.Error("Display.Enabled = true, want false")
				}
				if cfg.Display.Size != DisplaySmall {
					t.Errorf("Display.Size = %q, want default 0096", cfg.Display.Size)
				}
			},
		},
		{
			name:    "unsupported size with screen off still validates",
			content: "SCREEN=false\nSCREEN_SIZE=0200\n",
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Display.Size != "0200" {
					t.Errorf("Display.Size = %q, want 0200", cfg.Display.Size)
				}
				if err := Validate(cfg); err != nil {
					t.Errorf("Validate() = %v, want nil for a disabled display", err)
				}
			},
		},
		{
			name:    "missing file leaves config untouched",
			missing: true,
			validate: func(t *testing.T, cfg *Config) {
				t.Helper()
				if cfg.Display.Enabled {
					t.Error("Display.Enabled changed for a missing file")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.env")
			if !tt.missing {
				path = writeTempFile(t, "config.env", tt.content)
			}
			cfg := DefaultConfig()
			if err := ApplyDisplayEnv(cfg, path); err != nil {
				t.Fatalf("ApplyDisplayEnv() error: %v", err)
			}
			tt.validate(t, cfg)
		})
	}
}

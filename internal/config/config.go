// Package config provides configuration loading and defaults for the
// srt-streamer status agent.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Display sizes understood by the agent. They match the SCREEN_SIZE values
// written to the appliance's config.env by the installer.
const (
	DisplaySmall = "0096"
	DisplayLarge = "0350"
)

// Duration is a time.Duration that unmarshals from YAML strings such as
// "2s" or "500ms".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ResourceFilter holds allowlist and denylist entries for a resource category.
type ResourceFilter struct {
	Allowlist []string `yaml:"allowlist"`
	Denylist  []string `yaml:"denylist"`
}

// SafetyConfig groups resource filters for control actions.
type SafetyConfig struct {
	Services ResourceFilter `yaml:"services"`
}

// ServerConfig holds the dashboard listener and the directories it serves.
type ServerConfig struct {
	Port         int    `yaml:"port"`
	DashboardDir string `yaml:"dashboard_dir"`
	HLSDir       string `yaml:"hls_dir"`
	MCPEnabled   bool   `yaml:"mcp_enabled"`
}

// ProbeConfig controls how local OS state is sampled.
type ProbeConfig struct {
	// Timeout bounds every individual probe call.
	Timeout Duration `yaml:"timeout"`
	// SampleWindow is the gap between the two counter readings used to
	// compute interface throughput.
	SampleWindow      Duration `yaml:"sample_window"`
	APInterface       string   `yaml:"ap_interface"`
	HostapdConfig     string   `yaml:"hostapd_config"`
	ExcludeInterfaces []string `yaml:"exclude_interfaces"`
	StreamService     string   `yaml:"stream_service"`
	WatcherService    string   `yaml:"watcher_service"`
}

// ClassifierConfig holds the thresholds of the streaming classifier.
// MinBitrateKbps of 0 disables the bitrate gate.
type ClassifierConfig struct {
	Debounce       Duration `yaml:"debounce"`
	MinBitrateKbps float64  `yaml:"min_bitrate_kbps"`
}

// HubConfig controls snapshot polling and subscriber push cadence.
type HubConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	PushInterval Duration `yaml:"push_interval"`
	WriteTimeout Duration `yaml:"write_timeout"`
}

// StatusConfig holds snapshot presentation settings.
type StatusConfig struct {
	// RemoteURLFormat is a fmt pattern applied to the remote access name.
	RemoteURLFormat string `yaml:"remote_url_format"`
}

// DisplayConfig controls the local status display.
type DisplayConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Size            string   `yaml:"size"`
	RGB             bool     `yaml:"rgb"`
	Touch           bool     `yaml:"touch"`
	SwitchInterval  Duration `yaml:"switch_interval"`
	RefreshInterval Duration `yaml:"refresh_interval"`
	// Output is the device or file the frames are written to. Empty means
	// stdout.
	Output string `yaml:"output"`
	// EnvFile is the appliance's shell-style settings file; its SCREEN_*
	// keys override the fields above when present.
	EnvFile string `yaml:"env_file"`
}

// ControlConfig configures the OS mutation commands.
type ControlConfig struct {
	UseSudo            bool     `yaml:"use_sudo"`
	CommandTimeout     Duration `yaml:"command_timeout"`
	CamlinkResetScript string   `yaml:"camlink_reset_script"`
	CamlinkVendorID    string   `yaml:"camlink_vendor_id"`
	CamlinkProductID   string   `yaml:"camlink_product_id"`
	UpdateCommand      string   `yaml:"update_command"`
}

// AuditConfig controls audit logging behaviour.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	LogPath string `yaml:"log_path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the top-level configuration structure for the agent.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Probe      ProbeConfig      `yaml:"probe"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Hub        HubConfig        `yaml:"hub"`
	Status     StatusConfig     `yaml:"status"`
	Display    DisplayConfig    `yaml:"display"`
	Control    ControlConfig    `yaml:"control"`
	Safety     SafetyConfig     `yaml:"safety"`
	Audit      AuditConfig      `yaml:"audit"`
	Log        LogConfig        `yaml:"log"`
}

// LoadConfig reads a YAML configuration file and layers it over
// DefaultConfig, so keys missing from the file keep their defaults.
// On error, nil is returned for the config pointer.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a new Config populated with the values the appliance
// image ships with. Each call returns a distinct instance.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         80,
			DashboardDir: "/boot/firmware/rpi-srt-streamer-dashboard/dist",
			HLSDir:       "/boot/firmware/hls",
			MCPEnabled:   true,
		},
		Probe: ProbeConfig{
			Timeout:           Duration(3 * time.Second),
			SampleWindow:      Duration(time.Second),
			APInterface:       "ap0",
			HostapdConfig:     "/etc/hostapd-ap0.conf",
			ExcludeInterfaces: []string{"lo", "tailscale0", "ap0"},
			StreamService:     "srt-streamer.service",
			WatcherService:    "network-watcher.service",
		},
		Classifier: ClassifierConfig{
			Debounce:       Duration(3 * time.Second),
			MinBitrateKbps: 100,
		},
		Hub: HubConfig{
			PollInterval: Duration(2 * time.Second),
			PushInterval: Duration(2 * time.Second),
			WriteTimeout: Duration(5 * time.Second),
		},
		Status: StatusConfig{
			RemoteURLFormat: "https://%s/",
		},
		Display: DisplayConfig{
			Enabled:         false,
			Size:            DisplaySmall,
			SwitchInterval:  Duration(5 * time.Second),
			RefreshInterval: Duration(time.Second),
			EnvFile:         "/opt/srt-streamer/config.env",
		},
		Control: ControlConfig{
			UseSudo:          true,
			CommandTimeout:   Duration(30 * time.Second),
			CamlinkVendorID:  "0fd9",
			CamlinkProductID: "0066",
			UpdateCommand:    "/usr/local/bin/update",
		},
		Audit: AuditConfig{
			Enabled: true,
			LogPath: "/var/log/srt-agent/audit.log",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ApplyEnvOverrides updates cfg in place with values from environment variables.
// Recognized variables:
//   - SRT_AGENT_PORT overrides cfg.Server.Port
//   - SRT_AGENT_DASHBOARD_DIR overrides cfg.Server.DashboardDir
//   - SRT_AGENT_HLS_DIR overrides cfg.Server.HLSDir
//   - SRT_AGENT_DEBUG (any non-empty value) forces cfg.Log.Level to "debug"
func ApplyEnvOverrides(cfg *Config) {
	if port := os.Getenv("SRT_AGENT_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if dir := os.Getenv("SRT_AGENT_DASHBOARD_DIR"); dir != "" {
		cfg.Server.DashboardDir = dir
	}
	if dir := os.Getenv("SRT_AGENT_HLS_DIR"); dir != "" {
		cfg.Server.HLSDir = dir
	}
	if os.Getenv("SRT_AGENT_DEBUG") != "" {
		cfg.Log.Level = "debug"
	}
}

// Validate checks that cfg can be used to start the agent. It does not
// mutate cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", cfg.Server.Port)
	}

	intervals := []struct {
		name string
		d    Duration
	}{
		{"probe.timeout", cfg.Probe.Timeout},
		{"probe.sample_window", cfg.Probe.SampleWindow},
		{"hub.poll_interval", cfg.Hub.PollInterval},
		{"hub.push_interval", cfg.Hub.PushInterval},
		{"hub.write_timeout", cfg.Hub.WriteTimeout},
		{"display.switch_interval", cfg.Display.SwitchInterval},
		{"display.refresh_interval", cfg.Display.RefreshInterval},
		{"control.command_timeout", cfg.Control.CommandTimeout},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return fmt.Errorf("%s must be > 0", iv.name)
		}
	}

	if cfg.Classifier.Debounce < 0 {
		return errors.New("classifier.debounce must be >= 0")
	}
	if cfg.Classifier.MinBitrateKbps < 0 {
		return errors.New("classifier.min_bitrate_kbps must be >= 0")
	}

	// Size is only checked for an enabled display.
	if !cfg.Display.Enabled {
		return nil
	}
	switch cfg.Display.Size {
	case DisplaySmall, DisplayLarge:
	default:
		return fmt.Errorf("display.size %q unsupported (want %s or %s)", cfg.Display.Size, DisplaySmall, DisplayLarge)
	}
	return nil
}

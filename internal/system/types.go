// Package system samples local OS state for the status agent: network
// throughput, the access point, systemd units, addresses and the visible
// Wi-Fi networks. Every probe is read-only and bounded by a timeout.
package system

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jamesprial/srt-streamer-agent/internal/activity"
)

// Probe failure kinds. Use errors.Is against a returned error.
var (
	ErrUnavailable = errors.New("unavailable")
	ErrParse       = errors.New("unparsable output")
)

// ProbeError reports why a single probe produced no value.
type ProbeError struct {
	// Probe names the fact being queried (e.g. "throughput").
	Probe string
	// Kind is ErrUnavailable or ErrParse.
	Kind error
	// Err is the underlying cause, if any.
	Err error
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("probe %s: %v", e.Probe, e.Kind)
	}
	return fmt.Sprintf("probe %s: %v: %v", e.Probe, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *ProbeError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(probe string, err error) error {
	return &ProbeError{Probe: probe, Kind: ErrUnavailable, Err: err}
}

func parseFailure(probe string, err error) error {
	return &ProbeError{Probe: probe, Kind: ErrParse, Err: err}
}

// ThroughputSample is the rate observed on one interface over the sample
// window, in kilobits per second.
type ThroughputSample struct {
	Interface string  `json:"interface"`
	InKbps    float64 `json:"in_kbps"`
	OutKbps   float64 `json:"out_kbps"`
}

// APState is the link state of the appliance's own access point.
type APState int

const (
	// APMissing means the AP interface does not exist.
	APMissing APState = iota
	// APDown means the interface exists but is down or unconfigured.
	APDown
	// APUp means the interface is up and hostapd has an SSID.
	APUp
)

// String returns the dashboard's wire value for s.
func (s APState) String() string {
	switch s {
	case APUp:
		return "up"
	case APDown:
		return "down"
	default:
		return "missing"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s APState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// APInfo describes the access point.
type APInfo struct {
	State    APState
	SSID     string
	Password string
}

// WifiNetwork is one entry of a Wi-Fi scan.
type WifiNetwork struct {
	SSID     string `json:"ssid"`
	InUse    bool   `json:"in_use"`
	Rate     string `json:"rate,omitempty"`
	Signal   int    `json:"signal"`
	Security string `json:"security"`
}

// Prober defines the read-only queries the agent makes against the host.
// Every method returns either a value or a *ProbeError.
type Prober interface {
	Hostname(ctx context.Context) (string, error)
	Uptime(ctx context.Context) (time.Duration, error)
	Throughput(ctx context.Context) ([]ThroughputSample, error)
	AccessPoint(ctx context.Context) (APInfo, error)
	LocalIP(ctx context.Context) (string, error)
	ServiceActivity(ctx context.Context, unit string) (activity.Reading, error)
	ServiceState(ctx context.Context, unit string) (string, error)
	RemoteName(ctx context.Context) (string, error)
	ScanWifi(ctx context.Context) ([]WifiNetwork, error)
}

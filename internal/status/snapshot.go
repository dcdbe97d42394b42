// Package status assembles probe results into immutable snapshots.
package status

import (
	"slices"
	"time"

	"github.com/jamesprial/srt-streamer-agent/internal/activity"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// Sentinels substituted for facts that could not be read.
const (
	UnknownHostname = "unknown"
	UnknownIP       = "0.0.0.0"
	UnknownService  = "unknown"
)

// Rate is the throughput of one interface in kilobits per second.
type Rate struct {
	InKbps  float64 `json:"in_kbps"`
	OutKbps float64 `json:"out_kbps"`
}

// Snapshot is a point-in-time view of the appliance. A Snapshot is never
// modified after Build returns it; share it by pointer.
type Snapshot struct {
	Hostname      string            `json:"hostname"`
	UptimeSeconds uint64            `json:"uptime_seconds"`
	AP            system.APState    `json:"ap_status"`
	SSID          string            `json:"ap_ssid"`
	APPassword    string            `json:"ap_password,omitempty"`
	LocalIP       string            `json:"ip"`
	UplinkKbps    float64           `json:"uplink_kbps"`
	DownlinkKbps  float64           `json:"downlink_kbps"`
	Interfaces    map[string]Rate   `json:"interfaces"`
	Streaming     activity.State    `json:"streaming"`
	Services      map[string]string `json:"services"`
	RemoteURL     string            `json:"remote_url,omitempty"`
	CapturedAt    time.Time         `json:"captured_at"`
}

// Unknown returns a snapshot with every field at its sentinel value.
func Unknown(now time.Time) *Snapshot {
	return &Snapshot{
		Hostname:   UnknownHostname,
		AP:         system.APMissing,
		LocalIP:    UnknownIP,
		Interfaces: map[string]Rate{},
		Streaming:  activity.Unknown,
		Services:   map[string]string{},
		CapturedAt: now,
	}
}

// Service returns the recorded state word of unit, or UnknownService.
func (s *Snapshot) Service(unit string) string {
	if v, ok := s.Services[unit]; ok {
		return v
	}
	return UnknownService
}

// InterfaceNames returns the interface names in sorted order.
func (s *Snapshot) InterfaceNames() []string {
	names := make([]string, 0, len(s.Interfaces))
	for name := range s.Interfaces {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Aggregate sums throughput over every sample whose interface is not in
// exclude. The result does not depend on sample order and is never negative.
func Aggregate(samples []system.ThroughputSample, exclude []string) (inKbps, outKbps float64) {
	for _, s := range samples {
		if slices.Contains(exclude, s.Interface) {
			continue
		}
		inKbps += max(s.InKbps, 0)
		outKbps += max(s.OutKbps, 0)
	}
	return inKbps, outKbps
}

// perInterface converts samples to the snapshot's interface map, dropping
// excluded interfaces.
func perInterface(samples []system.ThroughputSample, exclude []string) map[string]Rate {
	out := make(map[string]Rate, len(samples))
	for _, s := range samples {
		if slices.Contains(exclude, s.Interface) {
			continue
		}
		out[s.Interface] = Rate{InKbps: max(s.InKbps, 0), OutKbps: max(s.OutKbps, 0)}
	}
	return out
}

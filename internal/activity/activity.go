// Package activity decides whether the appliance is currently streaming.
//
// A systemd unit can be "active" while its pipeline is stalled and emitting
// nothing, so the verdict combines how long the unit has been continuously
// active with the outbound throughput actually observed on the wire.
package activity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparsable is returned by ParseStatus when the status text carries no
// recognisable "Active:" line.
var ErrUnparsable = errors.New("activity: no Active line in status text")

// State is the streaming verdict.
type State int

const (
	// Unknown means the service activity could not be read.
	Unknown State = iota
	// NotStreaming means the service is inactive, too fresh, or quiet.
	NotStreaming
	// Streaming means the service is settled and emitting bits.
	Streaming
)

var stateNames = map[State]string{
	Unknown:      "UNKNOWN",
	NotStreaming: "NOT_STREAMING",
	Streaming:    "STREAMING",
}

// String returns the wire name of s.
func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return stateNames[Unknown]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("activity: unknown state %q", text)
}

// Reading is the parsed form of a service status report.
type Reading struct {
	// Active is true when the unit is running and reported how long ago it
	// entered that state.
	Active bool
	// Since is the time elapsed since the last state change.
	Since time.Duration
	// Raw is the Active line the reading was parsed from.
	Raw string
}

// Thresholds configures Classify.
type Thresholds struct {
	// Debounce is how long the service must have been continuously active.
	Debounce time.Duration
	// MinBitrateKbps is the outbound throughput required to count as
	// streaming. Zero disables the bitrate gate.
	MinBitrateKbps float64
}

// DefaultThresholds returns a 3 second debounce and a 100 kbps floor.
func DefaultThresholds() Thresholds {
	return Thresholds{Debounce: 3 * time.Second, MinBitrateKbps: 100}
}

// Classify combines a service reading with the aggregate outbound throughput.
// readErr is the error returned alongside the reading; any non-nil value
// yields Unknown.
func Classify(r Reading, readErr error, outKbps float64, th Thresholds) State {
	if readErr != nil {
		return Unknown
	}
	if !r.Active || r.Since <= th.Debounce {
		return NotStreaming
	}
	if th.MinBitrateKbps > 0 && outKbps < th.MinBitrateKbps {
		return NotStreaming
	}
	return Streaming
}

// Seconds per unit. Month and year are average calendar lengths, which is
// what systemd uses when it formats relative timestamps.
const (
	secondsPerMinute = 60
	secondsPerHour   = 3600
	secondsPerDay    = 86400
	secondsPerWeek   = 604800
	secondsPerMonth  = 2629800
	secondsPerYear   = 31557600
)

// durationToken matches a number and the whole letter run after it, so
// back-to-back tokens ("1h30min") split cleanly and "ms" or "us" never read
// as "min" or "s". Units missing from unitSeconds contribute nothing.
var durationToken = regexp.MustCompile(`(\d+)\s*([a-z]+)`)

var unitSeconds = map[string]int64{
	"y": secondsPerYear, "year": secondsPerYear, "years": secondsPerYear,
	"month": secondsPerMonth, "months": secondsPerMonth,
	"w": secondsPerWeek, "week": secondsPerWeek, "weeks": secondsPerWeek,
	"d": secondsPerDay, "day": secondsPerDay, "days": secondsPerDay,
	"h":   secondsPerHour,
	"min": secondsPerMinute,
	"s":   1,
}

// ParseDuration sums every "<int><unit>" token in text. Text that matches
// nothing yields 0.
//
//	ParseDuration("2min 39s") == 159 * time.Second
//	ParseDuration("3 day")    == 72 * time.Hour
func ParseDuration(text string) time.Duration {
	var total int64
	for _, m := range durationToken.FindAllStringSubmatch(text, -1) {
		secs, ok := unitSeconds[m[2]]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		total += n * secs
	}
	return time.Duration(total) * time.Second
}

// ParseStatus reads the "Active:" line of `systemctl status` output, e.g.
//
//	Active: active (running) since Mon 2025-03-03 10:00:00 UTC; 2min 39s ago
//
// The unit counts as active only when its state word is "active" and the
// relative timestamp parses to a positive duration.
func ParseStatus(text string) (Reading, error) {
	var line string
	for _, l := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "Active:") {
			line = trimmed
			break
		}
	}
	if line == "" {
		return Reading{}, ErrUnparsable
	}

	r := Reading{Raw: line}
	fields := strings.Fields(strings.TrimPrefix(line, "Active:"))
	if len(fields) == 0 || fields[0] != "active" {
		return r, nil
	}

	_, rel, ok := strings.Cut(line, ";")
	if !ok {
		return r, nil
	}
	rel, _, _ = strings.Cut(rel, "ago")
	r.Since = ParseDuration(rel)
	r.Active = r.Since > 0
	return r, nil
}

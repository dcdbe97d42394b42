// Package display cycles the appliance's local status screen through a
// fixed set of modes, rendering each from the hub's cached snapshot.
package display

import (
	"fmt"

	"github.com/jamesprial/srt-streamer-agent/internal/config"
	"github.com/jamesprial/srt-streamer-agent/internal/status"
)

// Frame is one rendered screen.
type Frame struct {
	Title string
	Lines []string
}

// Mode renders one screen from a snapshot.
type Mode struct {
	Name   string
	Render func(snap *status.Snapshot) Frame
}

// Variant describes a physical screen: its size in character cells and the
// modes it cycles through.
type Variant struct {
	Name   string
	Width  int
	Height int
	Modes  []Mode
}

var (
	modeOverview    = Mode{Name: "overview", Render: overviewFrame}
	modeNetwork     = Mode{Name: "network", Render: networkFrame}
	modeStream      = Mode{Name: "stream", Render: streamFrame}
	modeAccessPoint = Mode{Name: "access point", Render: accessPointFrame}
)

// SmallVariant is the 0.96" 128x64 OLED.
func SmallVariant() Variant {
	return Variant{Name: config.DisplaySmall, Width: 21, Height: 8, Modes: []Mode{modeNetwork, modeStream}}
}

// LargeVariant is the 3.5" 320x480 panel.
func LargeVariant() Variant {
	return Variant{
		Name:   config.DisplayLarge,
		Width:  40,
		Height: 30,
		Modes:  []Mode{modeOverview, modeNetwork, modeStream, modeAccessPoint},
	}
}

// VariantFor returns the variant for a SCREEN_SIZE value.
func VariantFor(size string) (Variant, error) {
	switch size {
	case config.DisplaySmall:
		return SmallVariant(), nil
	case config.DisplayLarge:
		return LargeVariant(), nil
	}
	return Variant{}, fmt.Errorf("unsupported screen size %q", size)
}

func overviewFrame(snap *status.Snapshot) Frame {
	lines := []string{
		"Host   " + snap.Hostname,
		"IP     " + snap.LocalIP,
		"Stream " + snap.Streaming.String(),
		"Up     " + FormatUptime(snap.UptimeSeconds),
	}
	if snap.RemoteURL != "" {
		lines = append(lines, "Remote "+snap.RemoteURL)
	}
	return Frame{Title: "SRT STREAMER", Lines: lines}
}

func networkFrame(snap *status.Snapshot) Frame {
	lines := []string{
		"IP " + snap.LocalIP,
		"Up " + FormatKbps(snap.UplinkKbps),
		"Dn " + FormatKbps(snap.DownlinkKbps),
	}
	for _, name := range snap.InterfaceNames() {
		r := snap.Interfaces[name]
		lines = append(lines, fmt.Sprintf("%s %s", name, FormatKbps(r.OutKbps)))
	}
	return Frame{Title: "NETWORK", Lines: lines}
}

func streamFrame(snap *status.Snapshot) Frame {
	return Frame{
		Title: "STREAM",
		Lines: []string{
			snap.Streaming.String(),
			"Rate " + FormatKbps(snap.UplinkKbps),
			"Up   " + FormatUptime(snap.UptimeSeconds),
		},
	}
}

func accessPointFrame(snap *status.Snapshot) Frame {
	lines := []string{"State " + snap.AP.String()}
	if snap.SSID != "" {
		lines = append(lines, "SSID  "+snap.SSID)
	}
	if snap.APPassword != "" {
		lines = append(lines, "Pass  "+snap.APPassword)
	}
	return Frame{Title: "ACCESS POINT", Lines: lines}
}

// FormatKbps renders a rate as kbps below 1000 and Mbps above.
func FormatKbps(kbps float64) string {
	if kbps < 1000 {
		return fmt.Sprintf("%.0f kbps", kbps)
	}
	return fmt.Sprintf("%.1f Mbps", kbps/1000)
}

// FormatUptime renders seconds as "3d 04:05" or "04:05:06".
func FormatUptime(secs uint64) string {
	d, rem := secs/86400, secs%86400
	h, m, s := rem/3600, rem%3600/60, rem%60
	if d > 0 {
		return fmt.Sprintf("%dd %02d:%02d", d, h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

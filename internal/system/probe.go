package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	stdnet "net"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/jamesprial/srt-streamer-agent/internal/activity"
)

// Compile-time interface check.
var _ Prober = (*HostProber)(nil)

// Options configures a HostProber.
type Options struct {
	// Timeout bounds each probe call.
	Timeout time.Duration
	// SampleWindow is the gap between the two counter readings used by
	// Throughput.
	SampleWindow time.Duration
	// APInterface is the access point interface name (normally ap0).
	APInterface string
	// HostapdConfig is the hostapd configuration of the access point.
	HostapdConfig string
	// Exclude lists interfaces that never provide the local address.
	Exclude []string
}

// HostProber implements Prober against the running host using gopsutil for
// kernel counters and external commands (systemctl, nmcli, tailscale) for
// everything else.
type HostProber struct {
	runner Runner
	opts   Options

	// Kernel accessors; replaced in tests.
	counters   func(ctx context.Context) ([]net.IOCountersStat, error)
	interfaces func(ctx context.Context) (net.InterfaceStatList, error)
	hostname   func(ctx context.Context) (string, error)
	uptime     func(ctx context.Context) (uint64, error)
}

// NewHostProber returns a HostProber that runs commands through runner.
func NewHostProber(runner Runner, opts Options) *HostProber {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.SampleWindow <= 0 {
		opts.SampleWindow = time.Second
	}
	return &HostProber{
		runner: runner,
		opts:   opts,
		counters: func(ctx context.Context) ([]net.IOCountersStat, error) {
			return net.IOCountersWithContext(ctx, true)
		},
		interfaces: net.InterfacesWithContext,
		hostname: func(ctx context.Context) (string, error) {
			info, err := host.InfoWithContext(ctx)
			if err != nil || info.Hostname == "" {
				return hostnameFallback()
			}
			return info.Hostname, nil
		},
		uptime: host.UptimeWithContext,
	}
}

// Hostname returns the host name.
func (p *HostProber) Hostname(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	name, err := p.hostname(ctx)
	if err != nil {
		return "", unavailable("hostname", err)
	}
	if name == "" {
		return "", parseFailure("hostname", errors.New("empty host name"))
	}
	return name, nil
}

// Uptime returns the time since boot.
func (p *HostProber) Uptime(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	secs, err := p.uptime(ctx)
	if err != nil {
		return 0, unavailable("uptime", err)
	}
	return time.Duration(secs) * time.Second, nil
}

// Throughput reads the per-interface byte counters twice, SampleWindow
// apart, and returns the rates in kilobits per second. Counters that went
// backwards (wrap or interface reset) report zero.
func (p *HostProber) Throughput(ctx context.Context) ([]ThroughputSample, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout+p.opts.SampleWindow)
	defer cancel()

	first, err := p.counters(ctx)
	if err != nil {
		return nil, unavailable("throughput", err)
	}
	start := time.Now()

	select {
	case <-ctx.Done():
		return nil, unavailable("throughput", ctx.Err())
	case <-time.After(p.opts.SampleWindow):
	}

	second, err := p.counters(ctx)
	if err != nil {
		return nil, unavailable("throughput", err)
	}
	return rates(first, second, time.Since(start)), nil
}

// rates converts two counter readings into per-interface kbps. Interfaces
// present only in the second reading are skipped.
func rates(first, second []net.IOCountersStat, elapsed time.Duration) []ThroughputSample {
	secs := elapsed.Seconds()
	if secs <= 0 {
		secs = 1
	}
	prev := make(map[string]net.IOCountersStat, len(first))
	for _, c := range first {
		prev[c.Name] = c
	}

	samples := make([]ThroughputSample, 0, len(second))
	for _, cur := range second {
		old, ok := prev[cur.Name]
		if !ok {
			continue
		}
		samples = append(samples, ThroughputSample{
			Interface: cur.Name,
			InKbps:    kbps(old.BytesRecv, cur.BytesRecv, secs),
			OutKbps:   kbps(old.BytesSent, cur.BytesSent, secs),
		})
	}
	return samples
}

func kbps(before, after uint64, secs float64) float64 {
	if after < before {
		return 0
	}
	return float64(after-before) * 8 / 1000 / secs
}

// AccessPoint reports the access point state. A missing interface is a
// valid answer (APMissing), not a probe failure.
func (p *HostProber) AccessPoint(ctx context.Context) (APInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	ifaces, err := p.interfaces(ctx)
	if err != nil {
		return APInfo{State: APMissing}, unavailable("access point", err)
	}

	idx := slices.IndexFunc(ifaces, func(i net.InterfaceStat) bool { return i.Name == p.opts.APInterface })
	if idx < 0 {
		return APInfo{State: APMissing}, nil
	}
	if !slices.Contains(ifaces[idx].Flags, "up") {
		return APInfo{State: APDown}, nil
	}

	kv, err := ReadKeyValueFile(p.opts.HostapdConfig, KeyValueOptions{})
	if err != nil || kv["ssid"] == "" {
		return APInfo{State: APDown}, nil
	}
	return APInfo{State: APUp, SSID: kv["ssid"], Password: kv["wpa_passphrase"]}, nil
}

// LocalIP returns the first IPv4 address of an up, non-loopback,
// non-excluded interface.
func (p *HostProber) LocalIP(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	ifaces, err := p.interfaces(ctx)
	if err != nil {
		return "", unavailable("local ip", err)
	}
	for _, iface := range ifaces {
		if slices.Contains(p.opts.Exclude, iface.Name) ||
			slices.Contains(iface.Flags, "loopback") ||
			!slices.Contains(iface.Flags, "up") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := stdnet.ParseCIDR(addr.Addr)
			if err != nil {
				ip = stdnet.ParseIP(addr.Addr)
			}
			if ip4 := ip.To4(); ip4 != nil {
				return ip4.String(), nil
			}
		}
	}
	return "", unavailable("local ip", errors.New("no IPv4 address on any interface"))
}

// ServiceActivity parses `systemctl status <unit>`. systemctl exits
// non-zero for inactive units while still printing the status, so output is
// parsed whenever there is some.
func (p *HostProber) ServiceActivity(ctx context.Context, unit string) (activity.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, "systemctl", "status", "--no-pager", unit)
	if len(out) == 0 {
		if err == nil {
			err = errors.New("empty output")
		}
		return activity.Reading{}, unavailable("service activity", err)
	}
	reading, perr := activity.ParseStatus(string(out))
	if perr != nil {
		return activity.Reading{}, parseFailure("service activity", perr)
	}
	return reading, nil
}

// ServiceState returns the `systemctl is-active` word for unit (active,
// inactive, failed, ...).
func (p *HostProber) ServiceState(ctx context.Context, unit string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, "systemctl", "is-active", unit)
	state := strings.TrimSpace(string(out))
	if state == "" {
		if err == nil {
			err = errors.New("empty output")
		}
		return "", unavailable("service state", err)
	}
	return state, nil
}

// tailscaleStatus is the subset of `tailscale status --json` the agent reads.
type tailscaleStatus struct {
	Self struct {
		DNSName string `json:"DNSName"`
	} `json:"Self"`
}

// RemoteName returns the tailnet DNS name of this host.
func (p *HostProber) RemoteName(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, "tailscale", "status", "--json")
	if err != nil {
		return "", unavailable("remote name", err)
	}
	var st tailscaleStatus
	if err := json.Unmarshal(out, &st); err != nil {
		return "", parseFailure("remote name", err)
	}
	name := strings.TrimSuffix(st.Self.DNSName, ".")
	if name == "" {
		return "", parseFailure("remote name", errors.New("no DNSName for self"))
	}
	return name, nil
}

// ScanWifi lists visible networks via nmcli.
func (p *HostProber) ScanWifi(ctx context.Context) ([]WifiNetwork, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, "nmcli", "-t", "-f", "IN-USE,SSID,RATE,SIGNAL,SECURITY", "device", "wifi", "list")
	if err != nil {
		return nil, unavailable("wifi scan", err)
	}
	networks, err := parseWifiList(string(out))
	if err != nil {
		return nil, parseFailure("wifi scan", err)
	}
	return networks, nil
}

// hostnameFallback is used when gopsutil cannot read the host name.
func hostnameFallback() (string, error) {
	name, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("os.Hostname: %w", err)
	}
	return name, nil
}

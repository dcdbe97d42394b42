package system

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/net"
)

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// fakeRunner answers commands through a func field.
type fakeRunner struct {
	RunFunc func(name string, args ...string) ([]byte, error)
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.RunFunc == nil {
		return nil, errors.New("not configured")
	}
	return f.RunFunc(name, args...)
}

var _ Runner = (*fakeRunner)(nil)

func newTestProber(r Runner, opts Options) *HostProber {
	if opts.SampleWindow == 0 {
		opts.SampleWindow = time.Millisecond
	}
	return NewHostProber(r, opts)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// Throughput
// ---------------------------------------------------------------------------

func Test_Rates_Cases(t *testing.T) {
	tests := []struct {
		name     string
		first    []net.IOCountersStat
		second   []net.IOCountersStat
		elapsed  time.Duration
		validate func(t *testing.T, got []ThroughputSample)
	}{
		{
			name:    "one megabit up over one second",
			first:   []net.IOCountersStat{{Name: "eth0", BytesSent: 0, BytesRecv: 1000}},
			second:  []net.IOCountersStat{{Name: "eth0", BytesSent: 125000, BytesRecv: 1000}},
			elapsed: time.Second,
			validate: func(t *testing.T, got []ThroughputSample) {
				if len(got) != 1 {
					t.Fatalf("len = %d, want 1", len(got))
				}
				if got[0].OutKbps != 1000 {
					t.Errorf("OutKbps = %v, want 1000", got[0].OutKbps)
				}
				if got[0].InKbps != 0 {
					t.Errorf("InKbps = %v, want 0", got[0].InKbps)
				}
			},
		},
		{
			name:    "rate scales with elapsed time",
			first:   []net.IOCountersStat{{Name: "wlan0", BytesRecv: 0}},
			second:  []net.IOCountersStat{{Name: "wlan0", BytesRecv: 50000}},
			elapsed: 2 * time.Second,
			validate: func(t *testing.T, got []ThroughputSample) {
				if got[0].InKbps != 200 {
					t.Errorf("InKbps = %v, want 200", got[0].InKbps)
				}
			},
		},
		{
			name:    "counter wrap reports zero",
			first:   []net.IOCountersStat{{Name: "eth0", BytesSent: 9000}},
			second:  []net.IOCountersStat{{Name: "eth0", BytesSent: 10}},
			elapsed: time.Second,
			validate: func(t *testing.T, got []ThroughputSample) {
				if got[0].OutKbps != 0 {
					t.Errorf("OutKbps = %v, want 0", got[0].OutKbps)
				}
			},
		},
		{
			name:    "interface appearing mid-window is skipped",
			first:   []net.IOCountersStat{{Name: "eth0"}},
			second:  []net.IOCountersStat{{Name: "eth0"}, {Name: "enx001"}},
			elapsed: time.Second,
			validate: func(t *testing.T, got []ThroughputSample) {
				if len(got) != 1 || got[0].Interface != "eth0" {
					t.Errorf("got %+v, want only eth0", got)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.validate(t, rates(tt.first, tt.second, tt.elapsed))
		})
	}
}

func TestHostProber_Throughput(t *testing.T) {
	p := newTestProber(&fakeRunner{}, Options{})
	readings := [][]net.IOCountersStat{
		{{Name: "eth0", BytesSent: 100}},
		{{Name: "eth0", BytesSent: 200}},
	}
	call := 0
	p.counters = func(context.Context) ([]net.IOCountersStat, error) {
		r := readings[call]
		call++
		return r, nil
	}

	got, err := p.Throughput(context.Background())
	if err != nil {
		t.Fatalf("Throughput() error = %v", err)
	}
	if call != 2 {
		t.Errorf("counter reads = %d, want 2", call)
	}
	if len(got) != 1 || got[0].OutKbps <= 0 {
		t.Errorf("Throughput() = %+v, want positive eth0 uplink", got)
	}
}

func TestHostProber_Throughput_Unavailable(t *testing.T) {
	p := newTestProber(&fakeRunner{}, Options{})
	p.counters = func(context.Context) ([]net.IOCountersStat, error) {
		return nil, errors.New("no /proc")
	}

	_, err := p.Throughput(context.Background())
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	var pe *ProbeError
	if !errors.As(err, &pe) || pe.Probe != "throughput" {
		t.Errorf("errors.As ProbeError = %+v", pe)
	}
}

// ---------------------------------------------------------------------------
// Access point and addresses
// ---------------------------------------------------------------------------

func Test_AccessPoint_Cases(t *testing.T) {
	hostapd := "interface=ap0\n# comment\nssid=StreamBox\nwpa_passphrase=hunter22\n"

	tests := []struct {
		name   string
		ifaces net.InterfaceStatList
		config string
		want   APInfo
	}{
		{
			name:   "interface absent",
			ifaces: net.InterfaceStatList{{Name: "eth0", Flags: []string{"up"}}},
			config: hostapd,
			want:   APInfo{State: APMissing},
		},
		{
			name:   "interface down",
			ifaces: net.InterfaceStatList{{Name: "ap0", Flags: []string{"broadcast"}}},
			config: hostapd,
			want:   APInfo{State: APDown},
		},
		{
			name:   "up with ssid",
			ifaces: net.InterfaceStatList{{Name: "ap0", Flags: []string{"up", "broadcast"}}},
			config: hostapd,
			want:   APInfo{State: APUp, SSID: "StreamBox", Password: "hunter22"},
		},
		{
			name:   "up without ssid",
			ifaces: net.InterfaceStatList{{Name: "ap0", Flags: []string{"up"}}},
			config: "interface=ap0\n",
			want:   APInfo{State: APDown},
		},
		{
			name:   "up with missing config file",
			ifaces: net.InterfaceStatList{{Name: "ap0", Flags: []string{"up"}}},
			want:   APInfo{State: APDown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "absent.conf")
			if tt.config != "" {
				path = writeFile(t, "hostapd.conf", tt.config)
			}
			p := newTestProber(&fakeRunner{}, Options{APInterface: "ap0", HostapdConfig: path})
			p.interfaces = func(context.Context) (net.InterfaceStatList, error) { return tt.ifaces, nil }

			got, err := p.AccessPoint(context.Background())
			if err != nil {
				t.Fatalf("AccessPoint() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("AccessPoint() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestHostProber_LocalIP(t *testing.T) {
	ifaces := net.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}, Addrs: net.InterfaceAddrList{{Addr: "127.0.0.1/8"}}},
		{Name: "ap0", Flags: []string{"up"}, Addrs: net.InterfaceAddrList{{Addr: "10.42.0.1/24"}}},
		{Name: "eth1", Flags: []string{"broadcast"}, Addrs: net.InterfaceAddrList{{Addr: "192.168.9.9/24"}}},
		{Name: "wlan0", Flags: []string{"up"}, Addrs: net.InterfaceAddrList{{Addr: "fe80::1/64"}, {Addr: "192.168.1.23/24"}}},
	}
	p := newTestProber(&fakeRunner{}, Options{Exclude: []string{"lo", "ap0"}})
	p.interfaces = func(context.Context) (net.InterfaceStatList, error) { return ifaces, nil }

	got, err := p.LocalIP(context.Background())
	if err != nil {
		t.Fatalf("LocalIP() error = %v", err)
	}
	if got != "192.168.1.23" {
		t.Errorf("LocalIP() = %q, want 192.168.1.23", got)
	}

	p.interfaces = func(context.Context) (net.InterfaceStatList, error) { return ifaces[:2], nil }
	if _, err := p.LocalIP(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("LocalIP() with no candidates error = %v, want ErrUnavailable", err)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func Test_ServiceActivity_Cases(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		err      error
		validate func(t *testing.T, active bool, since time.Duration, err error)
	}{
		{
			name: "running",
			out:  "   Active: active (running) since Mon 2025-03-03 10:00:00 UTC; 1min 5s ago\n",
			validate: func(t *testing.T, active bool, since time.Duration, err error) {
				if err != nil || !active || since != 65*time.Second {
					t.Errorf("got active=%v since=%v err=%v", active, since, err)
				}
			},
		},
		{
			name: "inactive exits non-zero but still parses",
			out:  "   Active: inactive (dead)\n",
			err:  errors.New("exit status 3"),
			validate: func(t *testing.T, active bool, _ time.Duration, err error) {
				if err != nil || active {
					t.Errorf("got active=%v err=%v, want inactive reading", active, err)
				}
			},
		},
		{
			name: "binary missing",
			err:  errors.New(`exec: "systemctl": executable file not found in $PATH`),
			validate: func(t *testing.T, _ bool, _ time.Duration, err error) {
				if !errors.Is(err, ErrUnavailable) {
					t.Errorf("error = %v, want ErrUnavailable", err)
				}
			},
		},
		{
			name: "no active line",
			out:  "Unit foo.service could not be found.\n",
			err:  errors.New("exit status 4"),
			validate: func(t *testing.T, _ bool, _ time.Duration, err error) {
				if !errors.Is(err, ErrParse) {
					t.Errorf("error = %v, want ErrParse", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{RunFunc: func(string, ...string) ([]byte, error) { return []byte(tt.out), tt.err }}
			p := newTestProber(r, Options{})
			reading, err := p.ServiceActivity(context.Background(), "srt-streamer.service")
			tt.validate(t, reading.Active, reading.Since, err)
			if len(r.calls) != 1 || !strings.HasPrefix(r.calls[0], "systemctl status") {
				t.Errorf("calls = %v", r.calls)
			}
		})
	}
}

func TestHostProber_ServiceState(t *testing.T) {
	r := &fakeRunner{RunFunc: func(string, ...string) ([]byte, error) {
		return []byte("inactive\n"), errors.New("exit status 3")
	}}
	p := newTestProber(r, Options{})

	got, err := p.ServiceState(context.Background(), "network-watcher.service")
	if err != nil {
		t.Fatalf("ServiceState() error = %v", err)
	}
	if got != "inactive" {
		t.Errorf("ServiceState() = %q, want inactive", got)
	}
	if r.calls[0] != "systemctl is-active network-watcher.service" {
		t.Errorf("command = %q", r.calls[0])
	}

	r.RunFunc = func(string, ...string) ([]byte, error) { return nil, context.DeadlineExceeded }
	if _, err := p.ServiceState(context.Background(), "x"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("error = %v, want ErrUnavailable", err)
	}
}

func Test_RemoteName_Cases(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		err     error
		want    string
		wantErr error
	}{
		{name: "dns name trimmed", out: `{"Self":{"DNSName":"streambox.tail1234.ts.net."}}`, want: "streambox.tail1234.ts.net"},
		{name: "not logged in", out: `{"Self":{}}`, wantErr: ErrParse},
		{name: "bad json", out: `nope`, wantErr: ErrParse},
		{name: "daemon down", err: errors.New("exit status 1"), wantErr: ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProber(&fakeRunner{RunFunc: func(string, ...string) ([]byte, error) {
				return []byte(tt.out), tt.err
			}}, Options{})
			got, err := p.RemoteName(context.Background())
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("RemoteName() = %q, %v; want %q", got, err, tt.want)
			}
		})
	}
}

func TestHostProber_ScanWifi(t *testing.T) {
	out := strings.Join([]string{
		`*:HomeNet:130 Mbit/s:78:WPA2`,
		` :Cafe\:Guest:54 Mbit/s:40:`,
		` ::270 Mbit/s:90:WPA2`,
		` :Back\\slash:65 Mbit/s:120:WPA1 WPA2`,
		``,
	}, "\n")
	r := &fakeRunner{RunFunc: func(string, ...string) ([]byte, error) { return []byte(out), nil }}
	p := newTestProber(r, Options{})

	got, err := p.ScanWifi(context.Background())
	if err != nil {
		t.Fatalf("ScanWifi() error = %v", err)
	}
	want := []WifiNetwork{
		{SSID: "HomeNet", InUse: true, Rate: "130 Mbit/s", Signal: 78, Security: "WPA2"},
		{SSID: "Cafe:Guest", Rate: "54 Mbit/s", Signal: 40, Security: "UNKNOWN"},
		{SSID: `Back\slash`, Rate: "65 Mbit/s", Signal: 100, Security: "WPA1 WPA2"},
	}
	if len(got) != len(want) {
		t.Fatalf("ScanWifi() = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("network[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	r.RunFunc = func(string, ...string) ([]byte, error) { return []byte("*:Only:two"), nil }
	if _, err := p.ScanWifi(context.Background()); !errors.Is(err, ErrParse) {
		t.Errorf("short line error = %v, want ErrParse", err)
	}
}

func TestSplitTerse(t *testing.T) {
	got := SplitTerse(`a\:b:c::d\\`)
	want := []string{"a:b", "c", "", `d\`}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("SplitTerse() = %q, want %q", got, want)
	}
}

func TestHostProber_Uptime(t *testing.T) {
	p := newTestProber(&fakeRunner{}, Options{})
	p.uptime = func(context.Context) (uint64, error) { return 90, nil }
	got, err := p.Uptime(context.Background())
	if err != nil || got != 90*time.Second {
		t.Errorf("Uptime() = %v, %v", got, err)
	}

	p.hostname = func(context.Context) (string, error) { return "", nil }
	if _, err := p.Hostname(context.Background()); !errors.Is(err, ErrParse) {
		t.Errorf("Hostname() empty error = %v, want ErrParse", err)
	}
}

func Test_ReadKeyValueFile_Cases(t *testing.T) {
	content := "# comment\nssid=Venue AP\nwpa_passphrase = 'Secret' \nnoequals\n\nSCREEN=\"TRUE\"\n"

	tests := []struct {
		name string
		opts KeyValueOptions
		want map[string]string
	}{
		{
			name: "raw values",
			want: map[string]string{"ssid": "Venue AP", "wpa_passphrase": "'Secret'", "SCREEN": `"TRUE"`},
		},
		{
			name: "env file normalization",
			opts: KeyValueOptions{Unquote: true, Lower: true},
			want: map[string]string{"ssid": "venue ap", "wpa_passphrase": "secret", "SCREEN": "true"},
		},
	}

	path := writeFile(t, "kv.conf", content)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadKeyValueFile(path, tt.opts)
			if err != nil {
				t.Fatalf("ReadKeyValueFile() error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}

	_, err := ReadKeyValueFile(filepath.Join(t.TempDir(), "absent"), KeyValueOptions{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

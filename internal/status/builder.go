package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesprial/srt-streamer-agent/internal/activity"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// Options configures a Builder.
type Options struct {
	// Exclude lists interfaces left out of the throughput figures.
	Exclude []string
	// StreamService is the unit whose activity decides the streaming state.
	StreamService string
	// Services are the units whose is-active word is recorded. The stream
	// service is always included.
	Services []string
	// Thresholds tune the streaming classifier.
	Thresholds activity.Thresholds
	// RemoteURLFormat is applied to the remote access name with fmt.Sprintf.
	RemoteURLFormat string
}

// Builder produces snapshots from a Prober.
type Builder struct {
	prober system.Prober
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewBuilder returns a Builder. A nil logger discards log output.
func NewBuilder(prober system.Prober, opts Options, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{
		prober: prober,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// Build queries every probe concurrently and returns a complete snapshot.
// Build never fails: a probe that errors contributes its sentinel value and
// the failure is logged.
func (b *Builder) Build(ctx context.Context) *Snapshot {
	snap := Unknown(b.now())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		reading  activity.Reading
		readErr  error
		samples  []system.ThroughputSample
		services = make(map[string]string)
	)

	run := func(probe string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				b.logFailure(probe, err)
			}
		}()
	}

	run("hostname", func() error {
		name, err := b.prober.Hostname(ctx)
		if err == nil {
			snap.Hostname = name
		}
		return err
	})
	run("uptime", func() error {
		up, err := b.prober.Uptime(ctx)
		if err == nil {
			snap.UptimeSeconds = uint64(up / time.Second)
		}
		return err
	})
	run("throughput", func() error {
		s, err := b.prober.Throughput(ctx)
		if err == nil {
			samples = s
		}
		return err
	})
	run("access point", func() error {
		ap, err := b.prober.AccessPoint(ctx)
		if err == nil {
			snap.AP, snap.SSID, snap.APPassword = ap.State, ap.SSID, ap.Password
		}
		return err
	})
	run("local ip", func() error {
		ip, err := b.prober.LocalIP(ctx)
		if err == nil {
			snap.LocalIP = ip
		}
		return err
	})
	run("service activity", func() error {
		reading, readErr = b.prober.ServiceActivity(ctx, b.opts.StreamService)
		return readErr
	})
	run("remote name", func() error {
		name, err := b.prober.RemoteName(ctx)
		if err == nil && b.opts.RemoteURLFormat != "" {
			snap.RemoteURL = fmt.Sprintf(b.opts.RemoteURLFormat, name)
		}
		return err
	})
	for _, unit := range b.units() {
		run("service state", func() error {
			state, err := b.prober.ServiceState(ctx, unit)
			if err != nil {
				state = UnknownService
			}
			mu.Lock()
			services[unit] = state
			mu.Unlock()
			return err
		})
	}

	wg.Wait()

	snap.DownlinkKbps, snap.UplinkKbps = Aggregate(samples, b.opts.Exclude)
	snap.Interfaces = perInterface(samples, b.opts.Exclude)
	snap.Services = services
	snap.Streaming = activity.Classify(reading, readErr, snap.UplinkKbps, b.opts.Thresholds)
	return snap
}

// units returns the service units to query, stream service first, without
// duplicates or blanks.
func (b *Builder) units() []string {
	seen := make(map[string]bool)
	var units []string
	for _, u := range append([]string{b.opts.StreamService}, b.opts.Services...) {
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		units = append(units, u)
	}
	return units
}

func (b *Builder) logFailure(probe string, err error) {
	level := slog.LevelDebug
	if errors.Is(err, system.ErrParse) {
		level = slog.LevelWarn
	}
	b.logger.Log(context.Background(), level, "probe failed", "probe", probe, "error", err)
}

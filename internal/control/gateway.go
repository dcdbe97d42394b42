// Package control turns dashboard and tool requests into OS mutations:
// Wi-Fi changes through nmcli, service restarts, the Cam Link USB reset and
// power actions. Every attempt is written to the audit log.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/jamesprial/srt-streamer-agent/internal/safety"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// Validation and gating errors. Everything else is reported through Result
// or a wrapped command error.
var (
	ErrMissingSSID     = errors.New("missing SSID")
	ErrUnknownService  = errors.New("unknown service")
	ErrServiceDenied   = errors.New("service restart not permitted")
	ErrCommandRejected = errors.New("command failed")
)

// Restartable service names.
const (
	ServiceNetworkWatcher = "network-watcher"
	ServiceSRTStreamer    = "srt-streamer"
	ServiceCamlink        = "camlink"
	ServiceAP             = "ap"
)

// Services lists every name RestartService accepts.
var Services = []string{ServiceNetworkWatcher, ServiceSRTStreamer, ServiceCamlink, ServiceAP}

// USBResetter resets a USB device by vendor and product id.
type USBResetter interface {
	Reset(vendorID, productID string) error
}

// Options configures a Gateway.
type Options struct {
	UseSudo        bool
	CommandTimeout time.Duration
	// CamlinkScript, when set, replaces the native USB reset.
	CamlinkScript    string
	CamlinkVendorID  string
	CamlinkProductID string
	UpdateCommand    string
}

// Gateway executes control actions. It holds no per-request state.
type Gateway struct {
	exec   Executor
	usb    USBResetter
	filter *safety.Filter
	audit  *safety.AuditLogger
	opts   Options
	logger *slog.Logger
}

// NewGateway returns a Gateway. filter and audit may be nil.
func NewGateway(exec Executor, usb USBResetter, filter *safety.Filter, audit *safety.AuditLogger, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 30 * time.Second
	}
	return &Gateway{exec: exec, usb: usb, filter: filter, audit: audit, opts: opts, logger: logger}
}

type sourceKey struct{}

// WithSource tags ctx with the surface a request came from ("http",
// "mcp"); the tag is recorded in the audit log.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

func sourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "unknown"
}

// ConnectWifi joins ssid. A join that nmcli reports as successful but that
// did not become the active connection is StatusPartial.
func (g *Gateway) ConnectWifi(ctx context.Context, ssid, password string) (Result, error) {
	if ssid == "" {
		return Result{}, ErrMissingSSID
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.opts.CommandTimeout)
	defer cancel()

	args := []string{"device", "wifi", "connect", ssid}
	if password != "" {
		args = append(args, "password", password)
	}

	var res Result
	if out, err := g.exec.Run(ctx, "nmcli", args...); err != nil {
		res = Result{Status: StatusError, Message: connectFailure(ssid, out, err)}
	} else if active := g.activeSSID(ctx); active == ssid {
		res = Result{Status: StatusSuccess, Message: fmt.Sprintf("Connected to %s", ssid)}
	} else {
		res = Result{Status: StatusPartial, Message: fmt.Sprintf("Tried connecting to %s, but it's not the active connection", ssid)}
	}

	g.record(ctx, "wifi_connect", ssid, map[string]any{"has_password": password != ""}, res, start)
	return res, nil
}

// connectFailure reduces nmcli's error text to a known cause where possible.
func connectFailure(ssid string, out []byte, err error) string {
	text := strings.TrimSpace(string(out))
	if text == "" {
		text = err.Error()
	}
	switch {
	case strings.Contains(text, "No network with SSID"):
		return fmt.Sprintf("Network '%s' not found.", ssid)
	case strings.Contains(text, "secrets were required"),
		strings.Contains(strings.ToLower(text), "wrong password"):
		return "Wrong password or authentication failed."
	default:
		return "Failed to connect: " + text
	}
}

// activeSSID returns the SSID nmcli marks active, or "".
func (g *Gateway) activeSSID(ctx context.Context) string {
	out, err := g.exec.Run(ctx, "nmcli", "-t", "-f", "ACTIVE,SSID", "dev", "wifi")
	if err != nil {
		g.logger.Warn("active wifi check failed", "error", err)
		return ""
	}
	for _, line := range strings.Split(string(out), "\n") {
		f := system.SplitTerse(strings.TrimRight(line, "\r"))
		if len(f) >= 2 && f[0] == "yes" {
			return f[1]
		}
	}
	return ""
}

// ForgetWifi deletes every saved Wi-Fi profile named ssid.
func (g *Gateway) ForgetWifi(ctx context.Context, ssid string) (Result, error) {
	if ssid == "" {
		return Result{}, ErrMissingSSID
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.opts.CommandTimeout)
	defer cancel()

	res := g.forget(ctx, ssid)
	g.record(ctx, "wifi_forget", ssid, nil, res, start)
	return res, nil
}

func (g *Gateway) forget(ctx context.Context, ssid string) Result {
	out, err := g.exec.Run(ctx, "nmcli", "-t", "-f", "NAME,TYPE", "connection", "show")
	if err != nil {
		return Result{Status: StatusError, Message: "Failed to forget Wi-Fi: " + commandText(out, err)}
	}

	var profiles []string
	for _, line := range strings.Split(string(out), "\n") {
		f := system.SplitTerse(strings.TrimRight(line, "\r"))
		if len(f) < 2 || f[0] != ssid {
			continue
		}
		if strings.Contains(f[1], "wireless") || strings.Contains(f[1], "wifi") {
			profiles = append(profiles, f[0])
		}
	}
	if len(profiles) == 0 {
		return Result{Status: StatusNotFound, Message: fmt.Sprintf("No saved connection for '%s'", ssid)}
	}

	for _, p := range profiles {
		if out, err := g.exec.Run(ctx, "nmcli", "connection", "delete", p); err != nil {
			return Result{Status: StatusError, Message: "Failed to forget Wi-Fi: " + commandText(out, err)}
		}
	}
	return Result{Status: StatusSuccess, Message: fmt.Sprintf("Deleted profile(s) for '%s'", ssid)}
}

// DisconnectWifi brings the connection named ssid down.
func (g *Gateway) DisconnectWifi(ctx context.Context, ssid string) (Result, error) {
	if ssid == "" {
		return Result{}, ErrMissingSSID
	}
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, g.opts.CommandTimeout)
	defer cancel()

	res := Result{Status: StatusSuccess, Message: fmt.Sprintf("Disconnected from '%s'", ssid)}
	if out, err := g.exec.Run(ctx, "nmcli", "connection", "down", ssid); err != nil {
		res = Result{Status: StatusError, Message: "Failed to disconnect: " + commandText(out, err)}
	}
	g.record(ctx, "wifi_disconnect", ssid, nil, res, start)
	return res, nil
}

// RestartService restarts one of Services and returns a short confirmation.
func (g *Gateway) RestartService(ctx context.Context, name string) (string, error) {
	start := time.Now()
	msg, err := g.restart(ctx, name)

	res := Result{Status: StatusSuccess, Message: msg}
	if err != nil {
		res = Result{Status: StatusError, Message: err.Error()}
	}
	g.record(ctx, "restart", name, nil, res, start)
	return msg, err
}

func (g *Gateway) restart(ctx context.Context, name string) (string, error) {
	if !slices.Contains(Services, name) {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, name)
	}
	if !g.filter.IsAllowed(name) {
		return "", fmt.Errorf("%w: %q", ErrServiceDenied, name)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.CommandTimeout)
	defer cancel()

	switch name {
	case ServiceCamlink:
		if err := g.resetCamlink(ctx); err != nil {
			return "", err
		}
		return "USB reset successful", nil
	case ServiceAP:
		for _, unit := range []string{"ap0-hostapd", "ap0-dnsmasq"} {
			if err := g.systemctlRestart(ctx, unit); err != nil {
				return "", err
			}
		}
		return "Restarted access point", nil
	default:
		if err := g.systemctlRestart(ctx, name+".service"); err != nil {
			return "", err
		}
		return "Restarted " + name, nil
	}
}

func (g *Gateway) resetCamlink(ctx context.Context) error {
	if g.opts.CamlinkScript != "" {
		name, args := g.privileged("bash", g.opts.CamlinkScript)
		if out, err := g.exec.Run(ctx, name, args...); err != nil {
			return fmt.Errorf("%w: camlink reset: %s", ErrCommandRejected, commandText(out, err))
		}
		return nil
	}
	if g.usb == nil {
		return fmt.Errorf("%w: no USB resetter configured", ErrCommandRejected)
	}
	if err := g.usb.Reset(g.opts.CamlinkVendorID, g.opts.CamlinkProductID); err != nil {
		return fmt.Errorf("camlink reset: %w", err)
	}
	return nil
}

func (g *Gateway) systemctlRestart(ctx context.Context, unit string) error {
	name, args := g.privileged("systemctl", "restart", unit)
	if out, err := g.exec.Run(ctx, name, args...); err != nil {
		return fmt.Errorf("%w: restart %s: %s", ErrCommandRejected, unit, commandText(out, err))
	}
	return nil
}

// Shutdown powers the appliance off.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.fire(ctx, "shutdown", "shutdown", "now")
}

// Reboot restarts the appliance.
func (g *Gateway) Reboot(ctx context.Context) error {
	return g.fire(ctx, "reboot", "reboot")
}

// RunInstall launches the appliance's update command.
func (g *Gateway) RunInstall(ctx context.Context) error {
	return g.fire(ctx, "run_install", g.opts.UpdateCommand)
}

// fire starts a command that is expected to outlive the agent.
func (g *Gateway) fire(ctx context.Context, action string, cmd ...string) error {
	start := time.Now()
	name, args := g.privileged(cmd[0], cmd[1:]...)
	err := g.exec.Start(name, args...)

	res := Result{Status: StatusSuccess, Message: "issued"}
	if err != nil {
		res = Result{Status: StatusError, Message: err.Error()}
	}
	g.record(ctx, action, "", nil, res, start)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCommandRejected, action, err)
	}
	return nil
}

func (g *Gateway) privileged(name string, args ...string) (string, []string) {
	if !g.opts.UseSudo {
		return name, args
	}
	return "sudo", append([]string{name}, args...)
}

func (g *Gateway) record(ctx context.Context, action, target string, params map[string]any, res Result, start time.Time) {
	g.logger.Info("control action", "action", action, "target", target, "status", res.Status, "source", sourceFrom(ctx))
	if g.audit == nil {
		return
	}
	err := g.audit.Log(safety.AuditEntry{
		Action:   action,
		Target:   target,
		Source:   sourceFrom(ctx),
		Params:   params,
		Result:   string(res.Status),
		Message:  res.Message,
		Duration: time.Since(start),
	})
	if err != nil {
		g.logger.Warn("audit write failed", "action", action, "error", err)
	}
}

func commandText(out []byte, err error) string {
	if text := strings.TrimSpace(string(out)); text != "" {
		return text
	}
	return err.Error()
}

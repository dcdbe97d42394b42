package mcpapi

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jamesprial/srt-streamer-agent/internal/control"
	"github.com/jamesprial/srt-streamer-agent/internal/safety"
	"github.com/jamesprial/srt-streamer-agent/internal/status"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// GuardedTools must be called twice, the second time with the token the
// first call returned.
var GuardedTools = []string{"wifi_forget", "system_reboot", "system_shutdown", "system_run_install"}

// StatusSource provides the cached snapshot.
type StatusSource interface {
	Current() *status.Snapshot
}

// WifiScanner lists visible networks.
type WifiScanner interface {
	ScanWifi(ctx context.Context) ([]system.WifiNetwork, error)
}

// Controller performs mutations. *control.Gateway satisfies it.
type Controller interface {
	ConnectWifi(ctx context.Context, ssid, password string) (control.Result, error)
	ForgetWifi(ctx context.Context, ssid string) (control.Result, error)
	DisconnectWifi(ctx context.Context, ssid string) (control.Result, error)
	RestartService(ctx context.Context, name string) (string, error)
	Shutdown(ctx context.Context) error
	Reboot(ctx context.Context) error
	RunInstall(ctx context.Context) error
}

// Tools returns every tool registration.
func Tools(src StatusSource, scanner WifiScanner, ctrl Controller, confirm *safety.ConfirmationTracker) []Registration {
	return []Registration{
		toolApplianceStatus(src),
		toolNetworkThroughput(src),
		toolWifiScan(scanner),
		toolWifiConnect(ctrl),
		toolWifiDisconnect(ctrl),
		toolServiceRestart(ctrl),
		toolWifiForget(ctrl, confirm),
		toolPower(confirm, "system_reboot", "Reboot the appliance. Requires confirmation.",
			"This reboots the appliance and interrupts any running stream.", ctrl.Reboot),
		toolPower(confirm, "system_shutdown", "Power the appliance off. Requires confirmation.",
			"This powers the appliance off; it must be restarted by hand.", ctrl.Shutdown),
		toolPower(confirm, "system_run_install", "Run the appliance update. Requires confirmation.",
			"This runs the update script, which may restart services.", ctrl.RunInstall),
	}
}

func mcpContext(ctx context.Context) context.Context {
	return control.WithSource(ctx, "mcp")
}

// ---------------------------------------------------------------------------
// Read-only tools
// ---------------------------------------------------------------------------

func toolApplianceStatus(src StatusSource) Registration {
	tool := mcp.NewTool("appliance_status",
		mcp.WithDescription("Current appliance status: host, addresses, access point, streaming state, services and throughput."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(src.Current()), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// throughputReport is the network_throughput payload.
type throughputReport struct {
	UplinkKbps   float64                `json:"uplink_kbps"`
	DownlinkKbps float64                `json:"downlink_kbps"`
	Interfaces   map[string]status.Rate `json:"interfaces"`
}

func toolNetworkThroughput(src StatusSource) Registration {
	tool := mcp.NewTool("network_throughput",
		mcp.WithDescription("Per-interface and total network throughput in kbps."),
	)

	handler := func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snap := src.Current()
		return jsonResult(throughputReport{
			UplinkKbps:   snap.UplinkKbps,
			DownlinkKbps: snap.DownlinkKbps,
			Interfaces:   snap.Interfaces,
		}), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolWifiScan(scanner WifiScanner) Registration {
	tool := mcp.NewTool("wifi_scan",
		mcp.WithDescription("List visible Wi-Fi networks."),
	)

	handler := func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		networks, err := scanner.ScanWifi(ctx)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		if networks == nil {
			networks = []system.WifiNetwork{}
		}
		return jsonResult(networks), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// ---------------------------------------------------------------------------
// Mutating tools
// ---------------------------------------------------------------------------

func toolWifiConnect(ctrl Controller) Registration {
	tool := mcp.NewTool("wifi_connect",
		mcp.WithDescription("Join a Wi-Fi network."),
		mcp.WithString("ssid", mcp.Required(), mcp.Description("Network name")),
		mcp.WithString("password", mcp.Description("Passphrase; omit for open networks")),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := ctrl.ConnectWifi(mcpContext(ctx), req.GetString("ssid", ""), req.GetString("password", ""))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(res), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolWifiDisconnect(ctrl Controller) Registration {
	tool := mcp.NewTool("wifi_disconnect",
		mcp.WithDescription("Bring a Wi-Fi connection down."),
		mcp.WithString("ssid", mcp.Required(), mcp.Description("Connection name")),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := ctrl.DisconnectWifi(mcpContext(ctx), req.GetString("ssid", ""))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(res), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolServiceRestart(ctrl Controller) Registration {
	tool := mcp.NewTool("service_restart",
		mcp.WithDescription("Restart an appliance service or reset the capture card."),
		mcp.WithString("service",
			mcp.Required(),
			mcp.Enum(control.Services...),
			mcp.Description("Service to restart"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, err := ctrl.RestartService(mcpContext(ctx), req.GetString("service", ""))
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return mcp.NewToolResultText(msg), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolWifiForget(ctrl Controller, confirm *safety.ConfirmationTracker) Registration {
	const toolName = "wifi_forget"
	tool := mcp.NewTool(toolName,
		mcp.WithDescription("Delete the saved profiles of a Wi-Fi network. Requires confirmation."),
		mcp.WithString("ssid", mcp.Required(), mcp.Description("Network name")),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ssid := req.GetString("ssid", "")
		if ssid == "" {
			return errorResult(control.ErrMissingSSID.Error()), nil
		}
		if !confirm.Confirm(req.GetString("confirmation_token", ""), toolName, ssid) {
			desc := fmt.Sprintf("This deletes every saved profile for %q; the password must be entered again to rejoin.", ssid)
			return confirmPrompt(confirm, toolName, ssid, desc), nil
		}

		res, err := ctrl.ForgetWifi(mcpContext(ctx), ssid)
		if err != nil {
			return errorResult(err.Error()), nil
		}
		return jsonResult(res), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

func toolPower(confirm *safety.ConfirmationTracker, toolName, description, warning string, act func(context.Context) error) Registration {
	tool := mcp.NewTool(toolName,
		mcp.WithDescription(description),
		mcp.WithString("confirmation_token",
			mcp.Description("Confirmation token returned by a prior call to this tool"),
		),
	)

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if !confirm.Confirm(req.GetString("confirmation_token", ""), toolName, "") {
			return confirmPrompt(confirm, toolName, "", warning), nil
		}
		if err := act(mcpContext(ctx)); err != nil {
			return errorResult(err.Error()), nil
		}
		return mcp.NewToolResultText("OK"), nil
	}
	return Registration{Tool: tool, Handler: server.ToolHandlerFunc(handler)}
}

// Package httpapi serves the dashboard API: status reads, the live
// WebSocket feed and the control endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jamesprial/srt-streamer-agent/internal/control"
	"github.com/jamesprial/srt-streamer-agent/internal/hub"
	"github.com/jamesprial/srt-streamer-agent/internal/status"
	"github.com/jamesprial/srt-streamer-agent/internal/system"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Hub is the snapshot cache and subscriber registry. *hub.Hub satisfies it.
type Hub interface {
	Current() *status.Snapshot
	Register(conn hub.Conn, view hub.View) (*hub.Subscriber, error)
	Serve(ctx context.Context, sub *hub.Subscriber) error
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

// Options configures a Server.
type Options struct {
	// DashboardDir holds the built dashboard. Empty disables static serving.
	DashboardDir string
	// HLSDir holds media segments served under /hls/. It is created by New.
	HLSDir string
	// StreamUnit and WatcherUnit are the systemd units reported by
	// /api/status as srt_streamer and network_watcher.
	StreamUnit  string
	WatcherUnit string
	// MCP, when non-nil, is mounted at /mcp.
	MCP http.Handler
}

// Server holds the dependencies of every route.
type Server struct {
	hub      Hub
	scanner  WifiScanner
	ctrl     Controller
	opts     Options
	logger   *slog.Logger
	upgrader websocket.Upgrader

	// ctx is cancelled on shutdown so WebSocket handlers stop pushing.
	ctx context.Context
}

// New returns a Server. ctx bounds the lifetime of WebSocket subscribers.
func New(ctx context.Context, h Hub, scanner WifiScanner, ctrl Controller, opts Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.HLSDir != "" {
		if err := os.MkdirAll(opts.HLSDir, 0o755); err != nil {
			return nil, fmt.Errorf("create hls dir: %w", err)
		}
	}
	return &Server{
		hub:     h,
		scanner: scanner,
		ctrl:    ctrl,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			Subprotocols:     []string{hub.SubprotocolCBOR},
			CheckOrigin:      func(*http.Request) bool { return true },
		},
	}, nil
}

// Handler returns the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/network", s.handleNetwork)
	mux.HandleFunc("GET /api/network/ws", s.handleNetworkWS)
	mux.HandleFunc("GET /api/wifi/networks", s.handleWifiNetworks)
	mux.HandleFunc("POST /api/wifi/connect", s.handleWifiConnect)
	mux.HandleFunc("POST /api/wifi/forget", s.handleWifiForget)
	mux.HandleFunc("POST /api/wifi/disconnect", s.handleWifiDisconnect)
	mux.HandleFunc("POST /api/restart/{service}", s.handleRestart)
	mux.HandleFunc("POST /api/shutdown", s.handlePower(s.ctrl.Shutdown))
	mux.HandleFunc("POST /api/reboot", s.handlePower(s.ctrl.Reboot))
	mux.HandleFunc("POST /api/run-install", s.handlePower(s.ctrl.RunInstall))

	if s.opts.MCP != nil {
		for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodDelete} {
			mux.Handle(method+" /mcp", s.opts.MCP)
		}
	}
	if s.opts.HLSDir != "" {
		mux.Handle("GET /hls/", http.StripPrefix("/hls/", http.FileServer(http.Dir(s.opts.HLSDir))))
	}
	if s.opts.DashboardDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.opts.DashboardDir)))
	}

	return NewCORSMiddleware()(mux)
}

func httpContext(r *http.Request) context.Context {
	return control.WithSource(r.Context(), "http")
}

// ---------------------------------------------------------------------------
// Reads
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

// statusResponse is the /api/status body.
type statusResponse struct {
	Hostname       string         `json:"hostname"`
	IP             string         `json:"ip"`
	NetworkWatcher string         `json:"network_watcher"`
	SRTStreamer    string         `json:"srt_streamer"`
	APSSID         string         `json:"ap_ssid"`
	APStatus       system.APState `json:"ap_status"`
	APPassword     string         `json:"ap_password"`
	Streaming      string         `json:"streaming"`
	UplinkKbps     float64        `json:"uplink_kbps"`
	DownlinkKbps   float64        `json:"downlink_kbps"`
	RemoteURL      string         `json:"remote_url,omitempty"`
	UptimeSeconds  uint64         `json:"uptime_seconds"`
	CapturedAt     time.Time      `json:"captured_at"`
}

// Placeholders the dashboard expects when the access point has no SSID or
// passphrase to show.
const (
	noSSID     = "unavailable"
	noPassword = "not available"
)

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func (s *Server) statusOf(snap *status.Snapshot) statusResponse {
	return statusResponse{
		Hostname:       snap.Hostname,
		IP:             snap.LocalIP,
		NetworkWatcher: snap.Service(s.opts.WatcherUnit),
		SRTStreamer:    snap.Service(s.opts.StreamUnit),
		APSSID:         orDefault(snap.SSID, noSSID),
		APStatus:       snap.AP,
		APPassword:     orDefault(snap.APPassword, noPassword),
		Streaming:      snap.Streaming.String(),
		UplinkKbps:     snap.UplinkKbps,
		DownlinkKbps:   snap.DownlinkKbps,
		RemoteURL:      snap.RemoteURL,
		UptimeSeconds:  snap.UptimeSeconds,
		CapturedAt:     snap.CapturedAt,
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.statusOf(s.hub.Current()))
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Current().Interfaces)
}

func (s *Server) handleWifiNetworks(w http.ResponseWriter, r *http.Request) {
	networks, err := s.scanner.ScanWifi(r.Context())
	if err != nil {
		s.logger.Warn("wifi scan failed", "error", err)
		writeText(w, http.StatusInternalServerError, "Error scanning Wi-Fi networks: "+err.Error())
		return
	}
	if networks == nil {
		networks = []system.WifiNetwork{}
	}
	writeJSON(w, http.StatusOK, networks)
}

// ---------------------------------------------------------------------------
// Live feed
// ---------------------------------------------------------------------------

func (s *Server) handleNetworkWS(w http.ResponseWriter, r *http.Request) {
	view := hub.ParseView(r.URL.Query().Get("view"))

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	sub, err := s.hub.Register(conn, view)
	if err != nil {
		if errors.Is(err, hub.ErrClosed) {
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, hub.ShutdownReason)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		}
		_ = conn.Close()
		return
	}

	// The reader only watches for the peer going away; clients send nothing
	// the agent acts on.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				if !hub.IsExpectedCloseError(err) {
					s.logger.Debug("websocket read failed", "subscriber", sub.ID(), "error", err)
				}
				sub.Close(websocket.CloseNormalClosure, "")
				return
			}
		}
	}()

	if err := s.hub.Serve(s.ctx, sub); err != nil && !hub.IsExpectedCloseError(err) {
		s.logger.Debug("websocket push stopped", "subscriber", sub.ID(), "error", err)
	}
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

type wifiRequest struct {
	SSID     string `json:"ssid"`
	Password string `json:"password"`
}

func decodeWifiRequest(w http.ResponseWriter, r *http.Request) (wifiRequest, bool) {
	var req wifiRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeText(w, http.StatusBadRequest, "Invalid JSON body")
		return req, false
	}
	if req.SSID == "" {
		writeText(w, http.StatusBadRequest, "Missing SSID")
		return req, false
	}
	return req, true
}

func (s *Server) handleWifiConnect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWifiRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, func() (control.Result, error) {
		return s.ctrl.ConnectWifi(httpContext(r), req.SSID, req.Password)
	})
}

func (s *Server) handleWifiForget(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWifiRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, func() (control.Result, error) {
		return s.ctrl.ForgetWifi(httpContext(r), req.SSID)
	})
}

func (s *Server) handleWifiDisconnect(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeWifiRequest(w, r)
	if !ok {
		return
	}
	s.writeResult(w, func() (control.Result, error) {
		return s.ctrl.DisconnectWifi(httpContext(r), req.SSID)
	})
}

func (s *Server) writeResult(w http.ResponseWriter, call func() (control.Result, error)) {
	res, err := call()
	if err != nil {
		if errors.Is(err, control.ErrMissingSSID) {
			writeText(w, http.StatusBadRequest, "Missing SSID")
			return
		}
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, res.HTTPStatus(), res)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	msg, err := s.ctrl.RestartService(httpContext(r), r.PathValue("service"))
	switch {
	case err == nil:
		writeText(w, http.StatusOK, msg)
	case errors.Is(err, control.ErrUnknownService):
		writeText(w, http.StatusNotFound, err.Error())
	case errors.Is(err, control.ErrServiceDenied):
		writeText(w, http.StatusForbidden, err.Error())
	default:
		writeText(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handlePower(act func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := act(httpContext(r)); err != nil {
			writeText(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeText(w, http.StatusOK, "OK")
	}
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, code int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, text)
}

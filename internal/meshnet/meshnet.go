// Package meshnet provides an optional Tailscale userspace mesh transport
// for internal/attach, per spec §4.12: when a control-server URL is
// configured, the SSH attach listener binds to the tailnet instead of a
// plain TCP port, so a remote peer reaches a pane without any port exposed
// on the host's regular network.
//
// Grounded on the teacher's internal/tailnet (Client wrapping tsnet.Server,
// Headscale ControlURL connectivity, userspace listen/dial), renamed and
// rescoped from "hub-wide Tailscale SSH access" to "one multiplexer
// instance's optional mesh listener."
package meshnet

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"
)

// Config configures a Mesh's connection to a tailnet.
type Config struct {
	// SessionID identifies this multiplexer instance on the mesh; used to
	// derive both the tsnet hostname and the default state directory.
	SessionID string

	// ControlURL is the control-plane server URL (Tailscale's coordination
	// server, or a self-hosted Headscale instance). Required.
	ControlURL string

	// AuthKey is the pre-auth key used to join the tailnet non-interactively.
	AuthKey string

	// StateDir stores tsnet's persistent state. Defaults to
	// ~/.openmux/mesh/<SessionID>.
	StateDir string

	// Ephemeral nodes are removed from the tailnet on disconnect.
	Ephemeral bool
}

// Mesh wraps a tsnet.Server for mesh connectivity.
type Mesh struct {
	server    *tsnet.Server
	sessionID string
	logger    *slog.Logger
}

// New creates a Mesh from cfg. It does not connect until Start is called.
func New(cfg Config, logger *slog.Logger) (*Mesh, error) {
	if cfg.SessionID == "" {
		return nil, fmt.Errorf("meshnet: SessionID is required")
	}
	if cfg.ControlURL == "" {
		return nil, fmt.Errorf("meshnet: ControlURL is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("meshnet: determine home directory: %w", err)
		}
		stateDir = filepath.Join(home, ".openmux", "mesh", cfg.SessionID)
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("meshnet: create state dir: %w", err)
	}

	hostname := cfg.SessionID
	if len(hostname) > 12 {
		hostname = hostname[:12]
	}
	hostname = "openmux-" + hostname

	server := &tsnet.Server{
		Hostname:   hostname,
		Dir:        stateDir,
		ControlURL: cfg.ControlURL,
		AuthKey:    cfg.AuthKey,
		Ephemeral:  cfg.Ephemeral,
		Logf:       func(format string, args ...any) { logger.Debug(fmt.Sprintf(format, args...)) },
	}

	return &Mesh{server: server, sessionID: cfg.SessionID, logger: logger}, nil
}

// Start brings the node up on the tailnet.
func (m *Mesh) Start(ctx context.Context) error {
	m.logger.Info("meshnet connecting", "hostname", m.server.Hostname, "control_url", m.server.ControlURL)

	status, err := m.server.Up(ctx)
	if err != nil {
		return fmt.Errorf("meshnet: connect: %w", err)
	}

	m.logger.Info("meshnet connected", "tailscale_ips", status.TailscaleIPs, "backend_state", status.BackendState)
	return nil
}

// Close disconnects from the tailnet.
func (m *Mesh) Close() error {
	m.logger.Info("meshnet disconnecting", "session", m.sessionID)
	return m.server.Close()
}

// Listen opens a listener on the tailnet for internal/attach's SSH server.
func (m *Mesh) Listen(network, addr string) (net.Listener, error) {
	return m.server.Listen(network, addr)
}

// Dial connects to an address on the tailnet.
func (m *Mesh) Dial(ctx context.Context, network, addr string) (net.Conn, error) {
	return m.server.Dial(ctx, network, addr)
}

// IPs returns this node's tailnet IPv4/IPv6 addresses, if connected.
func (m *Mesh) IPs() []string {
	ip4, ip6 := m.server.TailscaleIPs()
	var out []string
	if ip4.IsValid() {
		out = append(out, ip4.String())
	}
	if ip6.IsValid() {
		out = append(out, ip6.String())
	}
	return out
}

// Hostname returns the tailnet hostname this node registered under.
func (m *Mesh) Hostname() string {
	return m.server.Hostname
}

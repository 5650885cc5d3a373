// openmux is a terminal multiplexer with cell-grid-addressed pane
// rendering and optional remote attach over websocket or SSH.
//
// Adapted from cmd/botster-hub/main.go: the panic-recovery terminal
// restore and cobra root/subcommand shape carry over unchanged; slog
// writes to stderr instead of a log file. The hub/tui/device-auth/worktree subcommands are
// replaced by start/attach, the only two operations spec §10 names.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/openmux/openmux/internal/attach"
	"github.com/openmux/openmux/internal/bridge"
	"github.com/openmux/openmux/internal/config"
	"github.com/openmux/openmux/internal/hostui"
	"github.com/openmux/openmux/internal/meshnet"
	"github.com/openmux/openmux/internal/workerpool"
	"github.com/openmux/openmux/internal/workspace"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Print("\033[?1049l") // exit alt screen
			fmt.Print("\033[?25h")   // show cursor
			fmt.Print("\033[0m")     // reset colors
			fmt.Fprintf(os.Stderr, "\n\nPANIC: %v\n", r)
			os.Exit(1)
		}
	}()

	logLevel := slog.LevelInfo
	if os.Getenv("OPENMUX_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:     "openmux",
		Short:   "Terminal multiplexer with remote attach",
		Version: Version,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start a workspace with a local tcell UI",
		RunE:  runStart,
	}
	rootCmd.AddCommand(startCmd)

	attachCmd := &cobra.Command{
		Use:   "attach <addr>",
		Short: "Attach to a running instance's bridge over websocket",
		Args:  cobra.ExactArgs(1),
		RunE:  runAttach,
	}
	rootCmd.AddCommand(attachCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pool := workerpool.NewPool(cfg.WorkerCount, logger)
	ws := workspace.New(pool, 24, 80)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	if cfg.BridgeAddr != "" {
		if err := serveBridge(ctx, cfg.BridgeAddr, ws, pool, logger); err != nil {
			logger.Warn("bridge listener failed to start", "error", err)
		}
	}
	if cfg.AttachAddr != "" {
		if err := serveAttach(ctx, cfg, ws, logger); err != nil {
			logger.Warn("attach listener failed to start", "error", err)
		}
	}

	return hostui.Run(ctx, ws, logger)
}

// serveBridge starts the websocket-upgrade HTTP listener internal/bridge
// needs to accept remote browser/peer connections.
func serveBridge(ctx context.Context, addr string, ws *workspace.Workspace, pool *workerpool.Pool, logger *slog.Logger) error {
	b := bridge.New(ws, pool, logger)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/bridge", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("bridge upgrade failed", "error", err)
			return
		}
		if err := b.Serve(r.Context(), conn); err != nil {
			logger.Warn("bridge session ended", "error", err)
		}
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("bridge server error", "error", err)
		}
	}()

	logger.Info("bridge listening", "addr", addr)
	return nil
}

// serveAttach starts the SSH direct-attach listener, on a Tailscale mesh
// when internal/meshnet is configured or a plain TCP socket otherwise.
func serveAttach(ctx context.Context, cfg *config.Config, ws *workspace.Workspace, logger *slog.Logger) error {
	listener, err := attachListener(ctx, cfg, logger)
	if err != nil {
		return err
	}

	server := attach.New(listener, ws, logger)
	go func() {
		if err := server.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("attach server error", "error", err)
		}
	}()

	logger.Info("attach listening", "addr", cfg.AttachAddr)
	return nil
}

func attachListener(ctx context.Context, cfg *config.Config, logger *slog.Logger) (net.Listener, error) {
	if cfg.MeshControlURL == "" {
		return net.Listen("tcp", cfg.AttachAddr)
	}

	mesh, err := meshnet.New(meshnet.Config{
		SessionID:  cfg.AttachAddr,
		ControlURL: cfg.MeshControlURL,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create mesh: %w", err)
	}
	if err := mesh.Start(ctx); err != nil {
		return nil, fmt.Errorf("start mesh: %w", err)
	}
	return mesh.Listen("tcp", cfg.AttachAddr)
}

// runAttach connects to a running instance's bridge and streams pane
// lifecycle/update notifications until interrupted.
func runAttach(cmd *cobra.Command, args []string) error {
	addr := args[0]
	logger := slog.Default()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial bridge: %w", err)
	}
	defer conn.Close()

	logger.Info("attached to bridge", "addr", addr)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("bridge connection closed: %w", err)
		}
		fmt.Println(string(data))

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

// Package attach is the SSH remote-attach transport from spec §4.12: a
// second terminal attaches directly to a pane's render surface, bypassing
// the bridge's websocket/JSON path, for peers that already have an SSH
// client and no browser.
//
// Grounded on the teacher's internal/sshserver (AgentSession/
// SessionProvider, handleSession's bidirectional-copy loop), with
// AgentSession/SessionProvider renamed PaneSession/PaneProvider. The
// teacher's AgentSession.Read streams a raw PTY byte feed directly, because
// the teacher's Agent owns its PTY exclusively; here the worker pool owns
// PTY/emulator state, so PaneSession instead replays cellmodel rows as
// ANSI SGR text reconstructed from the unified update stream — no pack
// example renders a cell grid back to ANSI (every example either forwards
// raw PTY bytes or emits the 16-byte packed binary format for its own
// renderer), so rowToANSI is a deliberate stdlib corner, documented in
// DESIGN.md.
package attach

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/gliderlabs/ssh"

	"github.com/openmux/openmux/internal/cellmodel"
	"github.com/openmux/openmux/internal/updatestream"
	"github.com/openmux/openmux/internal/workerpool"
)

// PaneSession is a pane that can be attached to over SSH.
type PaneSession interface {
	// ID returns the pane's unique identifier.
	ID() string

	// Read returns ANSI-rendered terminal output.
	Read(p []byte) (int, error)

	// Write sends input bytes to the pane's child process.
	Write(p []byte) (int, error)

	// Resize resizes the pane for this SSH session's window size.
	Resize(rows, cols int) error

	// Close releases resources held for this attach session.
	Close() error
}

// PaneProvider provides access to attachable panes.
type PaneProvider interface {
	// GetPane returns a pane session by id.
	GetPane(paneID string) (PaneSession, bool)

	// ListPanes returns all attachable pane ids.
	ListPanes() []string
}

// Server is an SSH server for direct pane attach.
type Server struct {
	listener net.Listener
	provider PaneProvider
	logger   *slog.Logger
}

// New creates an SSH attach server over listener.
func New(listener net.Listener, provider PaneProvider, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{listener: listener, provider: provider, logger: logger}
}

// Serve accepts connections until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	server := &ssh.Server{
		Handler: s.handleSession,
		PtyCallback: func(ctx ssh.Context, pty ssh.Pty) bool {
			return true
		},
		SubsystemHandlers: map[string]ssh.SubsystemHandler{
			"sftp": nil,
		},
	}

	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.logger.Info("attach ssh server starting", "addr", s.listener.Addr())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				s.logger.Error("attach accept error", "error", err)
				continue
			}
		}
		go server.HandleConn(conn)
	}
}

// handleSession routes "pane-<id>" SSH usernames to a pane, or lists
// attachable panes when no pane id is given.
func (s *Server) handleSession(session ssh.Session) {
	user := session.User()
	s.logger.Info("attach session started", "user", user)
	defer s.logger.Info("attach session ended", "user", user)

	const prefix = "pane-"
	paneID := ""
	if len(user) > len(prefix) && user[:len(prefix)] == prefix {
		paneID = user[len(prefix):]
	}

	if paneID == "" {
		ids := s.provider.ListPanes()
		if len(ids) == 0 {
			fmt.Fprintln(session, "no attachable panes")
			session.Exit(0)
			return
		}
		fmt.Fprintln(session, "attachable panes:")
		for _, id := range ids {
			fmt.Fprintf(session, "  ssh pane-%s@<host>\n", id)
		}
		session.Exit(0)
		return
	}

	pane, found := s.provider.GetPane(paneID)
	if !found {
		fmt.Fprintf(session, "pane %s not found\n", paneID)
		session.Exit(1)
		return
	}
	defer pane.Close()

	_, winCh, _ := session.Pty()
	go func() {
		for win := range winCh {
			if err := pane.Resize(win.Height, win.Width); err != nil {
				s.logger.Warn("attach resize failed", "pane", paneID, "error", err)
			}
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(session, pane)
	}()
	go func() {
		defer wg.Done()
		io.Copy(pane, session)
	}()
	wg.Wait()
}

// Close shuts down the attach server.
func (s *Server) Close() error {
	return s.listener.Close()
}

// poolPaneSession is the PaneSession implementation backed by a
// workerpool.Pool: writes go straight to the pool, reads drain a
// buffer fed by an updatestream subscription rendered to ANSI text.
type poolPaneSession struct {
	paneID string
	pool   *workerpool.Pool
	subID  uint64

	mu     sync.Mutex
	cond   *sync.Cond
	buf    bytes.Buffer
	closed bool
}

// NewPoolPaneSession wraps paneID as an attachable session backed by pool.
func NewPoolPaneSession(paneID string, pool *workerpool.Pool) (PaneSession, error) {
	s := &poolPaneSession{paneID: paneID, pool: pool}
	s.cond = sync.NewCond(&s.mu)

	id, err := pool.Subscribe(paneID, updatestream.Subscriber{
		Unified: s.onUpdate,
	})
	if err != nil {
		return nil, fmt.Errorf("attach: subscribe %q: %w", paneID, err)
	}
	s.subID = id
	return s, nil
}

func (s *poolPaneSession) ID() string { return s.paneID }

func (s *poolPaneSession) onUpdate(u updatestream.UnifiedTerminalUpdate) {
	frame := renderFrame(u.Update)
	if len(frame) == 0 {
		return
	}
	s.mu.Lock()
	s.buf.Write(frame)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *poolPaneSession) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.buf.Len() == 0 && !s.closed {
		s.cond.Wait()
	}
	if s.closed && s.buf.Len() == 0 {
		return 0, io.EOF
	}
	return s.buf.Read(p)
}

func (s *poolPaneSession) Write(p []byte) (int, error) {
	s.pool.Write(s.paneID, p)
	return len(p), nil
}

func (s *poolPaneSession) Resize(rows, cols int) error {
	s.pool.Resize(s.paneID, cols, rows)
	return nil
}

func (s *poolPaneSession) Close() error {
	s.pool.Unsubscribe(s.paneID, s.subID)
	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	return nil
}

// renderFrame converts a dirty update into an ANSI byte stream: cursor
// addressing per touched row plus SGR-styled text, so a plain SSH client
// sees a faithful repaint without needing the packed-cell wire format.
func renderFrame(d cellmodel.DirtyUpdate) []byte {
	var out bytes.Buffer

	if d.IsFull && d.FullState != nil {
		out.WriteString("\x1b[2J")
		for y, row := range d.FullState.Cells {
			fmt.Fprintf(&out, "\x1b[%d;1H", y+1)
			out.Write(rowToANSI(row))
		}
	} else {
		for y := 0; y < d.Rows; y++ {
			row, ok := d.DirtyRows[y]
			if !ok {
				continue
			}
			fmt.Fprintf(&out, "\x1b[%d;1H\x1b[2K", y+1)
			out.Write(rowToANSI(row))
		}
	}

	if d.Cursor.Visible {
		fmt.Fprintf(&out, "\x1b[%d;%dH", d.Cursor.Y+1, d.Cursor.X+1)
	}
	return out.Bytes()
}

// rowToANSI renders one row as truecolor SGR-styled text, re-emitting SGR
// codes only when a cell's style differs from the previous cell's.
func rowToANSI(row cellmodel.Row) []byte {
	var out bytes.Buffer
	var curFg, curBg cellmodel.RGB
	var curAttrs cellmodel.Attr
	started := false

	for _, c := range row {
		attrs := c.Attrs()
		if !started || c.Fg != curFg || c.Bg != curBg || attrs != curAttrs {
			out.WriteString(sgr(c.Fg, c.Bg, attrs))
			curFg, curBg, curAttrs = c.Fg, c.Bg, attrs
			started = true
		}
		out.WriteRune(c.Char)
	}
	if started {
		out.WriteString("\x1b[0m")
	}
	return out.Bytes()
}

func sgr(fg, bg cellmodel.RGB, attrs cellmodel.Attr) string {
	var b bytes.Buffer
	b.WriteString("\x1b[0")
	if attrs&cellmodel.AttrBold != 0 {
		b.WriteString(";1")
	}
	if attrs&cellmodel.AttrDim != 0 {
		b.WriteString(";2")
	}
	if attrs&cellmodel.AttrItalic != 0 {
		b.WriteString(";3")
	}
	if attrs&cellmodel.AttrUnderline != 0 {
		b.WriteString(";4")
	}
	if attrs&cellmodel.AttrBlink != 0 {
		b.WriteString(";5")
	}
	if attrs&cellmodel.AttrInverse != 0 {
		b.WriteString(";7")
	}
	if attrs&cellmodel.AttrStrikethrough != 0 {
		b.WriteString(";9")
	}
	fmt.Fprintf(&b, ";38;2;%d;%d;%d", fg.R, fg.G, fg.B)
	fmt.Fprintf(&b, ";48;2;%d;%d;%d", bg.R, bg.G, bg.B)
	b.WriteString("m")
	return b.String()
}

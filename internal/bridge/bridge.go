// Package bridge is the remote websocket transport from spec §4.11: it
// serializes a pane's UnifiedTerminalUpdate feed to a remote peer and turns
// that peer's input/resize/select/scroll messages back into workspace
// actions and worker pool requests.
//
// Grounded on the teacher's internal/relay (TerminalMessage, BrowserCommand,
// CommandToEvent — the JSON vocabulary a browser peer speaks) and
// internal/tunnel (the gorilla/websocket connection lifecycle: a reader
// goroutine feeding a single message-loop select, JSON command/data
// envelopes). Agent/Worktree are renamed Pane/Workspace throughout and the
// HTTP-tunnel-forwarding half of tunnel.go has no analog here — this
// bridge carries pane updates and input, not proxied HTTP requests.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/openmux/openmux/internal/cellcodec"
	"github.com/openmux/openmux/internal/cellmodel"
	"github.com/openmux/openmux/internal/updatestream"
	"github.com/openmux/openmux/internal/workerpool"
	"github.com/openmux/openmux/internal/workspace"
)

// inboundEnvelope is the tag-prefixed worker message shape from spec §6.3,
// widened with the BrowserCommand-style fields (mode/direction/lines) the
// workspace-facing side of the bridge also accepts.
type inboundEnvelope struct {
	Type string `json:"type"`

	Sid string `json:"sid,omitempty"`

	Data []byte `json:"data,omitempty"`
	Cols int    `json:"cols,omitempty"`
	Rows int    `json:"rows,omitempty"`

	Offset int `json:"offset,omitempty"`
	Start  int `json:"start,omitempty"`
	Count  int `json:"count,omitempty"`

	Query string `json:"query,omitempty"`
	Limit int    `json:"limit,omitempty"`

	ReqID uint32 `json:"reqId,omitempty"`

	Direction string `json:"direction,omitempty"`
	Lines     int    `json:"lines,omitempty"`
}

// outboundEnvelope is the unifiedUpdate/titleChange/lifecycle/reply
// vocabulary from spec §6.3.
type outboundEnvelope struct {
	Type string `json:"type"`

	Sid string `json:"sid,omitempty"`

	Update *wireUpdate `json:"update,omitempty"`
	Title  string      `json:"title,omitempty"`
	Kind   string      `json:"kind,omitempty"`

	ReqID   uint32          `json:"reqId,omitempty"`
	Ok      bool            `json:"ok,omitempty"`
	Err     string          `json:"err,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wireUpdate is spec §6.3's dirty serialization: a JSON envelope wrapping
// the binary packed-row payload. encoding/json already base64-frames []byte
// fields, satisfying the "base64-framed" requirement without a manual
// encode step.
type wireUpdate struct {
	DirtyRowIndices []uint16 `json:"dirtyRowIndices,omitempty"`
	DirtyRowData    []byte   `json:"dirtyRowData,omitempty"`

	CursorX       int  `json:"cursorX"`
	CursorY       int  `json:"cursorY"`
	CursorVisible bool `json:"cursorVisible"`

	Cols, Rows       int `json:"cols"`
	ScrollbackLength int `json:"scrollbackLength"`

	IsFull        bool   `json:"isFull"`
	FullStateData []byte `json:"fullStateData,omitempty"`

	AlternateScreen bool `json:"alternateScreen"`
	MouseTracking   bool `json:"mouseTracking"`
	CursorKeyMode   int  `json:"cursorKeyMode"`
	InBandResize    bool `json:"inBandResize"`

	ViewportOffset      int  `json:"viewportOffset"`
	IsAtBottom          bool `json:"isAtBottom"`
	IsAtScrollbackLimit bool `json:"isAtScrollbackLimit"`
}

// encodeUpdate builds the wire form of one unified commit, packing any
// unpacked dirty rows with cellcodec so a remote peer never needs the
// in-process Row representation.
func encodeUpdate(u updatestream.UnifiedTerminalUpdate) (*wireUpdate, error) {
	d := u.Update
	out := &wireUpdate{
		CursorX:             d.Cursor.X,
		CursorY:             d.Cursor.Y,
		CursorVisible:       d.Cursor.Visible,
		Cols:                d.Cols,
		Rows:                d.Rows,
		ScrollbackLength:    u.Scroll.ScrollbackLength,
		IsFull:              d.IsFull,
		AlternateScreen:     d.AlternateScreen,
		MouseTracking:       d.MouseTracking,
		CursorKeyMode:       int(d.CursorKeyMode),
		InBandResize:        d.InBandResize,
		ViewportOffset:      u.Scroll.ViewportOffset,
		IsAtBottom:          u.Scroll.IsAtBottom,
		IsAtScrollbackLimit: u.Scroll.IsAtScrollbackLimit,
	}

	packed := d.PackedRows
	if packed == nil && len(d.DirtyRows) > 0 {
		indices := make([]uint16, 0, len(d.DirtyRows))
		for idx := range d.DirtyRows {
			indices = append(indices, uint16(idx))
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
		rows := make([]cellmodel.Row, len(indices))
		for i, idx := range indices {
			rows[i] = d.DirtyRows[int(idx)]
		}
		p, err := cellcodec.PackBatch(rows, indices, d.Cols)
		if err != nil {
			return nil, fmt.Errorf("bridge: pack dirty rows: %w", err)
		}
		packed = p
	}
	if packed != nil {
		out.DirtyRowIndices = packed.RowIndices
		out.DirtyRowData = packed.Data
	}

	if d.IsFull && d.FullState != nil {
		fullRows := make([]cellmodel.Row, len(d.FullState.Cells))
		indices := make([]uint16, len(d.FullState.Cells))
		for i, row := range d.FullState.Cells {
			fullRows[i] = row
			indices[i] = uint16(i)
		}
		p, err := cellcodec.PackBatch(fullRows, indices, d.Cols)
		if err != nil {
			return nil, fmt.Errorf("bridge: pack full state: %w", err)
		}
		out.FullStateData = p.Data
	}

	return out, nil
}

// Conn wraps one websocket connection to a remote peer. Writes are
// serialized with a mutex, mirroring the teacher's tunnel.Manager pattern
// of a single writer goroutine's worth of exclusion without dedicating a
// goroutine to it.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	mu sync.Mutex
}

func newConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{ws: ws, logger: logger}
}

func (c *Conn) send(env outboundEnvelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(env)
}

// Bridge serves one remote peer's view of a workspace: it subscribes to
// every attached pane's update stream and forwards the peer's commands back
// into the workspace and worker pool.
type Bridge struct {
	ws     *workspace.Workspace
	pool   *workerpool.Pool
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]uint64 // paneID -> updatestream subscription id
}

// New creates a Bridge over a workspace's worker pool.
func New(ws *workspace.Workspace, pool *workerpool.Pool, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{ws: ws, pool: pool, logger: logger, subs: make(map[string]uint64)}
}

// Attach subscribes to paneID's update stream and forwards every commit to
// conn as a unifiedUpdate message, plus a lifecycle{created} message for the
// initial attach.
func (b *Bridge) Attach(paneID string, conn *Conn) error {
	id, err := b.pool.Subscribe(paneID, updatestream.Subscriber{
		Unified: func(u updatestream.UnifiedTerminalUpdate) {
			wire, err := encodeUpdate(u)
			if err != nil {
				b.logger.Error("bridge: encode update", "pane", paneID, "err", err)
				return
			}
			if err := conn.send(outboundEnvelope{Type: "unifiedUpdate", Sid: paneID, Update: wire}); err != nil {
				b.logger.Warn("bridge: send update", "pane", paneID, "err", err)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("bridge: subscribe %q: %w", paneID, err)
	}

	b.mu.Lock()
	b.subs[paneID] = id
	b.mu.Unlock()

	return conn.send(outboundEnvelope{Type: "lifecycle", Sid: paneID, Kind: "created"})
}

// Detach unsubscribes paneID and, if conn is non-nil, notifies the peer.
func (b *Bridge) Detach(paneID string, conn *Conn) {
	b.mu.Lock()
	id, ok := b.subs[paneID]
	delete(b.subs, paneID)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.pool.Unsubscribe(paneID, id)
	if conn != nil {
		_ = conn.send(outboundEnvelope{Type: "lifecycle", Sid: paneID, Kind: "destroyed"})
	}
}

// Serve runs the read loop for one websocket connection until it closes or
// ctx is canceled, dispatching every inbound message against the pool and
// workspace. It does not return until the connection ends.
func (b *Bridge) Serve(ctx context.Context, ws *websocket.Conn) error {
	conn := newConn(ws, b.logger)
	defer func() {
		b.mu.Lock()
		ids := make(map[string]uint64, len(b.subs))
		for paneID, id := range b.subs {
			ids[paneID] = id
		}
		b.subs = make(map[string]uint64)
		b.mu.Unlock()
		for paneID, id := range ids {
			b.pool.Unsubscribe(paneID, id)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var env inboundEnvelope
		if err := ws.ReadJSON(&env); err != nil {
			return fmt.Errorf("bridge: read: %w", err)
		}
		if err := b.handle(ctx, conn, env); err != nil {
			b.logger.Warn("bridge: handle message", "type", env.Type, "err", err)
		}
	}
}

func (b *Bridge) handle(ctx context.Context, conn *Conn, env inboundEnvelope) error {
	switch env.Type {
	case "write":
		b.pool.Write(env.Sid, env.Data)
		return nil

	case "resize":
		b.pool.Resize(env.Sid, env.Cols, env.Rows)
		return nil

	case "reset":
		b.pool.Reset(env.Sid)
		return nil

	case "getScrollbackLine":
		row, err := b.pool.GetScrollbackLine(ctx, env.Sid, env.Offset)
		return b.reply(conn, env.ReqID, row, err)

	case "getScrollbackLines":
		rows, err := b.pool.GetScrollbackLines(ctx, env.Sid, env.Start, env.Count)
		return b.reply(conn, env.ReqID, rows, err)

	case "search":
		results, err := b.pool.Search(ctx, env.Sid, env.Query, env.Limit)
		return b.reply(conn, env.ReqID, results, err)

	case "subscribe":
		return b.Attach(env.Sid, conn)

	case "unsubscribe":
		b.Detach(env.Sid, conn)
		return nil

	case "input":
		return b.ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionSendInput, Input: env.Data})

	case "select_pane":
		return b.ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionSelectPane, TargetPaneID: env.Sid})

	case "resize_host":
		return b.ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionResizeHost, Rows: env.Rows, Cols: env.Cols})

	case "scroll":
		t := workspace.ActionScrollUp
		if env.Direction == "down" {
			t = workspace.ActionScrollDown
		}
		return b.ws.Dispatch(ctx, workspace.Action{Type: t, Lines: env.Lines})

	default:
		return fmt.Errorf("bridge: unknown message type %q", env.Type)
	}
}

func (b *Bridge) reply(conn *Conn, reqID uint32, payload any, err error) error {
	if err != nil {
		return conn.send(outboundEnvelope{Type: "reply", ReqID: reqID, Ok: false, Err: err.Error()})
	}
	raw, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		return conn.send(outboundEnvelope{Type: "reply", ReqID: reqID, Ok: false, Err: marshalErr.Error()})
	}
	return conn.send(outboundEnvelope{Type: "reply", ReqID: reqID, Ok: true, Payload: raw})
}

// TitleChanged sends a titleChange message for paneID, for hosts that track
// pane titles outside the unified update stream (e.g. shell OSC 0/2
// sequences handled above the worker pool).
func TitleChanged(conn *Conn, paneID, title string) error {
	return conn.send(outboundEnvelope{Type: "titleChange", Sid: paneID, Title: title})
}

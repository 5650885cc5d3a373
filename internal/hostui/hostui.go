// Package hostui is the tcell host loop spec §10's CLI "start" subcommand
// runs: it owns the screen, drives one internal/render.PaneRenderer and
// internal/dirty.Tracker per visible pane, subscribes each pane to its
// internal/updatestream feed, and turns tcell key/resize events into
// internal/workspace.Action dispatches.
//
// Grounded on internal/tui/tcell_tui.go's TUI type (NewTUI/Run/renderLoop/
// render/handleKey structure, the Ctrl+key-for-hub-control / plain-key-
// forwarded-to-PTY split in handleNormalKey), generalized from one fixed
// 30/70 agent-list/terminal split into an arbitrary-pane BSP layout, and
// from the teacher's hand-rolled escape-byte switch to internal/inputkeys'
// DECCKM-aware encoder.
package hostui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/openmux/openmux/internal/cellmodel"
	"github.com/openmux/openmux/internal/dirty"
	"github.com/openmux/openmux/internal/inputkeys"
	"github.com/openmux/openmux/internal/layout"
	"github.com/openmux/openmux/internal/render"
	"github.com/openmux/openmux/internal/updatestream"
	"github.com/openmux/openmux/internal/workspace"
)

var (
	borderStyle  = tcell.StyleDefault.Foreground(tcell.ColorBlue)
	focusedStyle = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	helpStyle    = tcell.StyleDefault.Dim(true)
)

// paneView holds one pane's scratch render state and its subscription to
// the pane's update stream.
type paneView struct {
	renderer      *render.PaneRenderer
	tracker       *dirty.Tracker
	cursor        cellmodel.Cursor
	scroll        cellmodel.ScrollState
	cursorKeyMode cellmodel.CursorKeyMode
	subID         uint64
}

// UI drives one workspace through a tcell screen.
type UI struct {
	screen tcell.Screen
	ws     *workspace.Workspace
	logger *slog.Logger

	mu    sync.Mutex
	panes map[string]*paneView

	quit   chan struct{}
	quitWg sync.WaitGroup
}

// Run creates a screen, wires it to ws, and blocks until the user quits.
func Run(ctx context.Context, ws *workspace.Workspace, logger *slog.Logger) error {
	ui, err := New(ws, logger)
	if err != nil {
		return err
	}
	return ui.Run(ctx)
}

// New creates a UI bound to ws but does not start its event loop.
func New(ws *workspace.Workspace, logger *slog.Logger) (*UI, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("hostui: create screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("hostui: init screen: %w", err)
	}
	screen.EnableMouse()
	screen.EnablePaste()
	screen.Clear()

	ui := &UI{
		screen: screen,
		ws:     ws,
		logger: logger,
		panes:  make(map[string]*paneView),
		quit:   make(chan struct{}),
	}

	w, h := screen.Size()
	ctx := context.Background()
	if err := ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionResizeHost, Rows: h, Cols: w}); err != nil {
		return nil, err
	}
	if len(ws.Panes) == 0 {
		if err := ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionSpawnPane}); err != nil {
			return nil, fmt.Errorf("hostui: spawn initial pane: %w", err)
		}
	}
	return ui, nil
}

// Run starts the render loop and blocks on the tcell event loop until quit.
func (u *UI) Run(ctx context.Context) error {
	defer u.screen.Fini()

	u.quitWg.Add(1)
	go u.renderLoop()

	for {
		ev := u.screen.PollEvent()
		if ev == nil {
			break
		}

		switch ev := ev.(type) {
		case *tcell.EventResize:
			w, h := ev.Size()
			if err := u.ws.Dispatch(ctx, workspace.Action{Type: workspace.ActionResizeHost, Rows: h, Cols: w}); err != nil {
				u.logger.Warn("resize dispatch failed", "error", err)
			}
			u.screen.Sync()

		case *tcell.EventKey:
			if u.handleKey(ctx, ev) {
				close(u.quit)
				u.quitWg.Wait()
				return nil
			}
		}

		if u.ws.Quit {
			close(u.quit)
			u.quitWg.Wait()
			return nil
		}
	}
	return nil
}

func (u *UI) renderLoop() {
	defer u.quitWg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-u.quit:
			return
		case <-ticker.C:
			u.render()
		}
	}
}

func (u *UI) render() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.screen.Clear()

	bounds := u.ws.Bounds()
	for id, rect := range bounds {
		u.renderPane(id, rect)
	}

	u.drawHelpLine()
	u.screen.Show()
}

func (u *UI) renderPane(id string, rect layout.Rect) {
	pv := u.ensurePaneView(id, rect.W-2, rect.H-2)
	if pv == nil {
		return
	}

	focused := id == u.ws.Focused
	style := borderStyle
	if focused {
		style = focusedStyle
	}
	drawBox(u.screen, rect.X, rect.Y, rect.W, rect.H, style)

	innerW, innerH := rect.W-2, rect.H-2
	if innerW <= 0 || innerH <= 0 {
		return
	}
	pv.renderer.EnsureSize(innerW, innerH)
	pv.tracker.Resize(innerH)

	fetch := func(ctx context.Context, viewportOffset, rows int) (map[int]cellmodel.Row, []int) {
		if viewportOffset == 0 {
			return nil, nil
		}
		start := pv.scroll.ScrollbackLength - viewportOffset
		if start < 0 {
			start = 0
		}
		lines, err := u.ws.Pool.GetScrollbackLines(context.Background(), id, start, rows)
		if err != nil {
			return nil, nil
		}
		found := make(map[int]cellmodel.Row, len(lines))
		for i, row := range lines {
			found[start+i] = row
		}
		return found, nil
	}

	surface := render.TcellSurface{Screen: u.screen}
	pv.renderer.RenderFrame(
		context.Background(),
		surface,
		pv.tracker,
		nil,
		nil,
		pv.scroll,
		pv.cursor,
		focused,
		fetch,
		rect.X+1,
		rect.Y+1,
	)
}

// ensurePaneView lazily creates and subscribes a paneView for id.
func (u *UI) ensurePaneView(id string, cols, rows int) *paneView {
	if cols <= 0 || rows <= 0 {
		cols, rows = 1, 1
	}
	if pv, ok := u.panes[id]; ok {
		return pv
	}

	pv := &paneView{
		renderer: render.NewPaneRenderer(cols, rows),
		tracker:  dirty.NewTracker(rows),
	}

	subID, err := u.ws.Pool.Subscribe(id, updatestream.Subscriber{
		Unified: func(upd updatestream.UnifiedTerminalUpdate) {
			u.mu.Lock()
			defer u.mu.Unlock()
			pv.renderer.Commit(upd.Update)
			pv.cursor = upd.Update.Cursor
			pv.scroll = upd.Scroll
			pv.cursorKeyMode = upd.Update.CursorKeyMode
		},
	})
	if err != nil {
		u.logger.Warn("subscribe to pane failed", "pane", id, "error", err)
		return nil
	}
	pv.subID = subID
	u.panes[id] = pv
	return pv
}

func (u *UI) handleKey(ctx context.Context, ev *tcell.EventKey) (quit bool) {
	if ev.Modifiers()&tcell.ModCtrl != 0 {
		switch ev.Key() {
		case tcell.KeyCtrlQ:
			return true
		case tcell.KeyCtrlN:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionSpawnPane, Direction: layout.East})
			return false
		case tcell.KeyCtrlW:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionClosePane})
			return false
		case tcell.KeyCtrlH:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionFocusDirection, Direction: layout.West})
			return false
		case tcell.KeyCtrlL:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionFocusDirection, Direction: layout.East})
			return false
		case tcell.KeyCtrlK:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionFocusDirection, Direction: layout.North})
			return false
		case tcell.KeyCtrlJ:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionFocusDirection, Direction: layout.South})
			return false
		case tcell.KeyCtrlF:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionOpenSearch})
			return false
		}
	}

	if ev.Modifiers()&tcell.ModAlt != 0 {
		switch ev.Key() {
		case tcell.KeyPgUp:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionScrollUp, Lines: 10})
			return false
		case tcell.KeyPgDn:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionScrollDown, Lines: 10})
			return false
		case tcell.KeyHome:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionScrollToTop})
			return false
		case tcell.KeyEnd:
			u.dispatch(ctx, workspace.Action{Type: workspace.ActionScrollReset})
			return false
		}
	}

	appMode := false
	u.mu.Lock()
	if pv, ok := u.panes[u.ws.Focused]; ok {
		appMode = pv.cursorKeyMode == cellmodel.CursorKeyApplication
	}
	u.mu.Unlock()

	u.dispatch(ctx, workspace.Action{Type: workspace.ActionSendInput, Input: inputkeys.EncodeKey(ev, appMode)})
	return false
}

func (u *UI) dispatch(ctx context.Context, action workspace.Action) {
	if err := u.ws.Dispatch(ctx, action); err != nil {
		u.logger.Warn("dispatch failed", "action", action.Type, "error", err)
	}
}

func (u *UI) drawHelpLine() {
	_, h := u.screen.Size()
	drawText(u.screen, 0, h-1, "^Q quit  ^N split  ^W close  ^H^J^K^L focus  ^F search  M-PgUp/PgDn scroll", helpStyle)
}

func drawBox(screen tcell.Screen, x, y, w, h int, style tcell.Style) {
	if w <= 0 || h <= 0 {
		return
	}
	for i := 0; i < w; i++ {
		screen.SetContent(x+i, y, tcell.RuneHLine, nil, style)
		screen.SetContent(x+i, y+h-1, tcell.RuneHLine, nil, style)
	}
	for i := 0; i < h; i++ {
		screen.SetContent(x, y+i, tcell.RuneVLine, nil, style)
		screen.SetContent(x+w-1, y+i, tcell.RuneVLine, nil, style)
	}
	screen.SetContent(x, y, tcell.RuneULCorner, nil, style)
	screen.SetContent(x+w-1, y, tcell.RuneURCorner, nil, style)
	screen.SetContent(x, y+h-1, tcell.RuneLLCorner, nil, style)
	screen.SetContent(x+w-1, y+h-1, tcell.RuneLRCorner, nil, style)
}

func drawText(screen tcell.Screen, x, y int, text string, style tcell.Style) {
	for i, r := range text {
		screen.SetContent(x+i, y, r, nil, style)
	}
}

// Package workspace is the main coordinator task from spec §5: it owns
// one BSP layout tree, one pane per leaf, and the worker pool those panes
// drive, and exposes a single Dispatch entry point the host UI drives with
// pane-lifecycle, focus, resize, and scroll actions.
//
// Grounded directly on internal/hub's HubState/Dispatch/HubAction/AppMode
// vocabulary, with Agent renamed Pane throughout and the GitHub/worktree-
// specific action set (SpawnAgent with IssueNumber/BranchName/RepoPath,
// worktree selection, connection-code display) replaced by the BSP/PTY
// actions spec §4.8 and §4.5 call for. Panes live in a plain map keyed by
// id with no insertion-ordered id slice; ordered traversal (focus
// cycling) follows the layout tree via layout.CollectPaneIDs.
package workspace

import (
	"context"
	"fmt"

	"github.com/openmux/openmux/internal/attach"
	"github.com/openmux/openmux/internal/layout"
	"github.com/openmux/openmux/internal/pane"
	"github.com/openmux/openmux/internal/pty"
	"github.com/openmux/openmux/internal/workerpool"
)

// Mode mirrors the teacher's AppMode: which input surface is active.
type Mode int

const (
	ModeNormal Mode = iota
	ModeSearch
	ModeCloseConfirm
)

// ActionType identifies the kind of workspace action (spec §5's
// "main coordinator task" dispatch vocabulary).
type ActionType int

const (
	ActionSpawnPane ActionType = iota
	ActionClosePane
	ActionFocusNext
	ActionFocusPrevious
	ActionFocusDirection
	ActionSelectPane
	ActionResizePane
	ActionSwapPane
	ActionScrollUp
	ActionScrollDown
	ActionScrollReset
	ActionScrollToTop
	ActionSendInput
	ActionResizeHost
	ActionOpenSearch
	ActionCloseModal
	ActionQuit
)

// Action is a single dispatched intent (spec §5; named fields per
// ActionType, unused fields left zero).
type Action struct {
	Type ActionType

	TargetPaneID string // SpawnPane/ClosePane/SelectPane/ResizePane/SwapPane
	Direction    layout.Direction
	Ratio        float64
	Delta        float64
	SpawnConfig  pty.SpawnConfig

	Input []byte // SendInput
	Lines int    // ScrollUp/ScrollDown

	Rows, Cols int // ResizeHost
}

// Workspace bundles one layout tree, its panes, and the pool that drives
// their PTYs/emulators.
type Workspace struct {
	Root   *layout.Node
	Panes  map[string]*pane.Pane
	Pool   *workerpool.Pool
	Mode   Mode
	Quit   bool

	Focused string
	Rows, Cols int

	nextPaneID int
}

// New creates an empty workspace backed by pool.
func New(pool *workerpool.Pool, rows, cols int) *Workspace {
	return &Workspace{
		Panes: make(map[string]*pane.Pane),
		Pool:  pool,
		Rows:  rows,
		Cols:  cols,
	}
}

func (w *Workspace) newPaneID() string {
	w.nextPaneID++
	return fmt.Sprintf("pane-%d", w.nextPaneID)
}

// Bounds computes every pane's current rectangle from the layout tree.
func (w *Workspace) Bounds() map[string]layout.Rect {
	if w.Root == nil {
		return nil
	}
	return layout.Rects(w.Root, layout.Rect{X: 0, Y: 0, W: w.Cols, H: w.Rows})
}

// Dispatch processes one Action, mutating the workspace.
func (w *Workspace) Dispatch(ctx context.Context, action Action) error {
	switch action.Type {
	case ActionQuit:
		w.Quit = true

	case ActionSpawnPane:
		return w.spawnPane(action)

	case ActionClosePane:
		return w.closePane(ctx, action.TargetPaneID)

	case ActionFocusNext:
		w.focusBy(1)

	case ActionFocusPrevious:
		w.focusBy(-1)

	case ActionFocusDirection:
		if adj, ok := layout.FindAdjacentPane(w.Root, w.Bounds(), w.Focused, action.Direction); ok {
			w.Focused = adj
		}

	case ActionSelectPane:
		if _, ok := w.Panes[action.TargetPaneID]; ok {
			w.Focused = action.TargetPaneID
		}

	case ActionResizePane:
		target := action.TargetPaneID
		if target == "" {
			target = w.Focused
		}
		return layout.ResizePane(w.Root, target, action.Direction, action.Delta)

	case ActionSwapPane:
		target := action.TargetPaneID
		if target == "" {
			target = w.Focused
		}
		return layout.SwapPaneInDirection(w.Root, w.Bounds(), target, action.Direction)

	case ActionScrollUp:
		if p := w.focusedPane(); p != nil {
			length, err := w.Pool.ScrollbackLength(p.ID)
			if err != nil {
				return err
			}
			p.ScrollUp(action.Lines, length)
		}

	case ActionScrollDown:
		if p := w.focusedPane(); p != nil {
			p.ScrollDown(action.Lines)
		}

	case ActionScrollReset:
		if p := w.focusedPane(); p != nil {
			p.ScrollReset()
		}

	case ActionScrollToTop:
		if p := w.focusedPane(); p != nil {
			length, err := w.Pool.ScrollbackLength(p.ID)
			if err != nil {
				return err
			}
			p.ScrollToTop(length)
		}

	case ActionSendInput:
		if p := w.focusedPane(); p != nil {
			p.Write(action.Input)
		}

	case ActionResizeHost:
		w.Rows, w.Cols = action.Rows, action.Cols
		w.resizeAllPanes()

	case ActionOpenSearch:
		w.Mode = ModeSearch

	case ActionCloseModal:
		w.Mode = ModeNormal
	}
	return nil
}

func (w *Workspace) spawnPane(action Action) error {
	newID := w.newPaneID()
	cols, rows := 80, 24
	if w.Root == nil {
		w.Root = layout.NewSingle(newID)
	} else {
		target := action.TargetPaneID
		if target == "" {
			target = w.Focused
		}
		ratio := action.Ratio
		if ratio == 0 {
			ratio = 0.5
		}
		newRoot, err := layout.AddPane(w.Root, target, newID, action.Direction, ratio)
		if err != nil {
			return err
		}
		w.Root = newRoot
	}

	p := pane.New(newID, rows, w.Pool)
	w.Panes[newID] = p
	w.Focused = newID

	return w.Pool.CreatePane(newID, workerpool.PaneConfig{
		Cols: cols, Rows: rows,
		Spawn: action.SpawnConfig,
	})
}

func (w *Workspace) closePane(ctx context.Context, id string) error {
	if id == "" {
		id = w.Focused
	}
	p, ok := w.Panes[id]
	if !ok {
		return fmt.Errorf("workspace: unknown pane %q", id)
	}

	newRoot, focusNext, err := layout.RemovePane(w.Root, id)
	if err != nil {
		return err
	}
	if err := p.Destroy(ctx); err != nil {
		return err
	}

	delete(w.Panes, id)
	w.Root = newRoot
	if w.Focused == id {
		w.Focused = focusNext
	}
	return nil
}

func (w *Workspace) focusedPane() *pane.Pane {
	return w.Panes[w.Focused]
}

func (w *Workspace) focusBy(step int) {
	ids := layout.CollectPaneIDs(w.Root)
	if len(ids) == 0 {
		return
	}
	idx := 0
	for i, id := range ids {
		if id == w.Focused {
			idx = i
			break
		}
	}
	idx = (idx + step + len(ids)) % len(ids)
	w.Focused = ids[idx]
}

func (w *Workspace) resizeAllPanes() {
	bounds := w.Bounds()
	for id, p := range w.Panes {
		if r, ok := bounds[id]; ok {
			p.Resize(r.W, r.H)
		}
	}
}

// --- attach.PaneProvider interface ---

// GetPane returns an SSH-attachable session for paneID.
func (w *Workspace) GetPane(paneID string) (attach.PaneSession, bool) {
	if _, ok := w.Panes[paneID]; !ok {
		return nil, false
	}
	session, err := attach.NewPoolPaneSession(paneID, w.Pool)
	if err != nil {
		return nil, false
	}
	return session, true
}

// ListPanes returns every pane id currently attachable over SSH.
func (w *Workspace) ListPanes() []string {
	ids := make([]string, 0, len(w.Panes))
	for id := range w.Panes {
		ids = append(ids, id)
	}
	return ids
}

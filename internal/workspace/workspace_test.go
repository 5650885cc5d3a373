package workspace

import (
	"context"
	"log/slog"
	"testing"

	"github.com/openmux/openmux/internal/layout"
	"github.com/openmux/openmux/internal/pty"
	"github.com/openmux/openmux/internal/workerpool"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	pool := workerpool.NewPool(2, slog.Default())
	return New(pool, 24, 80)
}

func TestSpawnFirstPaneBecomesSingleRoot(t *testing.T) {
	ws := newTestWorkspace(t)
	err := ws.Dispatch(context.Background(), Action{
		Type:        ActionSpawnPane,
		SpawnConfig: pty.SpawnConfig{Command: "cat"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if ws.Root == nil || !ws.Root.IsLeaf() {
		t.Fatalf("root = %+v, want single leaf", ws.Root)
	}
	if len(ws.Panes) != 1 {
		t.Fatalf("panes = %d, want 1", len(ws.Panes))
	}
	if ws.Focused == "" {
		t.Error("expected a pane to be focused after spawn")
	}
}

func TestSpawnSecondPaneSplitsLayout(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	if err := ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}}); err != nil {
		t.Fatal(err)
	}
	if err := ws.Dispatch(ctx, Action{
		Type:        ActionSpawnPane,
		Direction:   layout.East,
		SpawnConfig: pty.SpawnConfig{Command: "cat"},
	}); err != nil {
		t.Fatal(err)
	}
	if ws.Root.IsLeaf() {
		t.Fatal("root should be a split after spawning a second pane")
	}
	if len(ws.Panes) != 2 {
		t.Fatalf("panes = %d, want 2", len(ws.Panes))
	}
}

func TestClosePaneRemovesFromTreeAndMap(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	first := ws.Focused
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, Direction: layout.East, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	second := ws.Focused

	if err := ws.Dispatch(ctx, Action{Type: ActionClosePane, TargetPaneID: second}); err != nil {
		t.Fatal(err)
	}
	if len(ws.Panes) != 1 {
		t.Fatalf("panes = %d, want 1", len(ws.Panes))
	}
	if !ws.Root.IsLeaf() || ws.Root.PaneID != first {
		t.Fatalf("root = %+v, want leaf %q", ws.Root, first)
	}
}

func TestFocusNextWrapsAround(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	first := ws.Focused
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, Direction: layout.East, SpawnConfig: pty.SpawnConfig{Command: "cat"}})

	ws.Dispatch(ctx, Action{Type: ActionFocusNext})
	if ws.Focused != first {
		t.Errorf("focused = %q, want wrap back to %q", ws.Focused, first)
	}
}

func TestResizeHostResizesAllPanes(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, Direction: layout.East, SpawnConfig: pty.SpawnConfig{Command: "cat"}})

	if err := ws.Dispatch(ctx, Action{Type: ActionResizeHost, Rows: 40, Cols: 120}); err != nil {
		t.Fatal(err)
	}
	if ws.Rows != 40 || ws.Cols != 120 {
		t.Errorf("dims = %d x %d, want 40 x 120", ws.Rows, ws.Cols)
	}
}

func TestSelectPaneFocusesKnownPane(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	first := ws.Focused
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, Direction: layout.East, SpawnConfig: pty.SpawnConfig{Command: "cat"}})

	if err := ws.Dispatch(ctx, Action{Type: ActionSelectPane, TargetPaneID: first}); err != nil {
		t.Fatal(err)
	}
	if ws.Focused != first {
		t.Errorf("focused = %q, want %q", ws.Focused, first)
	}
}

func TestSelectPaneIgnoresUnknownPane(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})
	focused := ws.Focused

	if err := ws.Dispatch(ctx, Action{Type: ActionSelectPane, TargetPaneID: "nonexistent"}); err != nil {
		t.Fatal(err)
	}
	if ws.Focused != focused {
		t.Errorf("focused changed to %q on unknown pane select", ws.Focused)
	}
}

func TestGetPaneSatisfiesAttachPaneProvider(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()
	ws.Dispatch(ctx, Action{Type: ActionSpawnPane, SpawnConfig: pty.SpawnConfig{Command: "cat"}})

	id := ws.Focused
	session, ok := ws.GetPane(id)
	if !ok || session == nil {
		t.Fatalf("GetPane(%q) = %v, %v, want a session", id, session, ok)
	}
	if session.ID() != id {
		t.Errorf("session.ID() = %q, want %q", session.ID(), id)
	}
	session.Close()

	if _, ok := ws.GetPane("nonexistent"); ok {
		t.Error("GetPane(nonexistent) = ok, want !ok")
	}

	ids := ws.ListPanes()
	if len(ids) != 1 || ids[0] != id {
		t.Errorf("ListPanes() = %v, want [%q]", ids, id)
	}
}

package workerpool

import (
	"context"
	"testing"
	"time"

	"github.com/openmux/openmux/internal/pty"
	"github.com/openmux/openmux/internal/term"
)

func TestCreateWriteAndDestroyPane(t *testing.T) {
	pool := NewPool(2, nil)

	cfg := PaneConfig{
		Cols:               20,
		Rows:               5,
		ScrollbackCapacity: 100,
		Spawn: pty.SpawnConfig{
			Command: "cat",
		},
	}
	if err := pool.CreatePane("pane-1", cfg); err != nil {
		t.Fatalf("CreatePane: %v", err)
	}

	pool.Write("pane-1", []byte("hi\n"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.DestroyPane(ctx, "pane-1"); err != nil {
		t.Fatalf("DestroyPane: %v", err)
	}
}

func TestWriteToUnknownPaneIsNoOp(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Write("does-not-exist", []byte("x"))
}

func TestDestroyUnknownPaneReturnsError(t *testing.T) {
	pool := NewPool(1, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := pool.DestroyPane(ctx, "nope"); err != ErrUnknownPane {
		t.Fatalf("err = %v, want ErrUnknownPane", err)
	}
}

func TestSamePaneIDAlwaysRoutesToSameShard(t *testing.T) {
	pool := NewPool(8, nil)
	a := pool.shardFor("pane-x")
	b := pool.shardFor("pane-x")
	if a != b {
		t.Fatal("same pane id routed to different shards")
	}
}

func TestReportModeReflectsAlternateScreen(t *testing.T) {
	st := &paneState{term: term.New(80, 24, 100, term.Colors{})}

	if got := st.ReportMode(1049, false); got != 2 {
		t.Errorf("ReportMode(1049) before alt-screen = %d, want 2 (reset)", got)
	}
	if got := st.ReportMode(1049, true); got != 0 {
		t.Errorf("ReportMode(1049, ansi=true) = %d, want 0 (unknown)", got)
	}
	if got := st.ReportMode(999, false); got != 0 {
		t.Errorf("ReportMode(999) = %d, want 0 (unknown)", got)
	}
}

func TestOSCColorAnswersFromConfiguredPalette(t *testing.T) {
	colors := term.DefaultColors
	st := &paneState{term: term.New(80, 24, 100, colors)}

	r, g, b, ok := st.OSCColor(11, 0)
	if !ok || r != colors.Bg.R || g != colors.Bg.G || b != colors.Bg.B {
		t.Errorf("OSCColor(11, 0) = %d,%d,%d,%v, want background %+v", r, g, b, ok, colors.Bg)
	}

	r, g, b, ok = st.OSCColor(4, 1)
	if !ok || r != colors.Palette[1].R || g != colors.Palette[1].G || b != colors.Palette[1].B {
		t.Errorf("OSCColor(4, 1) = %d,%d,%d,%v, want palette[1] %+v", r, g, b, ok, colors.Palette[1])
	}

	if _, _, _, ok := st.OSCColor(4, 99); ok {
		t.Error("OSCColor(4, 99) = ok, want !ok for out-of-range index")
	}
}

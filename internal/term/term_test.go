package term

import (
	"testing"

	"github.com/charmbracelet/x/vt"

	"github.com/openmux/openmux/internal/cellmodel"
)

// fakeEmulator is a minimal EmulatorOps stand-in, wide enough only to drive
// Wrapper's bookkeeping (resize, scrollback tracking, response draining)
// without depending on a real VT backend.
type fakeEmulator struct {
	cols, rows int
	resp       []byte
}

func (f *fakeEmulator) Write(p []byte) (int, error) { return len(p), nil }
func (f *fakeEmulator) Width() int                   { return f.cols }
func (f *fakeEmulator) Height() int                  { return f.rows }
func (f *fakeEmulator) Resize(cols, rows int)        { f.cols, f.rows = cols, rows }
func (f *fakeEmulator) CursorPosition() vt.Position  { return vt.Position{} }
func (f *fakeEmulator) CellAt(x, y int) *vt.Cell     { return nil }
func (f *fakeEmulator) HasResponse() bool            { return len(f.resp) > 0 }
func (f *fakeEmulator) ReadResponse() []byte {
	out := f.resp
	f.resp = nil
	return out
}

func newTestWrapper(cols, rows, scrollbackCapacity int) (*Wrapper, *fakeEmulator) {
	e := &fakeEmulator{cols: cols, rows: rows}
	w := NewWithEmulator(e, cols, rows, scrollbackCapacity, Colors{})
	return w, e
}

func TestResizeClearsScrollback(t *testing.T) {
	w, _ := newTestWrapper(10, 3, 10)

	for i := 0; i < 5; i++ {
		if _, err := w.Write([]byte("line\n")); err != nil {
			t.Fatal(err)
		}
	}
	if w.Scrollback().Len() == 0 {
		t.Fatal("expected rows pushed to scrollback before resize")
	}

	w.Resize(20, 6)

	if got := w.Scrollback().Len(); got != 0 {
		t.Errorf("Scrollback().Len() after resize = %d, want 0", got)
	}
}

func TestScrollbackRolloverClears(t *testing.T) {
	w, _ := newTestWrapper(10, 3, 4)

	// Push enough newlines to cross the capacity boundary (4) exactly once.
	for i := 0; i < 4; i++ {
		if _, err := w.Write([]byte("x\n")); err != nil {
			t.Fatal(err)
		}
	}

	if got := w.Scrollback().Len(); got != 0 {
		t.Errorf("Scrollback().Len() at rollover = %d, want 0 (cleared)", got)
	}
	if got := w.ScrollbackLength(); got != 4 {
		t.Errorf("ScrollbackLength() = %d, want 4", got)
	}
}

func TestScrollbackCacheClear(t *testing.T) {
	c := NewScrollbackCache(8)
	for i := 0; i < 3; i++ {
		c.Push(i, cellmodel.Row{{Char: 'a'}})
	}
	if c.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", c.Len())
	}

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("Len() after Clear() = %d, want 0", c.Len())
	}
	if _, ok := c.OldestIndex(); ok {
		t.Error("OldestIndex() after Clear() = ok, want !ok")
	}
	if _, ok := c.Get(0); ok {
		t.Error("Get(0) after Clear() = ok, want !ok")
	}
}

func TestDrainResponse(t *testing.T) {
	w, e := newTestWrapper(10, 3, 10)
	e.resp = []byte("\x1b[2;4R")

	got := w.DrainResponse()
	if string(got) != "\x1b[2;4R" {
		t.Errorf("DrainResponse() = %q, want %q", got, "\x1b[2;4R")
	}
	if w.DrainResponse() != nil {
		t.Error("DrainResponse() after drain should return nil")
	}
}

func TestColorsDefaultsWhenUnconfigured(t *testing.T) {
	w, _ := newTestWrapper(10, 3, 10)
	if w.Colors() != DefaultColors {
		t.Errorf("Colors() = %+v, want DefaultColors", w.Colors())
	}
}

// Package term wraps the pluggable VT backend (charmbracelet/x/vt) behind
// the EmulatorOps capability interface and turns its screen state into the
// cellmodel types the rest of the data plane works with.
//
// Dirty-row tracking is done by snapshot diffing rather than by trusting
// the backend to report which rows changed: EmulatorOps exposes only the
// screen it has, so Wrapper keeps the previous frame's rows and compares.
package term

import (
	"image/color"
	"sync"

	uv "github.com/charmbracelet/ultraviolet"
	"github.com/charmbracelet/x/vt"

	"github.com/openmux/openmux/internal/cellmodel"
)

// EmulatorOps is the capability surface a VT backend must provide. The
// charmbracelet/x/vt safe emulator satisfies it today; a different backend
// can be swapped in without touching the rest of the data plane.
//
// HasResponse/ReadResponse expose replies the backend generates on its own
// (sequences it answers without the query passthrough filter ever seeing
// them) so Wrapper.DrainResponse can hand them over in order ahead of the passthrough's
// own synthesized replies, per spec §4.2 step 1.
type EmulatorOps interface {
	Write(p []byte) (int, error)
	Width() int
	Height() int
	Resize(cols, rows int)
	CursorPosition() vt.Position
	CellAt(x, y int) *vt.Cell
	HasResponse() bool
	ReadResponse() []byte
}

// vtAdapter wraps the charmbracelet/x/vt safe emulator to satisfy
// EmulatorOps, including the HasResponse/ReadResponse pair EmulatorOps adds
// on top of the bare backend. The backend exposes auto-generated replies
// (CPR, DA, etc. it answers on its own) through a blocking Read, so a
// background goroutine drains that stream into a buffer the rest of Wrapper
// can poll without blocking.
type vtAdapter struct {
	*vt.SafeEmulator

	mu   sync.Mutex
	resp []byte
}

func newVTAdapter(cols, rows int, onAltScreen func(bool)) *vtAdapter {
	emu := vt.NewSafeEmulator(cols, rows)
	emu.SetCallbacks(vt.Callbacks{
		AltScreen: onAltScreen,
	})
	a := &vtAdapter{SafeEmulator: emu}
	go a.drain()
	return a
}

func (a *vtAdapter) drain() {
	buf := make([]byte, 4096)
	for {
		n, err := a.SafeEmulator.Read(buf)
		if n > 0 {
			a.mu.Lock()
			a.resp = append(a.resp, buf[:n]...)
			a.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// HasResponse reports whether the backend has queued a reply of its own.
func (a *vtAdapter) HasResponse() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.resp) > 0
}

// ReadResponse returns and clears the backend's queued reply.
func (a *vtAdapter) ReadResponse() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := a.resp
	a.resp = nil
	return out
}

// Wrapper owns one VT backend instance plus the dirty-row and scrollback
// bookkeeping layered on top of it.
type Wrapper struct {
	mu sync.Mutex

	term EmulatorOps
	cols, rows int

	prevRows []cellmodel.Row
	cursor   cellmodel.Cursor
	cursorKeyMode cellmodel.CursorKeyMode
	alternateScreen bool
	mouseTracking   bool

	scrollback  *ScrollbackCache
	scrolledLen int

	colors Colors
}

// New constructs a Wrapper around a fresh charmbracelet/x/vt safe emulator,
// wired for alternate-screen tracking and backend response draining.
func New(cols, rows int, scrollbackCapacity int, colors Colors) *Wrapper {
	w := &Wrapper{
		cols:       cols,
		rows:       rows,
		prevRows:   make([]cellmodel.Row, rows),
		scrollback: NewScrollbackCache(scrollbackCapacity),
		colors:     resolveColors(colors),
	}
	w.term = newVTAdapter(cols, rows, func(on bool) {
		// Fires synchronously inside EmulatorOps.Write, which Wrapper.Write
		// always calls with w.mu already held - no separate lock needed.
		w.alternateScreen = on
	})
	return w
}

// NewWithEmulator constructs a Wrapper around a caller-supplied backend,
// letting tests substitute a fake EmulatorOps.
func NewWithEmulator(e EmulatorOps, cols, rows int, scrollbackCapacity int, colors Colors) *Wrapper {
	return &Wrapper{
		term:       e,
		cols:       cols,
		rows:       rows,
		prevRows:   make([]cellmodel.Row, rows),
		scrollback: NewScrollbackCache(scrollbackCapacity),
		colors:     resolveColors(colors),
	}
}

// Colors returns the palette this pane reports to OSC color queries.
func (w *Wrapper) Colors() Colors {
	return w.colors
}

// DrainResponse returns and clears any bytes the backend generated on its
// own since the last drain - e.g. an auto-reply to a sequence the query
// passthrough filter didn't intercept. Callers must write these to the PTY
// ahead of the passthrough filter's own replies from the same chunk.
func (w *Wrapper) DrainResponse() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.term.HasResponse() {
		return nil
	}
	return w.term.ReadResponse()
}

// Write feeds raw PTY output into the emulator and returns the resulting
// dirty update.
func (w *Wrapper) Write(data []byte) (*cellmodel.DirtyUpdate, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	preScrollTop := w.prevRows
	if _, err := w.term.Write(data); err != nil {
		return nil, err
	}
	if !w.alternateScreen {
		w.trackScrollLocked(preScrollTop, data)
	}
	return w.snapshotLocked(false), nil
}

// trackScrollLocked approximates scrollback accumulation: the emulator
// backend owns the real scroll-region logic, but EmulatorOps exposes no
// "rows evicted this write" signal, so Wrapper infers it by counting line
// feeds in the bytes just written while the main screen (not the
// alternate screen, which never scrolls into history) is active. Each
// inferred scroll pushes the oldest row of the previous frame into the
// cache — an approximation that can undercount scrolling caused by
// cursor-addressed redraws rather than literal "\n" bytes.
func (w *Wrapper) trackScrollLocked(preRows []cellmodel.Row, written []byte) {
	if len(preRows) == 0 {
		return
	}
	n := bytesCount(written, '\n')
	for i := 0; i < n && i < len(preRows); i++ {
		w.scrollback.Push(w.scrolledLen, preRows[i])
		w.scrolledLen++

		// The absolute offset space has wrapped past the cache's retention
		// window: every offset issued before this point now addresses a row
		// the cache no longer has room to keep straight. Clear rather than
		// let stale entries answer lookups at offsets that have rolled over.
		if cap := w.scrollback.Capacity(); cap > 0 && w.scrolledLen%cap == 0 {
			w.scrollback.Clear()
		}
	}
}

func bytesCount(b []byte, c byte) int {
	n := 0
	for _, x := range b {
		if x == c {
			n++
		}
	}
	return n
}

// ScrollbackLength returns the total number of rows pushed into scrollback
// so far.
func (w *Wrapper) ScrollbackLength() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.scrolledLen
}

// Scrollback returns the pane's scrollback cache.
func (w *Wrapper) Scrollback() *ScrollbackCache {
	return w.scrollback
}

// Resize changes the emulator's dimensions and returns a full-state update,
// since every row's addressing changes.
func (w *Wrapper) Resize(cols, rows int) *cellmodel.DirtyUpdate {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.term.Resize(cols, rows)
	w.cols, w.rows = cols, rows
	w.prevRows = make([]cellmodel.Row, rows)
	// Every retained row was shaped for the old column width; none of them
	// can be served correctly against the new geometry.
	w.scrollback.Clear()
	return w.snapshotLocked(true)
}

// FullState returns the complete current screen, bypassing dirty diffing.
func (w *Wrapper) FullState() *cellmodel.TerminalState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.readStateLocked()
}

func (w *Wrapper) snapshotLocked(forceFull bool) *cellmodel.DirtyUpdate {
	state := w.readStateLocked()

	upd := &cellmodel.DirtyUpdate{
		Cursor:          state.Cursor,
		Cols:            state.Cols,
		Rows:            state.Rows,
		AlternateScreen: state.AlternateScreen,
		MouseTracking:   state.MouseTracking,
		CursorKeyMode:   state.CursorKeyMode,
		Scroll: cellmodel.ScrollState{
			IsAtBottom:          true,
			ScrollbackLength:    w.scrolledLen,
			IsAtScrollbackLimit: w.scrollback.Len() >= w.scrollback.Capacity(),
		},
	}

	if forceFull || len(w.prevRows) != len(state.Cells) {
		upd.IsFull = true
		upd.FullState = state
		w.prevRows = cloneRows(state.Cells)
		return upd
	}

	dirty := make(map[int]cellmodel.Row)
	for y, row := range state.Cells {
		if !rowsEqual(w.prevRows[y], row) {
			dirty[y] = row
		}
	}
	w.prevRows = cloneRows(state.Cells)
	upd.DirtyRows = dirty
	return upd
}

func (w *Wrapper) readStateLocked() *cellmodel.TerminalState {
	cols, rows := w.term.Width(), w.term.Height()
	cells := make([]cellmodel.Row, rows)
	for y := 0; y < rows; y++ {
		row := make(cellmodel.Row, cols)
		for x := 0; x < cols; x++ {
			row[x] = convertCell(w.term.CellAt(x, y))
		}
		cells[y] = row
	}

	pos := w.term.CursorPosition()
	return &cellmodel.TerminalState{
		Cols:            cols,
		Rows:            rows,
		Cells:           cells,
		Cursor:          cellmodel.Cursor{X: pos.X, Y: pos.Y, Visible: true, Style: w.cursor.Style},
		AlternateScreen: w.alternateScreen,
		MouseTracking:   w.mouseTracking,
		CursorKeyMode:   w.cursorKeyMode,
	}
}

// convertCell maps a charmbracelet/x/vt cell onto the shared Cell type. A
// nil cell (unwritten grid position) becomes a blank space.
func convertCell(cell *vt.Cell) cellmodel.Cell {
	if cell == nil || cell.Content == "" {
		return cellmodel.Cell{Char: ' ', Width: 1}
	}
	runes := []rune(cell.Content)
	ch := ' '
	if len(runes) > 0 {
		ch = runes[0]
	}

	width := uint8(1)
	if cell.Width > 1 {
		width = uint8(cell.Width)
	}

	return cellmodel.Cell{
		Char:          ch,
		Fg:            colorToRGB(cell.Style.Fg),
		Bg:            colorToRGB(cell.Style.Bg),
		Bold:          cell.Style.Attrs&uv.AttrBold != 0,
		Dim:           cell.Style.Attrs&uv.AttrFaint != 0,
		Italic:        cell.Style.Attrs&uv.AttrItalic != 0,
		Underline:     cell.Style.Attrs&uv.AttrUnderline != 0,
		Strikethrough: cell.Style.Attrs&uv.AttrStrikethrough != 0,
		Inverse:       cell.Style.Attrs&uv.AttrReverse != 0,
		Blink:         cell.Style.Attrs&uv.AttrSlowBlink != 0,
		Width:         width,
	}
}

func colorToRGB(c color.Color) cellmodel.RGB {
	if c == nil {
		return cellmodel.RGB{}
	}
	r, g, b, _ := c.RGBA()
	return cellmodel.RGB{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
}

func rowsEqual(a, b cellmodel.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneRows(rows []cellmodel.Row) []cellmodel.Row {
	out := make([]cellmodel.Row, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}

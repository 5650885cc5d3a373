// Package cellmodel defines the plain data types shared by every layer of
// the terminal data plane: cells, rows, terminal and scroll state, and the
// dirty/packed update envelopes that cross worker and render boundaries.
//
// Nothing in this package does I/O or holds a mutex; it is the shape that
// internal/term produces, internal/cellcodec packs, and internal/render
// consumes.
package cellmodel

// CursorStyle is the shape the cursor is drawn with.
type CursorStyle int

const (
	CursorBlock CursorStyle = iota
	CursorUnderline
	CursorBar
)

// CursorKeyMode selects whether cursor keys emit normal or application
// sequences (DECCKM).
type CursorKeyMode int

const (
	CursorKeyNormal CursorKeyMode = iota
	CursorKeyApplication
)

// Attr is a bitmask of the seven boolean cell attributes. Bit assignments are
// part of the external wire format (see internal/cellcodec) and must not
// change.
type Attr uint16

const (
	AttrBold Attr = 1 << iota
	AttrItalic
	AttrUnderline
	AttrStrikethrough
	AttrInverse
	AttrBlink
	AttrDim
	_ // bit 128 reserved
)

// RGB is an 8-bit-per-channel color.
type RGB struct {
	R, G, B uint8
}

// Cell is one terminal grid position. Width is 1 for an ordinary cell or
// the leading cell of a wide grapheme (width 2); the cell to the right of a
// width-2 leader is a spacer with Width 1, Char ' ', and Fg/Bg copied from
// the leader's Bg.
type Cell struct {
	Char        rune
	Fg          RGB
	Bg          RGB
	Bold        bool
	Italic      bool
	Underline   bool
	Strikethrough bool
	Inverse     bool
	Dim         bool
	Blink       bool
	Width       uint8
	HyperlinkID uint16 // 0 = none, else in [1, 65535]
}

// Attrs packs the seven boolean attributes into the wire bitmask.
func (c Cell) Attrs() Attr {
	var a Attr
	if c.Bold {
		a |= AttrBold
	}
	if c.Italic {
		a |= AttrItalic
	}
	if c.Underline {
		a |= AttrUnderline
	}
	if c.Strikethrough {
		a |= AttrStrikethrough
	}
	if c.Inverse {
		a |= AttrInverse
	}
	if c.Blink {
		a |= AttrBlink
	}
	if c.Dim {
		a |= AttrDim
	}
	return a
}

// IsSpacerOf reports whether c is the trailing spacer for a wide leader
// with the given background.
func IsSpacerOf(c Cell, leaderBg RGB) bool {
	return c.Width == 1 && c.Char == ' ' && c.Fg == leaderBg && c.Bg == leaderBg
}

// SpacerFor returns the standard wide-trailing spacer cell for a leader
// whose background is leaderBg.
func SpacerFor(leaderBg RGB) Cell {
	return Cell{Char: ' ', Fg: leaderBg, Bg: leaderBg, Width: 1}
}

// Row is an ordered sequence of cells; its length is the terminal's column
// count at the moment the row was produced. A row is immutable once it
// leaves the live viewport for scrollback.
type Row []Cell

// Clone returns an independent copy of the row, safe to retain past the
// lifetime of the caller's buffer.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Cursor is the terminal's cursor position and visual style.
type Cursor struct {
	X, Y    int
	Visible bool
	Style   CursorStyle
}

// TerminalState is the full live-viewport snapshot of one PTY's screen.
type TerminalState struct {
	Cols, Rows      int
	Cells           []Row // len(Cells) == Rows
	Cursor          Cursor
	AlternateScreen bool
	MouseTracking   bool
	CursorKeyMode   CursorKeyMode
}

// ScrollState describes the viewport's position within scrollback.
// ViewportOffset == 0 iff IsAtBottom.
type ScrollState struct {
	ViewportOffset      int
	ScrollbackLength    int
	IsAtBottom          bool
	IsAtScrollbackLimit bool
}

// AbsoluteRow returns the absolute scrollback-addressed row index for
// viewport row y under this scroll state.
func (s ScrollState) AbsoluteRow(y int) int {
	return s.ScrollbackLength - s.ViewportOffset + y
}

// DirtyUpdate is the per-write delta a term.Wrapper emits. When IsFull is
// true, FullState is authoritative and DirtyRows is advisory; otherwise
// consumers must apply DirtyRows onto their cached row sequence.
type DirtyUpdate struct {
	DirtyRows     map[int]Row
	Cursor        Cursor
	Scroll        ScrollState
	Cols, Rows    int
	IsFull        bool
	FullState     *TerminalState
	PackedRows    *PackedRowUpdate
	AlternateScreen bool
	MouseTracking   bool
	CursorKeyMode   CursorKeyMode
	InBandResize    bool
}

// PackedRowUpdate is the binary batch-draw payload described in spec §3/§4.1.
// Data holds cols*16 bytes per row in RowIndices order, with cells that
// can't be represented inline overwritten with SPACE and pushed to the
// parallel overlay arrays.
type PackedRowUpdate struct {
	Cols    int
	RowIndices []uint16
	Data       []byte // len == len(RowIndices) * Cols * 16

	// OverlayRowStarts[i] is the index into the overlay arrays where row i's
	// overlay cells begin; OverlayRowStarts has len(RowIndices)+1 entries.
	OverlayRowStarts []uint32
	OverlayX         []uint16
	OverlayY         []uint16
	OverlayCodepoint []uint32
	OverlayAttributes []uint8
	OverlayFg        []uint8 // 4 bytes per overlay entry: r,g,b,reserved
	OverlayBg        []uint8
}

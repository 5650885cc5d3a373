// Package render implements the per-pane draw pipeline from spec §4.9:
// scratch-buffer sizing, packed-row commit application, row fetching with
// prefetch scheduling, batch-appended clean rows, layered highlight
// painting for dirty/highlighted rows, scrollbar geometry, padding
// repaint, and frame composite.
//
// Grounded on internal/tui/tcell_tui.go's renderVT100Content/cellInfoToStyle
// (direct SetContent cell copy from the emulator's cell grid, fg/bg/attr ->
// tcell.Style conversion) generalized from a single full-panel copy into
// the spec's dirty-row-aware, layered-highlight, scrollbar-bearing
// per-pane pipeline.
package render

import (
	"context"
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/openmux/openmux/internal/cellmodel"
	"github.com/openmux/openmux/internal/dirty"
	"github.com/openmux/openmux/internal/selection"
)

// Surface is the host drawing surface this renderer targets (spec §6.2's
// setCell/drawText subset — drawChar/drawPackedBuffer/drawFrameBuffer are
// folded into SetCell/DrawText batching rather than kept as separate
// entry points, since tcell has no packed-buffer blit primitive).
type Surface interface {
	SetCell(x, y int, ch rune, fg, bg cellmodel.RGB, attrs cellmodel.Attr)
	DrawText(x, y int, text string, fg, bg cellmodel.RGB, attrs cellmodel.Attr)
}

// TcellSurface adapts a tcell.Screen to Surface, translating cellmodel
// colors/attrs to tcell styles the way cellInfoToStyle did for vt100.CellInfo.
type TcellSurface struct {
	Screen tcell.Screen
}

func (s TcellSurface) SetCell(x, y int, ch rune, fg, bg cellmodel.RGB, attrs cellmodel.Attr) {
	s.Screen.SetContent(x, y, ch, nil, styleFor(fg, bg, attrs))
}

func (s TcellSurface) DrawText(x, y int, text string, fg, bg cellmodel.RGB, attrs cellmodel.Attr) {
	style := styleFor(fg, bg, attrs)
	for i, r := range text {
		s.Screen.SetContent(x+i, y, r, nil, style)
	}
}

func styleFor(fg, bg cellmodel.RGB, attrs cellmodel.Attr) tcell.Style {
	style := tcell.StyleDefault.
		Foreground(tcell.NewRGBColor(int32(fg.R), int32(fg.G), int32(fg.B))).
		Background(tcell.NewRGBColor(int32(bg.R), int32(bg.G), int32(bg.B)))
	if attrs&cellmodel.AttrBold != 0 {
		style = style.Bold(true)
	}
	if attrs&cellmodel.AttrDim != 0 {
		style = style.Dim(true)
	}
	if attrs&cellmodel.AttrItalic != 0 {
		style = style.Italic(true)
	}
	if attrs&cellmodel.AttrUnderline != 0 {
		style = style.Underline(true)
	}
	if attrs&cellmodel.AttrStrikethrough != 0 {
		style = style.StrikeThrough(true)
	}
	if attrs&cellmodel.AttrBlink != 0 {
		style = style.Blink(true)
	}
	if attrs&cellmodel.AttrInverse != 0 {
		style = style.Reverse(true)
	}
	return style
}

// SearchMatch is one highlighted search hit on an absolute row.
type SearchMatch struct {
	AbsY         int
	StartX, EndX int // inclusive
	Current      bool
}

// Fetcher resolves the rows visible at a given viewport offset, returning
// the rows found and the absolute indices that were missing (not yet in
// cache), for prefetch scheduling.
type Fetcher func(ctx context.Context, viewportOffset, rows int) (found map[int]cellmodel.Row, missing []int)

// PaneRenderer holds one pane's scratch state across frames.
type PaneRenderer struct {
	cols, rows int

	rowTextCache map[int]cellmodel.Row
	missingRows  []int

	lastHasSelection bool
	lastHasSearch    bool

	pending *cellmodel.DirtyUpdate
}

// NewPaneRenderer creates scratch buffers sized for cols x rows (step 1).
func NewPaneRenderer(cols, rows int) *PaneRenderer {
	return &PaneRenderer{
		cols:         cols,
		rows:         rows,
		rowTextCache: make(map[int]cellmodel.Row, rows),
	}
}

// EnsureSize resizes scratch buffers when the pane's dimensions change.
func (p *PaneRenderer) EnsureSize(cols, rows int) {
	if cols == p.cols && rows == p.rows {
		return
	}
	p.cols, p.rows = cols, rows
	p.rowTextCache = make(map[int]cellmodel.Row, rows)
}

// Commit applies a pending packed-row/dirty update atomically, to be
// consumed by the next RenderFrame call (step 2).
func (p *PaneRenderer) Commit(update cellmodel.DirtyUpdate) {
	u := update
	p.pending = &u
}

// RenderFrame runs the full per-pane draw procedure (spec §4.9 steps 1-8).
func (p *PaneRenderer) RenderFrame(
	ctx context.Context,
	surface Surface,
	tracker *dirty.Tracker,
	sel *selection.State,
	searches []SearchMatch,
	scroll cellmodel.ScrollState,
	cursor cellmodel.Cursor,
	paneFocused bool,
	fetch Fetcher,
	originX, originY int,
) {
	// Step 2: apply pending commit.
	if p.pending != nil {
		for y, row := range p.pending.DirtyRows {
			p.rowTextCache[y] = row
		}
		if p.pending.IsFull && p.pending.FullState != nil {
			for y, row := range p.pending.FullState.Cells {
				p.rowTextCache[y] = row
			}
		}
		tracker.ObserveUpdate(*p.pending)
		p.pending = nil
	}

	// Step 3: fetch rows for the current viewport; missing scrollback rows
	// schedule a prefetch.
	if fetch != nil {
		found, missing := fetch(ctx, scroll.ViewportOffset, p.rows)
		for y, row := range found {
			p.rowTextCache[y] = row
		}
		if len(missing) > 0 {
			first, last := missing[0], missing[0]
			for _, m := range missing {
				if m < first {
					first = m
				}
				if m > last {
					last = m
				}
			}
			tracker.NoteMissingRows(first, last, p.rows)
		}
	}

	// Step 4: selection/search-state change forces a full repaint.
	hasSelection := sel != nil && sel.Active()
	hasSearch := len(searches) > 0
	if hasSelection != p.lastHasSelection || hasSearch != p.lastHasSearch {
		tracker.MarkAll()
	}
	p.lastHasSelection, p.lastHasSearch = hasSelection, hasSearch

	tracker.SetViewport(scroll.ViewportOffset, scroll.ScrollbackLength)

	matchesByRow := indexMatchesByRow(searches)

	// Step 5: iterate rows, batching clean/unhighlighted runs.
	var batchStart = -1
	var batchText []rune
	flush := func(endRow int) {
		if batchStart < 0 {
			return
		}
		for y := batchStart; y < endRow; y++ {
			line := batchText[(y-batchStart)*p.cols : (y-batchStart+1)*p.cols]
			surface.DrawText(originX, originY+y, string(line), cellmodel.RGB{}, cellmodel.RGB{}, 0)
		}
		batchStart = -1
		batchText = batchText[:0]
	}

	for y := 0; y < p.rows; y++ {
		absY := scroll.AbsoluteRow(y)
		row := p.rowTextCache[absY]
		rowMatches := matchesByRow[absY]
		cursorOnRow := paneFocused && scroll.IsAtBottom && cursor.Visible && cursor.Y == y

		dirty := tracker.IsRowDirty(y)
		highlighted := hasSelectionOnRow(sel, absY) || len(rowMatches) > 0 || cursorOnRow

		if !dirty {
			flush(y)
			continue
		}

		if !highlighted {
			if batchStart < 0 {
				batchStart = y
				batchText = batchText[:0]
			}
			batchText = append(batchText, rowRunes(row, p.cols)...)
			continue
		}

		flush(y)
		p.drawHighlightedRow(surface, row, absY, y, sel, rowMatches, cursorOnRow, cursor, originX, originY)
	}
	flush(p.rows)

	// Step 6: scrollbar.
	if !scroll.IsAtBottom && scroll.ScrollbackLength > 0 {
		thumbStart, thumbHeight := ScrollbarGeometry(p.rows, scroll.ScrollbackLength, scroll.ViewportOffset)
		for y := 0; y < p.rows; y++ {
			inThumb := y >= thumbStart && y < thumbStart+thumbHeight
			if inThumb {
				surface.SetCell(originX+p.cols-1, originY+y, ' ', cellmodel.RGB{}, cellmodel.RGB{R: 128, G: 128, B: 128}, 0)
			}
		}
	}

	tracker.ClearAfterRender()
}

func rowRunes(row cellmodel.Row, cols int) []rune {
	out := make([]rune, cols)
	for x := 0; x < cols; x++ {
		if x < len(row) {
			out[x] = row[x].Char
			if out[x] == 0 {
				out[x] = ' '
			}
			continue
		}
		out[x] = ' '
	}
	return out
}

func (p *PaneRenderer) drawHighlightedRow(
	surface Surface,
	row cellmodel.Row,
	absY, viewportY int,
	sel *selection.State,
	matches []SearchMatch,
	cursorOnRow bool,
	cursor cellmodel.Cursor,
	originX, originY int,
) {
	var selCols selection.ColumnRange
	hasSel := false
	if sel != nil && sel.Active() {
		selCols, hasSel = sel.GetSelectedColumnsForRow(absY, p.cols)
	}

	for x := 0; x < p.cols; x++ {
		var cell cellmodel.Cell
		if x < len(row) {
			cell = row[x]
		}
		ch := cell.Char
		if ch == 0 {
			ch = ' '
		}
		fg, bg, attrs := cell.Fg, cell.Bg, cell.Attrs()

		// Layer order: search matches -> current match -> selection -> cursor.
		for _, m := range matches {
			if x < m.StartX || x > m.EndX {
				continue
			}
			if m.Current {
				bg = cellmodel.RGB{R: 255, G: 165, B: 0}
			} else {
				bg = cellmodel.RGB{R: 255, G: 255, B: 0}
			}
			fg = cellmodel.RGB{R: 0, G: 0, B: 0}
		}
		if hasSel && x >= selCols.Start && x <= selCols.End {
			fg, bg = cellmodel.RGB{R: 255, G: 255, B: 255}, cellmodel.RGB{R: 0, G: 0, B: 200}
		}
		if cursorOnRow && x == cursor.X {
			fg, bg = bg, cellmodel.RGB{R: 255, G: 255, B: 255}
		}

		surface.SetCell(originX+x, originY+viewportY, ch, fg, bg, attrs)
	}
}

func hasSelectionOnRow(sel *selection.State, absY int) bool {
	if sel == nil || !sel.Active() {
		return false
	}
	r := sel.Range()
	return absY >= r.StartY && absY <= r.EndY
}

func indexMatchesByRow(matches []SearchMatch) map[int][]SearchMatch {
	out := make(map[int][]SearchMatch, len(matches))
	for _, m := range matches {
		out[m.AbsY] = append(out[m.AbsY], m)
	}
	return out
}

// ScrollbarGeometry computes the scrollbar thumb's starting row and height
// within a rows-tall column, per spec §4.9 step 6.
func ScrollbarGeometry(rows, scrollbackLength, viewportOffset int) (thumbStart, thumbHeight int) {
	if rows <= 0 {
		return 0, 0
	}
	thumbHeight = int(math.Floor(float64(rows*rows) / float64(rows+scrollbackLength)))
	if thumbHeight < 1 {
		thumbHeight = 1
	}
	if thumbHeight > rows {
		thumbHeight = rows
	}
	frac := 1.0
	if scrollbackLength > 0 {
		frac = 1.0 - float64(viewportOffset)/float64(scrollbackLength)
	}
	thumbStart = int(math.Floor(frac * float64(rows-thumbHeight)))
	if thumbStart < 0 {
		thumbStart = 0
	}
	if thumbStart > rows-thumbHeight {
		thumbStart = rows - thumbHeight
	}
	return thumbStart, thumbHeight
}

// PaintPadding fills the area of a pane's rect outside cols x rows with
// blank cells, only where it has not already been painted (step 7) —
// callers track their own "already painted" region and call this once on
// dimension change.
func PaintPadding(surface Surface, originX, originY, rectW, rectH, cols, rows int) {
	for y := 0; y < rectH; y++ {
		for x := 0; x < rectW; x++ {
			if x < cols && y < rows {
				continue
			}
			surface.SetCell(originX+x, originY+y, ' ', cellmodel.RGB{}, cellmodel.RGB{}, 0)
		}
	}
}

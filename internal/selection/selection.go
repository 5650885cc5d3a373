// Package selection implements mouse text selection: anchor/focus points,
// normalized ranges, cell/row membership tests, and text extraction, per
// spec §4.7.
//
// Grounded on TechDufus-openkanban/internal/terminal/selection.go
// (SelectionState with Anchor/Cursor and a Bounds() normalizer) — the
// closest sibling-repo analog in the pack — generalized from a
// live-viewport-only Position{Row,Col} to the scrollback-aware
// Point{X,ViewportY,AbsoluteY} this spec needs, and from plain start/end
// containment to Zellij-style focus-cell exclusion.
package selection

import (
	"strings"

	"github.com/openmux/openmux/internal/cellmodel"
)

// Point is one endpoint of a selection: a column, the viewport-relative
// row at the moment it was set, and the absolute scrollback-addressed row.
type Point struct {
	X        int
	ViewportY int
	AbsoluteY int
}

// Range is a normalized, total-ordered selection: Start always precedes or
// equals End in reading order. FocusAtEnd records whether the drag focus
// point is the later (End) point, needed for focus-cell exclusion.
type Range struct {
	StartX, StartY int
	EndX, EndY     int
	FocusAtEnd     bool
}

// Normalize orders anchor/focus into a Range, recording which one is the
// end.
func Normalize(anchor, focus Point) Range {
	if pointBefore(anchor, focus) {
		return Range{StartX: anchor.X, StartY: anchor.AbsoluteY, EndX: focus.X, EndY: focus.AbsoluteY, FocusAtEnd: true}
	}
	return Range{StartX: focus.X, StartY: focus.AbsoluteY, EndX: anchor.X, EndY: anchor.AbsoluteY, FocusAtEnd: false}
}

func pointBefore(a, b Point) bool {
	if a.AbsoluteY != b.AbsoluteY {
		return a.AbsoluteY < b.AbsoluteY
	}
	return a.X <= b.X
}

// State tracks one pane's in-progress or completed selection.
type State struct {
	active bool
	anchor Point
	focus  Point
}

// Begin starts a new selection at pos.
func (s *State) Begin(pos Point) {
	s.active = true
	s.anchor = pos
	s.focus = pos
}

// Extend moves the focus point during a drag.
func (s *State) Extend(pos Point) {
	if s.active {
		s.focus = pos
	}
}

// Clear cancels the selection.
func (s *State) Clear() {
	*s = State{}
}

// Active reports whether a selection exists (in progress or completed).
func (s *State) Active() bool { return s.active }

// Range returns the normalized range, valid only when Active.
func (s *State) Range() Range { return Normalize(s.anchor, s.focus) }

// IsCellSelected reports whether (x, absY) falls within the selection,
// honoring focus-cell exclusion: the single cell the drag focus currently
// sits on is never itself considered selected (Zellij convention), so a
// one-cell drag shows no selection until the focus moves past the anchor.
func (s *State) IsCellSelected(x, absY int) bool {
	if !s.active {
		return false
	}
	r := s.Range()
	cols, ok := selectedColumnsForRow(r, absY, nil)
	if !ok {
		return false
	}
	return x >= cols.Start && x <= cols.End
}

// ColumnRange is an inclusive [Start, End] span of selected columns.
type ColumnRange struct {
	Start, End int
}

// GetSelectedColumnsForRow returns the inclusive column span selected on
// absolute row absY, or ok=false if no part of that row is selected. The
// focus cell itself is excluded from the span. rowWidth bounds the
// returned End for rows that are the range's end row.
func (s *State) GetSelectedColumnsForRow(absY, rowWidth int) (ColumnRange, bool) {
	if !s.active {
		return ColumnRange{}, false
	}
	return selectedColumnsForRow(s.Range(), absY, &rowWidth)
}

func selectedColumnsForRow(r Range, absY int, rowWidth *int) (ColumnRange, bool) {
	if absY < r.StartY || absY > r.EndY {
		return ColumnRange{}, false
	}

	start, end := 0, maxInt()
	if rowWidth != nil {
		end = *rowWidth - 1
	}
	if absY == r.StartY {
		start = r.StartX
	}
	if absY == r.EndY {
		end = r.EndX
	}

	// Exclude the focus cell: the end of a forward selection (FocusAtEnd)
	// has its last column trimmed by one; a backward selection's anchor is
	// the end column, so nothing is trimmed there instead since the focus
	// is already StartX/StartY.
	if r.FocusAtEnd && absY == r.EndY {
		end--
	}
	if !r.FocusAtEnd && absY == r.StartY {
		start++
	}

	if start > end {
		return ColumnRange{}, false
	}
	return ColumnRange{Start: start, End: end}, true
}

func maxInt() int { return int(^uint(0) >> 1) }

// LineFetcher returns the cells for absolute row absY, used by
// ExtractSelectedText.
type LineFetcher func(absY int) cellmodel.Row

// ExtractSelectedText concatenates each selected row's characters
// (skipping wide-trailing spacers), trims trailing whitespace per line,
// and joins with "\n".
func ExtractSelectedText(r Range, rowWidth int, getLine LineFetcher) string {
	var lines []string
	for y := r.StartY; y <= r.EndY; y++ {
		cols, ok := selectedColumnsForRow(r, y, &rowWidth)
		if !ok {
			continue
		}
		row := getLine(y)
		var b strings.Builder
		for x := cols.Start; x <= cols.End && x < len(row); x++ {
			cell := row[x]
			if cell.Width == 1 && cell.Char == ' ' && isSpacer(row, x) {
				continue
			}
			b.WriteRune(cell.Char)
		}
		lines = append(lines, strings.TrimRight(b.String(), " \t"))
	}
	return strings.Join(lines, "\n")
}

func isSpacer(row cellmodel.Row, x int) bool {
	return x > 0 && row[x-1].Width == 2
}

// AutoScrollHz is the steady cadence for selection-drag auto-scroll per
// spec §4.7.
const AutoScrollHz = 20

// AutoScrollDirection reports which way (if any) a drag at viewport row y
// (0-based, within [0, paneRows)) should auto-scroll: -1 above content
// start, +1 below content end, 0 for no scroll.
func AutoScrollDirection(y, paneRows int) int {
	if y < 0 {
		return -1
	}
	if y >= paneRows {
		return 1
	}
	return 0
}

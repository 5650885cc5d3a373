// Package dirty implements the per-pane dirty-row tracker and scrollback
// prefetch state machine from spec §4.6. No direct teacher analog exists;
// grounded in the general snapshot-then-verify pattern the teacher uses for
// BrowserState's LastScreenHash staleness check (internal/relay/state.go),
// applied here to scrollback range snapshots rather than a screen hash.
package dirty

import (
	"context"

	"github.com/openmux/openmux/internal/cellmodel"
)

// Tracker holds one pane's dirty-row bitmap and prefetch state.
type Tracker struct {
	rows   []bool
	all    bool

	prevCursor cellmodel.Cursor
	viewportOffset   int
	scrollbackLength int

	prefetch prefetchState
}

// NewTracker creates a Tracker sized for rows viewport rows, starting
// fully dirty (first render always draws everything).
func NewTracker(rows int) *Tracker {
	return &Tracker{rows: make([]bool, rows), all: true}
}

// MarkAll forces every row dirty, per spec §4.6's dimension/selection/
// search-change and scrollback-rollover rules.
func (t *Tracker) MarkAll() { t.all = true }

// MarkRow marks a single row dirty.
func (t *Tracker) MarkRow(y int) {
	if y >= 0 && y < len(t.rows) {
		t.rows[y] = true
	}
}

// Resize changes the tracked row count and marks everything dirty.
func (t *Tracker) Resize(rows int) {
	t.rows = make([]bool, rows)
	t.all = true
}

// ObserveUpdate applies a DirtyUpdate: marks the previous and new cursor
// rows dirty regardless of what the emulator reported (so the cursor is
// always erased/redrawn), plus every row the update says changed.
func (t *Tracker) ObserveUpdate(upd cellmodel.DirtyUpdate) {
	if upd.IsFull {
		t.MarkAll()
	}
	t.MarkRow(t.prevCursor.Y)
	t.MarkRow(upd.Cursor.Y)
	for y := range upd.DirtyRows {
		t.MarkRow(y)
	}
	t.prevCursor = upd.Cursor
}

// IsRowDirty reports whether row y needs redraw this frame.
func (t *Tracker) IsRowDirty(y int) bool {
	if t.all {
		return true
	}
	return y >= 0 && y < len(t.rows) && t.rows[y]
}

// ClearAfterRender resets the dirty bitmap once a frame has been painted.
func (t *Tracker) ClearAfterRender() {
	t.all = false
	for i := range t.rows {
		t.rows[i] = false
	}
}

// SetViewport updates the tracker's notion of current viewport offset and
// scrollback length, used to verify prefetch snapshots and to mark
// dirtyAll on viewport change or scrollback rollover.
func (t *Tracker) SetViewport(offset, scrollbackLength int) {
	rolledOver := scrollbackLength < t.scrollbackLength
	changed := offset != t.viewportOffset || scrollbackLength != t.scrollbackLength
	t.viewportOffset = offset
	t.scrollbackLength = scrollbackLength
	if changed || rolledOver {
		t.MarkAll()
	}
}

// --- prefetch state machine ---

// PrefetchPhase is one of the three prefetch states (spec §4.6).
type PrefetchPhase int

const (
	PrefetchIdle PrefetchPhase = iota
	PrefetchScheduled
	PrefetchInFlight
)

type prefetchSnapshot struct {
	viewportOffset   int
	scrollbackLength int
	rows             int
	firstMissing     int
	lastMissing      int
}

type prefetchState struct {
	phase    PrefetchPhase
	snapshot prefetchSnapshot
}

// Fetcher issues the actual scrollback range request; implemented by
// workerpool.Pool.GetScrollbackLines in production code.
type Fetcher func(ctx context.Context, start, count int) ([]cellmodel.Row, error)

// PrefetchRequest describes the range a Schedule call decided to fetch.
type PrefetchRequest struct {
	Start, Count int
}

// NoteMissingRows transitions Idle -> Scheduled when rendering observes at
// least one missing scrollback row in the viewport, capturing the
// verification snapshot. Returns ok=false if a prefetch is already
// Scheduled or InFlight (at most one request per pane, spec property 6).
func (t *Tracker) NoteMissingRows(firstMissing, lastMissing, rows int) (ok bool) {
	if t.prefetch.phase != PrefetchIdle {
		return false
	}
	t.prefetch.phase = PrefetchScheduled
	t.prefetch.snapshot = prefetchSnapshot{
		viewportOffset:   t.viewportOffset,
		scrollbackLength: t.scrollbackLength,
		rows:             rows,
		firstMissing:     firstMissing,
		lastMissing:      lastMissing,
	}
	return true
}

// Schedule transitions Scheduled -> InFlight, computing the buffered
// fetch range: it starts two viewport heights before the first missing
// row (clamped at 0) and its count is the missing span
// (lastMissing - firstMissing) plus three viewport heights.
func (t *Tracker) Schedule() (PrefetchRequest, bool) {
	if t.prefetch.phase != PrefetchScheduled {
		return PrefetchRequest{}, false
	}
	s := t.prefetch.snapshot
	start := s.firstMissing - s.rows*2
	if start < 0 {
		start = 0
	}
	count := (s.lastMissing - s.firstMissing) + s.rows*3
	t.prefetch.phase = PrefetchInFlight
	return PrefetchRequest{Start: start, Count: count}, true
}

// Resolve transitions InFlight -> Idle on reply. If the live viewport
// state no longer matches the captured snapshot, every row is marked
// dirty (the fetched rows may be stale); otherwise each of the snapshot's
// viewport rows is marked dirty, and the caller should request one more
// render. The snapshot records only the first and last missing offsets,
// not which individual rows were missing, so on a match every row
// 0..rows-1 is marked, not just the missing ones.
func (t *Tracker) Resolve() (markAll bool) {
	if t.prefetch.phase != PrefetchInFlight {
		return false
	}
	s := t.prefetch.snapshot
	t.prefetch.phase = PrefetchIdle

	if s.viewportOffset != t.viewportOffset || s.scrollbackLength != t.scrollbackLength || s.rows != len(t.rows) {
		t.MarkAll()
		return true
	}
	for y := 0; y < s.rows; y++ {
		t.MarkRow(y)
	}
	return false
}

// Phase returns the current prefetch phase, mainly for tests and metrics.
func (t *Tracker) Phase() PrefetchPhase { return t.prefetch.phase }

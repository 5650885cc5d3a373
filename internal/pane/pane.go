// Package pane models one terminal pane's viewport and scroll state: the
// host-facing handle a workspace holds per BSP leaf, distinct from the
// worker-pool-owned emulator/PTY state it drives.
//
// Grounded on internal/agent.Agent's scroll-offset bookkeeping
// (ScrollUp/ScrollDown/ScrollReset/ScrollToTop/ScrollToBottom, each
// clamping against the live scrollback count), generalized from Agent's
// dual cli/server PTY view to this spec's single-PTY-per-pane model, and
// from Agent's own PTY ownership to delegating all emulator/PTY
// interaction to internal/workerpool.
package pane

import (
	"context"

	"github.com/openmux/openmux/internal/dirty"
	"github.com/openmux/openmux/internal/selection"
	"github.com/openmux/openmux/internal/workerpool"
)

// Pane is one BSP leaf's host-facing state.
type Pane struct {
	ID    string
	Title string
	CWD   string

	viewportOffset int

	Tracker   *dirty.Tracker
	Selection selection.State

	pool *workerpool.Pool
}

// New creates a pane bound to pool, with a dirty tracker sized for rows.
func New(id string, rows int, pool *workerpool.Pool) *Pane {
	return &Pane{
		ID:      id,
		Tracker: dirty.NewTracker(rows),
		pool:    pool,
	}
}

// Write forwards input bytes to the pane's PTY.
func (p *Pane) Write(data []byte) {
	p.pool.Write(p.ID, data)
}

// Resize forwards a dimension change and resizes the dirty tracker.
func (p *Pane) Resize(cols, rows int) {
	p.pool.Resize(p.ID, cols, rows)
	p.Tracker.Resize(rows)
}

// ScrollUp moves the viewport toward older scrollback, clamped to
// scrollbackLength.
func (p *Pane) ScrollUp(lines, scrollbackLength int) {
	p.viewportOffset += lines
	if p.viewportOffset > scrollbackLength {
		p.viewportOffset = scrollbackLength
	}
}

// ScrollDown moves the viewport toward the live tail, clamped at 0.
func (p *Pane) ScrollDown(lines int) {
	p.viewportOffset -= lines
	if p.viewportOffset < 0 {
		p.viewportOffset = 0
	}
}

// ScrollReset snaps the viewport back to the live tail.
func (p *Pane) ScrollReset() { p.viewportOffset = 0 }

// ScrollToTop jumps the viewport to the oldest available scrollback row.
func (p *Pane) ScrollToTop(scrollbackLength int) { p.viewportOffset = scrollbackLength }

// IsAtBottom reports whether the viewport is showing the live tail.
func (p *Pane) IsAtBottom() bool { return p.viewportOffset == 0 }

// ViewportOffset returns the current scroll offset (rows back from live).
func (p *Pane) ViewportOffset() int { return p.viewportOffset }

// Destroy tears down the pane's underlying PTY/emulator session.
func (p *Pane) Destroy(ctx context.Context) error {
	return p.pool.DestroyPane(ctx, p.ID)
}

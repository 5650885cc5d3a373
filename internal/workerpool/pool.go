// Package workerpool implements the fixed-size background worker pool from
// spec §4.5: each pane is sharded to one worker by a stable hash of its id,
// and that worker exclusively owns the pane's emulator/query/scrollback
// state. Workers are cooperative internally (tasks run one at a time per
// shard) and parallel across shards.
//
// Grounded on the teacher's internal/hub package, which dispatches UI
// actions against a single shared HubState from one goroutine
// (internal/hub/dispatch.go's DispatchContext) — generalized here from "one
// goroutine, one shared map" to "N goroutines, each owning a disjoint shard
// of panes, talking over typed channels" — and on internal/pty.Session for
// the per-pane reader goroutine a shard supervises.
package workerpool

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/openmux/openmux/internal/cellmodel"
	"github.com/openmux/openmux/internal/pty"
	"github.com/openmux/openmux/internal/query"
	"github.com/openmux/openmux/internal/term"
	"github.com/openmux/openmux/internal/updatestream"
)

// RequestID is a 32-bit monotonically-increasing async request identifier,
// unique within one Pool's lifetime (spec §4.5).
type RequestID uint32

// ErrUnknownPane is returned by operations against a pane id the pool has
// never created or has since destroyed. Per spec §7, best-effort
// operations (Write, Resize) treat an unknown pane as a no-op instead of
// returning this.
var ErrUnknownPane = fmt.Errorf("workerpool: unknown pane")

// ErrCancelled is returned to a caller blocked on a reply whose request was
// cancelled before the shard processed it.
var ErrCancelled = fmt.Errorf("workerpool: request cancelled")

// PaneConfig configures a new pane's PTY and initial VT state.
type PaneConfig struct {
	Cols, Rows         int
	ScrollbackCapacity int
	Colors             term.Colors
	Spawn              pty.SpawnConfig
}

// SearchResult is one match from Search.
type SearchResult struct {
	AbsoluteRow int
	Col         int
}

// Pool owns a fixed set of shards, each running its own goroutine.
type Pool struct {
	shards []*shard
	nextID atomic.Uint32
	logger *slog.Logger
}

// NewPool creates a pool with the given number of shards (workers). n is
// clamped to at least 1.
func NewPool(n int, logger *slog.Logger) *Pool {
	if n < 1 {
		n = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{logger: logger}
	p.shards = make([]*shard, n)
	for i := range p.shards {
		sh := newShard(logger)
		p.shards[i] = sh
		go sh.run()
	}
	return p
}

func (p *Pool) shardFor(paneID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(paneID))
	return p.shards[h.Sum32()%uint32(len(p.shards))]
}

func (p *Pool) newRequestID() RequestID {
	return RequestID(p.nextID.Add(1))
}

// CreatePane spawns a pane's PTY and VT state on its shard.
func (p *Pool) CreatePane(paneID string, cfg PaneConfig) error {
	sh := p.shardFor(paneID)
	errCh := make(chan error, 1)
	sh.submit(func() {
		if _, exists := sh.panes[paneID]; exists {
			errCh <- fmt.Errorf("workerpool: pane %q already exists", paneID)
			return
		}
		scrollbackCapacity := cfg.ScrollbackCapacity
		if scrollbackCapacity <= 0 {
			scrollbackCapacity = term.DefaultScrollbackCapacity
		}
		st := &paneState{
			stream: updatestream.New(paneID),
			term:   term.New(cfg.Cols, cfg.Rows, scrollbackCapacity, cfg.Colors),
		}
		st.session = pty.New(paneID, uint16(cfg.Rows), uint16(cfg.Cols), p.logger)
		st.queryFilter = query.New(st, nil) // *paneState itself implements query.Responder

		cfg.Spawn.OnOutput = func(chunk []byte) {
			sh.submit(func() { sh.feed(st, chunk) })
		}
		if err := st.session.Spawn(cfg.Spawn); err != nil {
			errCh <- err
			return
		}
		sh.panes[paneID] = st
		errCh <- nil
	})
	return <-errCh
}

// Write sends input bytes to the pane's child process. Unknown panes are a
// silent no-op per spec §7.
func (p *Pool) Write(paneID string, data []byte) {
	sh := p.shardFor(paneID)
	sh.submit(func() {
		if st, ok := sh.panes[paneID]; ok {
			_, _ = st.session.Write(data)
		}
	})
}

// Resize resizes the pane's PTY and emulator and commits a full-state
// update. Unknown panes are a silent no-op.
func (p *Pool) Resize(paneID string, cols, rows int) {
	sh := p.shardFor(paneID)
	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			return
		}
		_ = st.session.Resize(uint16(rows), uint16(cols))
		upd := st.term.Resize(cols, rows)
		st.commit(*upd, false)
	})
}

// Reset clears scrollback and re-emits a full-state update. Unknown panes
// are a silent no-op.
func (p *Pool) Reset(paneID string) {
	sh := p.shardFor(paneID)
	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			return
		}
		st.term.Scrollback().Clear()
		full := st.term.FullState()
		upd := cellmodel.DirtyUpdate{
			IsFull:    true,
			FullState: full,
			Cols:      full.Cols,
			Rows:      full.Rows,
			Scroll:    cellmodel.ScrollState{IsAtBottom: true},
		}
		st.commit(upd, false)
	})
}

// DestroyPane tears down a pane's PTY and discards its shard state,
// draining any pending requests with ErrCancelled per spec §5.
func (p *Pool) DestroyPane(ctx context.Context, paneID string) error {
	sh := p.shardFor(paneID)
	errCh := make(chan error, 1)
	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			errCh <- ErrUnknownPane
			return
		}
		delete(sh.panes, paneID)
		sh.cancelAllForPane(paneID)
		errCh <- st.session.Kill(ctx)
	})
	return <-errCh
}

// GetScrollbackLine fetches one scrollback row by absolute index.
func (p *Pool) GetScrollbackLine(ctx context.Context, paneID string, absoluteIndex int) (cellmodel.Row, error) {
	rows, err := p.GetScrollbackLines(ctx, paneID, absoluteIndex, 1)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// GetScrollbackLines fetches a contiguous range of scrollback rows
// starting at the given absolute index.
func (p *Pool) GetScrollbackLines(ctx context.Context, paneID string, start, count int) ([]cellmodel.Row, error) {
	sh := p.shardFor(paneID)
	id := p.newRequestID()
	reply := make(chan scrollbackReply, 1)
	sh.registerPending(paneID, id)

	sh.submit(func() {
		if !sh.consumePending(paneID, id) {
			reply <- scrollbackReply{err: ErrCancelled} // cancelled before it ran
			return
		}
		st, ok := sh.panes[paneID]
		if !ok {
			reply <- scrollbackReply{err: ErrUnknownPane}
			return
		}
		rows := make([]cellmodel.Row, 0, count)
		for i := 0; i < count; i++ {
			row, ok := st.term.Scrollback().Get(start + i)
			if ok {
				rows = append(rows, row)
			}
		}
		reply <- scrollbackReply{rows: rows}
	})

	select {
	case r := <-reply:
		return r.rows, r.err
	case <-ctx.Done():
		sh.cancelPending(paneID, id)
		return nil, ctx.Err()
	}
}

type scrollbackReply struct {
	rows []cellmodel.Row
	err  error
}

// ScrollbackLength reports the total number of rows the pane has pushed
// into scrollback (term.Wrapper.ScrollbackLength), for viewport-clamping
// callers (internal/pane).
func (p *Pool) ScrollbackLength(paneID string) (int, error) {
	sh := p.shardFor(paneID)
	type result struct {
		n   int
		err error
	}
	resCh := make(chan result, 1)
	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			resCh <- result{err: ErrUnknownPane}
			return
		}
		resCh <- result{n: st.term.ScrollbackLength()}
	})
	r := <-resCh
	return r.n, r.err
}

// Search scans the live viewport for a literal substring, reporting at most
// one match per row; scrollback rows are not searched.
func (p *Pool) Search(ctx context.Context, paneID, needle string, limit int) ([]SearchResult, error) {
	sh := p.shardFor(paneID)
	reply := make(chan searchReply, 1)

	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			reply <- searchReply{err: ErrUnknownPane}
			return
		}
		// Searches only the live viewport; scrollback search would need a
		// scan over the ScrollbackCache, which is a simple extension once a
		// host actually exercises it.
		var results []SearchResult
		state := st.term.FullState()
		scrollbackLen := st.term.ScrollbackLength()
		for y, row := range state.Cells {
			if col, found := findInRow(row, needle); found {
				results = append(results, SearchResult{AbsoluteRow: scrollbackLen + y, Col: col})
				if limit > 0 && len(results) >= limit {
					break
				}
			}
		}
		reply <- searchReply{results: results}
	})

	select {
	case r := <-reply:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type searchReply struct {
	results []SearchResult
	err     error
}

func findInRow(row cellmodel.Row, needle string) (int, bool) {
	if needle == "" {
		return 0, false
	}
	runes := []rune(needle)
	for x := 0; x+len(runes) <= len(row); x++ {
		match := true
		for j, r := range runes {
			if row[x+j].Char != r {
				match = false
				break
			}
		}
		if match {
			return x, true
		}
	}
	return 0, false
}

// Subscribe registers a subscriber on the pane's update stream.
func (p *Pool) Subscribe(paneID string, sub updatestream.Subscriber) (uint64, error) {
	sh := p.shardFor(paneID)
	type result struct {
		id  uint64
		err error
	}
	resCh := make(chan result, 1)
	sh.submit(func() {
		st, ok := sh.panes[paneID]
		if !ok {
			resCh <- result{err: ErrUnknownPane}
			return
		}
		resCh <- result{id: st.stream.Subscribe(sub)}
	})
	r := <-resCh
	return r.id, r.err
}

// Unsubscribe removes a subscriber. Unknown panes are a silent no-op.
func (p *Pool) Unsubscribe(paneID string, subID uint64) {
	sh := p.shardFor(paneID)
	sh.submit(func() {
		if st, ok := sh.panes[paneID]; ok {
			st.stream.Unsubscribe(subID)
		}
	})
}

// Cancel drops the pending slot for a request id, if still outstanding,
// per spec §4.5's cancellation rule: a cancelled request releases its
// entry and ignores any late reply.
func (p *Pool) Cancel(paneID string, id RequestID) {
	p.shardFor(paneID).cancelPending(paneID, id)
}

// --- shard ---

type shard struct {
	tasks  chan func()
	panes  map[string]*paneState
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]map[RequestID]bool
}

func newShard(logger *slog.Logger) *shard {
	return &shard{
		tasks:   make(chan func(), 256),
		panes:   make(map[string]*paneState),
		pending: make(map[string]map[RequestID]bool),
		logger:  logger,
	}
}

func (s *shard) run() {
	for task := range s.tasks {
		task()
	}
}

func (s *shard) submit(task func()) {
	s.tasks <- task
}

func (s *shard) registerPending(paneID string, id RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[paneID]
	if !ok {
		m = make(map[RequestID]bool)
		s.pending[paneID] = m
	}
	m[id] = true
}

// consumePending reports whether the request is still live and removes
// it; called from within the shard's own goroutine right before acting on
// a request, so a concurrent Cancel can only race the removal, not the
// read-then-act sequence of the task itself.
func (s *shard) consumePending(paneID string, id RequestID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.pending[paneID]
	if !ok || !m[id] {
		return false
	}
	delete(m, id)
	return true
}

func (s *shard) cancelPending(paneID string, id RequestID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.pending[paneID]; ok {
		delete(m, id)
	}
}

func (s *shard) cancelAllForPane(paneID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, paneID)
}

// feed runs one chunk of PTY output through the query filter and the
// emulator, then commits the resulting update. Always called on the
// shard's own goroutine.
func (s *shard) feed(st *paneState, chunk []byte) {
	res := st.queryFilter.Process(chunk)

	var upd *cellmodel.DirtyUpdate
	if len(res.ToEmulator) > 0 {
		var err error
		upd, err = st.term.Write(res.ToEmulator)
		if err != nil {
			s.logger.Warn("emulator write failed", "pane", st.session.ID(), "error", err)
			return
		}
	}

	// Backend-generated replies (sequences the emulator answered on its own
	// while processing ToEmulator) are ordered ahead of the passthrough
	// filter's own synthesized replies from this same chunk.
	toHost := append(st.term.DrainResponse(), res.ToHost...)
	if len(toHost) > 0 {
		_, _ = st.session.Write(toHost)
	}

	if upd != nil {
		st.commit(*upd, false)
	}
}

// --- paneState ---

// paneState is one pane's shard-owned state: PTY, emulator wrapper, query
// filter, and update stream. It also implements query.Responder so the
// query filter can answer status queries against live emulator state.
type paneState struct {
	session     *pty.Session
	term        *term.Wrapper
	queryFilter *query.Filter
	stream      *updatestream.Stream
}

func (st *paneState) commit(upd cellmodel.DirtyUpdate, scrollOnly bool) {
	st.stream.Commit(upd, upd.Scroll, scrollOnly)
}

func (st *paneState) CursorPosition() query.CursorPos {
	full := st.term.FullState()
	return query.CursorPos{Row: full.Cursor.Y, Col: full.Cursor.X}
}

func (st *paneState) PrimaryDeviceAttributes() string   { return "\x1b[?62;22c" }
func (st *paneState) SecondaryDeviceAttributes() string { return "\x1b[>65;0;0c" }
func (st *paneState) TertiaryDeviceAttributes() string  { return "\x1bP!|6f70656e6d7578\x1b\\" }

// ReportMode answers DECRQM for the modes Wrapper actually tracks; anything
// else is reported unknown rather than guessed at.
func (st *paneState) ReportMode(mode int, ansi bool) int {
	if ansi {
		return 0
	}
	full := st.term.FullState()
	switch mode {
	case 1049:
		if full.AlternateScreen {
			return 1
		}
		return 2
	case 1000, 1002, 1003, 1006:
		if full.MouseTracking {
			return 1
		}
		return 2
	}
	return 0
}

func (st *paneState) CellPixelSize() (int, int) { return 8, 16 }

func (st *paneState) WindowPixelSize() (int, int) {
	full := st.term.FullState()
	return full.Cols * 8, full.Rows * 16
}

func (st *paneState) WindowCharSize() (int, int) {
	full := st.term.FullState()
	return full.Cols, full.Rows
}

// OSCColor answers OSC 4 (palette entry) and OSC 10/11/12 (foreground,
// background, cursor) color queries from the pane's configured colors.
func (st *paneState) OSCColor(which, index int) (uint8, uint8, uint8, bool) {
	colors := st.term.Colors()
	var c cellmodel.RGB
	switch which {
	case 4:
		if index < 0 || index >= len(colors.Palette) {
			return 0, 0, 0, false
		}
		c = colors.Palette[index]
	case 10:
		c = colors.Fg
	case 11:
		c = colors.Bg
	case 12:
		c = colors.Cursor
	default:
		return 0, 0, 0, false
	}
	return c.R, c.G, c.B, true
}

// Package updatestream fuses per-PTY dirty deltas with scroll state into a
// single ordered feed, per spec §4.4. Grounded on the teacher's
// internal/relay package, which already fuses agent PTY output with
// BrowserState (screen hash, connection state) into one ordered
// TerminalMessage feed for a single browser subscriber; generalized here
// from "hash-based dedup for one browser" to "ordered per-PTY commit with
// two independently-subscribable substreams."
package updatestream

import (
	"sync"

	"github.com/openmux/openmux/internal/cellmodel"
)

// UnifiedTerminalUpdate is one commit on a PTY's update stream.
type UnifiedTerminalUpdate struct {
	PaneID      string
	Update      cellmodel.DirtyUpdate
	Scroll      cellmodel.ScrollState
	ScrollOnly  bool
}

// Subscriber receives commits. Unified gets every commit; Legacy gets only
// the dirty-map portion (cursor/scroll fields are still populated for
// convenience but callers subscribed to Legacy are expected to ignore
// them), matching spec §4.4's two-substream requirement.
type Subscriber struct {
	Unified func(UnifiedTerminalUpdate)
	Legacy  func(cellmodel.DirtyUpdate)
}

// Stream is the per-PTY fan-out point. Writes are serialized through
// Commit so that "no update is emitted while a write is in progress" holds:
// the caller (a workerpool shard) already owns exclusive access to the PTY,
// so Stream's own mutex only protects the subscriber map against concurrent
// Subscribe/Unsubscribe from other goroutines (e.g. a bridge handling a new
// remote connection).
type Stream struct {
	paneID string

	mu          sync.Mutex
	subscribers map[uint64]Subscriber
	nextSubID   uint64
}

// New creates a Stream for the given pane.
func New(paneID string) *Stream {
	return &Stream{paneID: paneID, subscribers: make(map[uint64]Subscriber)}
}

// Subscribe registers a subscriber and returns an id for Unsubscribe.
func (s *Stream) Subscribe(sub Subscriber) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = sub
	return id
}

// Unsubscribe removes a subscriber by id. Any commit already in progress
// for that subscriber may still land once, per spec §5 cancellation rules.
func (s *Stream) Unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscribers, id)
}

// Commit fuses a dirty delta with scroll state and delivers it to every
// current subscriber, in the order Commit was called. scrollOnly marks a
// viewport-scroll-only update (dirty map empty, cursor/scroll current) per
// spec §4.4.
func (s *Stream) Commit(update cellmodel.DirtyUpdate, scroll cellmodel.ScrollState, scrollOnly bool) {
	unified := UnifiedTerminalUpdate{
		PaneID:     s.paneID,
		Update:     update,
		Scroll:     scroll,
		ScrollOnly: scrollOnly,
	}

	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.Unified != nil {
			sub.Unified(unified)
		}
		if sub.Legacy != nil {
			sub.Legacy(update)
		}
	}
}

// ScrollOnlyUpdate builds the dirty delta for a viewport-scroll-only
// commit: empty dirty map, current cursor, current dimensions.
func ScrollOnlyUpdate(cols, rows int, cursor cellmodel.Cursor) cellmodel.DirtyUpdate {
	return cellmodel.DirtyUpdate{
		DirtyRows: map[int]cellmodel.Row{},
		Cursor:    cursor,
		Cols:      cols,
		Rows:      rows,
	}
}

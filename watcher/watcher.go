// Package watcher implements the thin host-adapter loop that polls an
// authoritative Coordinator source (a centralized TCP session or a
// decentralized on-chain account reader) and notifies the client runtime
// when run_state or progress changes.
package watcher

import (
	"context"
	"reflect"
	"time"

	"github.com/psyche-network/psyche/coordinator"
	"github.com/psyche-network/psyche/log"
)

// Source is the authoritative coordinator handle the Watcher polls. A
// centralized client implements this over its TCP session; a decentralized
// client implements it over an on-chain account reader.
type Source interface {
	// Fetch blocks until a new snapshot is available or ctx is done.
	Fetch(ctx context.Context) (coordinator.Coordinator, error)
}

// Snapshot pairs a polled Coordinator state with the wall-clock time it was
// observed, so callbacks can reason about staleness.
type Snapshot struct {
	Coordinator coordinator.Coordinator
	ObservedAt  time.Time
}

// Callback is invoked whenever run_state or progress changes between two
// consecutive snapshots. prev is the zero Snapshot on the very first
// invocation.
type Callback func(prev, cur Snapshot)

// Watcher is a stateless-beyond-its-cache poll loop: it carries only the
// last observed Snapshot and the Source handle.
type Watcher struct {
	source Source
	log    *log.Logger

	last     Snapshot
	haveLast bool
}

// New creates a Watcher over source.
func New(source Source) *Watcher {
	return &Watcher{source: source, log: log.Module("watcher")}
}

// Run polls source in a loop, invoking cb whenever a transition is
// observed, until ctx is cancelled. Run returns ctx.Err() on cancellation
// and any non-cancellation error the Source returns.
func (w *Watcher) Run(ctx context.Context, cb Callback) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := w.source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Error("watcher: fetch failed", "error", err)
			return err
		}

		cur := Snapshot{Coordinator: c, ObservedAt: time.Now()}
		if w.transitioned(cur) {
			prev := w.last
			w.last = cur
			w.haveLast = true
			cb(prev, cur)
		} else {
			w.last = cur
			w.haveLast = true
		}
	}
}

// transitioned reports whether cur differs from the watcher's cached
// snapshot in run_state or progress -- the two fields that define a
// transition. The very first fetch always counts as one, so the client
// runtime receives its initial state.
func (w *Watcher) transitioned(cur Snapshot) bool {
	if !w.haveLast {
		return true
	}
	if w.last.Coordinator.RunState != cur.Coordinator.RunState {
		return true
	}
	if w.last.Coordinator.Progress != cur.Coordinator.Progress {
		return true
	}
	return false
}

// Last returns the most recently observed snapshot and whether one has
// been observed yet.
func (w *Watcher) Last() (Snapshot, bool) {
	return w.last, w.haveLast
}

// Equal reports whether two Coordinator snapshots are deeply identical,
// for callers that want a finer-grained diff than run_state/progress (e.g.
// tests asserting a fetch round-trip was lossless).
func Equal(a, b coordinator.Coordinator) bool {
	return reflect.DeepEqual(a, b)
}

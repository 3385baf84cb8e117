// Package window implements a sliding/tumbling windowing state machine:
// it deterministically assigns wall-clock-timed items to zero or more
// windows, tracks late data against a watermark, and snapshots/restores
// its registry. It is oblivious to item contents; it only indexes
// windows.
package window

import (
	"time"

	"github.com/jhanninen/bytewax/pkg/dataflow"
)

// Key is a signed window index relative to a windower's align_to instant.
// Zero is the window containing align_to; negative keys are valid
// (pre-alignment).
type Key int64

// Metadata is a window's fixed (open, close) boundary. Open is inclusive,
// Close is exclusive. Once inserted for a key, these never change: a
// window's boundary is fixed at the instant it is first observed.
type Metadata struct {
	Open  time.Time
	Close time.Time
}

// Candidate is one (key, open, close) triple yielded by Intersects.
type Candidate struct {
	Key Key
	Metadata
}

// SlidingWindower assigns items to overlapping, tumbling, or gapped
// windows depending on the relationship between Length and Offset:
// Offset == Length is tumbling (disjoint cover), Offset < Length overlaps,
// Offset > Length leaves gaps where items fall into no window.
type SlidingWindower struct {
	Length  time.Duration
	Offset  time.Duration
	AlignTo time.Time

	closeTimes map[Key]Metadata
}

// NewSliding constructs a windower with empty registry state. Length and
// Offset must be positive; NewSliding does not check this, so a caller
// passing a non-positive Offset gets a division by zero in Intersects.
func NewSliding(length, offset time.Duration, alignTo time.Time) *SlidingWindower {
	return &SlidingWindower{
		Length:     length,
		Offset:     offset,
		AlignTo:    alignTo,
		closeTimes: make(map[Key]Metadata),
	}
}

// NewTumbling is a SlidingWindower with Offset == Length: windows cover
// all time without overlap, so every item falls into exactly one window.
func NewTumbling(length time.Duration, alignTo time.Time) *SlidingWindower {
	return NewSliding(length, length, alignTo)
}

// Intersects computes the windows whose [open, close) interval contains
// t, in strictly increasing key order. Pure: it does not consult or
// mutate the registry.
func (w *SlidingWindower) Intersects(t time.Time) []Candidate {
	lengthMs := w.Length.Milliseconds()
	offsetMs := w.Offset.Milliseconds()

	sinceCloseOfFirstMs := t.Sub(w.AlignTo.Add(w.Length)).Milliseconds()
	firstIdx := floorDiv(sinceCloseOfFirstMs, offsetMs) + 1
	num := ceilDiv(lengthMs, offsetMs)

	out := make([]Candidate, 0, num)
	for i := int64(0); i < num; i++ {
		k := Key(firstIdx + i)
		open := w.AlignTo.Add(time.Duration(int64(k)) * w.Offset)
		if t.Before(open) {
			continue
		}
		close := open.Add(w.Length)
		out = append(out, Candidate{Key: k, Metadata: Metadata{Open: open, Close: close}})
	}
	return out
}

// Insert routes itemTime to every window it intersects. For each
// intersecting window whose close time is already before the watermark,
// it returns a *dataflow.LateDataError instead of the key. The item is
// late for that window, but insertion still proceeds for any other
// intersecting window that has not yet closed.
//
// Results are returned in the same order Intersects yields candidates.
func (w *SlidingWindower) Insert(watermark, itemTime time.Time) []InsertResult {
	candidates := w.Intersects(itemTime)
	results := make([]InsertResult, 0, len(candidates))
	for _, c := range candidates {
		if c.Close.Before(watermark) {
			results = append(results, InsertResult{Err: &dataflow.LateDataError{Key: c.Key}})
			continue
		}
		w.insertWindow(c.Key, c.Metadata)
		results = append(results, InsertResult{Key: c.Key})
	}
	return results
}

// InsertResult is one outcome of Insert: either a successfully routed Key,
// or a late-data error for that candidate window.
type InsertResult struct {
	Key Key
	Err error
}

// insertWindow records a window's boundary the first time an item
// intersects it; on a repeat key it asserts the boundary did not change,
// enforcing invariant 1.
func (w *SlidingWindower) insertWindow(key Key, m Metadata) {
	if existing, ok := w.closeTimes[key]; ok {
		if existing != m {
			panic("window: windower generated inconsistent boundaries for an existing key")
		}
		return
	}
	w.closeTimes[key] = m
}

// GetMetadata returns a still-open window's boundary without draining it.
func (w *SlidingWindower) GetMetadata(key Key) (Metadata, bool) {
	m, ok := w.closeTimes[key]
	return m, ok
}

// DrainClosed partitions the registry into windows that have closed
// relative to watermark (close time strictly before watermark) and
// windows that remain open, removes the closed ones from the registry,
// and returns them. Calling DrainClosed twice in a row with the same
// watermark returns nothing the second time, since the first call already
// removed every window that qualified.
func (w *SlidingWindower) DrainClosed(watermark time.Time) []Candidate {
	kept := make(map[Key]Metadata, len(w.closeTimes))
	var closed []Candidate
	for key, m := range w.closeTimes {
		if m.Close.Before(watermark) {
			closed = append(closed, Candidate{Key: key, Metadata: m})
		} else {
			kept[key] = m
		}
	}
	w.closeTimes = kept
	return closed
}

// IsEmpty reports whether the registry currently tracks no open windows.
func (w *SlidingWindower) IsEmpty() bool {
	return len(w.closeTimes) == 0
}

// NextClose returns the minimum close time across all currently open
// windows, or false if the registry is empty.
func (w *SlidingWindower) NextClose() (time.Time, bool) {
	var (
		min   time.Time
		found bool
	)
	for _, m := range w.closeTimes {
		if !found || m.Close.Before(min) {
			min = m.Close
			found = true
		}
	}
	return min, found
}

// Snapshot returns the full close_times registry in its natural form, for
// a recovery store to persist.
func (w *SlidingWindower) Snapshot() map[Key]Metadata {
	out := make(map[Key]Metadata, len(w.closeTimes))
	for k, v := range w.closeTimes {
		out[k] = v
	}
	return out
}

// Restore replaces the registry verbatim with a previously captured
// Snapshot, e.g. loaded from a recovery store on resume.
func (w *SlidingWindower) Restore(snap map[Key]Metadata) {
	restored := make(map[Key]Metadata, len(snap))
	for k, v := range snap {
		restored[k] = v
	}
	w.closeTimes = restored
}

// floorDiv divides a by b, rounding toward negative infinity (mathematical
// floor division) rather than Go's truncating /. b must be positive,
// which holds for every caller here since offsets are always positive
// durations.
func floorDiv(a, b int64) int64 {
	q := a / b
	r := a % b
	if r != 0 && r < 0 {
		q--
	}
	return q
}

// ceilDiv divides a by b, rounding toward positive infinity (mathematical
// ceiling division). Both a and b are positive for every caller here
// (window length and offset).
func ceilDiv(a, b int64) int64 {
	q := a / b
	r := a % b
	if r != 0 {
		q++
	}
	return q
}

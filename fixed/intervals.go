package fixed

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidSpan is returned when an interval's end precedes its start.
var ErrInvalidSpan = errors.New("fixed: interval end precedes start")

// ErrOverlap is returned by Add when the new interval intersects one
// already in the set.
var ErrOverlap = errors.New("fixed: interval overlaps existing span")

// Span is one inclusive [Start, End] range.
type Span struct {
	Start uint64
	End   uint64
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d]", s.Start, s.End)
}

// Intervals is an ordered set of disjoint inclusive uint64 ranges with
// overlap detection and adjacent-span merging. It tracks which slices of
// a round's data window have been covered (trained batches, fetched
// shards) without holding one entry per index.
type Intervals struct {
	spans []Span
}

// Add inserts [start, end], merging with adjacent spans. Intersecting an
// existing span is ErrOverlap; the set is unchanged on any error.
func (iv *Intervals) Add(start, end uint64) error {
	if end < start {
		return ErrInvalidSpan
	}
	i := sort.Search(len(iv.spans), func(i int) bool { return iv.spans[i].Start > end })
	if i > 0 && iv.spans[i-1].End >= start {
		return ErrOverlap
	}

	mergeLeft := i > 0 && iv.spans[i-1].End != ^uint64(0) && iv.spans[i-1].End+1 == start
	mergeRight := i < len(iv.spans) && end != ^uint64(0) && end+1 == iv.spans[i].Start
	switch {
	case mergeLeft && mergeRight:
		iv.spans[i-1].End = iv.spans[i].End
		iv.spans = append(iv.spans[:i], iv.spans[i+1:]...)
	case mergeLeft:
		iv.spans[i-1].End = end
	case mergeRight:
		iv.spans[i].Start = start
	default:
		iv.spans = append(iv.spans, Span{})
		copy(iv.spans[i+1:], iv.spans[i:])
		iv.spans[i] = Span{Start: start, End: end}
	}
	return nil
}

// Overlaps reports whether [start, end] intersects any span in the set.
func (iv *Intervals) Overlaps(start, end uint64) bool {
	i := sort.Search(len(iv.spans), func(i int) bool { return iv.spans[i].Start > end })
	return i > 0 && iv.spans[i-1].End >= start
}

// Covers reports whether a single span fully contains [start, end].
func (iv *Intervals) Covers(start, end uint64) bool {
	i := sort.Search(len(iv.spans), func(i int) bool { return iv.spans[i].Start > start })
	return i > 0 && iv.spans[i-1].Start <= start && iv.spans[i-1].End >= end
}

// Spans returns the merged spans in ascending order. Callers must not
// mutate the returned slice.
func (iv *Intervals) Spans() []Span { return iv.spans }

// Total returns the number of indices the set covers.
func (iv *Intervals) Total() uint64 {
	var n uint64
	for _, s := range iv.spans {
		n += s.End - s.Start + 1
	}
	return n
}

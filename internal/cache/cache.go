// Package cache stores previously fetched raw series keyed by descriptor
// identity, with covering-range reuse so a request inside an already-fetched
// window never goes back to the provider.
package cache

import (
	"context"
	"fmt"
	"time"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

// CacheError reports a storage failure. Read failures are never interpreted
// as misses; they surface so corruption cannot hide behind a refetch.
type CacheError struct {
	Op  string
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// Summary describes one stored range for introspection.
type Summary struct {
	Descriptor catalog.Descriptor
	Start, End time.Time
	Count      int
}

// Store is the cache contract. A lookup answers only from a single stored
// range that fully covers the request, sliced to the requested sub-range;
// anything else is a miss. Writes for one key are atomic: a concurrent
// reader sees the old state or the new one, never a half-applied merge.
type Store interface {
	// Lookup returns the cached points for [start, end] when a stored range
	// covers the request. ok is false on a miss; err is a CacheError on
	// storage failure, never a silent miss.
	Lookup(ctx context.Context, desc catalog.Descriptor, start, end time.Time) (points []timeseries.Point, ok bool, err error)

	// Store upserts points for [start, end]. Ranges that overlap or touch an
	// existing range for the same descriptor are merged; the newly stored
	// value wins where dates collide.
	Store(ctx context.Context, desc catalog.Descriptor, start, end time.Time, points []timeseries.Point) error

	// Clear deletes entries whose descriptor source matches, or everything
	// when source is empty. Idempotent.
	Clear(ctx context.Context, source string) error

	// Entries lists stored ranges for introspection.
	Entries(ctx context.Context) ([]Summary, error)

	// Close releases backend resources.
	Close() error
}

// span is one contiguous stored range with its points.
type span struct {
	Start, End time.Time
	Points     []timeseries.Point
}

// covers reports whether the span's recorded range contains [start, end].
func (s span) covers(start, end time.Time) bool {
	return !s.Start.After(start) && !s.End.Before(end)
}

// touches reports whether [start, end] overlaps the span or is adjacent to
// it (a gap of at most one day counts as adjacent).
func (s span) touches(start, end time.Time) bool {
	return !start.After(s.End.AddDate(0, 0, 1)) && !end.Before(s.Start.AddDate(0, 0, -1))
}

// record holds every stored span for one descriptor.
type record struct {
	Descriptor catalog.Descriptor
	Spans      []span
}

// covering returns the points of a span covering [start, end], sliced to the
// requested sub-range.
func (r *record) covering(start, end time.Time) ([]timeseries.Point, bool) {
	for _, s := range r.Spans {
		if s.covers(start, end) {
			return slicePoints(s.Points, start, end), true
		}
	}
	return nil, false
}

// add merges a new range into the record. Every existing span the new range
// overlaps or touches is folded in; where dates collide the new points win.
// Disjoint spans are kept side by side so no previously fetched date is
// dropped.
func (r *record) add(start, end time.Time, points []timeseries.Point) {
	merged := span{Start: start, End: end, Points: append([]timeseries.Point(nil), points...)}
	rest := r.Spans[:0]
	for _, s := range r.Spans {
		if !s.touches(merged.Start, merged.End) {
			rest = append(rest, s)
			continue
		}
		if s.Start.Before(merged.Start) {
			merged.Start = s.Start
		}
		if s.End.After(merged.End) {
			merged.End = s.End
		}
		merged.Points = mergePoints(s.Points, merged.Points)
	}
	r.Spans = append(rest, merged)
}

func (r *record) summaries() []Summary {
	out := make([]Summary, 0, len(r.Spans))
	for _, s := range r.Spans {
		out = append(out, Summary{Descriptor: r.Descriptor, Start: s.Start, End: s.End, Count: len(s.Points)})
	}
	return out
}

// mergePoints unions two sorted runs; winner's values take precedence on
// duplicate dates.
func mergePoints(loser, winner []timeseries.Point) []timeseries.Point {
	merged := timeseries.New("", append(append([]timeseries.Point(nil), loser...), winner...))
	return merged.Points
}

func slicePoints(points []timeseries.Point, start, end time.Time) []timeseries.Point {
	out := make([]timeseries.Point, 0, len(points))
	for _, p := range points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return out
}

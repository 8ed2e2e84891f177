package cache_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"metaquery/internal/cache"
	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

func descFor(src, sym string) catalog.Descriptor {
	return catalog.Descriptor{Source: src, Symbol: sym}
}

func dailyPoints(start time.Time, values ...float64) []timeseries.Point {
	out := make([]timeseries.Point, len(values))
	for i, v := range values {
		out[i] = timeseries.Point{Date: start.AddDate(0, 0, i), Value: v}
	}
	return out
}

// backend tests run against every store implementation that needs no
// external service.
func backends(t *testing.T) map[string]func(t *testing.T) cache.Store {
	t.Helper()
	return map[string]func(t *testing.T) cache.Store{
		"memory": func(t *testing.T) cache.Store { return cache.NewMemory() },
		"file": func(t *testing.T) cache.Store {
			s, err := cache.NewFile(t.TempDir())
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_MissOnEmpty(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			_, ok, err := s.Lookup(t.Context(), descFor("stats", "GDP"),
				timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 5))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStore_ExactHitAndSubRangeSlice(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			d := descFor("stats", "GDP")
			start := timeseries.Date(2024, 1, 1)
			end := timeseries.Date(2024, 1, 5)
			require.NoError(t, s.Store(t.Context(), d, start, end, dailyPoints(start, 1, 2, 3, 4, 5)))

			pts, ok, err := s.Lookup(t.Context(), d, start, end)
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, pts, 5)

			// Sub-range is sliced, never returned whole.
			pts, ok, err = s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 2), timeseries.Date(2024, 1, 4))
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, pts, 3)
			require.Equal(t, 2.0, pts[0].Value)
			require.Equal(t, 4.0, pts[2].Value)
		})
	}
}

func TestStore_PartialOverlapIsAMiss(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			d := descFor("stats", "GDP")
			start := timeseries.Date(2024, 1, 3)
			require.NoError(t, s.Store(t.Context(), d, start, timeseries.Date(2024, 1, 7), dailyPoints(start, 1, 2, 3, 4, 5)))

			// Request starts before the stored range: covering only.
			_, ok, err := s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 5))
			require.NoError(t, err)
			require.False(t, ok)

			// Request ends after the stored range.
			_, ok, err = s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 5), timeseries.Date(2024, 1, 9))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStore_SparseRangeStillCovers(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			// A weekly series fetched over a month covers the whole month
			// even though most days have no observation.
			d := descFor("stats", "WEEKLY")
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 31),
				[]timeseries.Point{
					{Date: timeseries.Date(2024, 1, 7), Value: 1},
					{Date: timeseries.Date(2024, 1, 14), Value: 2},
					{Date: timeseries.Date(2024, 1, 21), Value: 3},
				}))

			pts, ok, err := s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 10), timeseries.Date(2024, 1, 25))
			require.NoError(t, err)
			require.True(t, ok)
			require.Len(t, pts, 2)
		})
	}
}

func TestStore_OverlapMergeNewWins(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			d := descFor("stats", "GDP")
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 4),
				dailyPoints(timeseries.Date(2024, 1, 1), 1, 2, 3, 4)))
			// Overlapping write with revised values for the 3rd and 4th.
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 3), timeseries.Date(2024, 1, 6),
				dailyPoints(timeseries.Date(2024, 1, 3), 30, 40, 50, 60)))

			pts, ok, err := s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 6))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []float64{1, 2, 30, 40, 50, 60}, values(pts))

			entries, err := s.Entries(t.Context())
			require.NoError(t, err)
			require.Len(t, entries, 1) // merged into one span
		})
	}
}

func TestStore_AdjacentRangesMerge(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			d := descFor("stats", "GDP")
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 3),
				dailyPoints(timeseries.Date(2024, 1, 1), 1, 2, 3)))
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 4), timeseries.Date(2024, 1, 6),
				dailyPoints(timeseries.Date(2024, 1, 4), 4, 5, 6)))

			// A request spanning both halves hits the merged range.
			pts, ok, err := s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 6))
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, []float64{1, 2, 3, 4, 5, 6}, values(pts))
		})
	}
}

func TestStore_DisjointRangesKeptApart(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			d := descFor("stats", "GDP")
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 3),
				dailyPoints(timeseries.Date(2024, 1, 1), 1, 2, 3)))
			require.NoError(t, s.Store(t.Context(), d,
				timeseries.Date(2024, 3, 1), timeseries.Date(2024, 3, 3),
				dailyPoints(timeseries.Date(2024, 3, 1), 7, 8, 9)))

			// Both ranges answer on their own; the gap between them misses.
			_, ok, err := s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 1), timeseries.Date(2024, 1, 3))
			require.NoError(t, err)
			require.True(t, ok)
			_, ok, err = s.Lookup(t.Context(), d, timeseries.Date(2024, 3, 1), timeseries.Date(2024, 3, 3))
			require.NoError(t, err)
			require.True(t, ok)
			_, ok, err = s.Lookup(t.Context(), d, timeseries.Date(2024, 1, 1), timeseries.Date(2024, 3, 3))
			require.NoError(t, err)
			require.False(t, ok)

			entries, err := s.Entries(t.Context())
			require.NoError(t, err)
			require.Len(t, entries, 2)
		})
	}
}

func TestStore_DescriptorsDoNotCollide(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			start := timeseries.Date(2024, 1, 1)
			end := timeseries.Date(2024, 1, 2)
			plain := descFor("stats", "GDP")
			fielded := catalog.Descriptor{Source: "stats", Symbol: "GDP", Field: catalog.StrPtr("real")}

			require.NoError(t, s.Store(t.Context(), plain, start, end, dailyPoints(start, 1, 2)))

			_, ok, err := s.Lookup(t.Context(), fielded, start, end)
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}

func TestStore_ClearBySource(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			start := timeseries.Date(2024, 1, 1)
			end := timeseries.Date(2024, 1, 2)
			require.NoError(t, s.Store(t.Context(), descFor("stats", "GDP"), start, end, dailyPoints(start, 1, 2)))
			require.NoError(t, s.Store(t.Context(), descFor("market", "SPX"), start, end, dailyPoints(start, 3, 4)))

			require.NoError(t, s.Clear(t.Context(), "stats"))

			_, ok, err := s.Lookup(t.Context(), descFor("stats", "GDP"), start, end)
			require.NoError(t, err)
			require.False(t, ok)
			_, ok, err = s.Lookup(t.Context(), descFor("market", "SPX"), start, end)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, s.Clear(t.Context(), ""))
			entries, err := s.Entries(t.Context())
			require.NoError(t, err)
			require.Empty(t, entries)
		})
	}
}

func TestStore_EntriesSorted(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			start := timeseries.Date(2024, 1, 1)
			end := timeseries.Date(2024, 1, 2)
			require.NoError(t, s.Store(t.Context(), descFor("market", "SPX"), start, end, dailyPoints(start, 1, 2)))
			require.NoError(t, s.Store(t.Context(), descFor("stats", "CPI"), start, end, dailyPoints(start, 3, 4)))
			require.NoError(t, s.Store(t.Context(), descFor("stats", "GDP"), start, end, dailyPoints(start, 5, 6)))

			entries, err := s.Entries(t.Context())
			require.NoError(t, err)
			require.Len(t, entries, 3)
			require.Equal(t, "SPX", entries[0].Descriptor.Symbol)
			require.Equal(t, "CPI", entries[1].Descriptor.Symbol)
			require.Equal(t, "GDP", entries[2].Descriptor.Symbol)
			require.Equal(t, 2, entries[0].Count)
		})
	}
}

func TestStore_ConcurrentWritersKeepEverySpan(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()

			// Writers racing on one descriptor must serialize: every stored
			// range has to survive, none silently erased by a concurrent
			// read-merge-write.
			d := descFor("stats", "GDP")
			const writers = 8
			var wg sync.WaitGroup
			errs := make([]error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					start := timeseries.Date(2024, time.Month(i+1), 1)
					end := timeseries.Date(2024, time.Month(i+1), 10)
					errs[i] = s.Store(context.Background(), d, start, end, dailyPoints(start, 1, 2, 3))
				}()
			}
			wg.Wait()

			for i, err := range errs {
				require.NoErrorf(t, err, "writer %d", i)
			}
			for i := 0; i < writers; i++ {
				pts, ok, err := s.Lookup(t.Context(), d,
					timeseries.Date(2024, time.Month(i+1), 1), timeseries.Date(2024, time.Month(i+1), 10))
				require.NoError(t, err)
				require.Truef(t, ok, "range for month %d lost", i+1)
				require.Len(t, pts, 3)
			}
		})
	}
}

func TestFile_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := descFor("stats", "GDP")
	start := timeseries.Date(2024, 1, 1)
	end := timeseries.Date(2024, 1, 3)

	s, err := cache.NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, s.Store(t.Context(), d, start, end, dailyPoints(start, 1, 2, 3)))
	require.NoError(t, s.Close())

	reopened, err := cache.NewFile(dir)
	require.NoError(t, err)
	defer reopened.Close()

	pts, ok, err := reopened.Lookup(t.Context(), d, start, end)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []float64{1, 2, 3}, values(pts))

	// Descriptor identity survives the round trip too.
	entries, err := reopened.Entries(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, d.Equal(entries[0].Descriptor))
}

func TestFile_CorruptDocumentIsAnError(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	d := descFor("stats", "GDP")
	start := timeseries.Date(2024, 1, 1)
	end := timeseries.Date(2024, 1, 3)

	s, err := cache.NewFile(dir)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Store(t.Context(), d, start, end, dailyPoints(start, 1, 2, 3)))

	// Truncate the document behind the store's back.
	require.NoError(t, os.WriteFile(filepath.Join(dir, d.Fingerprint()+".json"), []byte("{not json"), 0o644))

	_, _, err = s.Lookup(t.Context(), d, start, end)
	var ce *cache.CacheError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "decode", ce.Op)
}

func values(pts []timeseries.Point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

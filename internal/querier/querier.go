// Package querier implements the fetch/cache/merge protocol: resolve logical
// names, answer what it can from cache, batch the rest by source, fetch each
// source once, split and re-cache per name, and merge everything back in
// request order. Any failure aborts the whole call; there are no silent
// partial results.
package querier

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"metaquery/internal/align"
	"metaquery/internal/cache"
	"metaquery/internal/catalog"
	"metaquery/internal/source"
	"metaquery/internal/timeseries"
)

// Resolver maps logical names to fetch descriptors. The catalog implements
// it; tests inject their own.
type Resolver interface {
	ResolveMany(names []string) ([]catalog.Resolved, error)
}

// ResultSet is the ordered outcome of FetchMany: one series per requested
// name, in request order, plus advisory warnings (stale data and the like).
type ResultSet struct {
	Series   []timeseries.Series
	Warnings []string
}

// Get returns the series for a name.
func (r *ResultSet) Get(name string) (timeseries.Series, bool) {
	for _, s := range r.Series {
		if s.Name == name {
			return s, true
		}
	}
	return timeseries.Series{}, false
}

// Names lists the result names in request order.
func (r *ResultSet) Names() []string {
	out := make([]string, len(r.Series))
	for i, s := range r.Series {
		out[i] = s.Name
	}
	return out
}

// Querier orchestrates fetches across sources with caching.
type Querier struct {
	resolver Resolver
	registry *source.Registry
	store    cache.Store
	log      *slog.Logger
}

// Option customizes a Querier.
type Option func(*Querier)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(q *Querier) { q.log = log }
}

// New builds a Querier. store may be nil, which disables caching entirely.
func New(resolver Resolver, registry *source.Registry, store cache.Store, opts ...Option) *Querier {
	q := &Querier{
		resolver: resolver,
		registry: registry,
		store:    store,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// fetchGroup is the unit of work for one source: the misses destined for it,
// in original request order.
type fetchGroup struct {
	source  string
	adapter source.Adapter
	items   []catalog.Resolved
}

// FetchMany fetches every named series for the inclusive range [start, end].
// The result is ordered by request order. Any resolution, cache, or fetch
// failure aborts the whole call.
func (q *Querier) FetchMany(ctx context.Context, names []string, start, end time.Time, useCache bool) (*ResultSet, error) {
	if len(names) == 0 {
		return &ResultSet{}, nil
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return nil, fmt.Errorf("duplicate name in request: %q", n)
		}
		seen[n] = struct{}{}
	}
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	if end.Before(start) {
		return nil, fmt.Errorf("end %s before start %s", timeseries.FormatDate(end), timeseries.FormatDate(start))
	}

	resolved, err := q.resolver.ResolveMany(names)
	if err != nil {
		return nil, err
	}

	// Partition into cache hits and misses.
	useCache = useCache && q.store != nil
	series := make(map[string]timeseries.Series, len(resolved))
	var misses []catalog.Resolved
	for _, r := range resolved {
		if useCache {
			pts, ok, err := q.store.Lookup(ctx, r.Descriptor, start, end)
			if err != nil {
				return nil, err
			}
			if ok {
				q.log.Debug("cache_hit", "name", r.Name, "points", len(pts))
				series[r.Name] = timeseries.New(r.Name, pts)
				continue
			}
			q.log.Debug("cache_miss", "name", r.Name)
		}
		misses = append(misses, r)
	}

	// Group misses by source, preserving request order within each group,
	// and fail fast on an unregistered source before any fetch starts.
	var groups []*fetchGroup
	bySource := make(map[string]*fetchGroup)
	for _, r := range misses {
		g, ok := bySource[r.Descriptor.Source]
		if !ok {
			adapter, err := q.registry.Get(r.Descriptor.Source)
			if err != nil {
				return nil, err
			}
			g = &fetchGroup{source: r.Descriptor.Source, adapter: adapter}
			bySource[r.Descriptor.Source] = g
			groups = append(groups, g)
		}
		g.items = append(g.items, r)
	}

	// Sources are independent; fetch them concurrently, one batched call
	// each. The first error cancels the rest.
	fetched := make([]map[string]timeseries.Series, len(groups))
	eg, gctx := errgroup.WithContext(ctx)
	for i, g := range groups {
		eg.Go(func() error {
			out, err := q.fetchSource(gctx, g, start, end)
			if err != nil {
				return err
			}
			fetched[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Cache per name, never per batch, so later subset requests hit cache.
	// Stores happen after the fan-in on the calling goroutine: a canceled
	// call never leaves a key half-written.
	for i, g := range groups {
		for _, r := range g.items {
			s := fetched[i][r.Name]
			if useCache {
				if err := q.store.Store(ctx, r.Descriptor, start, end, s.Points); err != nil {
					return nil, err
				}
			}
			series[r.Name] = s
		}
	}

	res := &ResultSet{Series: make([]timeseries.Series, 0, len(names))}
	for _, n := range names {
		s := series[n]
		res.Series = append(res.Series, s)
		if w := q.staleWarning(s, end); w != "" {
			res.Warnings = append(res.Warnings, w)
		}
	}
	return res, nil
}

// fetchSource issues the single batched call for one source and splits the
// frame back into per-name series.
func (q *Querier) fetchSource(ctx context.Context, g *fetchGroup, start, end time.Time) (map[string]timeseries.Series, error) {
	descs := make([]catalog.Descriptor, len(g.items))
	for i, r := range g.items {
		descs[i] = r.Descriptor
	}
	q.log.Debug("fetch_source", "source", g.source, "requests", len(descs),
		"start", timeseries.FormatDate(start), "end", timeseries.FormatDate(end))

	frame, err := g.adapter.FetchBatch(ctx, descs, start, end)
	if err != nil {
		if _, ok := err.(*source.FetchError); ok {
			return nil, err
		}
		if _, ok := err.(*source.NoDataError); ok {
			return nil, err
		}
		return nil, &source.FetchError{Source: g.source, Err: err}
	}

	out := make(map[string]timeseries.Series, len(g.items))
	for _, r := range g.items {
		pts, col, ok := frame.Resolve(r.Descriptor.Symbol, r.Descriptor.Field)
		if !ok {
			return nil, &source.FetchError{
				Source: g.source,
				Name:   r.Name,
				Detail: fmt.Sprintf("no result column for symbol %q (columns: %v)", r.Descriptor.Symbol, frame.Columns()),
			}
		}
		if len(pts) == 0 {
			return nil, &source.NoDataError{Name: r.Name, Descriptor: r.Descriptor}
		}
		q.log.Debug("column_resolved", "name", r.Name, "column", col, "points", len(pts))
		out[r.Name] = timeseries.New(r.Name, pts)
	}
	return out, nil
}

// staleWarning flags a series whose last observation trails the requested
// end by more than one business day. Advisory only.
func (q *Querier) staleWarning(s timeseries.Series, end time.Time) string {
	last, ok := s.Last()
	if !ok {
		return ""
	}
	if timeseries.BusinessDaysBetween(last.Date, end) > 1 {
		w := fmt.Sprintf("stale data for %q: last observation %s, requested end %s",
			s.Name, timeseries.FormatDate(last.Date), timeseries.FormatDate(end))
		q.log.Warn("stale_series", "name", s.Name,
			"last", timeseries.FormatDate(last.Date), "end", timeseries.FormatDate(end))
		return w
	}
	return ""
}

// FetchRaw fetches a single descriptor directly, bypassing the resolver but
// not the cache. Useful for ad-hoc queries against symbols the catalog does
// not know yet.
func (q *Querier) FetchRaw(ctx context.Context, desc catalog.Descriptor, start, end time.Time, useCache bool) (timeseries.Series, error) {
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	name := desc.String()
	useCache = useCache && q.store != nil
	if useCache {
		pts, ok, err := q.store.Lookup(ctx, desc, start, end)
		if err != nil {
			return timeseries.Series{}, err
		}
		if ok {
			return timeseries.New(name, pts), nil
		}
	}
	adapter, err := q.registry.Get(desc.Source)
	if err != nil {
		return timeseries.Series{}, err
	}
	out, err := q.fetchSource(ctx, &fetchGroup{
		source:  desc.Source,
		adapter: adapter,
		items:   []catalog.Resolved{{Name: name, Descriptor: desc}},
	}, start, end)
	if err != nil {
		return timeseries.Series{}, err
	}
	s := out[name]
	if useCache {
		if err := q.store.Store(ctx, desc, start, end, s.Points); err != nil {
			return timeseries.Series{}, err
		}
	}
	return s, nil
}

// ClearCache deletes cached entries, optionally restricted to one source.
func (q *Querier) ClearCache(ctx context.Context, src string) error {
	if q.store == nil {
		return nil
	}
	if err := q.store.Clear(ctx, src); err != nil {
		return err
	}
	if src != "" {
		q.log.Info("cache_cleared", "source", src)
	} else {
		q.log.Info("cache_cleared", "source", "all")
	}
	return nil
}

// CachedEntries lists stored cache ranges for introspection.
func (q *Querier) CachedEntries(ctx context.Context) ([]cache.Summary, error) {
	if q.store == nil {
		return nil, nil
	}
	return q.store.Entries(ctx)
}

// Assemble aligns and shapes an ordered result set.
func Assemble(res *ResultSet, frequency string, format align.Format) (*align.Result, error) {
	out, err := align.Assemble(res.Series, frequency, format)
	if err != nil {
		return nil, err
	}
	out.Warnings = append(append([]string(nil), res.Warnings...), out.Warnings...)
	return out, nil
}

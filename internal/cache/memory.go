package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

// Memory is an in-process store. It supports concurrent readers; writers
// rebuild a record under the write lock so readers never observe a
// half-applied merge.
type Memory struct {
	mu      sync.RWMutex
	records map[string]*record
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{records: make(map[string]*record)}
}

func (m *Memory) Lookup(ctx context.Context, desc catalog.Descriptor, start, end time.Time) ([]timeseries.Point, bool, error) {
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[desc.Fingerprint()]
	if !ok {
		return nil, false, nil
	}
	pts, ok := r.covering(start, end)
	return pts, ok, nil
}

func (m *Memory) Store(ctx context.Context, desc catalog.Descriptor, start, end time.Time, points []timeseries.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[key]
	if !ok {
		r = &record{Descriptor: desc}
		m.records[key] = r
	}
	r.add(start, end, points)
	return nil
}

func (m *Memory) Clear(ctx context.Context, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, r := range m.records {
		if source == "" || r.Descriptor.Source == source {
			delete(m.records, key)
		}
	}
	return nil
}

func (m *Memory) Entries(ctx context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Summary
	for _, r := range m.records {
		out = append(out, r.summaries()...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Descriptor.Source != out[j].Descriptor.Source {
			return out[i].Descriptor.Source < out[j].Descriptor.Source
		}
		if out[i].Descriptor.Symbol != out[j].Descriptor.Symbol {
			return out[i].Descriptor.Symbol < out[j].Descriptor.Symbol
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

func (m *Memory) Close() error { return nil }

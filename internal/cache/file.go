package cache

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

// File is a durable store keeping one JSON document per descriptor under a
// root directory. Writes go through a temp file and rename, so a document is
// either the old version or the new one, never a torn write.
type File struct {
	dir string
	mu  sync.RWMutex
}

// NewFile opens (creating if needed) a file store rooted at dir.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &CacheError{Op: "open", Key: dir, Err: err}
	}
	return &File{dir: dir}, nil
}

func (f *File) path(fingerprint string) string {
	return filepath.Join(f.dir, fingerprint+".json")
}

func (f *File) load(fingerprint string) (*record, error) {
	raw, err := os.ReadFile(f.path(fingerprint))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &CacheError{Op: "read", Key: fingerprint, Err: err}
	}
	r, err := decodeRecord(raw)
	if err != nil {
		// Corruption is an error, not a miss.
		return nil, &CacheError{Op: "decode", Key: fingerprint, Err: err}
	}
	return r, nil
}

func (f *File) save(fingerprint string, r *record) error {
	raw, err := encodeRecord(r)
	if err != nil {
		return &CacheError{Op: "encode", Key: fingerprint, Err: err}
	}
	tmp, err := os.CreateTemp(f.dir, fingerprint+".tmp-*")
	if err != nil {
		return &CacheError{Op: "write", Key: fingerprint, Err: err}
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &CacheError{Op: "write", Key: fingerprint, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &CacheError{Op: "write", Key: fingerprint, Err: err}
	}
	if err := os.Rename(tmp.Name(), f.path(fingerprint)); err != nil {
		os.Remove(tmp.Name())
		return &CacheError{Op: "write", Key: fingerprint, Err: err}
	}
	return nil
}

func (f *File) Lookup(ctx context.Context, desc catalog.Descriptor, start, end time.Time) ([]timeseries.Point, bool, error) {
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	f.mu.RLock()
	defer f.mu.RUnlock()
	r, err := f.load(desc.Fingerprint())
	if err != nil {
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	pts, ok := r.covering(start, end)
	return pts, ok, nil
}

func (f *File) Store(ctx context.Context, desc catalog.Descriptor, start, end time.Time, points []timeseries.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()
	f.mu.Lock()
	defer f.mu.Unlock()
	r, err := f.load(key)
	if err != nil {
		return err
	}
	if r == nil {
		r = &record{Descriptor: desc}
	}
	r.add(start, end, points)
	return f.save(key, r)
}

func (f *File) Clear(ctx context.Context, source string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	names, err := f.list()
	if err != nil {
		return err
	}
	for _, name := range names {
		if source != "" {
			r, err := f.load(name)
			if err != nil {
				return err
			}
			if r == nil || r.Descriptor.Source != source {
				continue
			}
		}
		if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return &CacheError{Op: "clear", Key: name, Err: err}
		}
	}
	return nil
}

func (f *File) Entries(ctx context.Context) ([]Summary, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names, err := f.list()
	if err != nil {
		return nil, err
	}
	var out []Summary
	for _, name := range names {
		r, err := f.load(name)
		if err != nil {
			return nil, err
		}
		if r != nil {
			out = append(out, r.summaries()...)
		}
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

func (f *File) list() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, &CacheError{Op: "list", Key: f.dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	return out, nil
}

func (f *File) Close() error { return nil }

package cache

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

const sqlSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	fingerprint TEXT PRIMARY KEY,
	source      TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	descriptor  JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_spans (
	fingerprint TEXT NOT NULL REFERENCES cache_entries(fingerprint) ON DELETE CASCADE,
	start_date  TEXT NOT NULL,
	end_date    TEXT NOT NULL,
	points      JSONB NOT NULL,
	PRIMARY KEY (fingerprint, start_date, end_date)
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_source ON cache_entries(source);
`

// SQL is a Postgres-backed store. One row per descriptor in cache_entries,
// one row per stored range in cache_spans; every Store runs in a single
// transaction so a key is updated atomically. Writers additionally serialize
// in-process: the store is read-merge-write, and two interleaved writers
// would each merge against the pre-write state and silently erase the
// other's spans.
type SQL struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQL connects to Postgres with the given DSN and ensures the schema.
func OpenSQL(ctx context.Context, dsn string) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &CacheError{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &CacheError{Op: "open", Err: err}
	}
	if _, err := db.ExecContext(ctx, sqlSchema); err != nil {
		_ = db.Close()
		return nil, &CacheError{Op: "migrate", Err: err}
	}
	return &SQL{db: db}, nil
}

func (s *SQL) Lookup(ctx context.Context, desc catalog.Descriptor, start, end time.Time) ([]timeseries.Point, bool, error) {
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()
	r, err := s.loadRecord(ctx, s.db, key, desc)
	if err != nil {
		return nil, false, err
	}
	if r == nil {
		return nil, false, nil
	}
	pts, ok := r.covering(start, end)
	return pts, ok, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQL) loadRecord(ctx context.Context, q querier, key string, desc catalog.Descriptor) (*record, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT TRUE FROM cache_entries WHERE fingerprint = $1`, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &CacheError{Op: "read", Key: key, Err: err}
	}

	rows, err := q.QueryContext(ctx,
		`SELECT start_date, end_date, points FROM cache_spans WHERE fingerprint = $1 ORDER BY start_date`, key)
	if err != nil {
		return nil, &CacheError{Op: "read", Key: key, Err: err}
	}
	defer rows.Close()

	r := &record{Descriptor: desc}
	for rows.Next() {
		var startISO, endISO string
		var raw []byte
		if err := rows.Scan(&startISO, &endISO, &raw); err != nil {
			return nil, &CacheError{Op: "read", Key: key, Err: err}
		}
		sp, err := decodeSpan(startISO, endISO, raw)
		if err != nil {
			return nil, &CacheError{Op: "decode", Key: key, Err: err}
		}
		r.Spans = append(r.Spans, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, &CacheError{Op: "read", Key: key, Err: err}
	}
	return r, nil
}

func (s *SQL) Store(ctx context.Context, desc catalog.Descriptor, start, end time.Time, points []timeseries.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	defer tx.Rollback()

	r, err := s.loadRecord(ctx, tx, key, desc)
	if err != nil {
		return err
	}
	if r == nil {
		r = &record{Descriptor: desc}
	}
	r.add(start, end, points)

	descRaw, err := encodeDescriptorJSON(desc)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_entries (fingerprint, source, symbol, descriptor)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (fingerprint) DO NOTHING`,
		key, desc.Source, desc.Symbol, descRaw); err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM cache_spans WHERE fingerprint = $1`, key); err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	for _, sp := range r.Spans {
		raw, err := encodeSpanPoints(sp)
		if err != nil {
			return &CacheError{Op: "encode", Key: key, Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cache_spans (fingerprint, start_date, end_date, points) VALUES ($1, $2, $3, $4)`,
			key, timeseries.FormatDate(sp.Start), timeseries.FormatDate(sp.End), raw); err != nil {
			return &CacheError{Op: "write", Key: key, Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (s *SQL) Clear(ctx context.Context, source string) error {
	var err error
	if source == "" {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	} else {
		_, err = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE source = $1`, source)
	}
	if err != nil {
		return &CacheError{Op: "clear", Key: source, Err: err}
	}
	return nil
}

func (s *SQL) Entries(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.descriptor, sp.start_date, sp.end_date, sp.points
		 FROM cache_entries e JOIN cache_spans sp ON sp.fingerprint = e.fingerprint`)
	if err != nil {
		return nil, &CacheError{Op: "list", Err: err}
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var descRaw, ptsRaw []byte
		var startISO, endISO string
		if err := rows.Scan(&descRaw, &startISO, &endISO, &ptsRaw); err != nil {
			return nil, &CacheError{Op: "list", Err: err}
		}
		desc, err := decodeDescriptorJSON(descRaw)
		if err != nil {
			return nil, &CacheError{Op: "decode", Err: err}
		}
		sp, err := decodeSpan(startISO, endISO, ptsRaw)
		if err != nil {
			return nil, &CacheError{Op: "decode", Err: err}
		}
		out = append(out, Summary{Descriptor: desc, Start: sp.Start, End: sp.End, Count: len(sp.Points)})
	}
	if err := rows.Err(); err != nil {
		return nil, &CacheError{Op: "list", Err: err}
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

func (s *SQL) Close() error { return s.db.Close() }

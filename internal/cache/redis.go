package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"metaquery/internal/catalog"
	"metaquery/internal/timeseries"
)

const (
	redisKeyPrefix = "metaquery:cache:"
	redisIndexKey  = "metaquery:cache:index"
)

// Redis stores one JSON record per descriptor fingerprint. Entries never
// expire; the cache is cleared explicitly. A per-source index set backs
// Clear without scanning unrelated keys. Writers serialize in-process: the
// store is read-merge-write, and a writer racing another would merge against
// the pre-write record and drop the other's spans on its final SET.
type Redis struct {
	client *redis.Client
	mu     sync.Mutex
}

// OpenRedis connects and verifies the server is reachable.
func OpenRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, &CacheError{Op: "open", Key: addr, Err: err}
	}
	return &Redis{client: client}, nil
}

func (r *Redis) Lookup(ctx context.Context, desc catalog.Descriptor, start, end time.Time) ([]timeseries.Point, bool, error) {
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &CacheError{Op: "read", Key: key, Err: err}
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, false, &CacheError{Op: "decode", Key: key, Err: err}
	}
	pts, ok := rec.covering(start, end)
	return pts, ok, nil
}

func (r *Redis) Store(ctx context.Context, desc catalog.Descriptor, start, end time.Time, points []timeseries.Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	key := desc.Fingerprint()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Read-merge-write; the final SET swaps the whole record atomically.
	rec := &record{Descriptor: desc}
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return &CacheError{Op: "read", Key: key, Err: err}
	}
	if err == nil {
		if rec, err = decodeRecord(raw); err != nil {
			return &CacheError{Op: "decode", Key: key, Err: err}
		}
	}
	rec.add(start, end, points)

	out, err := encodeRecord(rec)
	if err != nil {
		return &CacheError{Op: "encode", Key: key, Err: err}
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisKeyPrefix+key, out, 0)
	pipe.SAdd(ctx, redisIndexKey+":"+desc.Source, key)
	pipe.SAdd(ctx, redisIndexKey, desc.Source)
	if _, err := pipe.Exec(ctx); err != nil {
		return &CacheError{Op: "write", Key: key, Err: err}
	}
	return nil
}

func (r *Redis) Clear(ctx context.Context, source string) error {
	sources := []string{source}
	if source == "" {
		var err error
		sources, err = r.client.SMembers(ctx, redisIndexKey).Result()
		if err != nil {
			return &CacheError{Op: "clear", Err: err}
		}
	}
	for _, src := range sources {
		setKey := redisIndexKey + ":" + src
		members, err := r.client.SMembers(ctx, setKey).Result()
		if err != nil {
			return &CacheError{Op: "clear", Key: src, Err: err}
		}
		keys := make([]string, 0, len(members)+1)
		for _, m := range members {
			keys = append(keys, redisKeyPrefix+m)
		}
		keys = append(keys, setKey)
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return &CacheError{Op: "clear", Key: src, Err: err}
		}
		if err := r.client.SRem(ctx, redisIndexKey, src).Err(); err != nil {
			return &CacheError{Op: "clear", Key: src, Err: err}
		}
	}
	return nil
}

func (r *Redis) Entries(ctx context.Context) ([]Summary, error) {
	sources, err := r.client.SMembers(ctx, redisIndexKey).Result()
	if err != nil {
		return nil, &CacheError{Op: "list", Err: err}
	}
	var out []Summary
	for _, src := range sources {
		members, err := r.client.SMembers(ctx, redisIndexKey+":"+src).Result()
		if err != nil {
			return nil, &CacheError{Op: "list", Key: src, Err: err}
		}
		for _, m := range members {
			raw, err := r.client.Get(ctx, redisKeyPrefix+m).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, &CacheError{Op: "list", Key: m, Err: err}
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return nil, &CacheError{Op: "decode", Key: m, Err: err}
			}
			out = append(out, rec.summaries()...)
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

func (r *Redis) Close() error { return r.client.Close() }

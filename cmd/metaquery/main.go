package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"metaquery/internal/align"
	"metaquery/internal/cache"
	"metaquery/internal/catalog"
	"metaquery/internal/config"
	"metaquery/internal/querier"
	"metaquery/internal/source"
	"metaquery/internal/source/httpapi"
	"metaquery/internal/source/localfile"
	"metaquery/internal/timeseries"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "metaquery:", err)
		os.Exit(1)
	}
}

// run owns every resource so deferred cleanup fires on error paths too.
func run() error {
	var (
		configPath string
		namesCSV   string
		startISO   string
		endISO     string
		frequency  string
		format     string
		noCache    bool
		listCache  bool
		clearCache string
		metaName   string
	)
	flag.StringVar(&configPath, "config", os.Getenv("METAQUERY_CONFIG"), "path to config file")
	flag.StringVar(&namesCSV, "names", "", "comma-separated catalog names to fetch")
	flag.StringVar(&startISO, "start", "", "start date (YYYY-MM-DD)")
	flag.StringVar(&endISO, "end", "", "end date (YYYY-MM-DD), defaults to today")
	flag.StringVar(&frequency, "frequency", "", "target frequency (daily, weekly, monthly, quarterly, annual)")
	flag.StringVar(&format, "format", "wide", "output format: wide or long")
	flag.BoolVar(&noCache, "no-cache", false, "bypass the cache for this call")
	flag.BoolVar(&listCache, "list-cache", false, "list cached entries and exit")
	flag.StringVar(&clearCache, "clear-cache", "", "clear cache (source name, or 'all') and exit")
	flag.StringVar(&metaName, "meta", "", "print metadata for one catalog name and exit")
	flag.Parse()

	if !listCache && clearCache == "" && metaName == "" && namesCSV == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	registry := source.NewRegistry()
	registry.Register(localfile.Name, localfile.New())
	for _, s := range cfg.HTTPSources {
		registry.Register(s.Name, httpapi.New(httpapi.Config{
			Name:        s.Name,
			BaseURL:     s.BaseURL,
			APIKey:      s.APIKey,
			MinInterval: time.Duration(s.MinIntervalMS) * time.Millisecond,
			Timeout:     time.Duration(s.TimeoutSec) * time.Second,
		}))
	}

	store, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer store.Close()

	var resolver querier.Resolver
	if len(cfg.Catalogs) > 0 {
		cat, err := catalog.Load(cfg.Catalogs...)
		if err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		if err := cat.ValidateSources(registry.Has); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
		resolver = cat
	}

	q := querier.New(resolver, registry, store, querier.WithLogger(log))

	switch {
	case listCache:
		entries, err := q.CachedEntries(ctx)
		if err != nil {
			return err
		}
		printEntries(entries)
	case clearCache != "":
		src := clearCache
		if src == "all" {
			src = ""
		}
		if err := q.ClearCache(ctx, src); err != nil {
			return err
		}
	case metaName != "":
		if resolver == nil {
			return errNoCatalog
		}
		meta, err := q.Metadata(ctx, metaName)
		if err != nil {
			return err
		}
		printMeta(meta)
	case namesCSV != "":
		if resolver == nil {
			return errNoCatalog
		}
		return runFetch(ctx, q, namesCSV, startISO, endISO, frequency, format, !noCache)
	}
	return nil
}

var errNoCatalog = fmt.Errorf("no catalogs configured; set catalogs in the config file")

func runFetch(ctx context.Context, q *querier.Querier, namesCSV, startISO, endISO, frequency, format string, useCache bool) error {
	if startISO == "" {
		return fmt.Errorf("-start is required")
	}
	start, err := timeseries.ParseDate(startISO)
	if err != nil {
		return fmt.Errorf("bad -start: %w", err)
	}
	end := timeseries.Normalize(time.Now())
	if endISO != "" {
		if end, err = timeseries.ParseDate(endISO); err != nil {
			return fmt.Errorf("bad -end: %w", err)
		}
	}

	names := splitCSV(namesCSV)
	res, err := q.FetchMany(ctx, names, start, end, useCache)
	if err != nil {
		return err
	}
	out, err := querier.Assemble(res, frequency, align.Format(format))
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	if out.Format == align.Long {
		printLong(out.Rows)
		return nil
	}
	printWide(out.Wide)
	return nil
}

func openStore(ctx context.Context, cfg config.CacheConfig) (cache.Store, error) {
	switch cfg.Backend {
	case "memory":
		return cache.NewMemory(), nil
	case "file":
		return cache.NewFile(cfg.Dir)
	case "postgres":
		return cache.OpenSQL(ctx, cfg.PostgresDSN)
	case "redis":
		return cache.OpenRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	}
	return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
}

func printWide(t *timeseries.Table) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "date\t"+strings.Join(t.Columns, "\t"))
	for r, d := range t.Dates {
		cells := make([]string, len(t.Columns))
		for c := range t.Columns {
			cells[c] = formatCell(t.Values[r][c])
		}
		fmt.Fprintln(w, timeseries.FormatDate(d)+"\t"+strings.Join(cells, "\t"))
	}
	w.Flush()
}

func printLong(rows []timeseries.LongRow) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "date\tname\tvalue")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\n", timeseries.FormatDate(r.Date), r.Name, formatCell(r.Value))
	}
	w.Flush()
}

func printEntries(entries []cache.Summary) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "source\tsymbol\tstart\tend\tpoints")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			e.Descriptor.Source, e.Descriptor.Symbol,
			timeseries.FormatDate(e.Start), timeseries.FormatDate(e.End), e.Count)
	}
	w.Flush()
}

func printMeta(meta map[string]string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, k := range sortedKeys(meta) {
		fmt.Fprintf(w, "%s\t%s\n", k, meta[k])
	}
	w.Flush()
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func formatCell(v float64) string {
	if timeseries.IsMissing(v) {
		return "-"
	}
	return fmt.Sprintf("%g", v)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

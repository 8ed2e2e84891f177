// Package httpapi adapts a JSON-over-HTTP series service to the source
// contract. One GET per descriptor; the batch call issues them sequentially
// behind an optional minimum-interval gate so the provider is never hammered.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"resty.dev/v3"

	"metaquery/internal/catalog"
	"metaquery/internal/source"
	"metaquery/internal/timeseries"
)

const (
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
)

// Config describes one HTTP series endpoint.
type Config struct {
	// Name is the source id this adapter is registered under.
	Name string
	// BaseURL is the service root, e.g. https://data.example.com.
	BaseURL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
	// MinInterval spaces out consecutive requests. Zero disables the gate.
	MinInterval time.Duration
	// Timeout bounds each request. Zero means the client default.
	Timeout time.Duration
}

// Adapter fetches series from a JSON HTTP API.
type Adapter struct {
	cfg    Config
	client *resty.Client
	gate   *gate
}

// New builds the adapter with retry/backoff on network errors, 429 and 5xx.
func New(cfg Config) *Adapter {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	a := &Adapter{cfg: cfg, client: client}
	if cfg.MinInterval > 0 {
		a.gate = &gate{interval: cfg.MinInterval}
	}
	return a
}

// Close releases the underlying transport.
func (a *Adapter) Close() error { return a.client.Close() }

type seriesPayload struct {
	Symbol string `json:"symbol"`
	Points []struct {
		Date  string  `json:"date"`
		Value float64 `json:"value"`
	} `json:"points"`
}

// FetchBatch issues one request per descriptor and assembles the results
// into a frame keyed by symbol (and field when the request carried one).
func (a *Adapter) FetchBatch(ctx context.Context, descs []catalog.Descriptor, start, end time.Time) (*source.Frame, error) {
	frame := source.NewFrame()
	for _, d := range descs {
		if err := a.gate.wait(ctx); err != nil {
			return nil, err
		}
		pts, err := a.fetchOne(ctx, d, start, end)
		if err != nil {
			return nil, err
		}
		frame.SetColumn(source.ColumnName(d.Symbol, d.Field), pts)
	}
	return frame, nil
}

func (a *Adapter) fetchOne(ctx context.Context, d catalog.Descriptor, start, end time.Time) ([]timeseries.Point, error) {
	query := map[string]string{
		"symbol": d.Symbol,
		"start":  timeseries.FormatDate(start),
		"end":    timeseries.FormatDate(end),
	}
	if d.Field != nil {
		query["field"] = *d.Field
	}
	for _, p := range d.Params {
		query[p.Key] = p.Value
	}

	var payload seriesPayload
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(query).
		SetResult(&payload).
		Get("/v1/series")
	if err != nil {
		return nil, &source.FetchError{Source: a.cfg.Name, Detail: "request " + d.Symbol, Err: err}
	}
	if resp.IsError() {
		return nil, &source.FetchError{
			Source: a.cfg.Name,
			Detail: fmt.Sprintf("request %s: HTTP %d", d.Symbol, resp.StatusCode()),
		}
	}

	pts := make([]timeseries.Point, 0, len(payload.Points))
	for _, p := range payload.Points {
		date, err := timeseries.ParseDate(p.Date)
		if err != nil {
			return nil, &source.FetchError{Source: a.cfg.Name, Detail: "bad date for " + d.Symbol, Err: err}
		}
		pts = append(pts, timeseries.Point{Date: date, Value: p.Value})
	}
	return pts, nil
}

// Metadata queries the service's attribute endpoint for a symbol.
func (a *Adapter) Metadata(ctx context.Context, desc catalog.Descriptor) (map[string]string, error) {
	var meta map[string]string
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", desc.Symbol).
		SetResult(&meta).
		Get("/v1/series/meta")
	if err != nil {
		return nil, &source.FetchError{Source: a.cfg.Name, Detail: "metadata " + desc.Symbol, Err: err}
	}
	if resp.IsError() {
		return nil, &source.FetchError{
			Source: a.cfg.Name,
			Detail: fmt.Sprintf("metadata %s: HTTP %d", desc.Symbol, resp.StatusCode()),
		}
	}
	return meta, nil
}

func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	switch {
	case r.StatusCode() >= 500:
		return true
	case r.StatusCode() == 429:
		return true
	case r.StatusCode() == 408:
		return true
	}
	return false
}

func retryHook(r *resty.Response, err error) {
	if err != nil {
		slog.Debug("retrying request",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}
	slog.Debug("retrying request",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}

// Package localfile reads series from local CSV files. The descriptor path
// names the file, the symbol names the column to extract.
package localfile

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"metaquery/internal/catalog"
	"metaquery/internal/source"
	"metaquery/internal/timeseries"
)

// Name is the source id this adapter registers under.
const Name = "localfile"

// Adapter reads CSV files with a leading date column and one column per
// symbol. Blank cells are treated as gaps, not zeros.
type Adapter struct{}

// New builds the adapter.
func New() *Adapter { return &Adapter{} }

// FetchBatch reads every requested column. Descriptors may point at
// different files; they are grouped by path and each file is read once.
func (a *Adapter) FetchBatch(ctx context.Context, descs []catalog.Descriptor, start, end time.Time) (*source.Frame, error) {
	frame := source.NewFrame()
	byPath := make(map[string][]catalog.Descriptor)
	var paths []string
	for _, d := range descs {
		if d.Path == nil {
			return nil, &source.FetchError{Source: Name, Detail: "path is required"}
		}
		if _, ok := byPath[*d.Path]; !ok {
			paths = append(paths, *d.Path)
		}
		byPath[*d.Path] = append(byPath[*d.Path], d)
	}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.readFile(p, byPath[p], start, end, frame); err != nil {
			return nil, err
		}
	}
	return frame, nil
}

// readFile extracts the requested columns of one CSV file into the frame.
func (a *Adapter) readFile(path string, descs []catalog.Descriptor, start, end time.Time, frame *source.Frame) error {
	f, err := os.Open(path)
	if err != nil {
		return &source.FetchError{Source: Name, Detail: "open " + path, Err: err}
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return &source.FetchError{Source: Name, Detail: "read " + path, Err: err}
	}
	if len(rows) < 2 {
		return &source.NoDataError{Descriptor: descs[0]}
	}

	header := rows[0]
	colIdx := make(map[string]int, len(header))
	for i, h := range header {
		colIdx[h] = i
	}

	start, end = timeseries.Normalize(start), timeseries.Normalize(end)
	for _, d := range descs {
		idx, ok := colIdx[d.Symbol]
		if !ok {
			return &source.FetchError{
				Source: Name,
				Detail: fmt.Sprintf("column %q not in %s (columns: %v)", d.Symbol, path, header[1:]),
			}
		}
		var pts []timeseries.Point
		for _, row := range rows[1:] {
			if len(row) <= idx {
				continue
			}
			date, err := timeseries.ParseDate(row[0])
			if err != nil {
				return &source.FetchError{Source: Name, Detail: "bad date in " + path, Err: err}
			}
			if date.Before(start) || date.After(end) || row[idx] == "" {
				continue
			}
			v, err := strconv.ParseFloat(row[idx], 64)
			if err != nil {
				return &source.FetchError{
					Source: Name,
					Detail: fmt.Sprintf("bad value for %s on %s in %s", d.Symbol, row[0], path),
					Err:    err,
				}
			}
			pts = append(pts, source.NewPoint(date, v))
		}
		frame.SetColumn(source.ColumnName(d.Symbol, nil), pts)
	}
	return nil
}

// Metadata reports file-level attributes for the descriptor.
func (a *Adapter) Metadata(ctx context.Context, desc catalog.Descriptor) (map[string]string, error) {
	if desc.Path == nil {
		return nil, &source.FetchError{Source: Name, Detail: "path is required"}
	}
	info, err := os.Stat(*desc.Path)
	if err != nil {
		return nil, &source.FetchError{Source: Name, Detail: "stat " + *desc.Path, Err: err}
	}
	return map[string]string{
		"path":     *desc.Path,
		"modified": info.ModTime().UTC().Format(time.RFC3339),
	}, nil
}

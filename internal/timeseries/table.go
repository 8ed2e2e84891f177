package timeseries

import (
	"sort"
	"time"
)

// Table is the wide assembled form: one row per date, one column per series
// in the order the series were supplied. Gaps hold the Missing marker.
type Table struct {
	Dates   []time.Time
	Columns []string
	Values  [][]float64 // Values[row][col]
}

// LongRow is one observation in the long assembled form. Missing cells keep
// their row with the Missing marker so the shape is deterministic.
type LongRow struct {
	Date  time.Time
	Name  string
	Value float64
}

// Join outer-joins series on date. Column order follows the slice order,
// row order is ascending by date.
func Join(series []Series) Table {
	dateSet := make(map[time.Time]struct{})
	for _, s := range series {
		for _, p := range s.Points {
			dateSet[p.Date] = struct{}{}
		}
	}
	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cols := make([]string, len(series))
	lookup := make([]map[time.Time]float64, len(series))
	for i, s := range series {
		cols[i] = s.Name
		m := make(map[time.Time]float64, len(s.Points))
		for _, p := range s.Points {
			m[p.Date] = p.Value
		}
		lookup[i] = m
	}

	values := make([][]float64, len(dates))
	for r, d := range dates {
		row := make([]float64, len(series))
		for c := range series {
			if v, ok := lookup[c][d]; ok {
				row[c] = v
			} else {
				row[c] = Missing
			}
		}
		values[r] = row
	}
	return Table{Dates: dates, Columns: cols, Values: values}
}

// Long flattens the table to rows sorted by date, then by column order.
func (t Table) Long() []LongRow {
	out := make([]LongRow, 0, len(t.Dates)*len(t.Columns))
	for r, d := range t.Dates {
		for c, name := range t.Columns {
			out = append(out, LongRow{Date: d, Name: name, Value: t.Values[r][c]})
		}
	}
	return out
}

// Column returns the index of the named column.
func (t Table) Column(name string) (int, bool) {
	for i, c := range t.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

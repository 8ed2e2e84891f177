package align

import (
	"fmt"
	"strings"

	"metaquery/internal/timeseries"
)

// Format selects the assembled output shape.
type Format string

const (
	Wide Format = "wide"
	Long Format = "long"
)

// Result is an assembled table plus any advisory warnings raised while
// building it. Exactly one of Wide/Rows is populated, per Format.
type Result struct {
	Format   Format
	Wide     *timeseries.Table
	Rows     []timeseries.LongRow
	Warnings []string
}

// Assemble joins series into one table. Column order always follows the
// slice order. When frequency is non-empty every series is resampled to it
// first; when it is empty and the series' native frequencies disagree, the
// outer join proceeds anyway and a warning is attached.
func Assemble(series []timeseries.Series, frequency string, format Format) (*Result, error) {
	switch format {
	case Wide, Long:
	case "":
		format = Wide
	default:
		return nil, fmt.Errorf("output format must be %q or %q, got %q", Wide, Long, format)
	}

	res := &Result{Format: format}
	if frequency != "" {
		f, err := ParseFrequency(frequency)
		if err != nil {
			return nil, err
		}
		resampled := make([]timeseries.Series, len(series))
		for i, s := range series {
			resampled[i] = Resample(s, f)
		}
		series = resampled
	} else {
		res.Warnings = checkAlignment(series)
	}

	table := timeseries.Join(series)
	if format == Long {
		res.Rows = table.Long()
	} else {
		res.Wide = &table
	}
	return res, nil
}

// checkAlignment warns when series being joined without a target frequency
// do not share a grid: the join still happens, but the gaps it produces are
// worth flagging.
func checkAlignment(series []timeseries.Series) []string {
	if len(series) <= 1 {
		return nil
	}
	freqs := make([]string, len(series))
	distinct := make(map[string]struct{})
	allIrregular := true
	for i, s := range series {
		f, ok := InferFrequency(s)
		if !ok {
			freqs[i] = "irregular"
		} else {
			freqs[i] = f.String()
			allIrregular = false
		}
		distinct[freqs[i]] = struct{}{}
	}

	if len(distinct) > 1 {
		parts := make([]string, len(series))
		for i, s := range series {
			parts[i] = s.Name + "=" + freqs[i]
		}
		return []string{fmt.Sprintf(
			"series have different frequencies (%s); outer join may produce gaps, consider setting a target frequency",
			strings.Join(parts, ", "))}
	}
	if allIrregular && !sameDates(series) {
		return []string{"irregular series have different dates; outer join may produce gaps, consider setting a target frequency"}
	}
	return nil
}

func sameDates(series []timeseries.Series) bool {
	first := series[0]
	for _, s := range series[1:] {
		if len(s.Points) != len(first.Points) {
			return false
		}
		for i := range s.Points {
			if !s.Points[i].Date.Equal(first.Points[i].Date) {
				return false
			}
		}
	}
	return true
}

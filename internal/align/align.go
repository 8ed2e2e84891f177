// Package align reconciles raw series of differing native frequencies into
// one assembled table. Downsampling takes the last observed value of each
// period (closing-value semantics); upsampling forward-fills, never
// interpolates.
package align

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"metaquery/internal/timeseries"
)

// AlignmentError reports an invalid target frequency or output format.
type AlignmentError struct {
	Input  string
	Reason string
}

func (e *AlignmentError) Error() string {
	return fmt.Sprintf("invalid alignment %q: %s", e.Input, e.Reason)
}

// Frequency is a supported alignment period.
type Frequency int

const (
	Daily Frequency = iota
	Weekly
	Monthly
	Quarterly
	Annual
)

func (f Frequency) String() string {
	switch f {
	case Daily:
		return "daily"
	case Weekly:
		return "weekly"
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Annual:
		return "annual"
	}
	return "unknown"
}

// ParseFrequency accepts the long names and the usual short aliases,
// case-insensitively.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "daily", "d":
		return Daily, nil
	case "weekly", "w", "week-end":
		return Weekly, nil
	case "monthly", "m", "me", "month-end":
		return Monthly, nil
	case "quarterly", "q", "qe", "quarter-end":
		return Quarterly, nil
	case "annual", "a", "y", "ye", "year-end", "yearly":
		return Annual, nil
	}
	return 0, &AlignmentError{Input: s, Reason: "unknown frequency"}
}

// PeriodEnd returns the end date of the period containing t. Weeks end on
// Sunday, months/quarters/years on their last calendar day.
func PeriodEnd(f Frequency, t time.Time) time.Time {
	t = timeseries.Normalize(t)
	switch f {
	case Daily:
		return t
	case Weekly:
		days := (7 - int(t.Weekday())) % 7
		return t.AddDate(0, 0, days)
	case Monthly:
		return timeseries.Date(t.Year(), t.Month()+1, 0)
	case Quarterly:
		endMonth := time.Month(((int(t.Month())-1)/3)*3 + 3)
		return timeseries.Date(t.Year(), endMonth+1, 0)
	case Annual:
		return timeseries.Date(t.Year(), 12, 31)
	}
	return t
}

func nextPeriodEnd(f Frequency, periodEnd time.Time) time.Time {
	switch f {
	case Daily:
		return periodEnd.AddDate(0, 0, 1)
	case Weekly:
		return periodEnd.AddDate(0, 0, 7)
	default:
		return PeriodEnd(f, periodEnd.AddDate(0, 0, 1))
	}
}

// Resample aligns one series to the target frequency. The output grid spans
// the period of the first observation through the period of the last; for
// each period the last observed value within it is taken, and periods
// without observations carry the prior period's value forward. No value is
// fabricated before the first observation.
func Resample(s timeseries.Series, f Frequency) timeseries.Series {
	if len(s.Points) == 0 {
		return s
	}
	lastInPeriod := make(map[time.Time]float64, len(s.Points))
	for _, p := range s.Points {
		// Points are sorted ascending, so later observations win.
		lastInPeriod[PeriodEnd(f, p.Date)] = p.Value
	}

	first := PeriodEnd(f, s.Points[0].Date)
	last := PeriodEnd(f, s.Points[len(s.Points)-1].Date)

	var out []timeseries.Point
	var carry float64
	haveCarry := false
	for d := first; !d.After(last); d = nextPeriodEnd(f, d) {
		if v, ok := lastInPeriod[d]; ok {
			carry, haveCarry = v, true
		}
		if haveCarry {
			out = append(out, timeseries.Point{Date: d, Value: carry})
		}
	}
	return timeseries.Series{Name: s.Name, Points: out}
}

// InferFrequency guesses a series' native frequency from the median gap
// between observations. ok is false for irregular series or series with
// fewer than two points.
func InferFrequency(s timeseries.Series) (Frequency, bool) {
	if len(s.Points) < 2 {
		return 0, false
	}
	gaps := make([]int, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		gaps = append(gaps, int(s.Points[i].Date.Sub(s.Points[i-1].Date).Hours()/24))
	}
	sort.Ints(gaps)
	median := gaps[len(gaps)/2]
	switch {
	case median <= 3:
		// Calendar-daily or business-daily.
		return Daily, true
	case median >= 6 && median <= 8:
		return Weekly, true
	case median >= 28 && median <= 31:
		return Monthly, true
	case median >= 89 && median <= 92:
		return Quarterly, true
	case median >= 360 && median <= 370:
		return Annual, true
	}
	return 0, false
}

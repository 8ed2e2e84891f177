package timeseries

import (
	"math"
	"sort"
	"time"
)

// Missing marks an absent value in assembled tables. Raw observations are
// always real numbers; gaps only appear when series are joined.
var Missing = math.NaN()

// IsMissing reports whether v is the missing-value marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

const dateLayout = "2006-01-02"

// ParseDate parses an ISO date (YYYY-MM-DD) into a normalized UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// FormatDate renders a date in ISO form.
func FormatDate(t time.Time) string { return t.Format(dateLayout) }

// Date normalizes t to midnight UTC so dates compare by calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Normalize truncates t to its UTC calendar day.
func Normalize(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Point is a single dated observation.
type Point struct {
	Date  time.Time
	Value float64
}

// Series is an ordered run of observations for one logical name.
// Points are sorted ascending by date with unique dates.
type Series struct {
	Name   string
	Points []Point
}

// New builds a Series from points in any order. Dates are normalized,
// duplicates collapse with the later input winning.
func New(name string, points []Point) Series {
	byDate := make(map[time.Time]float64, len(points))
	for _, p := range points {
		byDate[Normalize(p.Date)] = p.Value
	}
	out := make([]Point, 0, len(byDate))
	for d, v := range byDate {
		out = append(out, Point{Date: d, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return Series{Name: name, Points: out}
}

// Len returns the number of observations.
func (s Series) Len() int { return len(s.Points) }

// First returns the earliest observation.
func (s Series) First() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[0], true
}

// Last returns the latest observation.
func (s Series) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Slice returns the observations within [start, end] inclusive.
func (s Series) Slice(start, end time.Time) Series {
	start, end = Normalize(start), Normalize(end)
	out := make([]Point, 0, len(s.Points))
	for _, p := range s.Points {
		if p.Date.Before(start) || p.Date.After(end) {
			continue
		}
		out = append(out, p)
	}
	return Series{Name: s.Name, Points: out}
}

// IsBusinessDay reports whether t falls on a weekday.
func IsBusinessDay(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// BusinessDaysBetween counts weekdays strictly after from and up to and
// including to. Returns 0 when to is not after from.
func BusinessDaysBetween(from, to time.Time) int {
	from, to = Normalize(from), Normalize(to)
	n := 0
	for d := from.AddDate(0, 0, 1); !d.After(to); d = d.AddDate(0, 0, 1) {
		if IsBusinessDay(d) {
			n++
		}
	}
	return n
}

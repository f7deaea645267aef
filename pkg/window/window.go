// Package window derives the visible chart window and the in-window average
// from a duration token or a brush interaction.
package window

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/stats"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

// DefaultPadding is the headroom added above the largest in-window value
const DefaultPadding = 30.0

// ErrInvalidDomain is returned for an unknown duration token
var ErrInvalidDomain = errors.New("window: invalid duration")

// ParseDuration validates a duration token
func ParseDuration(token string) (types.Duration, error) {
	d := types.Duration(token)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidDomain, token)
	}
	return d, nil
}

// Start returns now minus one calendar unit of d, evaluated in now's location.
// Month and year steps clamp to the last day of the target month, so
// March 31 minus one month is the last day of February.
func Start(d types.Duration, now time.Time) (time.Time, error) {
	switch d {
	case types.Day:
		return now.AddDate(0, 0, -1), nil
	case types.Week:
		return now.AddDate(0, 0, -7), nil
	case types.Month:
		return subtractMonths(now, 1), nil
	case types.Year:
		return subtractMonths(now, 12), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDomain, string(d))
}

func subtractMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	target := first.AddDate(0, -months, 0)
	if last := daysIn(target.Year(), target.Month()); day > last {
		day = last
	}
	return target.AddDate(0, 0, day-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Builder computes windows with a configurable value padding
type Builder struct {
	padding float64
}

// NewBuilder creates a builder adding padding above the in-window maximum
func NewBuilder(padding float64) *Builder {
	return &Builder{padding: padding}
}

// Compute builds the window reaching one unit of d back from now. Y is set to
// (0, max+padding) when any sample lies strictly inside the window.
func (b *Builder) Compute(d types.Duration, series types.Series, now time.Time) (types.Window, error) {
	start, err := Start(d, now)
	if err != nil {
		return types.Window{}, err
	}

	w := types.Window{Start: start, End: now}
	if maxY, err := stats.Max(Values(w, series)); err == nil {
		w.Y = &types.Range{Min: 0, Max: types.Number(maxY + b.padding)}
	}
	return w, nil
}

// Compute builds a window with DefaultPadding
func Compute(d types.Duration, series types.Series, now time.Time) (types.Window, error) {
	return NewBuilder(DefaultPadding).Compute(d, series, now)
}

// Brush returns the x-only window an interactive brush or zoom selects.
// Reversed endpoints are swapped.
func Brush(start, end time.Time) types.Window {
	if end.Before(start) {
		start, end = end, start
	}
	return types.Window{Start: start, End: end}
}

// Filter returns the samples lying strictly inside w, in series order
func Filter(w types.Window, series types.Series) []types.Sample {
	var inside []types.Sample
	for _, s := range series.Samples {
		if w.Contains(s.Timestamp) {
			inside = append(inside, s)
		}
	}
	return inside
}

// Values returns the values of the samples strictly inside w
func Values(w types.Window, series types.Series) []float64 {
	inside := Filter(w, series)
	values := make([]float64, len(inside))
	for i, s := range inside {
		values[i] = s.Value
	}
	return values
}

// Average returns the mean of the in-window values rounded to one decimal.
// ok is false when the window holds no samples; callers keep whatever
// average they displayed before.
func Average(w types.Window, series types.Series) (avg float64, ok bool) {
	mean, err := stats.Mean(Values(w, series))
	if err != nil {
		return 0, false
	}
	return stats.Round(mean, 1), true
}

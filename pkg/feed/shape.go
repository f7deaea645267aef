// Package feed fetches HRV measurements from the backend and shapes them
// into labelled series ready for the charts.
package feed

import (
	"fmt"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/stats"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

// Metric names of the shaped series
const (
	MetricRMSSD = "rmssd"
	MetricLnHF  = "lnhf"
	MetricLnLF  = "lnlf"
)

// LabelLayout renders timestamps as MM/DD hh:mma
const LabelLayout = "01/02 03:04pm"

// Metrics lists the shaped series in display order
var Metrics = []string{MetricRMSSD, MetricLnHF, MetricLnLF}

// timestamp layouts accepted for createdAt; layouts without a zone are read
// in the display location
var timeLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// Bundle holds the series derived from one fetch
type Bundle struct {
	RMSSD types.Series
	LnHF  types.Series
	LnLF  types.Series
}

// All returns the series in display order
func (b Bundle) All() []types.Series {
	return []types.Series{b.RMSSD, b.LnHF, b.LnLF}
}

// Get returns the series named metric
func (b Bundle) Get(metric string) (types.Series, bool) {
	switch metric {
	case MetricRMSSD:
		return b.RMSSD, true
	case MetricLnHF:
		return b.LnHF, true
	case MetricLnLF:
		return b.LnLF, true
	}
	return types.Series{}, false
}

// ParseTime parses a createdAt value
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	for _, l := range timeLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, loc)
		}
		if err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// Label formats a sample label as "<value><unit> @ <MM/DD hh:mma>"
func Label(value float64, decimals int, unit string, ts time.Time, loc *time.Location) string {
	return fmt.Sprintf("%s%s @ %s", stats.Format(value, decimals), unit, ts.In(loc).Format(LabelLayout))
}

// Shape converts records into the rMSSD series and the log-transformed
// frequency-power series. Record order is preserved.
func Shape(records []Record, loc *time.Location) (Bundle, error) {
	if loc == nil {
		loc = time.Local
	}

	b := Bundle{
		RMSSD: types.Series{Metric: MetricRMSSD, Unit: "ms", Samples: make([]types.Sample, 0, len(records))},
		LnHF:  types.Series{Metric: MetricLnHF, Samples: make([]types.Sample, 0, len(records))},
		LnLF:  types.Series{Metric: MetricLnLF, Samples: make([]types.Sample, 0, len(records))},
	}

	for i, r := range records {
		ts, err := ParseTime(r.CreatedAt, loc)
		if err != nil {
			return Bundle{}, fmt.Errorf("record %d: %w", i, err)
		}

		lnHF := stats.Ln(r.HFPWR)
		lnLF := stats.Ln(r.LFPWR)

		b.RMSSD.Samples = append(b.RMSSD.Samples, types.Sample{
			Timestamp: ts,
			Value:     r.RMSSD,
			Label:     Label(r.RMSSD, 0, "ms", ts, loc),
		})
		b.LnHF.Samples = append(b.LnHF.Samples, types.Sample{
			Timestamp: ts,
			Value:     lnHF,
			Label:     Label(lnHF, 2, "", ts, loc),
		})
		b.LnLF.Samples = append(b.LnLF.Samples, types.Sample{
			Timestamp: ts,
			Value:     lnLF,
			Label:     Label(lnLF, 2, "", ts, loc),
		})
	}

	return b, nil
}

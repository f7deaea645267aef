package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Sample represents a single HRV measurement
type Sample struct {
	Timestamp time.Time `json:"x"`
	Value     float64   `json:"y"`
	Label     string    `json:"label,omitempty"`
}

// MarshalJSON encodes non-finite values, e.g. the log of a zero power
// reading, as null
func (s Sample) MarshalJSON() ([]byte, error) {
	type sample Sample
	return json.Marshal(struct {
		sample
		Value Number `json:"y"`
	}{sample(s), Number(s.Value)})
}

// Number is a float64 that encodes NaN and infinities as JSON null
type Number float64

func (n Number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f, 'g', -1, 64), nil
}

// Series represents an ordered, chronologically ascending run of samples for one metric
type Series struct {
	Metric  string   `json:"metric"`
	Unit    string   `json:"unit,omitempty"`
	Samples []Sample `json:"samples"`
}

// Values returns the sample values in series order
func (s Series) Values() []float64 {
	values := make([]float64, len(s.Samples))
	for i, sample := range s.Samples {
		values[i] = sample.Value
	}
	return values
}

// First returns the earliest sample
func (s Series) First() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[0], true
}

// Last returns the latest sample
func (s Series) Last() (Sample, bool) {
	if len(s.Samples) == 0 {
		return Sample{}, false
	}
	return s.Samples[len(s.Samples)-1], true
}

// Range is a closed numeric interval on the value axis
type Range struct {
	Min Number `json:"min"`
	Max Number `json:"max"`
}

// Window is the visible slice of a series. Y is nil when no samples fall
// inside the time range and the renderer should auto-scale.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Y     *Range    `json:"y,omitempty"`
}

// Contains reports whether t lies strictly between Start and End.
// Samples sitting exactly on either boundary are outside the window.
func (w Window) Contains(t time.Time) bool {
	return t.After(w.Start) && t.Before(w.End)
}

// Duration is the token selecting how far back a window reaches from now
type Duration string

const (
	Day   Duration = "day"
	Week  Duration = "week"
	Month Duration = "month"
	Year  Duration = "year"
)

// Durations lists every valid token in toggle order
var Durations = []Duration{Day, Week, Month, Year}

// Valid reports whether d is a known token
func (d Duration) Valid() bool {
	switch d {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

func (d Duration) String() string {
	return string(d)
}

// Line is a two-point overlay drawn across the whole series
type Line struct {
	Name     string   `json:"name"`
	Quantile float64  `json:"quantile"`
	Points   []Sample `json:"points"`
}

// Summary holds the descriptive statistics of a metric
type Summary struct {
	Metric    string            `json:"metric"`
	Count     int               `json:"count"`
	Min       Number            `json:"min"`
	Max       Number            `json:"max"`
	Mean      Number            `json:"mean"`
	StdDev    *Number           `json:"std_dev,omitempty"`
	Quantiles map[string]Number `json:"quantiles"`
}

// QuantileKey formats q as the key used in Summary.Quantiles, e.g. "q66"
func QuantileKey(q float64) string {
	return fmt.Sprintf("q%02.0f", q*100)
}

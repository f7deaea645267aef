package dashboard

import (
	"errors"
	"fmt"

	"github.com/tomgoth/hrv-dashboard/pkg/stats"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

// Overlays returns one flat line per quantile spanning the first to the last
// sample of series. An empty series has no overlays.
func Overlays(series types.Series, quantiles []float64) ([]types.Line, error) {
	first, ok := series.First()
	if !ok {
		return nil, nil
	}
	last, _ := series.Last()
	values := series.Values()

	lines := make([]types.Line, 0, len(quantiles))
	for _, q := range quantiles {
		y, err := stats.Quantile(values, q)
		if err != nil {
			return nil, fmt.Errorf("overlay %v: %w", q, err)
		}
		lines = append(lines, types.Line{
			Name:     types.QuantileKey(q),
			Quantile: q,
			Points: []types.Sample{
				{Timestamp: first.Timestamp, Value: y},
				{Timestamp: last.Timestamp, Value: y},
			},
		})
	}
	return lines, nil
}

// Describe computes the descriptive statistics of series. The standard
// deviation is omitted for a single sample.
func Describe(series types.Series, quantiles []float64) (types.Summary, error) {
	values := series.Values()

	mean, err := stats.Mean(values)
	if err != nil {
		return types.Summary{}, fmt.Errorf("describe %s: %w", series.Metric, err)
	}
	lo, _ := stats.Min(values)
	hi, _ := stats.Max(values)

	summary := types.Summary{
		Metric:    series.Metric,
		Count:     len(values),
		Min:       types.Number(lo),
		Max:       types.Number(hi),
		Mean:      types.Number(mean),
		Quantiles: make(map[string]types.Number, len(quantiles)),
	}

	std, err := stats.SampleStdDev(values)
	switch {
	case err == nil:
		n := types.Number(std)
		summary.StdDev = &n
	case !errors.Is(err, stats.ErrInsufficientSamples):
		return types.Summary{}, fmt.Errorf("describe %s: %w", series.Metric, err)
	}

	for _, q := range quantiles {
		v, err := stats.Quantile(values, q)
		if err != nil {
			return types.Summary{}, fmt.Errorf("describe %s: %w", series.Metric, err)
		}
		summary.Quantiles[types.QuantileKey(q)] = types.Number(v)
	}

	return summary, nil
}

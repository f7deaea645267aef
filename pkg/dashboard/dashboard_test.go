package dashboard

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/types"
	"github.com/tomgoth/hrv-dashboard/pkg/window"
)

var now = time.Date(2026, time.May, 6, 8, 0, 0, 0, time.UTC)

func testSeries() types.Series {
	return types.Series{
		Metric: "rmssd",
		Unit:   "ms",
		Samples: []types.Sample{
			{Timestamp: now.AddDate(0, 0, -40), Value: 30},
			{Timestamp: now.AddDate(0, 0, -20), Value: 40},
			{Timestamp: now.AddDate(0, 0, -5), Value: 50},
			{Timestamp: now.AddDate(0, 0, -2), Value: 61},
			{Timestamp: now.Add(-3 * time.Hour), Value: 70},
		},
	}
}

func loaded(t *testing.T, c *Controller) State {
	t.Helper()
	s, err := c.Reduce(c.Initial(), Loaded{Series: testSeries()}, now)
	if err != nil {
		t.Fatalf("Loaded failed: %v", err)
	}
	return s
}

func TestLoadedSelectsWeek(t *testing.T) {
	c := NewController()
	s := loaded(t, c)

	if s.Phase != Ready {
		t.Fatalf("Expected ready, got %s", s.Phase)
	}
	if s.Duration != types.Week {
		t.Errorf("Expected week, got %s", s.Duration)
	}
	if s.Window == nil {
		t.Fatal("Expected a window")
	}
	if want := now.AddDate(0, 0, -7); !s.Window.Start.Equal(want) || !s.Window.End.Equal(now) {
		t.Errorf("Unexpected window %v - %v", s.Window.Start, s.Window.End)
	}
	if s.Window.Y == nil || s.Window.Y.Max != 100 {
		t.Errorf("Expected y max 100, got %+v", s.Window.Y)
	}
	// (50 + 61 + 70) / 3 = 60.333
	if s.Average == nil || *s.Average != 60.3 {
		t.Errorf("Expected average 60.3, got %v", s.Average)
	}
	if len(s.Overlays) != 2 || s.Overlays[0].Name != "q66" || s.Overlays[1].Name != "q33" {
		t.Errorf("Unexpected overlays %+v", s.Overlays)
	}
}

func TestLoadedTwice(t *testing.T) {
	c := NewController()
	s := loaded(t, c)

	if _, err := c.Reduce(s, Loaded{Series: testSeries()}, now); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("Expected ErrAlreadyLoaded, got %v", err)
	}
}

func TestEventsBeforeLoad(t *testing.T) {
	c := NewController()
	initial := c.Initial()

	if initial.Phase != Loading {
		t.Fatalf("Expected loading, got %s", initial.Phase)
	}
	if _, err := c.Reduce(initial, DurationSelected{Duration: types.Day}, now); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
	if _, err := c.Reduce(initial, Brushed{Start: now.Add(-time.Hour), End: now}, now); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady, got %v", err)
	}
}

func TestDurationSelected(t *testing.T) {
	c := NewController()
	s := loaded(t, c)

	next, err := c.Reduce(s, DurationSelected{Duration: types.Month}, now)
	if err != nil {
		t.Fatalf("DurationSelected failed: %v", err)
	}
	if next.Duration != types.Month {
		t.Errorf("Expected month, got %s", next.Duration)
	}
	// (40 + 50 + 61 + 70) / 4 = 55.25
	if next.Average == nil || *next.Average != 55.3 {
		t.Errorf("Expected average 55.3, got %v", next.Average)
	}

	// The previous state is untouched
	if s.Duration != types.Week || *s.Average != 60.3 {
		t.Errorf("Reduce mutated its input: %+v", s)
	}

	if _, err := c.Reduce(s, DurationSelected{Duration: "fortnight"}, now); !errors.Is(err, window.ErrInvalidDomain) {
		t.Errorf("Expected ErrInvalidDomain, got %v", err)
	}
}

func TestEmptyWindowKeepsAverage(t *testing.T) {
	c := NewController()
	s := loaded(t, c)

	// Nothing was measured in the last hour
	next, err := c.Reduce(s, Brushed{Start: now.Add(-time.Hour), End: now}, now)
	if err != nil {
		t.Fatalf("Brushed failed: %v", err)
	}
	if next.Average == nil || *next.Average != 60.3 {
		t.Errorf("Expected previous average 60.3 to be kept, got %v", next.Average)
	}
	if next.Window.Y != nil {
		t.Error("Brush windows carry no y range")
	}

	next, err = c.Reduce(next, DurationSelected{Duration: types.Day}, now)
	if err != nil {
		t.Fatalf("DurationSelected failed: %v", err)
	}
	if *next.Average != 70 {
		t.Errorf("Expected day average 70, got %v", *next.Average)
	}
}

func TestBrushedUsesInteractionRange(t *testing.T) {
	c := NewController()
	s := loaded(t, c)

	start := now.AddDate(0, 0, -25)
	end := now.AddDate(0, 0, -3)
	next, err := c.Reduce(s, Brushed{Start: start, End: end}, now)
	if err != nil {
		t.Fatalf("Brushed failed: %v", err)
	}
	if !next.Window.Start.Equal(start) || !next.Window.End.Equal(end) {
		t.Errorf("Expected window %v - %v, got %v - %v", start, end, next.Window.Start, next.Window.End)
	}
	if *next.Average != 45 {
		t.Errorf("Expected average 45, got %v", *next.Average)
	}
	if next.Duration != types.Week {
		t.Errorf("Brushing must not change the selected duration, got %s", next.Duration)
	}
}

func TestLoadedEmptySeries(t *testing.T) {
	c := NewController()
	s, err := c.Reduce(c.Initial(), Loaded{Series: types.Series{Metric: "rmssd"}}, now)
	if err != nil {
		t.Fatalf("Loaded failed: %v", err)
	}
	if s.Phase != Ready {
		t.Errorf("Expected ready, got %s", s.Phase)
	}
	if s.Average != nil {
		t.Errorf("Expected no average, got %v", *s.Average)
	}
	if s.Window == nil || s.Window.Y != nil {
		t.Errorf("Expected a window without y range, got %+v", s.Window)
	}
	if len(s.Overlays) != 0 {
		t.Errorf("Expected no overlays, got %d", len(s.Overlays))
	}
}

func TestControllerOptions(t *testing.T) {
	c := NewController(WithPadding(10), WithInitialDuration(types.Year), WithQuantiles(0.5))
	s := loaded(t, c)

	if s.Duration != types.Year {
		t.Errorf("Expected year, got %s", s.Duration)
	}
	if s.Window.Y == nil || s.Window.Y.Max != 80 {
		t.Errorf("Expected y max 80, got %+v", s.Window.Y)
	}
	if len(s.Overlays) != 1 || s.Overlays[0].Points[0].Value != 50 {
		t.Errorf("Unexpected overlays %+v", s.Overlays)
	}
}

func TestView(t *testing.T) {
	c := NewController()

	if _, err := View(c.Initial()); !errors.Is(err, ErrNotReady) {
		t.Errorf("Expected ErrNotReady while loading, got %v", err)
	}

	s := loaded(t, c)
	chart, err := View(s)
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if chart.Duration != types.Week || !chart.Window.End.Equal(now) {
		t.Errorf("Unexpected chart window %+v", chart.Window)
	}
	if chart.Average == nil || *chart.Average != 60.3 {
		t.Errorf("Expected average 60.3, got %v", chart.Average)
	}
	if len(chart.Overlays) != 2 || len(chart.Series.Samples) != 5 {
		t.Errorf("Expected overlays and the full series, got %d/%d", len(chart.Overlays), len(chart.Series.Samples))
	}
}

func TestControllerExposesSettings(t *testing.T) {
	c := NewController(WithPadding(0), WithQuantiles(0.5))

	w, err := c.Builder().Compute(types.Week, testSeries(), now)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if w.Y == nil || w.Y.Max != 70 {
		t.Errorf("Expected y max 70 without padding, got %+v", w.Y)
	}
	if q := c.Quantiles(); len(q) != 1 || q[0] != 0.5 {
		t.Errorf("Unexpected quantiles %v", q)
	}
}

func TestOverlaysSpanSeries(t *testing.T) {
	series := testSeries()
	lines, err := Overlays(series, []float64{0.66, 0.33})
	if err != nil {
		t.Fatalf("Overlays failed: %v", err)
	}

	for _, l := range lines {
		if len(l.Points) != 2 {
			t.Fatalf("Expected 2 points, got %d", len(l.Points))
		}
		if !l.Points[0].Timestamp.Equal(series.Samples[0].Timestamp) ||
			!l.Points[1].Timestamp.Equal(series.Samples[4].Timestamp) {
			t.Errorf("%s does not span the series", l.Name)
		}
		if l.Points[0].Value != l.Points[1].Value {
			t.Errorf("%s is not flat", l.Name)
		}
	}

	// sorted: 30 40 50 61 70; pos 2.64 -> 50 + 0.64*11
	if got := lines[0].Points[0].Value; math.Abs(got-57.04) > 1e-9 {
		t.Errorf("Expected q66 57.04, got %v", got)
	}
	// pos 1.32 -> 40 + 0.32*10
	if got := lines[1].Points[0].Value; math.Abs(got-43.2) > 1e-9 {
		t.Errorf("Expected q33 43.2, got %v", got)
	}

	if _, err := Overlays(series, []float64{1.5}); err == nil {
		t.Error("Expected error for quantile out of range")
	}
}

func TestDescribe(t *testing.T) {
	summary, err := Describe(testSeries(), []float64{0.5})
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if summary.Count != 5 || summary.Min != 30 || summary.Max != 70 {
		t.Errorf("Unexpected summary %+v", summary)
	}
	if summary.Mean != 50.2 {
		t.Errorf("Expected mean 50.2, got %v", summary.Mean)
	}
	if summary.StdDev == nil {
		t.Error("Expected a standard deviation")
	}
	if summary.Quantiles["q50"] != 50 {
		t.Errorf("Expected median 50, got %v", summary.Quantiles["q50"])
	}

	single := types.Series{Metric: "rmssd", Samples: []types.Sample{{Timestamp: now, Value: 44}}}
	summary, err = Describe(single, nil)
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if summary.StdDev != nil {
		t.Errorf("Expected no standard deviation for one sample, got %v", *summary.StdDev)
	}

	if _, err := Describe(types.Series{Metric: "rmssd"}, nil); err == nil {
		t.Error("Expected error for empty series")
	}
}

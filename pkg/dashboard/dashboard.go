// Package dashboard models the chart controller as a pure reducer: every UI
// event maps the previous state and the loaded series to a new window and
// average, so the behaviour is testable without a front end.
package dashboard

import (
	"errors"
	"fmt"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/types"
	"github.com/tomgoth/hrv-dashboard/pkg/window"
)

var (
	// ErrNotReady is returned for interaction events before data is loaded
	ErrNotReady = errors.New("dashboard: data not loaded")

	// ErrAlreadyLoaded is returned when data arrives a second time
	ErrAlreadyLoaded = errors.New("dashboard: data already loaded")
)

// Phase is the lifecycle stage of the dashboard
type Phase string

const (
	Loading Phase = "loading"
	Ready   Phase = "ready"
)

// DefaultQuantiles are the overlay lines drawn across the rMSSD chart
var DefaultQuantiles = []float64{0.66, 0.33}

// State is the view state derived from the loaded series
type State struct {
	Phase    Phase          `json:"phase"`
	Duration types.Duration `json:"duration"`
	Window   *types.Window  `json:"window,omitempty"`
	Average  *types.Number  `json:"average,omitempty"`
	Overlays []types.Line   `json:"overlays,omitempty"`
	Series   types.Series   `json:"-"`
}

// Event is something the user or the loader did
type Event interface {
	event()
}

// Loaded carries the series fetched at startup
type Loaded struct {
	Series types.Series
}

// DurationSelected is a click on the day/week/month/year toggle
type DurationSelected struct {
	Duration types.Duration
}

// Brushed is an interactive brush or zoom over the time axis
type Brushed struct {
	Start time.Time
	End   time.Time
}

func (Loaded) event()           {}
func (DurationSelected) event() {}
func (Brushed) event()          {}

// Controller reduces events into states
type Controller struct {
	builder   *window.Builder
	initial   types.Duration
	quantiles []float64
}

// Option configures a Controller
type Option func(*Controller)

// WithPadding sets the headroom above the in-window maximum
func WithPadding(padding float64) Option {
	return func(c *Controller) {
		c.builder = window.NewBuilder(padding)
	}
}

// WithInitialDuration sets the duration selected once data is loaded
func WithInitialDuration(d types.Duration) Option {
	return func(c *Controller) {
		c.initial = d
	}
}

// WithQuantiles sets the overlay quantiles
func WithQuantiles(qs ...float64) Option {
	return func(c *Controller) {
		c.quantiles = append([]float64(nil), qs...)
	}
}

// NewController creates a controller starting from a week window
func NewController(opts ...Option) *Controller {
	c := &Controller{
		builder:   window.NewBuilder(window.DefaultPadding),
		initial:   types.Week,
		quantiles: DefaultQuantiles,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Builder returns the window builder carrying the configured padding
func (c *Controller) Builder() *window.Builder {
	return c.builder
}

// Quantiles returns the overlay quantiles
func (c *Controller) Quantiles() []float64 {
	return c.quantiles
}

// Initial returns the state before any data arrived
func (c *Controller) Initial() State {
	return State{Phase: Loading, Duration: c.initial}
}

// Reduce applies e to s at time now. s is not modified; on error the
// returned state is s unchanged.
func (c *Controller) Reduce(s State, e Event, now time.Time) (State, error) {
	switch e := e.(type) {
	case Loaded:
		if s.Phase != Loading {
			return s, ErrAlreadyLoaded
		}
		overlays, err := Overlays(e.Series, c.quantiles)
		if err != nil {
			return s, err
		}
		next := s
		next.Phase = Ready
		next.Series = e.Series
		next.Overlays = overlays
		return c.selectDuration(next, c.initial, now)

	case DurationSelected:
		if s.Phase != Ready {
			return s, ErrNotReady
		}
		return c.selectDuration(s, e.Duration, now)

	case Brushed:
		if s.Phase != Ready {
			return s, ErrNotReady
		}
		w := window.Brush(e.Start, e.End)
		return withAverage(s, w), nil
	}

	return s, fmt.Errorf("dashboard: unknown event %T", e)
}

// Chart is what the renderer draws for a ready dashboard
type Chart struct {
	Duration types.Duration `json:"duration"`
	Window   types.Window   `json:"window"`
	Average  *types.Number  `json:"average,omitempty"`
	Overlays []types.Line   `json:"overlays"`
	Series   types.Series   `json:"series"`
}

// View projects s onto the chart. It fails with ErrNotReady until data is loaded.
func View(s State) (Chart, error) {
	if s.Phase != Ready || s.Window == nil {
		return Chart{}, ErrNotReady
	}
	overlays := s.Overlays
	if overlays == nil {
		overlays = []types.Line{}
	}
	return Chart{
		Duration: s.Duration,
		Window:   *s.Window,
		Average:  s.Average,
		Overlays: overlays,
		Series:   s.Series,
	}, nil
}

func (c *Controller) selectDuration(s State, d types.Duration, now time.Time) (State, error) {
	w, err := c.builder.Compute(d, s.Series, now)
	if err != nil {
		return s, err
	}
	next := withAverage(s, w)
	next.Duration = d
	return next, nil
}

// withAverage installs w and recomputes the average, keeping the previous
// one when w holds no samples
func withAverage(s State, w types.Window) State {
	next := s
	next.Window = &w
	if avg, ok := window.Average(w, s.Series); ok {
		n := types.Number(avg)
		next.Average = &n
	}
	return next
}

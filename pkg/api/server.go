package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/tomgoth/hrv-dashboard/pkg/dashboard"
	"github.com/tomgoth/hrv-dashboard/pkg/feed"
	"github.com/tomgoth/hrv-dashboard/pkg/metrics"
	"github.com/tomgoth/hrv-dashboard/pkg/stats"
	"github.com/tomgoth/hrv-dashboard/pkg/storage"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
	"github.com/tomgoth/hrv-dashboard/pkg/window"
)

// errBadRequest marks malformed request input
var errBadRequest = errors.New("bad request")

// Options tunes a Server. Window padding and overlay quantiles come from the
// controller.
type Options struct {
	Timeout   time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	AccessLog io.Writer
	Now       func() time.Time
}

// Server implements the HTTP API server. It owns the dashboard state and
// serializes every event applied to it.
type Server struct {
	storage *storage.CachedStorage
	ctrl    *dashboard.Controller
	opts    Options
	addr    string
	server  *http.Server

	mu    sync.RWMutex
	state dashboard.State
}

// NewServer creates a new API server
func NewServer(addr string, store *storage.CachedStorage, ctrl *dashboard.Controller, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.AccessLog == nil {
		opts.AccessLog = io.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Server{
		storage: store,
		ctrl:    ctrl,
		opts:    opts,
		addr:    addr,
		state:   ctrl.Initial(),
	}
}

// Handler returns the routed and instrumented handler tree
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	route := func(path string, h http.HandlerFunc, methods ...string) {
		r.Handle(path, s.opts.Metrics.WrapHandler(path, h)).Methods(methods...)
	}

	route("/api/v1/dashboard", s.handleDashboard, http.MethodGet)
	route("/api/v1/dashboard/duration", s.handleDuration, http.MethodPost)
	route("/api/v1/dashboard/brush", s.handleBrush, http.MethodPost)
	route("/api/v1/series/{metric}", s.handleSeries, http.MethodGet)
	route("/api/v1/window", s.handleWindow, http.MethodGet)
	route("/api/v1/stats/{metric}", s.handleStats, http.MethodGet)
	route("/api/v1/metrics", s.handleMetricList, http.MethodGet)
	route("/health", s.handleHealth, http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics.Handler()).Methods(http.MethodGet)
	}

	var h http.Handler = r
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Content-Type"}),
	)(h)
	h = handlers.CombinedLoggingHandler(s.opts.AccessLog, h)
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(recoveryLogger{s.opts.Logger}))(h)
	return requestID(h)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.opts.Timeout,
		WriteTimeout: s.opts.Timeout,
	}

	return s.server.ListenAndServe()
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Apply reduces e into the current dashboard state
func (s *Server) Apply(e dashboard.Event) (dashboard.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.ctrl.Reduce(s.state, e, s.opts.Now())
	s.opts.Metrics.DashboardEvent(eventKind(e), err)
	if err != nil {
		return s.state, err
	}
	s.state = next
	return next, nil
}

// State returns the current dashboard state
func (s *Server) State() dashboard.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func eventKind(e dashboard.Event) string {
	switch e.(type) {
	case dashboard.Loaded:
		return "loaded"
	case dashboard.DurationSelected:
		return "duration"
	case dashboard.Brushed:
		return "brush"
	}
	return "unknown"
}

// handleDashboard returns the chart with the rMSSD series, or 503 while loading
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	chart, err := dashboard.View(s.State())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// handleDuration applies a duration toggle
func (s *Server) handleDuration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Duration string `json:"duration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	d, err := window.ParseDuration(req.Duration)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.respondState(w, r, dashboard.DurationSelected{Duration: d})
}

// handleBrush applies an interactive brush selection
func (s *Server) handleBrush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		s.writeError(w, r, fmt.Errorf("%w: start and end are required", errBadRequest))
		return
	}

	s.respondState(w, r, dashboard.Brushed{Start: req.Start, End: req.End})
}

func (s *Server) respondState(w http.ResponseWriter, r *http.Request, e dashboard.Event) {
	state, err := s.Apply(e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// handleSeries returns every stored sample of a metric
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	series, err := s.storage.Series(r.Context(), mux.Vars(r)["metric"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

type windowResponse struct {
	Metric  string         `json:"metric"`
	Window  types.Window   `json:"window"`
	Average *types.Number  `json:"average,omitempty"`
	Samples []types.Sample `json:"samples"`
}

// handleWindow answers a stateless window query. Either duration or both
// start and end select the range.
func (s *Server) handleWindow(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := q.Get("metric")
	if metric == "" {
		metric = feed.MetricRMSSD
	}

	var (
		win types.Window
		err error
	)
	switch {
	case q.Get("duration") != "":
		var d types.Duration
		if d, err = window.ParseDuration(q.Get("duration")); err != nil {
			s.writeError(w, r, err)
			return
		}
		var series types.Series
		if series, err = s.storage.Series(r.Context(), metric); err != nil {
			s.writeError(w, r, err)
			return
		}
		if win, err = s.ctrl.Builder().Compute(d, series, s.opts.Now()); err != nil {
			s.writeError(w, r, err)
			return
		}

	case q.Get("start") != "" && q.Get("end") != "":
		start, err := time.Parse(time.RFC3339, q.Get("start"))
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid start time", errBadRequest))
			return
		}
		end, err := time.Parse(time.RFC3339, q.Get("end"))
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: invalid end time", errBadRequest))
			return
		}
		win = window.Brush(start, end)

	default:
		s.writeError(w, r, fmt.Errorf("%w: duration or start and end are required", errBadRequest))
		return
	}

	result, err := s.storage.Query(r.Context(), metric, win.Start, win.End)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := windowResponse{Metric: metric, Window: win, Samples: result.Samples}
	if avg, ok := window.Average(win, result); ok {
		n := types.Number(avg)
		resp.Average = &n
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStats returns the descriptive statistics of a metric
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	series, err := s.storage.Series(r.Context(), mux.Vars(r)["metric"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	summary, err := dashboard.Describe(series, s.ctrl.Quantiles())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleMetricList lists the stored metrics
func (s *Server) handleMetricList(w http.ResponseWriter, r *http.Request) {
	names := s.storage.Metrics()
	infos := make([]storage.SeriesInfo, 0, len(names))
	for _, name := range names {
		info, err := s.storage.Describe(name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		infos = append(infos, info)
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleHealth reports 503 until the series are loaded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.State()
	status, code := "healthy", http.StatusOK
	if state.Phase != dashboard.Ready {
		status, code = "loading", http.StatusServiceUnavailable
	}

	_, hits, misses := s.storage.CacheStats()
	writeJSON(w, code, map[string]any{
		"status":       status,
		"phase":        state.Phase,
		"cache_hits":   hits,
		"cache_misses": misses,
	})
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, window.ErrInvalidDomain),
		errors.Is(err, stats.ErrQuantileRange):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrUnknownMetric),
		errors.Is(err, stats.ErrEmptyInput):
		return http.StatusNotFound
	case errors.Is(err, dashboard.ErrNotReady):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.opts.Logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", w.Header().Get(requestIDHeader),
			"error", err,
		)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

const requestIDHeader = "X-Request-ID"

// requestID propagates or assigns an X-Request-ID on every response
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic recovered", "panic", fmt.Sprint(v...))
}

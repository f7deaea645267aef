package api

import (
	"context"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/dashboard"
	"github.com/tomgoth/hrv-dashboard/pkg/feed"
	"github.com/tomgoth/hrv-dashboard/pkg/metrics"
	"github.com/tomgoth/hrv-dashboard/pkg/storage"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

const backendBody = `{"data":[
	{"rMSSD":55.2,"HFPWR":403.4287934927351,"LFPWR":0,"createdAt":"2026-05-05T19:05:30Z"},
	{"rMSSD":41.6,"HFPWR":1096.6331584284585,"LFPWR":20.085536923187668,"createdAt":"2026-05-04T07:15:00Z"}
]}`

func TestLoadRetriesUntilReady(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "warming up", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, backendBody)
	}))
	defer backend.Close()

	store, err := storage.NewStorage(nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	m := metrics.New()
	srv := NewServer(":0", storage.NewCachedStorage(store, 16, time.Minute, m), dashboard.NewController(), Options{
		Metrics: m,
		Now:     func() time.Time { return now },
	})

	client := feed.New(backend.URL, time.Second, m)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Load(ctx, client, 10*time.Millisecond, time.UTC); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("Expected 2 backend calls, got %d", calls.Load())
	}

	state := srv.State()
	if state.Phase != dashboard.Ready {
		t.Fatalf("Expected ready, got %s", state.Phase)
	}
	if state.Average == nil || *state.Average != 48.4 {
		t.Errorf("Expected average 48.4, got %v", state.Average)
	}

	if got := store.Metrics(); len(got) != 3 {
		t.Errorf("Expected 3 stored metrics, got %v", got)
	}
	lnlf, err := store.Series(ctx, feed.MetricLnLF)
	if err != nil {
		t.Fatalf("Failed to read lnlf: %v", err)
	}
	// stored chronologically: ln(e^3) first, ln(0) second
	if len(lnlf.Samples) != 2 || math.Abs(lnlf.Samples[0].Value-3) > 1e-9 || !math.IsInf(lnlf.Samples[1].Value, -1) {
		t.Errorf("Unexpected lnlf series %+v", lnlf)
	}

	// ln(0) is not representable in JSON and is served as null
	rec := do(t, srv.Handler(), http.MethodGet, "/api/v1/series/lnlf", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var body struct {
		Samples []struct {
			Y *float64 `json:"y"`
		} `json:"samples"`
	}
	decode(t, rec, &body)
	if len(body.Samples) != 2 || body.Samples[0].Y == nil || body.Samples[1].Y != nil {
		t.Errorf("Expected ln(0) as null, got %+v", body.Samples)
	}
}

func TestLoadStopsOnCancel(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer backend.Close()

	store, err := storage.NewStorage(nil)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	defer store.Close()

	srv := NewServer(":0", storage.NewCachedStorage(store, 16, time.Minute, nil), dashboard.NewController(), Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := srv.Load(ctx, feed.New(backend.URL, time.Second, nil), 10*time.Millisecond, time.UTC); err == nil {
		t.Fatal("Expected Load to fail once the context ends")
	}
	if srv.State().Phase != dashboard.Loading {
		t.Errorf("Expected the dashboard to stay loading, got %s", srv.State().Phase)
	}
}

func TestLoadTwice(t *testing.T) {
	srv, _ := newTestServer(t, true)

	if _, err := srv.Apply(dashboard.Loaded{Series: types.Series{Metric: "rmssd"}}); err == nil {
		t.Error("Expected a second load to be rejected")
	}
}

package api

import (
	"context"
	"fmt"
	"time"

	"github.com/tomgoth/hrv-dashboard/pkg/dashboard"
	"github.com/tomgoth/hrv-dashboard/pkg/feed"
)

// Load fetches the recent measurements, retrying every interval until the
// backend answers, stores every shaped series and hands the rMSSD series to
// the dashboard. It returns when the dashboard is ready or ctx ends.
func (s *Server) Load(ctx context.Context, client *feed.Client, interval time.Duration, loc *time.Location) error {
	logger := s.opts.Logger.With("component", "loader")

	records, err := feed.FetchWithRetry(ctx, client, interval, logger)
	if err != nil {
		return err
	}

	bundle, err := feed.Shape(records, loc)
	if err != nil {
		return fmt.Errorf("failed to shape records: %w", err)
	}

	for _, series := range bundle.All() {
		if err := s.storage.Write(ctx, series); err != nil {
			return fmt.Errorf("failed to store %s: %w", series.Metric, err)
		}
		s.opts.Metrics.SeriesLoaded(series.Metric, len(series.Samples))
	}

	state, err := s.Apply(dashboard.Loaded{Series: bundle.RMSSD})
	if err != nil {
		return err
	}

	logger.Info("dashboard ready",
		"records", len(records),
		"duration", state.Duration,
		"overlays", len(state.Overlays),
	)
	return nil
}

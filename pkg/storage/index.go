package storage

import (
	"fmt"
	"sort"
)

// Index maps metric names to the metadata of their stored series
type Index struct {
	series map[uint64]*seriesMetadata
	byName map[string]uint64
}

// seriesMetadata holds metadata about a single series
type seriesMetadata struct {
	ID      uint64
	Metric  string
	Unit    string
	Count   int
	MinTime int64 // unix ms of the earliest sample
	MaxTime int64 // unix ms of the latest sample
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		series: make(map[uint64]*seriesMetadata),
		byName: make(map[string]uint64),
	}
}

// AddSeries registers metric and returns its series ID. Registering a known
// metric again resets its sample statistics.
func (idx *Index) AddSeries(metric, unit string) uint64 {
	id := calculateFingerprint(metric)
	idx.series[id] = &seriesMetadata{ID: id, Metric: metric, Unit: unit}
	idx.byName[metric] = id
	return id
}

// Lookup returns the metadata of metric
func (idx *Index) Lookup(metric string) (*seriesMetadata, bool) {
	id, ok := idx.byName[metric]
	if !ok {
		return nil, false
	}
	meta, ok := idx.series[id]
	return meta, ok
}

// UpdateTimeRange widens the time range of a series and adds to its sample count
func (idx *Index) UpdateTimeRange(id uint64, minTime, maxTime int64, count int) error {
	meta, ok := idx.series[id]
	if !ok {
		return fmt.Errorf("series %d not found", id)
	}

	if meta.Count == 0 || minTime < meta.MinTime {
		meta.MinTime = minTime
	}
	if meta.Count == 0 || maxTime > meta.MaxTime {
		meta.MaxTime = maxTime
	}
	meta.Count += count

	return nil
}

// Metrics returns the indexed metric names in sorted order
func (idx *Index) Metrics() []string {
	names := make([]string, 0, len(idx.byName))
	for name := range idx.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeriesCount returns the number of indexed series
func (idx *Index) SeriesCount() int {
	return len(idx.series)
}

// calculateFingerprint hashes a metric name with FNV-1a
func calculateFingerprint(metric string) uint64 {
	var hash uint64 = 14695981039346656037 // FNV-1a offset basis
	for i := 0; i < len(metric); i++ {
		hash ^= uint64(metric[i])
		hash *= 1099511628211 // FNV-1a prime
	}
	return hash
}

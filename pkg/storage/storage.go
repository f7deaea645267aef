package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/tomgoth/hrv-dashboard/pkg/types"
)

// ErrUnknownMetric is returned when a query names a metric that was never written
var ErrUnknownMetric = errors.New("storage: unknown metric")

// Storage interface defines the contract for the sample store
type Storage interface {
	// Write replaces the stored samples of series.Metric
	Write(ctx context.Context, series types.Series) error

	// Query returns the samples of metric strictly between start and end
	Query(ctx context.Context, metric string, start, end time.Time) (types.Series, error)

	// Series returns every stored sample of metric
	Series(ctx context.Context, metric string) (types.Series, error)

	// Metrics lists the stored metric names
	Metrics() []string

	// Describe returns the metadata of metric
	Describe(metric string) (SeriesInfo, error)

	// Close closes the storage
	Close() error
}

// SeriesInfo summarises a stored series
type SeriesInfo struct {
	Metric string    `json:"metric"`
	Unit   string    `json:"unit,omitempty"`
	Count  int       `json:"count"`
	First  time.Time `json:"first,omitempty"`
	Last   time.Time `json:"last,omitempty"`
}

// Config holds storage configuration
type Config struct {
	CompressionLevel int
	BlockSize        time.Duration
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		CompressionLevel: 3,
		BlockSize:        24 * time.Hour,
	}
}

// badgerStorage implements Storage on an in-memory BadgerDB
type badgerStorage struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	compressor *Compressor
	mu         sync.RWMutex
}

type blockPayload struct {
	Count            int
	CompressedTS     []byte
	CompressedValues []byte
	CompressedLabels []byte
}

// NewStorage creates a new storage instance. Nothing is written to disk.
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultConfig().BlockSize
	}

	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	return &badgerStorage{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		compressor: compressor,
	}, nil
}

// Write implements Storage.Write
func (s *badgerStorage) Write(ctx context.Context, series types.Series) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if series.Metric == "" {
		return fmt.Errorf("series without metric name")
	}

	if meta, ok := s.index.Lookup(series.Metric); ok {
		if err := s.deletePrefix(seriesPrefix(meta.ID)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", series.Metric, err)
		}
	}
	seriesID := s.index.AddSeries(series.Metric, series.Unit)

	blockMs := s.cfg.BlockSize.Milliseconds()
	var (
		blockTime int64
		block     []types.Sample
	)
	flush := func() error {
		if len(block) == 0 {
			return nil
		}
		if err := s.writeBlock(seriesID, blockTime, block); err != nil {
			return fmt.Errorf("failed to write block: %w", err)
		}
		block = block[:0]
		return nil
	}

	// blocks are written once each, so samples go in chronological order
	samples := slices.Clone(series.Samples)
	slices.SortStableFunc(samples, func(a, b types.Sample) int {
		return a.Timestamp.Compare(b.Timestamp)
	})

	for _, sample := range samples {
		if err := ctx.Err(); err != nil {
			return err
		}
		bt := blockStart(sample.Timestamp.UnixMilli(), blockMs)
		if len(block) > 0 && bt != blockTime {
			if err := flush(); err != nil {
				return err
			}
		}
		blockTime = bt
		block = append(block, sample)
	}

	return flush()
}

// deletePrefix removes every key starting with prefix
func (s *badgerStorage) deletePrefix(prefix []byte) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// blockStart rounds ms down to a multiple of blockMs, also for times before 1970
func blockStart(ms, blockMs int64) int64 {
	start := ms - ms%blockMs
	if ms < 0 && ms%blockMs != 0 {
		start -= blockMs
	}
	return start
}

// writeBlock writes a block of samples to BadgerDB
func (s *badgerStorage) writeBlock(seriesID uint64, blockTime int64, samples []types.Sample) error {
	timestamps := make([]int64, len(samples))
	values := make([]float64, len(samples))
	labels := make([]string, len(samples))

	for i, sample := range samples {
		timestamps[i] = sample.Timestamp.UnixMilli()
		values[i] = sample.Value
		labels[i] = sample.Label
	}

	compressedTS, err := s.compressor.CompressTimestamps(timestamps)
	if err != nil {
		return fmt.Errorf("failed to compress timestamps: %w", err)
	}

	compressedVals, err := s.compressor.CompressValues(values)
	if err != nil {
		return fmt.Errorf("failed to compress values: %w", err)
	}

	compressedLabels, err := s.compressor.CompressLabels(labels)
	if err != nil {
		return fmt.Errorf("failed to compress labels: %w", err)
	}

	payloadBytes, err := json.Marshal(&blockPayload{
		Count:            len(samples),
		CompressedTS:     compressedTS,
		CompressedValues: compressedVals,
		CompressedLabels: compressedLabels,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	key := generateKey(seriesID, blockTime)
	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("block %d of series %d written twice", blockTime, seriesID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, payloadBytes)
	})
	if err != nil {
		return err
	}

	return s.index.UpdateTimeRange(seriesID, timestamps[0], timestamps[len(timestamps)-1], len(samples))
}

// Query implements Storage.Query
func (s *badgerStorage) Query(ctx context.Context, metric string, start, end time.Time) (types.Series, error) {
	return s.scan(ctx, metric, &start, &end)
}

// Series implements Storage.Series
func (s *badgerStorage) Series(ctx context.Context, metric string) (types.Series, error) {
	return s.scan(ctx, metric, nil, nil)
}

// scan reads the blocks of metric in key order. With bounds set only the
// blocks overlapping [start, end] are read and samples outside (start, end)
// are dropped.
func (s *badgerStorage) scan(ctx context.Context, metric string, start, end *time.Time) (types.Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.index.Lookup(metric)
	if !ok {
		return types.Series{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	result := types.Series{
		Metric:  meta.Metric,
		Unit:    meta.Unit,
		Samples: []types.Sample{},
	}

	blockMs := s.cfg.BlockSize.Milliseconds()
	prefix := seriesPrefix(meta.ID)
	seek := prefix
	var last []byte
	if start != nil && end != nil {
		seek = generateKey(meta.ID, blockStart(start.UnixMilli(), blockMs))
		last = generateKey(meta.ID, blockStart(end.UnixMilli(), blockMs))
	}

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			if last != nil && bytes.Compare(item.Key(), last) > 0 {
				break
			}

			var samples []types.Sample
			err := item.Value(func(val []byte) error {
				var err error
				samples, err = s.decodeBlock(val)
				return err
			})
			if err != nil {
				return err
			}

			for _, sample := range samples {
				if start != nil && !(sample.Timestamp.After(*start) && sample.Timestamp.Before(*end)) {
					continue
				}
				result.Samples = append(result.Samples, sample)
			}
		}
		return nil
	})
	if err != nil {
		return types.Series{}, err
	}

	return result, nil
}

// decodeBlock reverses writeBlock
func (s *badgerStorage) decodeBlock(payloadBytes []byte) ([]types.Sample, error) {
	var payload blockPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	timestamps, err := s.compressor.DecompressTimestamps(payload.CompressedTS, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress timestamps: %w", err)
	}

	values, err := s.compressor.DecompressValues(payload.CompressedValues, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress values: %w", err)
	}

	labels, err := s.compressor.DecompressLabels(payload.CompressedLabels, payload.Count)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress labels: %w", err)
	}

	samples := make([]types.Sample, payload.Count)
	for i := range samples {
		samples[i] = types.Sample{
			Timestamp: time.UnixMilli(timestamps[i]).UTC(),
			Value:     values[i],
			Label:     labels[i],
		}
	}

	return samples, nil
}

// Metrics implements Storage.Metrics
func (s *badgerStorage) Metrics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Metrics()
}

// Describe implements Storage.Describe
func (s *badgerStorage) Describe(metric string) (SeriesInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta, ok := s.index.Lookup(metric)
	if !ok {
		return SeriesInfo{}, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}

	info := SeriesInfo{Metric: meta.Metric, Unit: meta.Unit, Count: meta.Count}
	if meta.Count > 0 {
		info.First = time.UnixMilli(meta.MinTime).UTC()
		info.Last = time.UnixMilli(meta.MaxTime).UTC()
	}
	return info, nil
}

// Close implements Storage.Close
func (s *badgerStorage) Close() error {
	s.compressor.Close()
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func seriesPrefix(seriesID uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 16), seriesID)
}

// generateKey generates the storage key of a block. The sign bit of the block
// time is flipped so keys sort chronologically across the epoch.
func generateKey(seriesID uint64, blockTime int64) []byte {
	return binary.BigEndian.AppendUint64(seriesPrefix(seriesID), uint64(blockTime)^(1<<63))
}

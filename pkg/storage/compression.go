package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

var errShortBlock = errors.New("block truncated")

// Compressor encodes sample blocks: timestamps as varint delta-of-delta,
// values as XOR against the previous value, labels length-prefixed; each
// stream is then zstd compressed.
type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewCompressor creates a new compressor. Levels 1-4 map to the zstd speed presets.
func NewCompressor(level int) (*Compressor, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	return &Compressor{
		encoder: encoder,
		decoder: decoder,
	}, nil
}

// CompressTimestamps compresses millisecond timestamps
func (c *Compressor) CompressTimestamps(timestamps []int64) ([]byte, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(timestamps)*2)
	buf = binary.AppendVarint(buf, timestamps[0])

	var prevDelta int64
	for i := 1; i < len(timestamps); i++ {
		delta := timestamps[i] - timestamps[i-1]
		buf = binary.AppendVarint(buf, delta-prevDelta)
		prevDelta = delta
	}

	return c.encoder.EncodeAll(buf, nil), nil
}

// DecompressTimestamps restores count timestamps
func (c *Compressor) DecompressTimestamps(data []byte, count int) ([]int64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	timestamps := make([]int64, count)
	var prevDelta int64
	for i := 0; i < count; i++ {
		v, n := binary.Varint(raw)
		if n <= 0 {
			return nil, fmt.Errorf("timestamp %d: %w", i, errShortBlock)
		}
		raw = raw[n:]

		if i == 0 {
			timestamps[0] = v
			continue
		}
		delta := v + prevDelta
		timestamps[i] = timestamps[i-1] + delta
		prevDelta = delta
	}

	return timestamps, nil
}

// CompressValues compresses float64 values
func (c *Compressor) CompressValues(values []float64) ([]byte, error) {
	if len(values) == 0 {
		return nil, nil
	}

	buf := make([]byte, 0, len(values)*8)
	var prevBits uint64
	for _, v := range values {
		bits := math.Float64bits(v)
		buf = binary.LittleEndian.AppendUint64(buf, bits^prevBits)
		prevBits = bits
	}

	return c.encoder.EncodeAll(buf, nil), nil
}

// DecompressValues restores count values
func (c *Compressor) DecompressValues(data []byte, count int) ([]float64, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}
	if len(raw) < count*8 {
		return nil, errShortBlock
	}

	values := make([]float64, count)
	var prevBits uint64
	for i := range values {
		bits := binary.LittleEndian.Uint64(raw[i*8:]) ^ prevBits
		values[i] = math.Float64frombits(bits)
		prevBits = bits
	}

	return values, nil
}

// CompressLabels compresses display labels
func (c *Compressor) CompressLabels(labels []string) ([]byte, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	var buf []byte
	for _, l := range labels {
		buf = binary.AppendUvarint(buf, uint64(len(l)))
		buf = append(buf, l...)
	}

	return c.encoder.EncodeAll(buf, nil), nil
}

// DecompressLabels restores count labels
func (c *Compressor) DecompressLabels(data []byte, count int) ([]string, error) {
	if count == 0 {
		return nil, nil
	}

	raw, err := c.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompression failed: %w", err)
	}

	labels := make([]string, count)
	for i := range labels {
		size, n := binary.Uvarint(raw)
		if n <= 0 || uint64(len(raw)-n) < size {
			return nil, fmt.Errorf("label %d: %w", i, errShortBlock)
		}
		labels[i] = string(raw[n : n+int(size)])
		raw = raw[n+int(size):]
	}

	return labels, nil
}

// Close closes the compressor resources
func (c *Compressor) Close() {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
}

package telemetry

import (
	"encoding/json"

	"dashproxy/internal/loadmodel"
)

// wireSample mirrors the JSON payload schema of spec §6.2. Field names are
// fixed by the publisher contract; normalizedValues intentionally reuses the
// absoluteValues key names, with the publisher guarantee that those fields
// carry unit-normalized [0,1] ratios instead of raw magnitudes.
type wireSample struct {
	ServerSocket string `json:"server_socket"`
	Absolute     struct {
		MemoryCurrentBytes  uint64  `json:"memory_current_bytes"`
		DiskReadBytesPerSec float64 `json:"disk_read_bytes_per_sec"`
	} `json:"absolute_values"`
	Normalized struct {
		MemoryCurrentBytes  float64 `json:"memory_current_bytes"`
		DiskReadBytesPerSec float64 `json:"disk_read_bytes_per_sec"`
	} `json:"normalized_values"`
	TimestampUnix int64 `json:"timestamp_unix"`
}

// decodeSample parses payload as a wireSample and converts it into the
// loadmodel.Sample shape the aggregation consumes. It returns an error for
// malformed JSON or a missing server_socket key; callers treat both as a
// silently-dropped sample per spec §4.2 and §7.
func decodeSample(payload []byte) (loadmodel.Sample, error) {
	var w wireSample
	if err := json.Unmarshal(payload, &w); err != nil {
		return loadmodel.Sample{}, err
	}
	if w.ServerSocket == "" {
		return loadmodel.Sample{}, errEmptyServerSocket
	}
	return loadmodel.Sample{
		ServerSocket: w.ServerSocket,
		MemoryBytes:  w.Absolute.MemoryCurrentBytes,
		DiskBytesSec: w.Absolute.DiskReadBytesPerSec,
		LM:           w.Normalized.MemoryCurrentBytes,
		LD:           w.Normalized.DiskReadBytesPerSec,
		T:            w.TimestampUnix,
	}, nil
}

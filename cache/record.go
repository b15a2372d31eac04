package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record tracks size and recency for one cached entry. It is stored in the
// meta partition under the same key as the content it describes.
type Record struct {
	SizeBytes    int64     `json:"size_bytes"`
	LastAccessed time.Time `json:"last_accessed"`
	Checksum     string    `json:"checksum,omitempty"`
}

func encodeRecord(rec *Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding record: %w", err)
	}
	return &rec, nil
}

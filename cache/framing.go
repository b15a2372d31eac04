package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

var (
	// MagicBytes is the 4-byte prefix for framed cache values.
	MagicBytes = []byte("DVC1")

	// ErrInvalidMagic is returned when a value doesn't start with the expected magic bytes.
	ErrInvalidMagic = errors.New("invalid magic bytes: expected DVC1")

	// ErrHeaderTooLarge is returned when the header exceeds MaxHeaderSize.
	ErrHeaderTooLarge = errors.New("header exceeds maximum size")
)

// MaxHeaderSize is the maximum allowed size for the JSON header (64 KiB).
const MaxHeaderSize = 64 * 1024

// Value encodings.
const (
	EncodingIdentity = ""
	EncodingZstd     = "zstd"
)

// FrameHeader describes a framed cache value.
type FrameHeader struct {
	ContentLength int64  `json:"content_length"`
	CachedAt      string `json:"cached_at"`
	ContentHash   string `json:"content_hash"`
	Encoding      string `json:"encoding,omitempty"`
}

// Shared zstd coders. EncodeAll/DecodeAll on nil-stream instances are safe
// for concurrent use.
var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// EncodeFrame builds a framed cache value.
// Format: MAGIC (4 bytes) | HDRLEN (uint32 big-endian) | HDRBYTES (JSON) | BODYBYTES
func EncodeFrame(header *FrameHeader, body []byte) ([]byte, error) {
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("marshaling header: %w", err)
	}
	if len(headerBytes) > MaxHeaderSize {
		return nil, ErrHeaderTooLarge
	}

	if header.Encoding == EncodingZstd {
		body = zstdEncoder.EncodeAll(body, nil)
	}

	buf := bytes.NewBuffer(make([]byte, 0, 4+4+len(headerBytes)+len(body)))
	buf.Write(MagicBytes)

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(headerBytes))) //nolint:gosec // bounds-checked above
	buf.Write(lenBuf[:])
	buf.Write(headerBytes)
	buf.Write(body)

	return buf.Bytes(), nil
}

// DecodeFrame parses a framed cache value and returns the header and body.
func DecodeFrame(data []byte) (*FrameHeader, []byte, error) {
	if len(data) < 8 {
		return nil, nil, fmt.Errorf("value too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:4], MagicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	headerLen := binary.BigEndian.Uint32(data[4:8])
	if headerLen > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}
	if uint32(len(data)-8) < headerLen {
		return nil, nil, fmt.Errorf("truncated header: want %d bytes, have %d", headerLen, len(data)-8)
	}

	var header FrameHeader
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, nil, fmt.Errorf("parsing header: %w", err)
	}

	body := data[8+headerLen:]

	switch header.Encoding {
	case EncodingIdentity:
	case EncodingZstd:
		decoded, err := zstdDecoder.DecodeAll(body, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("decompressing body: %w", err)
		}
		body = decoded
	default:
		return nil, nil, fmt.Errorf("unknown encoding %q", header.Encoding)
	}

	return &header, body, nil
}

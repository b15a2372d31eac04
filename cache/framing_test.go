package cache

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	body := []byte("cached document bytes")
	header := &FrameHeader{
		ContentLength: int64(len(body)),
		CachedAt:      "2026-01-02T03:04:05Z",
		ContentHash:   "abc123",
	}

	framed, err := EncodeFrame(header, body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(framed, MagicBytes))

	got, gotBody, err := DecodeFrame(framed)
	require.NoError(t, err)
	assert.Equal(t, header.ContentLength, got.ContentLength)
	assert.Equal(t, header.CachedAt, got.CachedAt)
	assert.Equal(t, header.ContentHash, got.ContentHash)
	assert.Equal(t, body, gotBody)
}

func TestFrameZstdRoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte("compressible content "), 256)
	header := &FrameHeader{
		ContentLength: int64(len(body)),
		Encoding:      EncodingZstd,
	}

	framed, err := EncodeFrame(header, body)
	require.NoError(t, err)
	assert.Less(t, len(framed), len(body), "zstd frame should be smaller than a repetitive body")

	got, gotBody, err := DecodeFrame(framed)
	require.NoError(t, err)
	assert.Equal(t, EncodingZstd, got.Encoding)
	assert.Equal(t, body, gotBody)
}

func TestFrameEmptyBody(t *testing.T) {
	framed, err := EncodeFrame(&FrameHeader{ContentLength: 0}, nil)
	require.NoError(t, err)

	_, body, err := DecodeFrame(framed)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Run("invalid magic", func(t *testing.T) {
		_, _, err := DecodeFrame([]byte("XXXX\x00\x00\x00\x02{}"))
		require.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("too short", func(t *testing.T) {
		_, _, err := DecodeFrame([]byte("DVC1"))
		require.Error(t, err)
	})

	t.Run("truncated header", func(t *testing.T) {
		framed, err := EncodeFrame(&FrameHeader{ContentLength: 4}, []byte("body"))
		require.NoError(t, err)

		_, _, err = DecodeFrame(framed[:10])
		require.Error(t, err)
	})

	t.Run("unknown encoding", func(t *testing.T) {
		framed, err := EncodeFrame(&FrameHeader{Encoding: "brotli"}, []byte("body"))
		require.NoError(t, err)

		_, _, err = DecodeFrame(framed)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown encoding")
	})
}

func TestEncodeFrameHeaderTooLarge(t *testing.T) {
	header := &FrameHeader{
		ContentHash: strings.Repeat("a", MaxHeaderSize+1),
	}

	_, err := EncodeFrame(header, []byte("body"))
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

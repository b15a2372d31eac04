package doccache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumBytes(t *testing.T) {
	c1 := ChecksumBytes([]byte("hello world"))
	c2 := ChecksumBytes([]byte("hello world"))
	c3 := ChecksumBytes([]byte("hello worlds"))

	assert.Equal(t, c1, c2)
	assert.NotEqual(t, c1, c3)
	assert.False(t, c1.IsZero())
}

func TestChecksumString(t *testing.T) {
	c := ChecksumBytes([]byte("content"))

	s := c.String()
	assert.Len(t, s, ChecksumSize*2)

	parsed, err := ParseChecksum(s)
	require.NoError(t, err)
	assert.Equal(t, c, parsed)
}

func TestChecksumShortString(t *testing.T) {
	c := ChecksumBytes([]byte("content"))
	assert.Len(t, c.ShortString(), 16)
}

func TestParseChecksumErrors(t *testing.T) {
	_, err := ParseChecksum("abc123")
	require.Error(t, err)

	_, err = ParseChecksum("zz" + ChecksumBytes([]byte("x")).String()[2:])
	require.Error(t, err)
}

func TestChecksumMarshalText(t *testing.T) {
	c := ChecksumBytes([]byte("roundtrip"))

	text, err := c.MarshalText()
	require.NoError(t, err)

	var got Checksum
	require.NoError(t, got.UnmarshalText(text))
	assert.Equal(t, c, got)
}

func TestChecksumIsZero(t *testing.T) {
	var zero Checksum
	assert.True(t, zero.IsZero())
}

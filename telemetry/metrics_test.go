package telemetry

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithPrometheus(t *testing.T) {
	tel, err := New(Config{
		ServiceName:      "doc-cache-test",
		ServiceVersion:   "0.0.1",
		EnablePrometheus: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	require.NotNil(t, tel.Handler())

	counter, err := tel.Meter().Int64Counter("test_counter_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	tel.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_counter_total")
}

func TestNewWithoutPrometheus(t *testing.T) {
	tel, err := New(Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.Nil(t, tel.Handler())

	// Instruments still work against the manual reader.
	counter, err := tel.Meter().Int64Counter("noop_counter_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)
}

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogBuffer_JoinsPartialLines(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("first\nsec"))
	_, _ = b.Write([]byte("ond\n\nthird"))

	lines, dropped := b.Snapshot(0)
	assert.Equal(t, []string{"first", "second"}, lines)
	assert.Zero(t, dropped)

	_, _ = b.Write([]byte("\r\n"))
	lines, _ = b.Snapshot(0)
	assert.Equal(t, []string{"first", "second", "third"}, lines)
	assert.NoError(t, b.Sync())
}

func TestLogBuffer_DropsOldest(t *testing.T) {
	b := NewLogBuffer(2)
	_, _ = b.Write([]byte("a\nb\nc\n"))

	lines, dropped := b.Snapshot(10)
	assert.Equal(t, []string{"b", "c"}, lines)
	assert.Equal(t, uint64(1), dropped)
}

func TestLogBuffer_Handler(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("a\nb\nc\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp LogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"b", "c"}, resp.Lines)

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?tail=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogBuffer_LevelFilter(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("2024-06-01T10:00:00.000Z\tINFO\tcalibrated\n"))
	_, _ = b.Write([]byte("2024-06-01T10:00:01.000Z\tWARN\tread failed\t{\"sensor\": \"barometer\"}\n"))
	_, _ = b.Write([]byte("2024-06-01T10:00:02.000Z\tERROR\tsensor not found, halting\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?level=warn", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp LogsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Lines, 2)
	assert.Contains(t, resp.Lines[0], "read failed")

	rec = httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?level=loud", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogBuffer_TextFormat(t *testing.T) {
	b := NewLogBuffer(1)
	_, _ = b.Write([]byte("a\nb\n"))

	rec := httptest.NewRecorder()
	b.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/logs?format=text", nil))
	assert.Equal(t, "[dropped=1]\nb\n", rec.Body.String())
}

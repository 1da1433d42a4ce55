package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cansat-altimeter/internal/telemetry"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

func TestStore_IngestParsesTrackedLines(t *testing.T) {
	s := NewStore(10)

	key, v, ok := s.Ingest("Pressure: 101325.00 Pa", t0)
	require.True(t, ok)
	assert.Equal(t, telemetry.KeyPressure, key)
	assert.Equal(t, 101325.0, v)

	_, _, ok = s.Ingest("BMP Temp: 21.00 C", t0)
	assert.False(t, ok)
	_, _, ok = s.Ingest("Filtered altitude: -3.50 m", t0.Add(time.Second))
	require.True(t, ok)

	assert.Equal(t, []Point{{T: t0.Add(time.Second), V: -3.5}}, s.Series(telemetry.KeyFilteredAltitude))
	st := s.Stats()
	assert.Equal(t, uint64(3), st.Lines)
	assert.Equal(t, uint64(2), st.Parsed)
	assert.Equal(t, 1, st.Points[telemetry.KeyPressure])
	assert.Equal(t, 0, st.Points[telemetry.KeyMPUTemp])
}

func TestStore_DropsOldest(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 5; i++ {
		s.Add(telemetry.KeyMPUTemp, Point{T: t0.Add(time.Duration(i) * time.Second), V: float64(i)})
	}
	got := s.Series(telemetry.KeyMPUTemp)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].V, got[1].V, got[2].V})

	// Copies are detached from the store.
	got[0].V = 99
	assert.Equal(t, 2.0, s.Series(telemetry.KeyMPUTemp)[0].V)
}

func TestStore_DefaultWindow(t *testing.T) {
	assert.Equal(t, 100, NewStore(0).MaxPoints())
}

func TestStore_SeriesHandler(t *testing.T) {
	s := NewStore(5)
	s.Add(telemetry.KeyPressure, Point{T: t0, V: 1})

	rec := httptest.NewRecorder()
	s.SeriesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series?key=pressure", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		MaxPoints int                `json:"max_points"`
		Series    map[string][]Point `json:"series"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 5, resp.MaxPoints)
	require.Len(t, resp.Series, 1)
	assert.Equal(t, 1.0, resp.Series["pressure"][0].V)

	rec = httptest.NewRecorder()
	s.SeriesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series", nil))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Series, len(telemetry.Keys))

	rec = httptest.NewRecorder()
	s.SeriesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/series?key=bogus", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.SeriesHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/series", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTailBuffer_KeepsMostRecent(t *testing.T) {
	tb := newTailBuffer(2, 4)
	tb.add("one")
	tb.add("two")
	tb.add("three-long")
	assert.Equal(t, []string{"two", "thre"}, tb.snapshot())

	tb.add("four")
	assert.Equal(t, []string{"thre", "four"}, tb.snapshot())

	none := newTailBuffer(0, 0)
	none.add("x")
	assert.Empty(t, none.snapshot())
}

func TestClip_KeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "alt ", clip("alt 120m", 4))
	assert.Equal(t, "T=21", clip("T=21°C", 5))
	assert.Equal(t, "short", clip("short", 10))
}

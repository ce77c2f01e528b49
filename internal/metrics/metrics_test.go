package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestObserveBulk(t *testing.T) {
	ObserveBulk("climate", "ok", 3, 1, 2, 40*time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, `geoatlas_bulk_rows_total{dataset="climate",outcome="created"}`)
	assert.Contains(t, body, `geoatlas_bulk_rows_total{dataset="climate",outcome="failed"}`)
	assert.Contains(t, body, `geoatlas_bulk_duration_seconds_count{dataset="climate",status="ok"}`)
}

func TestObserveMap(t *testing.T) {
	ObserveMap("food-security", true, time.Millisecond)
	ObserveMap("food-security", false, time.Millisecond)

	body := scrape(t)
	assert.Contains(t, body, `geoatlas_map_compose_duration_seconds_count{cache="hit",dataset="food-security"}`)
	assert.Contains(t, body, `geoatlas_map_compose_duration_seconds_count{cache="miss",dataset="food-security"}`)
}

func TestImportGauge(t *testing.T) {
	ImportStarted()
	assert.Contains(t, scrape(t), "geoatlas_bulk_active_imports 1")
	ImportFinished()
	assert.Contains(t, scrape(t), "geoatlas_bulk_active_imports 0")
}

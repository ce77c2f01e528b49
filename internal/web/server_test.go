package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/geoatlas/internal/config"
	"github.com/JonMunkholm/geoatlas/internal/core"
	_ "github.com/JonMunkholm/geoatlas/internal/core/datasets"
	"github.com/JonMunkholm/geoatlas/internal/store/storetest"
	mw "github.com/JonMunkholm/geoatlas/internal/web/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

const seedGeoJSON = `{"type":"FeatureCollection","features":[
	{"type":"Feature","properties":{"name":"Aceh","code":"ID-AC"},"geometry":{"type":"Point","coordinates":[96.7,4.7]}},
	{"type":"Feature","properties":{"name":"Bali","code":"ID-BA"},"geometry":{"type":"Point","coordinates":[115.2,-8.4]}},
	{"type":"Feature","properties":{"name":"Papua","code":"ID-PA"},"geometry":null}
]}`

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
			MaxBodyBytes:   1 << 16,
		},
		Bulk: config.BulkConfig{
			ChunkSize:     50,
			MaxRows:       100,
			MaxConcurrent: 2,
			MaxWaitTime:   time.Second,
			Timeout:       time.Minute,
		},
		Security: config.SecurityConfig{
			JWTSecret:  testSecret,
			WriteRoles: []string{core.AdminRole, "analyst"},
		},
		Geometry: config.GeometryConfig{NameProperty: "name", CodeProperty: "code"},
		Cache:    config.CacheConfig{TTL: time.Minute},
	}
}

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func newTestServer(t *testing.T, cfg *config.Config) *apiClient {
	t.Helper()
	svc, err := core.NewService(storetest.New(t), cfg)
	require.NoError(t, err)

	srv := NewServer(svc, cfg)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &apiClient{t: t, router: srv.Router()}
}

func token(t *testing.T, name, role string) string {
	t.Helper()
	tok, err := mw.SignToken(testSecret, "", core.Principal{Name: name, Role: role})
	require.NoError(t, err)
	return tok
}

// do sends a request; tok may be empty for anonymous calls.
func (c *apiClient) do(method, path, tok, contentType, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = "192.0.2.10:5555"
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// seeded returns a client over a store holding three provinces.
func seeded(t *testing.T) (*apiClient, string) {
	t.Helper()
	c := newTestServer(t, testConfig())
	admin := token(t, "dewi", core.AdminRole)

	rec := c.do(http.MethodPost, "/api/provinces/seed", admin, "application/geo+json", seedGeoJSON)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.SeedResult](t, rec)
	require.Equal(t, 3, res.Created)
	return c, admin
}

func TestHealth(t *testing.T) {
	c := newTestServer(t, testConfig())

	rec := c.do(http.MethodGet, "/healthz", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[healthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 2, body.Imports.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAuth(t *testing.T) {
	c := newTestServer(t, testConfig())

	t.Run("anonymous reads pass", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/provinces", "", "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("anonymous writes are unauthorized", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/provinces/seed", "", "", seedGeoJSON)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH001", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("read-only role is forbidden", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/provinces/seed", token(t, "sari", "viewer"), "", seedGeoJSON)
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "AUTH002", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("bad signature is rejected", func(t *testing.T) {
		forged, err := mw.SignToken("other-secret", "", core.Principal{Name: "dewi", Role: core.AdminRole})
		require.NoError(t, err)
		rec := c.do(http.MethodGet, "/api/provinces", forged, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("required auth rejects anonymous reads", func(t *testing.T) {
		cfg := testConfig()
		cfg.Security.RequireAuth = true
		strict := newTestServer(t, cfg)

		rec := strict.do(http.MethodGet, "/api/provinces", "", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = strict.do(http.MethodGet, "/api/provinces", token(t, "sari", "viewer"), "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestProvinceRoutes(t *testing.T) {
	c, _ := seeded(t)

	rec := c.do(http.MethodGet, "/api/provinces", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	provinces := decode[[]core.Province](t, rec)
	require.Len(t, provinces, 3)
	assert.Empty(t, provinces[0].Geometry, "listings omit geometry by default")

	rec = c.do(http.MethodGet, "/api/provinces?geometry=true", "", "", "")
	provinces = decode[[]core.Province](t, rec)
	assert.NotEmpty(t, provinces[0].Geometry)

	rec = c.do(http.MethodGet, "/api/provinces/id-ba", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bali", decode[core.Province](t, rec).Name)

	rec = c.do(http.MethodGet, "/api/provinces/Atlantis", "", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "PRV001", decode[ErrorResponse](t, rec).Code)
}

func TestBulkRoutes(t *testing.T) {
	c, admin := seeded(t)

	t.Run("json array", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/datasets/food-security/bulk", admin, "application/json", `[
			{"province": "Aceh", "year": 2024, "food_security_index": 40},
			{"province": "Bali", "year": 2024, "food_security_index": 70},
			{"province": "Atlantis", "year": 2024, "food_security_index": 50}
		]`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		res := decode[core.BulkImportResult](t, rec)
		assert.Equal(t, 3, res.TotalProcessed)
		assert.Equal(t, 2, res.Created)
		assert.Equal(t, 1, res.Failed)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 3, res.Errors[0].Index)
		assert.Equal(t, "PRV001", res.Errors[0].Code)
	})

	t.Run("rows envelope", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/datasets/food-security/bulk", admin, "application/json",
			`{"rows": [{"province": "Aceh", "year": 2024, "food_security_index": 41}]}`)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[core.BulkImportResult](t, rec).Updated)
	})

	t.Run("csv", func(t *testing.T) {
		csv := "province,year,month,production_tons,consumption_tons\nAceh,2024,6,\"1,200\",1000\n"
		rec := c.do(http.MethodPost, "/api/datasets/supply-chain/bulk", admin, "text/csv; charset=utf-8", csv)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[core.BulkImportResult](t, rec).Created)
	})

	t.Run("malformed json", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/datasets/food-security/bulk", admin, "application/json", `[{"province":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL011", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("body too large", func(t *testing.T) {
		big := `[` + strings.Repeat(`{"province":"Aceh","year":2024,"food_security_index":40},`, 2000) + `{}]`
		rec := c.do(http.MethodPost, "/api/datasets/food-security/bulk", admin, "application/json", big)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Error, "request body too large")
	})

	t.Run("unknown dataset", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/datasets/weather/bulk", admin, "application/json", `[{}]`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL001", decode[ErrorResponse](t, rec).Code)
	})
}

func TestFactAndDatasetRoutes(t *testing.T) {
	c, admin := seeded(t)

	rec := c.do(http.MethodPost, "/api/datasets/food-security", admin, "application/json",
		`{"province": "Aceh", "year": 2023, "food_security_index": 62.3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, core.FoodPriority4, decode[core.FactRecord](t, rec).Class)

	rec = c.do(http.MethodPost, "/api/datasets/food-security", admin, "application/json",
		`{"province": "Aceh", "year": 2023, "food_security_index": 70}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = c.do(http.MethodGet, "/api/datasets/food-security/years", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dataset":"food-security","years":[2023]}`, rec.Body.String())

	rec = c.do(http.MethodGet, "/api/datasets", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.DatasetSummary](t, rec), 5)

	rec = c.do(http.MethodPost, "/api/datasets/food-security/reset", token(t, "rudi", "analyst"), "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodPost, "/api/datasets/food-security/reset", admin, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"dataset":"food-security","deleted":1}`, rec.Body.String())
}

func TestMapRoutes(t *testing.T) {
	c, admin := seeded(t)
	rec := c.do(http.MethodPost, "/api/datasets/food-security/bulk", admin, "application/json", `[
		{"province": "Aceh", "year": 2024, "food_security_index": 40},
		{"province": "Papua", "year": 2024, "food_security_index": 30}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = c.do(http.MethodPost, "/api/datasets/supply-chain/bulk", admin, "application/json", `[
		{"province": "Bali", "year": 2024, "month": 1, "production_tons": 50, "consumption_tons": 100}
	]`)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("fact map", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/maps/food-security?year=2024", "", "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "application/geo+json", rec.Header().Get("Content-Type"))

		fc := decode[core.FeatureCollection](t, rec)
		assert.Equal(t, "FeatureCollection", fc.Type)
		require.Len(t, fc.Features, 1)
		assert.Equal(t, "Aceh", fc.Features[0].Properties["provinceName"])
		assert.Equal(t, 1, fc.Metadata.WithoutGeometry)
		assert.Equal(t, []string{"Papua"}, fc.Metadata.WithoutGeometryNames)
	})

	t.Run("combined through with", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/maps/food-security?year=2024&with=supply-chain", "", "", "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		fc := decode[core.FeatureCollection](t, rec)
		assert.Equal(t, core.CombinedDataset, fc.Metadata.Dataset)
		assert.Equal(t, []string{"food-security", "supply-chain"}, fc.Metadata.Datasets)
		assert.Len(t, fc.Features, 2)
	})

	t.Run("missing year", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/maps/food-security", "", "", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VAL007", decode[ErrorResponse](t, rec).Code)
	})

	t.Run("no data lists available years", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/maps/food-security?year=2020", "", "", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		body := decode[ErrorResponse](t, rec)
		assert.Equal(t, "MAP001", body.Code)
		assert.Equal(t, []int{2024}, body.AvailableYears)
	})
}

func TestConnectionRoutes(t *testing.T) {
	c, admin := seeded(t)

	rec := c.do(http.MethodPut, "/api/connections", admin, "application/json",
		`{"source": "Aceh", "target": "Bali", "year": 2024, "volume": 10}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conn := decode[core.Connection](t, rec)

	rec = c.do(http.MethodPut, "/api/connections", admin, "application/json",
		`{"source": "Aceh", "target": "Bali", "year": 2024, "volume": 12}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = c.do(http.MethodPut, "/api/connections", admin, "application/json",
		`{"source": "Bali", "target": "Papua", "year": 2024}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = c.do(http.MethodGet, "/api/connections/Bali?direction=IN", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	edges := decode[[]core.Edge](t, rec)
	require.Len(t, edges, 1)
	assert.Equal(t, "Aceh", edges[0].SourceName)
	require.NotNil(t, edges[0].Volume)
	assert.Equal(t, 12.0, *edges[0].Volume)

	rec = c.do(http.MethodGet, "/api/connections/Bali?direction=sideways", "", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VAL010", decode[ErrorResponse](t, rec).Code)

	rec = c.do(http.MethodGet, "/api/connections/stats?top=1", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	ranked := decode[[]core.RankedProvince](t, rec)
	require.Len(t, ranked, 1)
	assert.Equal(t, "Bali", ranked[0].ProvinceName)

	rec = c.do(http.MethodGet, "/api/connections/matrix?year=2024", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	m := decode[core.TradeMatrix](t, rec)
	assert.Len(t, m.Provinces, 3)

	rec = c.do(http.MethodGet, "/api/maps/connections?year=2024", "", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decode[core.FeatureCollection](t, rec).Edges, 2)

	rec = c.do(http.MethodDelete, "/api/connections/"+conn.ID, admin, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodDelete, "/api/connections/"+conn.ID, admin, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "DB009", decode[ErrorResponse](t, rec).Code)
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, BulkLimit: 1}
	c := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := c.do(http.MethodGet, "/healthz", "", "", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := c.do(http.MethodGet, "/healthz", "", "", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, rec).Code)
}

func TestRateLimiterWindow(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }

	ok, _ := rl.allow("192.0.2.1")
	assert.True(t, ok)
	ok, _ = rl.allow("192.0.2.1")
	assert.True(t, ok)

	ok, retry := rl.allow("192.0.2.1")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, retry)

	ok, _ = rl.allow("192.0.2.2")
	assert.True(t, ok, "limits are per client")

	clock = clock.Add(time.Minute + time.Second)
	ok, _ = rl.allow("192.0.2.1")
	assert.True(t, ok, "window resets")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &core.ValidationError{Message: "bad"}, http.StatusBadRequest},
		{"not found", &core.NotFoundError{Entity: "province", Ref: "x"}, http.StatusNotFound},
		{"no data", &core.NoDataError{Dataset: "climate", Year: 2020}, http.StatusNotFound},
		{"conflict", &core.ConflictError{Entity: "connection", Key: "k"}, http.StatusConflict},
		{"anonymous", &core.AuthError{Message: "write requires a principal"}, http.StatusUnauthorized},
		{"forbidden", &core.AuthError{Principal: core.Principal{Name: "sari", Role: "viewer"}}, http.StatusForbidden},
		{"infrastructure", &core.InfrastructureError{Op: "commit", Err: errors.New("x")}, http.StatusServiceUnavailable},
		{"busy", fmt.Errorf("submit: %w", core.ErrTooManyImports), http.StatusServiceUnavailable},
		{"cancelled", fmt.Errorf("import cancelled after 1 of 2 chunks: %w", context.Canceled), http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestRespondErrorHidesStorageDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/provinces", nil)
	rec := httptest.NewRecorder()

	respondError(rec, req, &core.InfrastructureError{Op: "list provinces", Err: errors.New("pq: password authentication failed")})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[ErrorResponse](t, rec)
	assert.NotContains(t, body.Error, "password")
	assert.Equal(t, "DB008", body.Code)
}

func TestDecodeRows(t *testing.T) {
	var rows []core.Row
	require.NoError(t, decodeRows([]byte(` [{"a":1},{"a":2}] `), &rows))
	assert.Len(t, rows, 2)

	require.NoError(t, decodeRows([]byte(`{"rows":[{"a":1}]}`), &rows))
	assert.Len(t, rows, 1)

	err := decodeRows(bytes.TrimSpace([]byte("  ")), &rows)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

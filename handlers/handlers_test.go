package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AniketPatel148/CivicLens/cache"
	"github.com/AniketPatel148/CivicLens/database"
	"github.com/AniketPatel148/CivicLens/enrichment"
	"github.com/AniketPatel148/CivicLens/imaging"
	"github.com/AniketPatel148/CivicLens/models"
	"github.com/AniketPatel148/CivicLens/service"
	"github.com/AniketPatel148/CivicLens/stubllm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Count   int             `json:"count"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type brokenStore struct {
	*database.MemoryStore
}

func (brokenStore) Ping(context.Context) error { return errors.New("dial tcp: connection refused") }

func (brokenStore) ListStatRows(context.Context, string) ([]models.StatRow, error) {
	return nil, errors.New("Error 1146: Table 'civiclens.reports' doesn't exist")
}

func newRouter(t *testing.T, store service.Store) *gin.Engine {
	t.Helper()
	return newRouterWith(t, store, nil)
}

func newRouterWith(t *testing.T, store service.Store, bus ConnectionChecker) *gin.Engine {
	t.Helper()
	stub := stubllm.NewClient()
	orch := enrichment.New(stub, stub, enrichment.Options{})
	t.Cleanup(orch.Wait)

	svc := service.New(store, imaging.NewProcessor(false), orch, cache.NewStatsCache(nil, time.Minute))
	router := gin.New()
	h := NewHandlers(svc, nil, []string{"*"})
	if bus != nil {
		h.WithEventBus(bus)
	}
	h.Register(router)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func createReport(t *testing.T, router *gin.Engine, body string) models.Report {
	t.Helper()
	w, env := do(t, router, http.MethodPost, "/api/reports", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	require.True(t, env.Success)

	var report models.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	return report
}

func TestCreateAndGetReport(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())

	created := createReport(t, router, `{"imageRef":"ref-1","lat":29.76,"lng":-95.36,"description":"graffiti on the wall","address":"Houston, TX 77002"}`)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, models.IssueTypeGraffiti, created.IssueType)
	assert.Equal(t, "77002", created.Zipcode)

	w, env := do(t, router, http.MethodGet, "/api/reports/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	var got models.Report
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "ref-1", got.ImageRef)
}

func TestCreateReportValidation(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())

	tests := []struct {
		name string
		body string
	}{
		{"missing image", `{"lat":1,"lng":1}`},
		{"missing lat", `{"imageRef":"x","lng":1}`},
		{"lat out of range", `{"imageRef":"x","lat":120,"lng":1}`},
		{"lat not a number", `{"imageRef":"x","lat":"north","lng":1}`},
		{"not json", `imageRef=x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := do(t, router, http.MethodPost, "/api/reports", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestGetReportNotFound(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())

	w, env := do(t, router, http.MethodGet, "/api/reports/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Report not found", env.Error)
}

func TestListReports(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())
	createReport(t, router, `{"imageRef":"inside","lat":10,"lng":10}`)
	createReport(t, router, `{"imageRef":"outside","lat":50,"lng":50}`)

	w, env := do(t, router, http.MethodGet, "/api/reports?bbox=9,9,11,11", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Count)
	assert.NotContains(t, string(env.Data), "inside", "list projections exclude imageRef")

	w, _ = do(t, router, http.MethodGet, "/api/reports?bbox=9,9,11", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, router, http.MethodGet, "/api/reports?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, router, http.MethodGet, "/api/reports?status=closed", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListReportsGeoJSON(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())
	createReport(t, router, `{"imageRef":"x","lat":10,"lng":20}`)

	w, _ := do(t, router, http.MethodGet, "/api/reports?format=geojson", "")
	require.Equal(t, http.StatusOK, w.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, []float64{20, 10}, fc.Features[0].Geometry.Coordinates)
}

func TestNearbyReports(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())
	createReport(t, router, `{"imageRef":"x","lat":40.045,"lng":-74}`)
	createReport(t, router, `{"imageRef":"y","lat":40.135,"lng":-74}`)

	w, env := do(t, router, http.MethodGet, "/api/reports/nearby?lat=40&lng=-74", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.Count)

	w, _ = do(t, router, http.MethodGet, "/api/reports/nearby?lat=40", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateStatus(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())
	created := createReport(t, router, `{"imageRef":"x","lat":1,"lng":1}`)

	w, env := do(t, router, http.MethodPatch, "/api/reports/"+created.ID+"/status", `{"status":"resolved"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var update models.StatusUpdate
	require.NoError(t, json.Unmarshal(env.Data, &update))
	assert.Equal(t, created.ID, update.ID)
	assert.Equal(t, models.StatusResolved, update.Status)
	assert.NotNil(t, update.ResolvedAt)
	assert.NotNil(t, update.ResolutionTimeHours)

	w, _ = do(t, router, http.MethodPatch, "/api/reports/"+created.ID+"/status", `{"status":"closed"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, router, http.MethodPatch, "/api/reports/missing/status", `{"status":"resolved"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatsEndpoints(t *testing.T) {
	router := newRouter(t, database.NewMemoryStore())
	createReport(t, router, `{"imageRef":"x","lat":1,"lng":1,"address":"Houston, TX 77002"}`)

	w, env := do(t, router, http.MethodGet, "/api/reports/stats/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	var summary models.CitywideSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 1, summary.Overall.TotalReports)
	assert.Contains(t, string(env.Data), `"avgResolutionHours":null`)

	w, env = do(t, router, http.MethodGet, "/api/reports/stats/zipcode/77002", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail models.ZipcodeDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "77002", detail.Zipcode)

	w, _ = do(t, router, http.MethodGet, "/api/reports/stats/zipcode/abcde", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	router := newRouter(t, brokenStore{database.NewMemoryStore()})

	w, env := do(t, router, http.MethodGet, "/api/reports/stats/summary", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", env.Error)
	assert.NotContains(t, w.Body.String(), "1146")
}

func TestHealthCheck(t *testing.T) {
	w, _ := do(t, newRouter(t, database.NewMemoryStore()), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, newRouter(t, brokenStore{database.NewMemoryStore()}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestListenDisabledWithoutHub(t *testing.T) {
	w, _ := do(t, newRouter(t, database.NewMemoryStore()), http.MethodGet, "/api/reports/listen", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://civiclens.example"})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://civiclens.example")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))
}

type busState bool

func (b busState) IsConnected() bool { return bool(b) }

func TestHealthCheckReportsEventBus(t *testing.T) {
	var body map[string]any

	w, _ := do(t, newRouterWith(t, database.NewMemoryStore(), busState(true)), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "connected", body["eventBus"])
	assert.Equal(t, "healthy", body["status"])

	w, _ = do(t, newRouterWith(t, database.NewMemoryStore(), busState(false)), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "disconnected", body["eventBus"])
	assert.Equal(t, "degraded", body["status"])
}

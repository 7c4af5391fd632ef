package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"pandemicwatch/services"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"disease":"corona","year":2024,"month":3,"current_cases":100,"active_cases":50}`

// upstream is a stand-in AI service that answers each path from routes and
// counts every call.
type upstream struct {
	calls  int32
	routes map[string]func(w http.ResponseWriter, r *http.Request)
}

func (u *upstream) Calls() int32 { return atomic.LoadInt32(&u.calls) }

// setupServices points InitServices at a fake upstream with in-memory history
// and cache.
func setupServices(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request)) *upstream {
	t.Helper()
	return setupServicesWithRedis(t, routes, "")
}

func setupServicesWithRedis(t *testing.T, routes map[string]func(w http.ResponseWriter, r *http.Request), redisAddr string) *upstream {
	t.Helper()
	u := &upstream{routes: routes}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&u.calls, 1)
		if h, ok := u.routes[r.URL.Path]; ok {
			h(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	t.Setenv("AI_API_URL", srv.URL)
	t.Setenv("AI_API_TIMEOUT", "2s")
	t.Setenv("ALLOWED_DISEASES", "corona, variole")
	t.Setenv("MIN_YEAR", "2020")
	t.Setenv("MAX_YEAR", "2030")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PREDICTION_ARCHIVE_BUCKET", "")
	t.Setenv("REDIS_URL", redisAddr)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		CloseServices(context.Background())
		cancel()
	})
	require.NoError(t, InitServices(ctx))
	return u
}

func reply(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func TestPredictHandler_PassesBodyThrough(t *testing.T) {
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/predict": reply(`{"cases": 123}`),
	})

	rec := httptest.NewRecorder()
	PredictHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pandemic/predict", strings.NewReader(validBody)))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"cases": 123}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestPredictHandler_InvalidRequestNeverReachesUpstream(t *testing.T) {
	u := setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/predict": reply(`{}`),
	})

	rec := httptest.NewRecorder()
	body := `{"disease":"flu","year":2024,"month":3,"current_cases":100,"active_cases":50}`
	PredictHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pandemic/predict", strings.NewReader(body)))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "InvalidRequest", env.Error)
	assert.Equal(t, http.StatusUnprocessableEntity, env.Status)
	assert.Equal(t, "disease", env.Fields["disease"])
	assert.Equal(t, int32(0), u.Calls())
}

func TestPredictHandler_MalformedBody(t *testing.T) {
	u := setupServices(t, nil)

	rec := httptest.NewRecorder()
	PredictTotalCasesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pandemic/predict-total-cases", strings.NewReader(`not json`)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidRequest", decodeEnvelope(t, rec).Error)
	assert.Equal(t, int32(0), u.Calls())
}

func TestPredictHandler_UpstreamFailure(t *testing.T) {
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/predict-total-cases": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail": "model not loaded"}`))
		},
	})

	rec := httptest.NewRecorder()
	PredictTotalCasesHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pandemic/predict-total-cases", strings.NewReader(validBody)))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "UpstreamError", env.Error)
	assert.Contains(t, env.Message, "503")

	history := httptest.NewRecorder()
	HistoryHandler(history, httptest.NewRequest(http.MethodGet, "/api/pandemic/history", nil))
	assert.JSONEq(t, `[]`, history.Body.String(), "failed calls are not recorded")
}

func TestPredictHandler_MethodNotAllowed(t *testing.T) {
	setupServices(t, nil)

	rec := httptest.NewRecorder()
	PredictHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/predict", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	ModelInfoHandler(rec, httptest.NewRequest(http.MethodPost, "/api/pandemic/model-info", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestProcessedDataHandler_Defaults(t *testing.T) {
	var gotQuery string
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/api/processed-data": func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			w.Write([]byte(`{"corona": []}`))
		},
	})

	rec := httptest.NewRecorder()
	ProcessedDataHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/processed-data", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "page=1&page_size=5", gotQuery)

	rec = httptest.NewRecorder()
	ProcessedDataHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/processed-data?page=3&page_size=20", nil))
	assert.Equal(t, "page=3&page_size=20", gotQuery)
}

func TestDashboardStatsHandler_CachedBody(t *testing.T) {
	var modelInfoCalls int32
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/model-info": func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&modelInfoCalls, 1)
			w.Write([]byte(`{"corona_model_accuracy": 0.93}`))
		},
	})

	first := httptest.NewRecorder()
	DashboardStatsHandler(first, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	second := httptest.NewRecorder()
	DashboardStatsHandler(second, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))

	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), atomic.LoadInt32(&modelInfoCalls))

	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &stats))
	assert.Equal(t, 0.93, stats["lastPredictionAccuracy"])
	assert.Equal(t, float64(2), stats["activeDiseases"])
}

func TestDashboardStatsHandler_RedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	setupServicesWithRedis(t, map[string]func(http.ResponseWriter, *http.Request){
		"/model-info": reply(`{}`),
	}, mr.Addr())

	rec := httptest.NewRecorder()
	DashboardStatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cached, err := mr.Get("dashboard_stats")
	require.NoError(t, err)
	assert.Equal(t, rec.Body.String(), cached)
}

func TestDashboardStatsHandler_UpstreamDown(t *testing.T) {
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/model-info": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		},
	})

	rec := httptest.NewRecorder()
	DashboardStatsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "UpstreamError", decodeEnvelope(t, rec).Error)
}

func TestDashboardMapHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	DashboardMapHandler(rec, httptest.NewRequest(http.MethodGet, "/api/dashboard/map", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var countries []CountryRisk
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &countries))
	require.Len(t, countries, 4)
	for _, c := range countries {
		assert.NotEmpty(t, c.Country)
		assert.Len(t, c.Coordinates, 2)
		assert.NotEmpty(t, c.RiskLevel)
	}
}

func TestHistoryHandler_ListsRecordedPredictions(t *testing.T) {
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/predict":             reply(`{"prediction": 1500.5, "model_accuracy": 0.87}`),
		"/predict-total-cases": reply(`{"cumulative_total_cases": 9000}`),
	})

	PredictHandler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/pandemic/predict", strings.NewReader(validBody)))
	PredictTotalCasesHandler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/pandemic/predict-total-cases", strings.NewReader(validBody)))

	rec := httptest.NewRecorder()
	HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)

	byKind := map[string]map[string]interface{}{}
	for _, r := range records {
		byKind[r["kind"].(string)] = r
	}
	assert.Equal(t, 1500.5, byKind["predict"]["predicted_cases"])
	assert.Equal(t, 9000.0, byKind["predict-total-cases"]["predicted_cases"])

	rec = httptest.NewRecorder()
	HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/history?format=csv&limit=1", nil))
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestHistoryHandler_InvalidLimit(t *testing.T) {
	setupServices(t, nil)

	for _, limit := range []string{"0", "-1", "ten"} {
		rec := httptest.NewRecorder()
		HistoryHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/history?limit="+limit, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
	}
}

func TestHealthHandler(t *testing.T) {
	setupServices(t, map[string]func(http.ResponseWriter, *http.Request){
		"/": reply(`{"message": "API is running"}`),
	})

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message": "API is running"}`, rec.Body.String())
}

func TestHealthHandler_UpstreamDown(t *testing.T) {
	setupServices(t, nil)
	modelClient = services.NewModelClient("http://127.0.0.1:1", time.Second)

	rec := httptest.NewRecorder()
	HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	env := decodeEnvelope(t, rec)
	assert.Equal(t, "UpstreamUnavailable", env.Error)
	assert.True(t, strings.HasPrefix(env.Message, "AI service down"))
}

func TestDiseasesHandler(t *testing.T) {
	setupServices(t, nil)

	rec := httptest.NewRecorder()
	DiseasesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/pandemic/diseases", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"diseases": ["corona", "variole"], "min_year": 2020, "max_year": 2030}`, rec.Body.String())
}

package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricecheck-service/internal/application"
	"pricecheck-service/internal/domain"
	"pricecheck-service/internal/infrastructure/breaker"
	"pricecheck-service/internal/infrastructure/memstore"
	"pricecheck-service/internal/infrastructure/metrics"
	"pricecheck-service/internal/infrastructure/provider"
	redisstore "pricecheck-service/internal/infrastructure/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	h     http.Handler
	srv   *Server
	preds *memstore.PredictionRepo
}

func setup(t *testing.T) fixture {
	t.Helper()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := application.ClockFunc(func() time.Time { return now })

	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)

	preds := memstore.NewPredictionRepo()
	cache := application.NewPriceCache(memstore.NewPriceStore(), preds, nil, application.WithCacheObserver(rec))
	routes := application.DefaultRoutes(application.RouteProviders{
		DailyBars:   provider.NewFake(application.RouteDailyBars, 100),
		PrewarmDays: 2,
	})
	resolver := application.NewPriceResolver(
		application.NewSymbolResolver(nil, nil, nil), cache, routes,
		application.WithResolverClock(clock),
		application.WithResolverObserver(rec),
	)
	svc := application.NewVerificationService(preds, resolver,
		application.WithClock(clock),
		application.WithObserver(rec),
	)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	srv := NewServer(resolver, svc, redisstore.New(client, time.Hour))
	srv.SetMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv.SetBreakers(breaker.New(breaker.Settings{Name: "yahoo"}))
	return fixture{h: NewRouter(srv), srv: srv, preds: preds}
}

func do(t *testing.T, h http.Handler, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReadyz_FailingCheck(t *testing.T) {
	f := setup(t)
	f.srv.SetReadyCheck(func(context.Context) error { return errors.New("db down") })
	h := NewRouter(f.srv)

	rec := do(t, h, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"code":503,"message":"db not ready"}`, rec.Body.String())
}

func TestGetPrice(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/prices/gold?date=2025-02-10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp priceResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 100.0, resp.Price)
	require.Equal(t, "2025-02-10", resp.ResolvedDate)
	require.False(t, resp.LookbackUsed)

	rec = do(t, f.h, http.MethodGet, "/prices/gold?date=10.02.2025", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.h, http.MethodGet, "/prices/gold?date=2025-12-01", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.h, http.MethodGet, "/prices/gold?lookback=99", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCalculateHorizon(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/horizons?post_date=2025-01-10&value=3+months", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp windowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "2025-01-10", resp.Start)
	require.Equal(t, "2025-04-10", resp.End)

	rec = do(t, f.h, http.MethodGet, "/horizons?value=3+months", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyRange(t *testing.T) {
	f := setup(t)
	target := 95.0
	rec := do(t, f.h, http.MethodPost, "/verifications", verifyRangeRequest{
		Asset:        "gold",
		EntryPrice:   90,
		TargetPrice:  &target,
		Sentiment:    "bullish",
		HorizonStart: "2025-01-10",
		HorizonEnd:   "2025-02-10",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp outcomeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "correct", resp.Status)
	require.Equal(t, "2025-01-10", resp.MetDate)

	rec = do(t, f.h, http.MethodPost, "/verifications", verifyRangeRequest{
		Asset: "gold", HorizonStart: "2025-02-10", HorizonEnd: "2025-01-10",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/verifications", map[string]string{"horizon_start": "2025-01-01"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func seed(t *testing.T, f fixture) string {
	t.Helper()
	entry, target := 90.0, 95.0
	id, err := f.preds.Insert(context.Background(), domain.Prediction{
		Asset:        "gold",
		AssetClass:   domain.AssetClassMetal,
		Sentiment:    domain.SentimentBullish,
		EntryPrice:   &entry,
		TargetPrice:  &target,
		HorizonValue: "1 ay",
		PostDate:     time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	return id
}

func TestVerifyPrediction(t *testing.T) {
	f := setup(t)
	id := seed(t, f)

	rec := do(t, f.h, http.MethodPost, "/predictions/"+id+"/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp predictionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "correct", resp.Outcome.Status)
	require.NotNil(t, resp.Horizon)
	require.Equal(t, "2025-02-10", resp.Horizon.End)

	rec = do(t, f.h, http.MethodPost, "/predictions/missing/verify", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, strings.Contains(rec.Body.String(), `pricecheck_verification_outcomes_total{status="correct"} 1`))
}

func TestSupersedeHorizon_Idempotent(t *testing.T) {
	f := setup(t)
	id := seed(t, f)
	require.Equal(t, http.StatusOK, do(t, f.h, http.MethodPost, "/predictions/"+id+"/verify", nil).Code)

	body := supersedeRequest{Start: "2025-01-10", End: "2025-06-30", Reason: "speaker meant mid-year"}
	rec := do(t, f.h, http.MethodPost, "/predictions/"+id+"/horizon", body, "X-Idempotency-Key", "k1")
	require.Equal(t, http.StatusOK, rec.Code)
	var hw windowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hw))
	require.Equal(t, 2, hw.Version)
	require.True(t, hw.Corrected)

	rec = do(t, f.h, http.MethodPost, "/predictions/"+id+"/horizon", body, "X-Idempotency-Key", "k1")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, f.h, http.MethodGet, "/predictions/"+id+"/horizons", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var hist []windowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist, 2)
	require.Equal(t, "2025-02-10", hist[0].End)
	require.Equal(t, "2025-06-30", hist[1].End)

	p, err := f.preds.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, p.Outcome.Status)
}

func TestSupersedeHorizon_FailureReleasesKey(t *testing.T) {
	f := setup(t)
	body := supersedeRequest{Start: "2025-01-10", End: "2025-06-30", Reason: "r"}

	rec := do(t, f.h, http.MethodPost, "/predictions/missing/horizon", body, "X-Idempotency-Key", "k2")
	require.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, f.h, http.MethodPost, "/predictions/missing/horizon", body, "X-Idempotency-Key", "k2")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, f.h, http.MethodPost, "/predictions/missing/horizon", supersedeRequest{Start: "2025-01-10", End: "2025-06-30"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProviderStates(t *testing.T) {
	f := setup(t)
	rec := do(t, f.h, http.MethodGet, "/providers", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `[{"name":"yahoo","state":"closed","circuit_open":false,"consecutive_failures":0}]`, rec.Body.String())
}

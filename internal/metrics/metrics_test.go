package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveLookupCounts(t *testing.T) {
	Init()

	before := testutil.ToFloat64(lookupsTotal.WithLabelValues("cached"))
	ObserveLookup("cached")
	require.Equal(t, before+1, testutil.ToFloat64(lookupsTotal.WithLabelValues("cached")))
}

func TestObserveBrowserStartCounts(t *testing.T) {
	Init()

	before := testutil.ToFloat64(browserStartsTotal)
	ObserveBrowserStart()
	ObserveBrowserStart()
	require.Equal(t, before+2, testutil.ToFloat64(browserStartsTotal))
}

func TestObserveBeforeInitIsSafe(t *testing.T) {
	// Collectors are nil until Init runs; package-level observers must not panic.
	ObserveLookup("fetched")
	ObserveResolveDuration(time.Second)
	ObserveProbeHit()
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	Init()

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200"))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "200")))
}

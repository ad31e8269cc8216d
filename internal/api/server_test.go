package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/catalog"
	"github.com/oemtools/vid-lookup/internal/lookup"
)

type fakeClock struct {
	now time.Time
}

func (c fakeClock) Now() time.Time { return c.now }

type fakeCache struct {
	record *catalog.Record
	stats  catalog.Stats
	err    error
}

func (c *fakeCache) Find(context.Context, catalog.Selection) (*catalog.Record, error) {
	return c.record, nil
}

func (c *fakeCache) Insert(context.Context, *catalog.Record) error { return nil }

func (c *fakeCache) Stats(context.Context) (catalog.Stats, error) { return c.stats, c.err }

type fakeResolver struct {
	rec *catalog.Record
	err error
}

func (r *fakeResolver) Resolve(context.Context, catalog.Selection) (*catalog.Record, error) {
	return r.rec, r.err
}

func newTestServer(cache *fakeCache, res *fakeResolver) *Server {
	coord := lookup.New(cache, res, nil, "", zap.NewNop())
	return NewServer(coord, fakeClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop())
}

func doLookup(t *testing.T, server *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookup-vid", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestLookupVIDFetched(t *testing.T) {
	t.Parallel()

	server := newTestServer(
		&fakeCache{},
		&fakeResolver{rec: &catalog.Record{
			VID:    "HG51806",
			Series: "F32N",
			URL:    "https://www.realoem.com/bmw/enUS/partgrp?id=HG51806",
		}},
	)

	rec := doLookup(t, server, `{"series":"F32N","model":"440i","market":"EUR"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp vidInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "HG51806", resp.VID)
	require.Equal(t, "F32N", resp.Series)
	require.False(t, resp.Cached)
}

func TestLookupVIDCached(t *testing.T) {
	t.Parallel()

	server := newTestServer(
		&fakeCache{record: &catalog.Record{VID: "V1", Series: "F22N", URL: "https://example.com"}},
		&fakeResolver{err: catalog.ErrNoVID},
	)

	rec := doLookup(t, server, `{"series":"F22N"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp vidInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Cached)
}

func TestLookupVIDMissingSeries(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{}, &fakeResolver{})

	rec := doLookup(t, server, `{"model":"440i"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "series is required")
}

func TestLookupVIDInvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{}, &fakeResolver{})

	rec := doLookup(t, server, `{invalid`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLookupVIDNotFound(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{}, &fakeResolver{err: catalog.ErrNoVID})

	rec := doLookup(t, server, `{"series":"ZZZZ"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "verify your selection criteria")
}

func TestLookupVIDTransientFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(
		&fakeCache{},
		&fakeResolver{err: &catalog.TransientError{Err: errors.New("browser closed")}},
	)

	rec := doLookup(t, server, `{"series":"F32N"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "try again later")
	require.NotContains(t, rec.Body.String(), "browser closed", "internals stay server-side")
}

func TestCacheStats(t *testing.T) {
	t.Parallel()

	server := newTestServer(
		&fakeCache{stats: catalog.Stats{TotalCached: 3, BySeries: map[string]int64{"F22N": 2, "F32N": 1}}},
		&fakeResolver{},
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache-stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp cacheStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(3), resp.TotalCached)
	require.Equal(t, int64(2), resp.BySeries["F22N"])
}

func TestCacheStatsFailure(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{err: errors.New("db down")}, &fakeResolver{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cache-stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealthAndRootProbes(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{}, &fakeResolver{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
	require.Contains(t, rec.Body.String(), "2023-11-14T22:13:20Z")

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "operational")
}

func TestRequestIDHeaderIsSet(t *testing.T) {
	t.Parallel()

	server := newTestServer(&fakeCache{}, &fakeResolver{})

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

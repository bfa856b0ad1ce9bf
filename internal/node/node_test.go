package node

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/danmuck/auctionctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

func TestBaseHealthReadyMetrics(t *testing.T) {
	testlog.Start(t)
	var ready atomic.Bool
	b := NewBase("bank", "bank-test", nil, ready.Load)

	rec := httptest.NewRecorder()
	b.HTTPRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "bank-test", body["node"])
	require.Equal(t, "bank", body["kind"])

	rec = httptest.NewRecorder()
	b.HTTPRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready.Store(true)
	rec = httptest.NewRecorder()
	b.HTTPRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	b.HTTPRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "auction_http_requests_total")
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	testlog.Start(t)
	b := NewBase("house", "house-test", []string{"http://localhost:3000"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	b.HTTPRouter().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

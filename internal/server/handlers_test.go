package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logsieve/logsieve/internal/accesslog"
	"github.com/logsieve/logsieve/internal/detect"
	"github.com/logsieve/logsieve/internal/patterns"
	"github.com/logsieve/logsieve/internal/policy"
	"github.com/logsieve/logsieve/internal/registry"
	"github.com/logsieve/logsieve/internal/stream"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAPI(t *testing.T) *API {
	t.Helper()
	// Empty model directory: the pipeline fails open, which is enough to
	// exercise the HTTP surface.
	pipeline, err := detect.New(detect.Options{
		Registry:   registry.New(t.TempDir(), discard()),
		Table:      patterns.Default(),
		Thresholds: policy.Thresholds{Binary: 0.5, ByType: policy.DefaultTypeThresholds()},
		Flags:      policy.DefaultFlags(),
		Factors:    policy.DefaultFactors(),
		Logger:     discard(),
	})
	require.NoError(t, err)
	return NewAPI(pipeline, nil, stream.NewHub(discard()), nil, discard())
}

func TestPredictEndpoint(t *testing.T) {
	srv := httptest.NewServer(testAPI(t).Router())
	defer srv.Close()

	body := `{"logs": [
		{"url": "/index.html", "method": "GET", "status_code": 200},
		{"url": "/d?f=../../etc/passwd", "method": "GET", "status_code": "404"}
	]}`
	resp, err := http.Post(srv.URL+"/api/predict", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Predictions []accesslog.Verdict `json:"predictions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out.Predictions, 2)
}

func TestPredictRejectsBadBody(t *testing.T) {
	srv := httptest.NewServer(testAPI(t).Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/predict", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthz(t *testing.T) {
	srv := httptest.NewServer(testAPI(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerdictEndpointsAbsentWithoutStore(t *testing.T) {
	srv := httptest.NewServer(testAPI(t).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/verdicts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := httptest.NewServer(testAPI(t).Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/predict", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

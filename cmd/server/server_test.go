package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/telemetry-collector/pkg/config"
	"github.com/telemetry-collector/pkg/reconfig"
	"github.com/telemetry-collector/pkg/snapshot"
)

type fixedSource struct{ snap *snapshot.Snapshot }

func (f *fixedSource) GetSnapshot() *snapshot.Snapshot { return f.snap }

func newTestServer(t *testing.T, src SnapshotSource) (*Server, *reconfig.Channel) {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "telemetry_publish_total", Help: "test"}))
	ch := reconfig.New(reconfig.Params{
		TelemetryInterval: time.Second,
		SamplingInterval:  100 * time.Millisecond,
		WindowMultiplier:  1,
	}, reconfig.Options{})
	return NewHTTPServer(config.NewDefaultConfig(), zap.NewNop(), reg, src, ch), ch
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndIndex(t *testing.T) {
	srv, _ := newTestServer(t, &fixedSource{})
	h := srv.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/v1/telemetry")

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telemetry_publish_total")
}

func TestTelemetryBeforeFirstSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, &fixedSource{})
	rec := do(t, srv.Handler(), httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTelemetryEncodings(t *testing.T) {
	snap := snapshot.New(7, time.Unix(1700000000, 0), map[string]any{
		"device": "s32g",
		"m7_0":   75.0,
	})
	srv, _ := newTestServer(t, &fixedSource{snap: snap})
	h := srv.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snapshot.ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, "7", rec.Header().Get("X-Telemetry-Seq"))
	assert.JSONEq(t, `{"device":"s32g","m7_0":75}`, rec.Body.String())

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?format=cbor", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, snapshot.ContentTypeCBOR, rec.Header().Get("Content-Type"))
	decoded, err := snapshot.Decode(snapshot.EncodingCBOR, rec.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 75.0, decoded["m7_0"])

	req := httptest.NewRequest(http.MethodGet, "/api/v1/telemetry", nil)
	req.Header.Set("Accept", "application/cbor")
	rec = do(t, h, req)
	assert.Equal(t, snapshot.ContentTypeCBOR, rec.Header().Get("Content-Type"))

	rec = do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/telemetry?format=xml", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/telemetry", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestParamsGetAndPost(t *testing.T) {
	srv, ch := newTestServer(t, &fixedSource{})
	h := srv.Handler()

	rec := do(t, h, httptest.NewRequest(http.MethodGet, "/api/v1/params", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"telemetry_interval":1,"m7_status_query_time_interval":0.1,"m7_window_size_multiplier":1}`, rec.Body.String())

	body := `{"telemetry_interval": -1, "m7_window_size_multiplier": 3}`
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/params", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	var res struct {
		Params   map[string]any    `json:"params"`
		Rejected map[string]string `json:"rejected"`
		Changed  bool              `json:"changed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Changed)
	assert.Contains(t, res.Rejected, "telemetry_interval")
	assert.Equal(t, 1.0, res.Params["telemetry_interval"])
	assert.Equal(t, 3.0, res.Params["m7_window_size_multiplier"])
	assert.Equal(t, 3, ch.Current().WindowMultiplier)

	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/params", strings.NewReader(`[1,2]`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	big := bytes.Repeat([]byte(" "), maxParamsBody+1)
	rec = do(t, h, httptest.NewRequest(http.MethodPost, "/api/v1/params", bytes.NewReader(big)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	rec = do(t, h, httptest.NewRequest(http.MethodDelete, "/api/v1/params", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

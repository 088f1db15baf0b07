package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/luongdev/rtcfeatures/pkg/connection"
	"github.com/luongdev/rtcfeatures/pkg/exporter"
	"github.com/luongdev/rtcfeatures/pkg/processor"
	"github.com/luongdev/rtcfeatures/pkg/store"
)

const dumpBody = `{"path": "/call", "origin": "https://example.org"}
["getstats", "PC_0", {"CP": {"type": "candidate-pair", "state": "succeeded", "nominated": true, "currentRoundTripTime": 0.05}, "O": {"type": "outbound-rtp", "ssrc": 1, "packetsSent": 100}}, 1000]
["getstats", "PC_0", {"CP": {"type": "candidate-pair", "state": "succeeded", "nominated": true, "currentRoundTripTime": 0.05}, "O": {"type": "outbound-rtp", "ssrc": 1, "packetsSent": 250}}, 2000]
not json
`

func newTestServer(t *testing.T, maxBody int64) (*HTTPServer, store.ResultStore, connection.Registry) {
	t.Helper()
	results := store.NewMemoryStore(time.Minute)
	reg := connection.NewRegistry(0)
	p := processor.NewDumpProcessor(exporter.NewStoreExporter(results, time.Minute), reg, processor.Options{Workers: 2})
	return NewHTTPServer(0, maxBody, reg, p, results), results, reg
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, body))
	return rec
}

func TestExtractAndResults(t *testing.T) {
	s, _, reg := newTestServer(t, 0)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/extract", strings.NewReader(dumpBody))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := gjson.Parse(rec.Body.String())
	dumpID := body.Get("dumpId").String()
	_, err := ksuid.Parse(dumpID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), body.Get("lines").Int())
	assert.Equal(t, int64(1), body.Get("skipped").Int())
	assert.Equal(t, int64(1), body.Get("malformed").Int())

	conns := body.Get("connections").Array()
	require.Len(t, conns, 1)
	assert.Equal(t, "PC_0", conns[0].Get("connectionId").String())
	records := conns[0].Get("records").Array()
	require.Len(t, records, 2)
	assert.Equal(t, 50.0, records[1].Get("rtt").Float())
	assert.Equal(t, int64(150), records[1].Get("outboundPacketLoss.intervalPackets").Int())
	assert.Equal(t, gjson.Null, records[0].Get("outboundPacketLoss.intervalPackets").Type)

	assert.Equal(t, 2, reg.GetStatus()[connection.Key(dumpID, "PC_0")].Records)

	rec = do(t, h, http.MethodGet, "/results/"+dumpID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stored := gjson.Parse(rec.Body.String()).Array()
	require.Len(t, stored, 1)
	assert.Equal(t, dumpID, stored[0].Get("dumpId").String())

	rec = do(t, h, http.MethodDelete, "/results/"+dumpID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodGet, "/results/"+dumpID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractFormatHint(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/extract?format=standard", strings.NewReader(dumpBody))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "standard", gjson.Get(rec.Body.String(), "connections.0.records.0.format").String())

	rec = do(t, h, http.MethodPost, "/extract?format=opera", strings.NewReader(dumpBody))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExtractRejects(t *testing.T) {
	s, _, _ := newTestServer(t, 16)
	h := s.Handler()

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
		{name: "body too large", method: http.MethodPost, body: dumpBody, want: http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, "/extract", strings.NewReader(tt.body))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHealth(t *testing.T) {
	s, _, reg := newTestServer(t, 0)
	reg.Begin("d1", "PC_1", 3)
	reg.Finish("d1", "PC_1", 3, errors.New("boom"))
	reg.Begin("d1", "PC_2", 1)
	reg.Begin("d2", "PC_1", 2)

	rec := do(t, s.Handler(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := gjson.Parse(rec.Body.String())
	assert.Equal(t, "healthy", body.Get("status").String())
	assert.Equal(t, int64(2), body.Get("active").Int())
	assert.Len(t, body.Get("connections").Map(), 3)

	first := body.Get(`connections.d1/PC_1`)
	assert.Equal(t, "d1", first.Get("dump_id").String())
	assert.Equal(t, "PC_1", first.Get("connection_id").String())
	assert.Equal(t, "boom", first.Get("last_error").String())
	assert.True(t, first.Get("finished").Exists())
	assert.True(t, body.Get(`connections.d1/PC_2.processing`).Bool())

	second := body.Get(`connections.d2/PC_1`)
	assert.True(t, second.Get("processing").Bool())
	assert.Equal(t, int64(2), second.Get("snapshots").Int())

	rec = do(t, s.Handler(), http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestReadyFollowsLifecycle(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	h := s.Handler()

	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready", nil).Code)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", nil).Code)

	require.NoError(t, s.Stop())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready", nil).Code)
	assert.NoError(t, s.Stop())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	h := s.Handler()

	do(t, h, http.MethodPost, "/extract", strings.NewReader(dumpBody))
	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rtcfeatures_dumps_processed_total")
	assert.Contains(t, rec.Body.String(), `rtcfeatures_http_requests_total{path="/extract",status="200"}`)
}

func TestResultsWithoutStore(t *testing.T) {
	s := NewHTTPServer(0, 0, nil, processor.NewDumpProcessor(nil, nil, processor.Options{}), nil)
	rec := do(t, s.Handler(), http.MethodGet, "/results/x", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExtractNonFiniteValuesKeepResponse(t *testing.T) {
	s, _, _ := newTestServer(t, 0)
	body := `["getstats", "PC_0", {"Conn-0": {"type": "googCandidatePair", "googActiveConnection": "true", "googRtt": "20"}}, 1000]
["getstats", "PC_0", {"Conn-0": {"type": "googCandidatePair", "googActiveConnection": "true", "googRtt": "NaN"}}, 2000]
["getstats", "PC_1", {"CP": {"type": "candidate-pair", "state": "succeeded", "nominated": true, "currentRoundTripTime": 0.04}}, 1000]
`
	rec := do(t, s.Handler(), http.MethodPost, "/extract", strings.NewReader(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	conns := gjson.Get(rec.Body.String(), "connections").Array()
	require.Len(t, conns, 2)
	assert.Equal(t, 20.0, conns[0].Get("records.0.rtt").Float())
	assert.Equal(t, gjson.Null, conns[0].Get("records.1.rtt").Type)
	assert.Equal(t, 40.0, conns[1].Get("records.0.rtt").Float())
}

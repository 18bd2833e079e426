package metrics_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dstatus/internal/ipc"
	"dstatus/internal/metrics"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserverCountersAppearOnMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.OnStateChange(ipc.Pending)
	m.OnDial("/tmp/discord-ipc-0", errors.New("connection refused"))
	m.OnDial("/tmp/discord-ipc-1", nil)
	m.OnStateChange(ipc.Connected)
	m.OnFrame(ipc.DirectionOut, ipc.OpHandshake, 40)
	m.OnFrame(ipc.DirectionIn, ipc.OpFrame, 60)
	m.ObserveActivity(metrics.ResultSuccess)
	m.ObserveActivity(metrics.ResultRemote)
	m.ObserveReload(nil)
	m.ObserveReload(errors.New("bad toml"))

	body := scrape(t, m.Handler())
	assert.Contains(t, body, "dstatus_connection_state 2")
	assert.Contains(t, body, `dstatus_dial_attempts_total{result="failure"} 1`)
	assert.Contains(t, body, `dstatus_dial_attempts_total{result="success"} 1`)
	assert.Contains(t, body, `dstatus_frames_total{direction="out",opcode="0"} 1`)
	assert.Contains(t, body, `dstatus_frames_total{direction="in",opcode="1"} 1`)
	assert.Contains(t, body, `dstatus_frame_bytes_total{direction="in"} 60`)
	assert.Contains(t, body, `dstatus_activity_updates_total{result="remote_error"} 1`)
	assert.Contains(t, body, `dstatus_config_reloads_total{result="failure"} 1`)
	assert.Contains(t, body, `dstatus_config_reloads_total{result="success"} 1`)
}

func TestHealthzReflectsConnection(t *testing.T) {
	m := metrics.New()
	handler := m.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	m.OnDial("/run/discord-ipc-0", nil)
	m.OnStateChange(ipc.Connected)
	m.ObserveActivity(metrics.ResultSuccess)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var health metrics.Health
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&health))
	assert.Equal(t, "connected", health.State)
	assert.Equal(t, "/run/discord-ipc-0", health.Endpoint)
	require.NotNil(t, health.LastUpdate)

	m.OnStateChange(ipc.Disconnected)
	assert.Equal(t, "", m.Health().Endpoint)
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	metrics.New().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp listen unavailable: %v", err)
	}
	addr := probe.Addr().String()
	require.NoError(t, probe.Close())

	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Serve(ctx, addr, nil) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeReportsListenError(t *testing.T) {
	err := metrics.New().Serve(context.Background(), "256.0.0.1:bad", nil)
	assert.Error(t, err)
}

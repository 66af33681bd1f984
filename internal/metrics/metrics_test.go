package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCall(t *testing.T) {
	m := New()

	m.ObserveCall("eth_call", 10*time.Millisecond, nil)
	m.ObserveCall("eth_call", 10*time.Millisecond, nil)
	m.ObserveCall("eth_call", 10*time.Millisecond, errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("eth_call", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("eth_call", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RPCDuration))
}

func TestWatcherGauges(t *testing.T) {
	m := New()

	m.SetLastScanned(1234)
	m.IncDelivered()
	m.IncDelivered()
	m.IncPollFailure()

	assert.Equal(t, 1234.0, testutil.ToFloat64(m.LastScanned))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Delivered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PollFailures))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCall("eth_call", time.Second, nil)
		m.SetLastScanned(1)
		m.IncDelivered()
		m.IncPollFailure()
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ObserveCall("eth_blockNumber", time.Millisecond, nil)
	m.SetLastScanned(42)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `rpc_requests_total{method="eth_blockNumber",outcome="ok"} 1`)
	assert.Contains(t, string(body), "watcher_last_scanned_block 42")
}

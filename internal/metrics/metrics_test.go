package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/connstated/internal/connstate"
)

func TestCollector_CountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, Gauges{})
	require.NoError(t, err)

	c.Emit(connstate.Event{Type: connstate.ConnectionEstablished, Info: connstate.ConnectionInfo{Type: connstate.WiFi}})
	c.Emit(connstate.Event{Type: connstate.ConnectionEstablished, Info: connstate.ConnectionInfo{Type: connstate.WiFi}})
	c.Emit(connstate.Event{Type: connstate.ConnectionLost, Info: connstate.ConnectionInfo{Type: connstate.Unknown}})

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Events.WithLabelValues("connection_established", "wifi")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Events.WithLabelValues("connection_lost", "unknown")))
}

func TestCollector_Gauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	networks := 3
	_, err := NewCollector(reg, Gauges{
		Networks:    func() int { return networks },
		Subscribers: func() int { return 1 },
	})
	require.NoError(t, err)

	expected := `
# HELP connstate_networks Internet-capable networks currently registered.
# TYPE connstate_networks gauge
connstate_networks 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "connstate_networks"))

	networks = 1
	expected = strings.Replace(expected, "connstate_networks 3", "connstate_networks 1", 1)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "connstate_networks"))
}

func TestCollector_ReusesRegisteredCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewCollector(reg, Gauges{})
	require.NoError(t, err)

	// Gauge funcs cannot be shared, so a second collector on the same
	// registry is rejected.
	_, err = NewCollector(reg, Gauges{})
	require.Error(t, err)

	assert.NotNil(t, first.Events)
}

func TestCollector_Handler(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg, Gauges{Networks: func() int { return 2 }})
	require.NoError(t, err)
	c.Emit(connstate.Event{Type: connstate.ConnectionLost, Info: connstate.ConnectionInfo{Type: connstate.Ethernet}})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `connstate_events_total{connection_type="ethernet",event="connection_lost"} 1`)
	assert.Contains(t, string(body), "connstate_networks 2")
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.Emit(connstate.Event{Type: connstate.ConnectionLost})
	})
}

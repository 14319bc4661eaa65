package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewStatsUpdater(t *testing.T) {
	r := mux.NewRouter()
	su := NewStatsUpdater(r)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")

	var match mux.RouteMatch
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	assert.True(t, r.Match(req, &match), "expected handler for /metrics to be set")
}

func Test_metricName(t *testing.T) {
	tcases := []struct {
		in       string
		expected string
	}{
		{"NumActiveClients", "num_active_clients"},
		{"NumOnlineUsers", "num_online_users"},
		{"lower", "lower"},
	}

	for _, tc := range tcases {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.expected, metricName(tc.in))
		})
	}
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	su := NewStatsUpdater(mux.NewRouter())
	su.RegisterMetric("NumActiveClients")
	su.RegisterMetric("NumActiveClients") // duplicate registration is ignored
	su.Run()

	su.Incr("NumActiveClients")
	su.Incr("NumActiveClients")
	su.Decr("NumActiveClients")
	su.Incr("Unregistered")
	su.Stop()

	assert.Equal(t, float64(1), testutil.ToFloat64(su.gauges["NumActiveClients"]))
}

func TestStatsUpdater_MetricsEndpoint(t *testing.T) {
	r := mux.NewRouter()
	su := NewStatsUpdater(r)
	su.RegisterMetric("NumMessagesRouted")
	su.Run()
	su.Incr("NumMessagesRouted")
	su.Stop()

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "gomessenger_num_messages_routed 1")
	assert.Contains(t, string(body), "gomessenger_uptime_seconds")
}

// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Actions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_actions_total",
			Help: "Client actions by type and result",
		},
		[]string{"type", "result"},
	)
	Rooms = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tandem_rooms", Help: "Rooms currently running"},
	)
	Connections = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "tandem_ws_connections", Help: "Open room sockets"},
	)
	Kicks = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "tandem_ws_kicks_total", Help: "Sessions dropped for backpressure"},
	)
	Refreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_token_refreshes_total",
			Help: "Provider token refreshes by result",
		},
		[]string{"provider", "result"},
	)
	ProxyRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tandem_proxy_requests_total",
			Help: "Proxied provider requests by status class",
		},
		[]string{"provider", "status"},
	)
	ProxyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tandem_proxy_request_duration_seconds",
			Help:    "Provider round trip time",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)
)

var once sync.Once

// Register adds every collector to the default registry; safe to call twice.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(Actions, Rooms, Connections, Kicks, Refreshes, ProxyRequests, ProxyDuration)
	})
}

func Handler() http.Handler { return promhttp.Handler() }

// StatusClass buckets an HTTP status as "2xx", "4xx" and so on.
func StatusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	}
	return "error"
}

package app

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenplay_http_requests_total",
		Help: "Total number of HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "screenplay_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	scriptSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenplay_script_saves_total",
		Help: "Total number of edit session saves by result.",
	}, []string{"result"})
	unlockAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenplay_unlock_attempts_total",
		Help: "Password challenges on protected scripts by result.",
	}, []string{"result"})
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "screenplay_exports_total",
		Help: "Total number of exports by format.",
	}, []string{"format"})
)

// routeLabel replaces ids in a request path so the route label stays bounded.
func routeLabel(path string) string {
	parts := splitPath(path)
	for i := 1; i < len(parts); i++ {
		switch parts[i-1] {
		case "scripts", "scenes", "sharing":
			parts[i] = ":id"
		case "versions":
			if parts[i] != "compare" {
				parts[i] = ":id"
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

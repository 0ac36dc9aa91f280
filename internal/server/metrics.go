// ABOUTME: Prometheus metrics for the HTTP surface and delivery paths
// ABOUTME: Exposed on the configured metrics path when metrics are enabled

package server

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claw_gateway_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})

	messagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claw_gateway_messages_sent_total",
		Help: "Messages accepted for delivery.",
	})

	wsConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "claw_gateway_ws_connections",
		Help: "Open WebSocket event streams.",
	})

	webhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "claw_gateway_webhook_deliveries_total",
		Help: "Webhook delivery attempts by outcome.",
	}, []string{"outcome"})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "claw_gateway_rate_limited_total",
		Help: "Requests rejected by the per-claw rate limiter.",
	})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes through to the underlying writer so WebSocket upgrades work
// behind the instrumentation wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// instrumentHTTP counts every request by method and final status.
func instrumentHTTP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

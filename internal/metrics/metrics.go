package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	activeRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "active_rooms",
		Help:      "Current number of rooms with at least one member",
	})

	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Name:      "connected_clients",
		Help:      "Current number of open WebSocket connections",
	})

	messagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "messages_relayed_total",
		Help:      "Total number of frames fanned out, by action",
	}, []string{"action"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "frames_dropped_total",
		Help:      "Frames dropped because a receiver's send queue was full",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests received",
	}, []string{"method", "path", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func SetActiveRooms(n int) { activeRooms.Set(float64(n)) }

func ClientConnected() { connectedClients.Inc() }

func ClientDisconnected() { connectedClients.Dec() }

func MessageRelayed(action string) { messagesRelayed.WithLabelValues(action).Inc() }

func FrameDropped() { framesDropped.Inc() }

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack keeps WebSocket upgrades working behind the middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := r.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, fmt.Errorf("metrics: underlying ResponseWriter does not support hijacking")
}

// Middleware records request metrics with Prometheus labels.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		status := strconv.Itoa(rec.status)
		httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		httpLatency.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

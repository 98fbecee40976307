package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fallbackDebugAddr is used when a non-loopback debug address is configured
const fallbackDebugAddr = "127.0.0.1:6060"

// Observer-side metrics. Labels never carry client addresses or battle ids.
var (
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_connection_rejected_total",
		Help: "Observer requests or sockets turned away",
	}, []string{"reason"}) // rate_limit, origin, ws_total_limit, ws_ip_limit

	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "arena_http_request_duration_seconds",
		Help:    "Observer API latency per route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arena_http_requests_total",
		Help: "Observer API requests per route and status",
	}, []string{"method", "endpoint", "status"})

	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "arena_websocket_connections_active",
		Help: "Observer sockets currently attached to the hub",
	})

	wsMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_websocket_messages_total",
		Help: "Envelopes queued to observer sockets",
	})

	wsMessagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arena_websocket_messages_dropped_total",
		Help: "Notifications dropped because the hub or a client was backed up",
	})
)

// ObservabilityConfig configures the pprof/metrics listener
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // Loopback unless AllowExternal
	AllowExternal bool
	BasicAuthUser string // Empty disables auth
	BasicAuthPass string
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// DebugHandler mounts pprof under /debug/pprof/, Prometheus under /metrics
// and a plain liveness check under /health.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	})

	if cfg.BasicAuthUser == "" {
		return mux
	}
	return requireBasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
}

// RunDebugServer serves DebugHandler until ctx is cancelled.
// pprof must never be reachable from outside the host unless asked for.
func RunDebugServer(ctx context.Context, cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug listener off")
		return nil
	}
	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		log.Printf("⚠️ Debug address %s is not loopback, using %s", cfg.ListenAddr, fallbackDebugAddr)
		cfg.ListenAddr = fallbackDebugAddr
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           DebugHandler(cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("📊 Debug listener on http://%s (/metrics, /debug/pprof/)", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("debug server: %w", err)
	}
	return nil
}

func requireBasicAuth(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u, p, ok := r.BasicAuth(); ok && u == user && p == pass {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="arena-debug"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

// metricsMiddleware records latency and status per chi route pattern
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		began := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			endpoint = rctx.RoutePattern()
		}
		RecordRequest(r.Method, endpoint, rec.status, time.Since(began))
	})
}

// statusRecorder captures the response status. Hijack is forwarded so
// WebSocket upgrades work behind the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// RecordConnectionRejected counts a turned-away request or socket
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

func RecordRequest(method, endpoint string, status int, took time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(took.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// UpdateWSConnections sets the attached-socket gauge
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

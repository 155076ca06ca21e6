// Package metrics exposes Prometheus collectors for sessions and LSP requests.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lsp-session-manager/src/internal/common"
	lsperrors "lsp-session-manager/src/internal/errors"
)

const namespace = "lsp_session_manager"

// Metrics groups the collectors of one manager. Each instance owns its registry
// so tests and embedded managers do not collide on the default registerer.
type Metrics struct {
	Registry *prometheus.Registry

	// Labels: none
	ActiveSessions prometheus.Gauge

	// Labels: language, result (ok, unsupported, init_failed, spawn_failed)
	SessionStarts *prometheus.CounterVec

	// Labels: language, reason (stopped, crashed)
	SessionEnds *prometheus.CounterVec

	// Labels: language, method, result (ok, or the error kind)
	Requests *prometheus.CounterVec

	// Labels: language, method
	RequestDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Number of registered language server sessions",
		}),
		SessionStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "started_total",
			Help:      "Session start attempts by outcome",
		}, []string{"language", "result"}),
		SessionEnds: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "ended_total",
			Help:      "Sessions removed from the registry by reason",
		}, []string{"language", "reason"}),
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lsp",
			Name:      "requests_total",
			Help:      "LSP requests sent to language servers by outcome",
		}, []string{"language", "method", "result"}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "lsp",
			Name:      "request_duration_seconds",
			Help:      "LSP request round trip latency in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"language", "method"}),
	}
}

// ObserveRequest records one completed LSP request
func (m *Metrics) ObserveRequest(language, method string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = lsperrors.KindOf(err).String()
	}
	m.Requests.WithLabelValues(language, method, result).Inc()
	m.RequestDuration.WithLabelValues(language, method).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionStarted(language, result string) {
	if m == nil {
		return
	}
	m.SessionStarts.WithLabelValues(language, result).Inc()
}

func (m *Metrics) SessionEnded(language, reason string) {
	if m == nil {
		return
	}
	m.SessionEnds.WithLabelValues(language, reason).Inc()
}

// SetActive satisfies the registry's gauge hook
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return m.serve(ctx, ln)
}

func (m *Metrics) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		common.MCPLogger.Info("Serving metrics on http://%s/metrics", ln.Addr())
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := common.CreateContext(2 * time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

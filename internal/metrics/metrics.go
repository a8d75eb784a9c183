package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/partscout/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_fetch_requests_total",
			Help: "Total number of supplier search fetches",
		},
		[]string{"site", "status", "detected"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "partscout_fetch_duration_seconds",
			Help:    "Duration of supplier search fetches in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"site"},
	)

	ListingsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_listings_extracted_total",
			Help: "Total number of listings extracted per supplier",
		},
		[]string{"site"},
	)

	ExtractionMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_extraction_misses_total",
			Help: "Listing fields that were absent from the supplier page",
		},
		[]string{"site", "field"},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "partscout_proxy_failures_total",
			Help: "Transport failures per egress proxy",
		},
		[]string{"proxy"},
	)
)

// RecordFetch updates the fetch metrics for one supplier request.
func RecordFetch(site string, rec *storage.FetchRecord) {
	if rec == nil {
		return
	}

	statusStr := strconv.Itoa(rec.StatusCode)
	if rec.Error != "" {
		statusStr = "error"
	}

	FetchRequestsTotal.WithLabelValues(site, statusStr, strconv.FormatBool(rec.DetectedBot)).Inc()
	FetchDuration.WithLabelValues(site).Observe(rec.Duration.Seconds())
}

// RecordListings counts listings extracted from one supplier page.
func RecordListings(site string, n int) {
	ListingsExtracted.WithLabelValues(site).Add(float64(n))
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", "port", port, "err", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

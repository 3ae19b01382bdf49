package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type healthResponse struct {
	Service   string  `json:"service"`
	Status    string  `json:"status"`
	UptimeSec float64 `json:"uptime_seconds"`
}

// StartMetricsServer exposes /metrics for Prometheus scraping and a /healthz
// endpoint reporting the worker's identity and uptime.
func StartMetricsServer(port int, logger *zap.Logger) *http.Server {
	started := time.Now()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(started))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("metrics server starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	return srv
}

func healthHandler(started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(healthResponse{
			Service:   "segmentation-service",
			Status:    "ok",
			UptimeSec: time.Since(started).Seconds(),
		})
	}
}

package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/rifa-backend/pkg/logger"
)

// Server exposes /metrics for background workers that have no HTTP surface.
type Server struct {
	srv *http.Server
}

// StartServer listens on addr in the background. An empty addr disables it and
// returns nil, which Shutdown accepts.
func StartServer(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) *Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	logg.Info(logg.WithField(ctx, "addr", addr), "metrics server listening")
	return &Server{srv: srv}
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

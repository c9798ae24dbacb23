package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/oggyb/campus-connect/internal/config"
)

const shutdownTimeout = 10 * time.Second

// HTTPServer runs the gateway handler with graceful shutdown.
type HTTPServer struct {
	srv *http.Server
	log *slog.Logger
}

func NewHTTPServer(cfg *config.Config, handler http.Handler, log *slog.Logger) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port),
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is canceled, then shuts down within shutdownTimeout.
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP gateway", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}

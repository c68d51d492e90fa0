package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const bannerText = "VolumeBot is running!"

// Server exposes the liveness banner, /healthz and /metrics.
type Server struct {
	addr string
	srv  *http.Server
	log  zerolog.Logger
}

func NewServer(addr string, gatherer prometheus.Gatherer, log zerolog.Logger) *Server {
	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(gatherer),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// NewHandler returns the HTTP routes without binding a listener.
func NewHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(bannerText))
	})
	return mux
}

// Start binds the listener and serves in the background. A bind failure is
// logged and returned; callers keep the bot running without the endpoint.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.log.Error().Err(err).Str("addr", s.addr).Msg("health server not started, bot continues")
		return err
	}
	s.log.Info().Str("addr", ln.Addr().String()).Msg("health server listening")
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("health server stopped")
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

package metrics

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

// Credit sources
const (
	SourceHeartbeat = "heartbeat"
	SourceStop      = "stop"
)

// Transition kinds
const (
	KindStart  = "start"
	KindStop   = "stop"
	KindSwitch = "switch"
	KindNoop   = "noop"
)

var (
	// Crediting metrics
	SecondsCredited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_seconds_credited_total",
			Help: "Total seconds credited to the aggregation store",
		},
		[]string{"source"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "playtime_active_sessions",
			Help: "Number of sessions currently being tracked",
		},
	)

	// Heartbeat metrics
	HeartbeatTicks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_heartbeat_ticks_total",
			Help: "Total heartbeat ticks run",
		},
	)

	HeartbeatErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "playtime_heartbeat_errors_total",
			Help: "Session credits that failed during a heartbeat tick",
		},
	)

	// Presence metrics
	PresenceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playtime_presence_transitions_total",
			Help: "Presence transitions handled, by kind",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		SecondsCredited,
		ActiveSessions,
		HeartbeatTicks,
		HeartbeatErrors,
		PresenceTransitions,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// SetListener makes Start serve on ln instead of binding addr.
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server in the background
func (s *Server) Start() error {
	if s.listener == nil {
		ln, err := net.Listen("tcp", s.server.Addr)
		if err != nil {
			return err
		}
		s.listener = ln
	}

	s.logger.Info().Str("addr", s.listener.Addr().String()).Msg("Starting metrics server")
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Shutdown(ctx)
}

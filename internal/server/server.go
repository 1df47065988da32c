// Package server exposes the state of a serve loop over HTTP.
package server

import (
	"crypto/tls"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/utils/clock"

	"github.com/psantana5/stopwatch/internal/report"
	"github.com/psantana5/stopwatch/pkg/auth"
	"github.com/psantana5/stopwatch/pkg/logging"
	"github.com/psantana5/stopwatch/pkg/metrics"
	"github.com/psantana5/stopwatch/pkg/ratelimit"
	"github.com/psantana5/stopwatch/pkg/stopwatch"
	"github.com/psantana5/stopwatch/pkg/tracing"
)

// DefaultTimeoutsLimit is how many entries /timeouts returns without ?n=.
const DefaultTimeoutsLimit = 20

type Config struct {
	Recorder *metrics.Recorder
	Timeouts *report.TimeoutLog
	Tracer   *tracing.Provider
	Logger   *logging.Logger
	// Policy renders /uptime.
	Policy stopwatch.Policy
	Clock  clock.PassiveClock
	// Keys protects every route except /health when it holds any key.
	Keys    *auth.KeyStore
	Limiter *ratelimit.Limiter

	// TrustedProxies may set X-Forwarded-For for rate limiting.
	TrustedProxies []string
}

// Server serves /metrics, /health, /last, /timeouts and /uptime.
type Server struct {
	cfg    Config
	uptime *stopwatch.Timer

	mu      sync.RWMutex
	last    *report.Sample
	samples uint64
}

func New(cfg Config) *Server {
	if cfg.Timeouts == nil {
		cfg.Timeouts = report.NewTimeoutLog(50)
	}
	return &Server{
		cfg:    cfg,
		uptime: stopwatch.NewTimerWithClock(cfg.Clock, cfg.Policy.Mode, cfg.Policy.Format),
	}
}

// Record makes s the sample served by /last.
func (s *Server) Record(sample *report.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = sample
	s.samples++
}

// Router builds the route table. Middleware runs in the order tracing,
// metrics, logging, rate limiting, authentication.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	if s.cfg.Recorder != nil {
		router.Handle("/metrics", s.cfg.Recorder.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/last", s.handleLast).Methods(http.MethodGet)
	router.HandleFunc("/timeouts", s.handleTimeouts).Methods(http.MethodGet)
	router.HandleFunc("/uptime", s.handleUptime).Methods(http.MethodGet)

	if s.cfg.Tracer != nil {
		router.Use(tracing.HTTPMiddleware(s.cfg.Tracer, routeName))
	}
	if s.cfg.Recorder != nil {
		router.Use(func(next http.Handler) http.Handler {
			return s.cfg.Recorder.Middleware(routeName, next)
		})
	}
	if s.cfg.Logger != nil {
		router.Use(s.logRequests)
	}
	if s.cfg.Limiter != nil {
		router.Use(s.cfg.Limiter.Middleware(ratelimit.ForwardedKeyFunc(s.cfg.TrustedProxies...)))
	}
	if s.cfg.Keys != nil {
		router.Use(s.cfg.Keys.Middleware("/health"))
	}
	return router
}

// HTTPServer wraps the router in an http.Server listening on addr. A
// non-nil tlsConfig makes it serve HTTPS.
func (s *Server) HTTPServer(addr string, tlsConfig *tls.Config) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := stopwatch.NewTimer(stopwatch.Human, "")
		next.ServeHTTP(w, r)
		s.cfg.Logger.Debug("request served", map[string]interface{}{
			"method":  r.Method,
			"route":   routeName(r),
			"elapsed": timer.Elapsed().String(),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	samples := s.samples
	s.mu.RUnlock()

	body := map[string]interface{}{
		"status":   "healthy",
		"samples":  samples,
		"timeouts": s.cfg.Timeouts.Total(),
	}
	if s.cfg.Recorder != nil {
		if runs, err := s.cfg.Recorder.RunTotals(); err == nil {
			body["runs"] = runs
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.last
	s.mu.RUnlock()

	if last == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no samples yet"})
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleTimeouts(w http.ResponseWriter, r *http.Request) {
	n := DefaultTimeoutsLimit
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "n must be a non-negative integer"})
			return
		}
		n = v
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   s.cfg.Timeouts.Count(),
		"total":   s.cfg.Timeouts.Total(),
		"entries": s.cfg.Timeouts.Recent(n),
	})
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	elapsed := s.uptime.Elapsed()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"uptime":  elapsed.String(),
		"seconds": elapsed.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

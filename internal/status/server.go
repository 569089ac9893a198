// Package status serves the read-only HTTP status surface: quota state,
// liveness, log read-back and Prometheus metrics.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"karmabot/internal/config"
	"karmabot/internal/quota"
	logx "karmabot/pkg/logx"
)

// Config controls the status server.
//
// Binding to a non-loopback address requires Token.
type Config struct {
	Addr  string
	Token string
	// LogPath is the JSON log file served by /logs; empty disables it.
	LogPath string
}

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

// QuotaSource exposes the quota tracker's state.
type QuotaSource interface {
	Snapshot() quota.Snapshot
}

type Server struct {
	cfg     Config
	quota   QuotaSource
	metrics *Metrics
	log     logx.Logger
	started time.Time
}

type statusResponse struct {
	Status          string `json:"status"`
	DailyActions    int    `json:"daily_actions"`
	MaxDailyActions int    `json:"max_daily_actions"`
}

type logsResponse struct {
	Logs []string `json:"logs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status        string     `json:"status"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty"`
}

func New(cfg Config, q QuotaSource, m *Metrics, log logx.Logger) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = config.DefaultStatusAddr
	}
	if m == nil {
		m = NewMetrics(q)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, quota: q, metrics: m, log: log, started: time.Now()}
}

// Handler returns the routed, auth-wrapped handler.
func (s *Server) Handler() http.Handler {
	wrap := func(h http.Handler) http.Handler { return withAuth(s.cfg.Token, h) }

	mux := http.NewServeMux()
	mux.Handle("GET /status", wrap(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /healthz", wrap(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /logs", wrap(http.HandlerFunc(s.handleLogs)))
	mux.Handle("GET /metrics", wrap(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Status: "running"}
	if s.quota != nil {
		snap := s.quota.Snapshot()
		resp.DailyActions = snap.DailyCount
		resp.MaxDailyActions = snap.MaxDailyActions
	}
	writeJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok", UptimeSeconds: int64(time.Since(s.started).Seconds())}
	if t := s.metrics.LastCycle(); !t.IsZero() {
		resp.LastCycleAt = &t
	}
	writeJSON(w, resp)
}

// handleLogs returns the last n lines of the log file (?n=, default 200,
// 0 for all).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.LogPath == "" {
		writeJSONStatus(w, http.StatusNotFound, errorResponse{Error: "file logging is disabled"})
		return
	}
	n := defaultLogLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 || parsed > maxLogLines {
			writeJSONStatus(w, http.StatusBadRequest, errorResponse{Error: "n must be between 0 and " + strconv.Itoa(maxLogLines)})
			return
		}
		n = parsed
	}
	lines, _, err := logx.Tail(s.cfg.LogPath, n)
	if err != nil {
		s.log.Warn("reading log file failed", logx.String("path", s.cfg.LogPath), logx.Err(err))
		writeJSONStatus(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, logsResponse{Logs: lines})
}

// Run listens and serves until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Token) == "" && !config.IsLoopbackAddr(s.cfg.Addr) {
		return errors.New("status server refused to start: non-loopback addr requires a token")
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("status server started", logx.String("addr", ln.Addr().String()), logx.Bool("token_set", s.cfg.Token != ""))
	err := srv.Serve(ln)
	if ctx.Err() != nil || errors.Is(err, http.ErrServerClosed) {
		s.log.Info("status server stopped")
		return nil
	}
	return err
}

func withAuth(token string, h http.Handler) http.Handler {
	tok := strings.TrimSpace(token)
	if tok == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const p = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			h.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

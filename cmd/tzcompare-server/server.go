package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maypok86/otter/v2"
	"golang.org/x/time/rate"

	"github.com/codeGROOVE-dev/tzcompare/pkg/board"
	"github.com/codeGROOVE-dev/tzcompare/pkg/clocksource"
	"github.com/codeGROOVE-dev/tzcompare/pkg/directory"
	"github.com/codeGROOVE-dev/tzcompare/pkg/geoip"
	"github.com/codeGROOVE-dev/tzcompare/pkg/tzconvert"
)

const (
	requestTimeout  = 10 * time.Second
	maxBodyBytes    = 64 << 10
	defaultLimit    = 10
	maxSearchLimit  = 50
	requestsPerMin  = 15
	rateBurst       = 5
	maxTrackedIPs   = 50_000
	searchCacheTTL  = 12 * time.Hour
	wallClockLayout = "2006-01-02 15:04"
)

var (
	errBadRequest = errors.New("bad request")
	errUpstream   = errors.New("upstream unavailable")
)

type serverConfig struct {
	gazetteer *directory.Gazetteer
	board     *board.Board
	clock     clocksource.Source
	geo       *geoip.Client
	logger    *slog.Logger
}

type server struct {
	gazetteer *directory.Gazetteer
	board     *board.Board
	clock     clocksource.Source
	geo       *geoip.Client
	searches  *otter.Cache[string, []byte]
	limiter   *ipLimiter
	logger    *slog.Logger
}

func newServer(cfg serverConfig) *server {
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	return &server{
		gazetteer: cfg.gazetteer,
		board:     cfg.board,
		clock:     cfg.clock,
		geo:       cfg.geo,
		searches: otter.Must(&otter.Options[string, []byte]{
			MaximumSize:      10_000,
			ExpiryCalculator: otter.ExpiryWriting[string, []byte](searchCacheTTL),
		}),
		limiter: newIPLimiter(rate.Every(time.Minute/requestsPerMin), rateBurst),
		logger:  logger,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/search", s.limited(s.handleSearch))
	mux.HandleFunc("GET /api/v1/time", s.limited(s.handleTime))
	mux.HandleFunc("GET /api/v1/compare", s.limited(s.handleCompare))
	mux.HandleFunc("POST /api/v1/convert", s.limited(s.handleConvert))
	mux.HandleFunc("GET /api/v1/locate", s.limited(s.handleLocate))
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return s.wrap(mux)
}

// ipLimiter keeps one token bucket per client address.
type ipLimiter struct {
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	mu       sync.Mutex
}

func newIPLimiter(limit rate.Limit, burst int) *ipLimiter {
	return &ipLimiter{limiters: make(map[string]*rate.Limiter), limit: limit, burst: burst}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[ip]
	if !ok {
		if len(l.limiters) >= maxTrackedIPs {
			l.limiters = make(map[string]*rate.Limiter)
		}
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = lim
	}
	return lim.Allow()
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *server) wrap(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		defer func() {
			if err := recover(); err != nil {
				const size = 64 << 10
				buf := make([]byte, size)
				buf = buf[:runtime.Stack(buf, false)]
				s.logger.Error("PANIC: Request handler crashed",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"request_id", requestID,
					"client_ip", clientIP(r),
					"stack", string(buf))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()

		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		handler.ServeHTTP(w, r)
	})
}

func (s *server) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.limiter.allow(ip) {
			s.logger.Warn("Rate limit exceeded",
				"request_id", w.Header().Get("X-Request-ID"),
				"client_ip", ip,
				"path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			s.writeJSON(w, r, http.StatusTooManyRequests, errorResponse{
				Error:   "Rate limit exceeded",
				Details: fmt.Sprintf("At most %d requests per minute are allowed. Please slow down.", requestsPerMin),
				Code:    "RATE_LIMITED",
			})
			return
		}
		next(w, r)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (s *server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response",
			"request_id", w.Header().Get("X-Request-ID"),
			"path", r.URL.Path,
			"error", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Details: err.Error()}

	switch {
	case errors.Is(err, directory.ErrNotFound):
		status = http.StatusNotFound
		resp.Error = "City not found"
		resp.Code = "CITY_NOT_FOUND"
	case errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
		resp.Error = "Invalid request"
		resp.Code = "BAD_REQUEST"
	case errors.Is(err, tzconvert.ErrInvalidFormat):
		status = http.StatusUnprocessableEntity
		resp.Error = "City record is malformed"
		resp.Code = "INVALID_CITY_DATA"
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		resp.Error = "Request took too long"
		resp.Details = "A backend did not answer in time. Please try again."
		resp.Code = "TIMEOUT"
	case errors.Is(err, context.Canceled):
		status = http.StatusRequestTimeout
		resp.Error = "Request was canceled"
		resp.Code = "CANCELED"
	case errors.Is(err, errUpstream):
		status = http.StatusBadGateway
		resp.Error = "Location service unavailable"
		resp.Code = "LOCATION_UNAVAILABLE"
	default:
		resp.Error = "Request failed"
		resp.Details = "An unexpected error occurred. Please try again."
		resp.Code = "INTERNAL_ERROR"
	}

	s.logger.Error("Request failed",
		"request_id", w.Header().Get("X-Request-ID"),
		"path", r.URL.Path,
		"status", status,
		"code", resp.Code,
		"error", err)
	s.writeJSON(w, r, status, resp)
}

// instant returns the instant a request asks about: ?at= when present,
// otherwise the clock reading, shifted by ?mode= and ?delta=.
func (s *server) instant(ctx context.Context, r *http.Request) (time.Time, string, error) {
	q := r.URL.Query()
	mode, err := clocksource.ParseMode(q.Get("mode"))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %w", errBadRequest, err)
	}
	var delta time.Duration
	if d := q.Get("delta"); d != "" {
		if delta, err = time.ParseDuration(d); err != nil {
			return time.Time{}, "", fmt.Errorf("%w: delta: %w", errBadRequest, err)
		}
	}
	if at := q.Get("at"); at != "" {
		t, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return time.Time{}, "", fmt.Errorf("%w: at: %w", errBadRequest, err)
		}
		return mode.Apply(t.UTC(), delta), "request", nil
	}
	reading := s.clock.Now(ctx)
	return mode.Apply(reading.Instant, delta), reading.Source, nil
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			s.writeError(w, r, fmt.Errorf("%w: limit must be a positive integer", errBadRequest))
			return
		}
		limit = min(n, maxSearchLimit)
	}

	key := strings.ToLower(q) + "|" + strconv.Itoa(limit)
	if data, found := s.searches.GetIfPresent(key); found {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "memory-hit")
		if _, err := w.Write(data); err != nil {
			s.logger.Error("Failed to write cached response", "request_id", w.Header().Get("X-Request-ID"), "error", err)
		}
		return
	}

	cities := s.gazetteer.Search(q, limit)
	if cities == nil {
		cities = []directory.City{}
	}
	data, err := json.Marshal(map[string]any{"query": q, "cities": cities})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data = append(data, '\n')
	s.searches.Set(key, data)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", "miss")
	if _, err := w.Write(data); err != nil {
		s.logger.Error("Failed to write response", "request_id", w.Header().Get("X-Request-ID"), "error", err)
	}
}

func (s *server) handleTime(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	city := strings.TrimSpace(r.URL.Query().Get("city"))
	if city == "" {
		s.writeError(w, r, fmt.Errorf("%w: city is required", errBadRequest))
		return
	}
	at, source, err := s.instant(ctx, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.board.Compare(ctx, []string{city}, at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"clock_source": source, "time": rows[0]})
}

func (s *server) handleCompare(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var names []string
	for _, v := range r.URL.Query()["city"] {
		for _, n := range strings.Split(v, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
	}
	if len(names) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: at least one city is required", errBadRequest))
		return
	}
	at, source, err := s.instant(ctx, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.board.Compare(ctx, names, at)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"utc": at, "clock_source": source, "rows": rows})
}

type convertRequest struct {
	From  string   `json:"from"`
	Local string   `json:"local"`
	To    []string `json:"to"`
}

func (s *server) handleConvert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	var req convertRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	if strings.TrimSpace(req.From) == "" {
		s.writeError(w, r, fmt.Errorf("%w: from is required", errBadRequest))
		return
	}
	local, err := time.Parse(wallClockLayout, strings.TrimSpace(req.Local))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: local must look like %q", errBadRequest, wallClockLayout))
		return
	}
	rows, err := s.board.Convert(ctx, req.From, local, req.To)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{"utc": rows[0].UTC, "rows": rows})
}

func (s *server) handleLocate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	ip := r.URL.Query().Get("ip")
	if ip == "" {
		ip = clientIP(r)
		// Private addresses mean a local caller; ask about the server's own address.
		if addr, err := netip.ParseAddr(ip); err == nil && (addr.IsLoopback() || addr.IsPrivate()) {
			ip = ""
		}
	}
	loc, err := s.geo.LocateIP(ctx, ip)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errUpstream, err))
		return
	}

	resp := map[string]any{"location": loc}
	reading := s.clock.Now(ctx)
	row, err := s.board.First(ctx, loc.Candidates(), reading.Instant)
	switch {
	case errors.Is(err, directory.ErrNotFound):
		s.logger.Debug("Located city is not in the directory", "city", loc.City, "timezone", loc.Timezone)
	case err != nil:
		s.writeError(w, r, err)
		return
	default:
		resp["time"] = row
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]any{"status": "ok", "cities": s.gazetteer.Len()})
}

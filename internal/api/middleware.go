package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"bookcore/internal/metrics"
)

type ctxKey int

const requestIDKey ctxKey = iota

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID tags every request with X-Request-ID, generating one if absent.
func (s *HTTPServer) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// auth requires X-Api-Key when a key is configured.
func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Api-Key")), []byte(s.apiKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimit applies a token bucket per client.
func (s *HTTPServer) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if !s.limiter.get(client).Allow() {
			s.logger.Warn().Str("client", client).Msg("Rate limit exceeded")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded; try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if key := r.Header.Get("X-Api-Key"); key != "" {
		return "key:" + key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

// limiterIdle is how long a client's bucket survives without requests.
const limiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterStore struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterStore(perSecond float64, burst int) *limiterStore {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &limiterStore{
		limiters: make(map[string]*clientLimiter),
		limit:    limit,
		burst:    burst,
		idle:     limiterIdle,
		now:      time.Now,
	}
}

// get returns the client's limiter, dropping buckets idle longer than s.idle
// at most once per idle period.
func (s *limiterStore) get(client string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= s.idle {
		for key, cl := range s.limiters {
			if now.Sub(cl.lastSeen) >= s.idle {
				delete(s.limiters, key)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.limiters[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[client] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handle registers h under pattern with request logging and metrics labelled
// by the pattern.
func (s *HTTPServer) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		metrics.IncHTTPRequest(pattern, strconv.Itoa(rec.status))
		s.logger.Debug().
			Str("request_id", requestIDFrom(r.Context())).
			Str("route", pattern).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}))
}

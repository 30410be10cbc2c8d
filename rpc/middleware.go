package rpc

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"xlend/observability"
	"xlend/observability/logging"
)

// HeaderRequestID carries the request correlation id in both directions.
const HeaderRequestID = "X-Request-ID"

const (
	metricsModule       = "lending"
	limiterIdleLifetime = 5 * time.Minute
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	callerKey
)

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// caller is filled in by authenticate so the access log can name the signer.
type caller struct {
	signer string
}

func setCaller(ctx context.Context, signer [20]byte) {
	if c, ok := ctx.Value(callerKey).(*caller); ok {
		c.signer = ledgerString(signer)
	}
}

// withRequestID reuses a well-formed inbound id or assigns a fresh UUID.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// observe records RPC metrics and an access log line per request. The route
// label is the chi pattern so path parameters do not explode cardinality.
func observe(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			who := &caller{}
			r = r.WithContext(context.WithValue(r.Context(), callerKey, who))
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			observability.ModuleMetrics().Observe(metricsModule, r.Method+" "+route, recorder.status, elapsed)
			attrs := []any{
				slog.String("request_id", requestID(r.Context())),
				slog.String("route", r.Method+" "+route),
				slog.Int("status", recorder.status),
				slog.Int64("duration_ms", elapsed.Milliseconds()),
				logging.MaskField("client", clientID(r)),
			}
			if who.signer != "" {
				attrs = append(attrs, logging.AddressField("signer", who.signer))
			}
			logger.Debug("request served", attrs...)
		})
	}
}

// RateLimiter throttles requests per client address with a token bucket.
type RateLimiter struct {
	limit rate.Limit
	burst int

	mu        sync.Mutex
	visitors  map[string]*visitor
	lastPrune time.Time
	clockNow  func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per client with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		visitors: make(map[string]*visitor),
		clockNow: time.Now,
	}
}

// Middleware rejects requests above the client's budget with 429.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l == nil || l.limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		if !l.obtainLimiter(clientID(r)).Allow() {
			observability.ModuleMetrics().RecordThrottle(metricsModule, "rate_limit")
			writeJSON(w, http.StatusTooManyRequests, ErrorBody{
				Error:     ErrorDetail{Code: "rate_limited", Message: http.StatusText(http.StatusTooManyRequests)},
				RequestID: requestID(r.Context()),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *RateLimiter) obtainLimiter(id string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clockNow()
	if now.Sub(l.lastPrune) > time.Minute {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > limiterIdleLifetime {
				delete(l.visitors, key)
			}
		}
		l.lastPrune = now
	}
	v, ok := l.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
		return first
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

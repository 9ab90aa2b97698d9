package server

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// recoverer converts a handler panic into the standard error panel instead
// of a blank 500, and reports it to Sentry when a DSN is configured.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			hub := sentry.GetHubFromContext(r.Context())
			if hub == nil {
				hub = sentry.CurrentHub().Clone()
			}
			hub.RecoverWithContext(r.Context(), rec)
			zap.L().Error("server: panic recovered",
				zap.Any("panic", rec),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
			)
			panel(w, http.StatusInternalServerError, "something went wrong handling this request", fmt.Sprint(rec))
		}()
		next.ServeHTTP(w, r)
	})
}

const maxTrackedIPs = 4096

// ipLimiter holds one token bucket per client IP. Entries idle past the
// eviction window are dropped once the map fills up.
type ipLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newIPLimiter(rps float64, burst int) *ipLimiter {
	return &ipLimiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[ip]
	if !ok {
		if len(l.visitors) >= maxTrackedIPs {
			l.evictStale()
		}
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// evictStale drops visitors idle for ten minutes. Callers hold l.mu.
func (l *ipLimiter) evictStale() {
	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, ip)
		}
	}
}

func (l *ipLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			// RealIP middleware rewrites RemoteAddr without a port.
			ip = r.RemoteAddr
		}
		if !l.allow(ip) {
			panel(w, http.StatusTooManyRequests, "too many requests, slow down", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// internal/server/middleware.go
package server

import (
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"fleetmaint/internal/domainerr"
	"fleetmaint/internal/httpx"
	"fleetmaint/internal/logger"
)

// limiterIdle is how long a client's limiter survives without requests.
const limiterIdle = 10 * time.Minute

// ClientRateLimiter keeps one token bucket per client address.
type ClientRateLimiter struct {
	limiters *cache.Cache
	limit    rate.Limit
	burst    int
}

func NewClientRateLimiter(rps float64, burst int) *ClientRateLimiter {
	return &ClientRateLimiter{
		limiters: cache.New(limiterIdle, 2*limiterIdle),
		limit:    rate.Limit(rps),
		burst:    burst,
	}
}

// Allow consumes a token for client.
func (l *ClientRateLimiter) Allow(client string) bool {
	if v, found := l.limiters.Get(client); found {
		l.limiters.Set(client, v, cache.DefaultExpiration)
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.limiters.Add(client, limiter, cache.DefaultExpiration); err != nil {
		// Another request registered the client first.
		if v, found := l.limiters.Get(client); found {
			return v.(*rate.Limiter).Allow()
		}
	}
	return limiter.Allow()
}

// Middleware rejects requests over the client's budget with 429.
func (l *ClientRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			httpx.WriteError(r.Context(), w, domainerr.New(domainerr.CodeRateLimited, "too many requests"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestLogger attaches a request-scoped zap logger to the context and logs
// one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithKV(r.Context(), "request_id", middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r.WithContext(ctx))

		logger.InfoKV(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

// Tracing opens a server span per request, continuing any incoming trace
// context. The span is named after the matched chi route.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("fleetmaint/http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		if rctx := chi.RouteContext(ctx); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
		status := ww.Status()
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	})
}

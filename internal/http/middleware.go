package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/robertarktes/rental-reservations/internal/auth"
	"github.com/robertarktes/rental-reservations/internal/idempotency"
	"github.com/robertarktes/rental-reservations/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	actorKey
)

// Limiter is satisfied by rateLimit.RateLimiter.
type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) bool
}

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := context.WithValue(r.Context(), loggerKey, entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggerFrom(ctx context.Context) observability.Logger {
	if l, ok := ctx.Value(loggerKey).(observability.Logger); ok {
		return l
	}
	return observability.NewDiscardLogger()
}

// AuthMiddleware resolves the acting user. With a verifier it requires a
// valid bearer token when an Authorization header is sent; without one it
// trusts X-User-ID, which is only suitable behind an authenticating gateway.
func AuthMiddleware(verifier *auth.Verifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var actor uuid.UUID
			if verifier != nil {
				header := r.Header.Get("Authorization")
				if header != "" {
					token, ok := strings.CutPrefix(header, "Bearer ")
					if !ok {
						writeError(w, r, auth.ErrInvalidToken)
						return
					}
					claims, err := verifier.ValidateToken(token)
					if err != nil {
						writeError(w, r, err)
						return
					}
					actor = claims.UserID
				}
			} else if raw := r.Header.Get("X-User-ID"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					writeError(w, r, auth.ErrInvalidToken)
					return
				}
				actor = id
			}
			if actor == uuid.Nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requireActor(r *http.Request) (uuid.UUID, error) {
	if id, ok := r.Context().Value(actorKey).(uuid.UUID); ok {
		return id, nil
	}
	return uuid.Nil, errUnauthenticated
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response for a repeated
// Idempotency-Key. Keys are scoped to the acting user.
func IdempotencyMiddleware(idemp *idempotency.Idempotency) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if idemp == nil || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				writeError(w, r, idempotencyKeyError("missing Idempotency-Key"))
				return
			}
			if len(key) < 16 {
				writeError(w, r, idempotencyKeyError("invalid Idempotency-Key"))
				return
			}
			actor, _ := r.Context().Value(actorKey).(uuid.UUID)
			scoped := actor.String() + ":" + key

			existing, err := idemp.Get(r.Context(), scoped)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if existing != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Result)
				return
			}

			release, err := idemp.Begin(r.Context(), scoped)
			if err != nil {
				writeError(w, r, err)
				return
			}
			defer release()

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				return
			}
			if err := idemp.Set(r.Context(), scoped, idempotency.Response{Status: rec.status, Result: rec.body.Bytes()}); err != nil {
				loggerFrom(r.Context()).Warn("failed to store idempotent response: ", err)
			}
		})
	}
}

func RateLimitMiddleware(rl Limiter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			allowed := true
			if actor, ok := r.Context().Value(actorKey).(uuid.UUID); ok {
				allowed = rl.Allow(r.Context(), "user:"+actor.String(), 60, time.Minute)
			}
			if allowed {
				allowed = rl.Allow(r.Context(), "ip:"+clientIP(r), 300, time.Minute)
			}
			if !allowed {
				observability.RateLimitExceeded.Inc()
				writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if i := strings.LastIndex(r.RemoteAddr, ":"); i > 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}

// TracingMiddleware starts a server span per request from the propagated
// trace context.
func TracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/logging"
	"github.com/fjod/go_cart/lineitems/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const UserIDHeader = "X-User-ID"

type ctxKey int

const userIDKey ctxKey = iota

// UserID lifts the caller's identity from the X-User-ID header set by the
// upstream auth proxy. Handlers answer 401 when it is absent.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
			r = r.WithContext(WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func UserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// RequestLogger attaches a request-scoped logger and logs one line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		l := logging.Base().With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
		if id := UserIDFromContext(r.Context()); id != "" {
			l = l.With("user_id", id)
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.WithCtx(r.Context(), l)))

		l.Info("request",
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// Metrics records request counts and latency by route pattern, so path
// parameters do not explode label cardinality.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			path = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, path).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// MaxBody caps request bodies at n bytes.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if n > 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

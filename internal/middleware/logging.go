// Package middleware provides composable HTTP middleware constructors that
// follow the standard func(http.Handler) http.Handler pattern. The gateway
// has no auth or rate-limit layer; Logger is the only middleware wrapped
// around the L7 handler.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"time"
)

// responseRecorder wraps http.ResponseWriter to capture the status code and
// number of bytes written by the downstream handler.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.status = code
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// upstreamKey is the context key under which a per-request upstream
// recorder is stashed by Logger and filled in by the proxy handler.
type upstreamKey struct{}

// upstreamRecorder captures which backend l7proxy.Gateway ended up
// forwarding (or attempting to forward) a request to, so Logger can include
// it in the request's log line without l7proxy needing to know how that
// line is written.
type upstreamRecorder struct {
	backend string
}

// RecordUpstream records backend as the upstream for the in-flight request
// carried by ctx. Call it once per attempt; the last call before the
// handler returns is what Logger logs, so a request that exhausts every
// candidate still logs the backend that finally gave up. It is a no-op if
// ctx was not produced by a Logger-wrapped handler.
func RecordUpstream(ctx context.Context, backend string) {
	if rec, ok := ctx.Value(upstreamKey{}).(*upstreamRecorder); ok {
		rec.backend = backend
	}
}

// Logger returns a middleware that emits one log line per request,
// including method, path, status, response size, latency, and — when the
// wrapped handler calls RecordUpstream — the backend the request was
// forwarded to. It also generates a unique X-Request-Id header that is
// forwarded upstream and returned in the response for end-to-end tracing.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := newRequestID()

		rec := &upstreamRecorder{}
		r = r.WithContext(context.WithValue(r.Context(), upstreamKey{}, rec))

		r.Header.Set("X-Request-Id", reqID)
		w.Header().Set("X-Request-Id", reqID)

		rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rr, r)

		slog.Info("request",
			"request_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"backend", rec.backend,
			"status", rr.status,
			"bytes", rr.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func newRequestID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

package mw

import (
	"bufio"
	"errors"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"solana-intent-settlement/internal/observability"
)

// LoggingMiddleware writes one access log line per request and records the
// request metrics under the matched route pattern.
type LoggingMiddleware struct {
	Log *log.Logger
}

func NewLogging(l *log.Logger) *LoggingMiddleware {
	return &LoggingMiddleware{Log: l}
}

func (m *LoggingMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		lrw := &loggingRW{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(lrw, r)

		dur := time.Since(start)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		observability.RecordHTTPRequest(route, r.Method, strconv.Itoa(lrw.status), dur.Seconds())

		if m.Log != nil {
			m.Log.Printf("%s %s status=%d size=%d dur_ms=%d ip=%s req_id=%s",
				r.Method, r.URL.Path, lrw.status, lrw.size, dur.Milliseconds(),
				clientIP(r), middleware.GetReqID(r.Context()))
		}
	})
}

type loggingRW struct {
	http.ResponseWriter
	status int
	size   int
}

func (w *loggingRW) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *loggingRW) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func (w *loggingRW) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying connection.
func (w *loggingRW) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

// Package httpserver serves the auth function over plain HTTP together with
// health, readiness and metrics endpoints.
package httpserver

import (
	"context"
	"io"
	"net/http"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/function"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxBodyBytes = 1 << 20

// Invoker runs one function invocation.
type Invoker interface {
	Handle(ctx context.Context, req function.Request) function.Response
}

// Pinger reports database reachability for /readyz.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type handler struct {
	fn     Invoker
	pinger Pinger
	logger logging.Logger
}

// NewRouter mounts the auth function at "/" and "/auth".
func NewRouter(fn Invoker, pinger Pinger, gatherer prometheus.Gatherer, logger logging.Logger) http.Handler {
	h := &handler{fn: fn, pinger: pinger, logger: logger.With("module", "http")}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	for _, path := range []string{"/", "/auth"} {
		r.Post(path, h.invoke)
		r.Options(path, h.invoke)
	}

	return r
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(r.Context()); err != nil {
			h.logger.Warn(r.Context(), "readiness check failed", "error", err)
			writeText(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "ready")
}

// invoke translates the HTTP request into a function event and back.
func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeText(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	req := function.Request{
		HTTPMethod:            r.Method,
		Headers:               make(map[string]string, len(r.Header)),
		Body:                  string(body),
		QueryStringParameters: make(map[string]string),
	}
	for k := range r.Header {
		req.Headers[k] = r.Header.Get(k)
	}
	for k, v := range r.URL.Query() {
		if len(v) > 0 {
			req.QueryStringParameters[k] = v[0]
		}
	}

	resp := h.fn.Handle(r.Context(), req)

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.WriteString(w, resp.Body)
}

func writeText(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, msg)
}

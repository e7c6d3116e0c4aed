package parking_api

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

// instrument counts requests by route pattern and status class, and logs server errors.
func (a *ParkingAPI) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		a.metrics.HTTPRequest(route, strconv.Itoa(status/100)+"xx")
		if status >= http.StatusInternalServerError {
			slog.Error("http request failed",
				"method", r.Method, "route", route, "status", status,
				"request_id", w.Header().Get(requestIDHeader), "took", time.Since(start).String())
		}
	})
}

// rateLimited fails open when the limiter itself is unavailable.
func (a *ParkingAPI) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.limiter == nil || a.rateLimit <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		key := "op:" + r.Header.Get(OperatorHeader)
		if r.Header.Get(OperatorHeader) == "" {
			key = "ip:" + clientIP(r)
		}
		ok, _, err := a.limiter.Allow(r.Context(), key, a.rateLimit, time.Minute)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			a.metrics.RateLimited()
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

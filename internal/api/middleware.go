package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/vocode-client/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	corsMaxAge      = 10 * time.Minute
)

// Middleware wraps the control API handlers
type Middleware struct {
	logger *logger.Logger
}

// NewMiddleware creates the request id, logging, recovery and CORS middleware
func NewMiddleware(logger *logger.Logger) *Middleware {
	return &Middleware{
		logger: logger.Named("api-middleware"),
	}
}

// RequestID tags the request context with an id and echoes it to the client
func (m *Middleware) RequestID(next http.Handler) http.Handler {
	return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(requestIDHeader, middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r)
	}))
}

// Logger records one line per request; server errors are logged at warn
func (m *Middleware) Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := m.logger.Debug
		if ww.Status() >= http.StatusInternalServerError {
			log = m.logger.Warn
		}
		log("HTTP request",
			logger.String("request_id", middleware.GetReqID(r.Context())),
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Int("bytes", ww.BytesWritten()),
			logger.Duration("duration", time.Since(started)))
	})
}

// Recoverer turns a handler panic into a logged 500 with a JSON body
func (m *Middleware) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			m.logger.Error("Handler panicked",
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.String("path", r.URL.Path),
				logger.Any("panic", rec))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Error: "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}

// corsPolicy is the set of origins a local web UI may call from.
// An empty set allows any origin.
type corsPolicy struct {
	any     bool
	origins map[string]bool
}

func newCORSPolicy(origins []string) corsPolicy {
	p := corsPolicy{any: len(origins) == 0, origins: make(map[string]bool, len(origins))}
	for _, o := range origins {
		if o == "*" {
			p.any = true
		}
		p.origins[o] = true
	}
	return p
}

// allow returns the Access-Control-Allow-Origin value for origin, or ""
func (p corsPolicy) allow(origin string) string {
	switch {
	case origin == "" && p.any:
		return "*"
	case origin == "":
		return ""
	case p.any || p.origins[origin]:
		return origin
	default:
		return ""
	}
}

// CORS answers preflight requests and sets the allow headers for permitted origins
func (m *Middleware) CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	policy := newCORSPolicy(allowedOrigins)
	maxAge := strconv.Itoa(int(corsMaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			if origin := policy.allow(r.Header.Get("Origin")); origin != "" {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
				h.Set("Access-Control-Allow-Headers", "Content-Type")
				h.Set("Access-Control-Expose-Headers", requestIDHeader)
			}

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog/log"
)

// requestLogger logs one line per request through the global zerolog
// logger. Successful reads are logged at debug to keep polling dashboards
// quiet.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			status := ww.Status()
			evt := log.Debug()
			switch {
			case status >= 500:
				evt = log.Error()
			case status >= 400 || r.Method != http.MethodGet:
				evt = log.Info()
			}
			evt.
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("HTTP request")
		}()
		next.ServeHTTP(ww, r)
	})
}

func corsHandler(allowedOrigins []string) func(http.Handler) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Forwarded-For", "X-Request-Id"},
		MaxAge:         300,
	})
}

// rateLimiter limits requests per resolved client address. A non-positive
// request count disables limiting.
func rateLimiter(requests int, window time.Duration, trustForwarded bool) func(http.Handler) http.Handler {
	if requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	keyFunc := func(r *http.Request) (string, error) {
		addr, err := ResolveSourceAddress(r.Header.Get("X-Forwarded-For"), r.RemoteAddr, trustForwarded)
		if err != nil {
			return httprate.KeyByIP(r)
		}
		return addr.String(), nil
	}

	return httprate.Limit(requests, window,
		httprate.WithKeyFuncs(keyFunc),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
		}),
	)
}

package middleware

import (
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogRequest logs each request at trace level and slow or failed ones at debug.
func LogRequest() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			begin := time.Now()
			resp := &responseWriter{w, http.StatusOK}

			next.ServeHTTP(resp, r)

			entry := log.WithFields(log.Fields{
				"method":  r.Method,
				"path":    r.URL.Path,
				"route":   routeTemplate(r),
				"status":  resp.statusCode,
				"elapsed": time.Since(begin).String(),
				"ua":      r.Header.Get("User-Agent"),
			})
			if resp.statusCode >= http.StatusInternalServerError || time.Since(begin) > slowRequest {
				entry.Debug(" ====> request")
				return
			}
			entry.Trace(" ====> request")
		})
	}
}

// slower requests are logged at debug level
const slowRequest = 10 * time.Second

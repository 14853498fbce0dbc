package main

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logHandler logs one line per request with method, path, status and
// duration.
type logHandler struct {
	log  logrus.FieldLogger
	next http.Handler
}

func (h *logHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
	h.next.ServeHTTP(rec, r)
	h.log.WithFields(logrus.Fields{
		"http.req.method":   r.Method,
		"http.req.path":     r.URL.Path,
		"http.resp.status":  rec.status,
		"http.resp.took_ms": time.Since(start).Milliseconds(),
	}).Debug("request complete")
}

// recoverHandler converts a handler panic into a logged 500 instead of a
// dropped connection.
func recoverHandler(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.WithField("panic", err).Error("request handler panicked")
				renderError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

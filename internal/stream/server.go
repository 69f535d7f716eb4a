package stream

import (
	"encoding/json"
	"net/http"
	"time"

	"latsim/internal/engine"
	"latsim/internal/sim"

	"github.com/sirupsen/logrus"
)

type statusWriter struct {
	http.ResponseWriter
	status int
	n      int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.n += n
	return n, err
}

func logging(log logrus.FieldLogger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": sw.status,
			"bytes":  sw.n,
			"took":   time.Since(start).String(),
		}).Debug("http request")
	})
}

// writeJSON marshals v and writes it with status and proper headers.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

// Server exposes the run over HTTP: a websocket feed, a health check and
// read-only snapshots of summary and depth.
type Server struct {
	Hub     *Hub
	Book    engine.OrderBookEngine
	Summary func() sim.Summary
	Log     logrus.FieldLogger
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", logging(s.Log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status": 200,
			"health": "healthy",
		})
	})))

	mux.Handle("GET /ws", logging(s.Log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(s.Hub, w, r)
	})))

	mux.Handle("GET /api/v1/summary", logging(s.Log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Summary())
	})))

	mux.Handle("GET /api/v1/depth", logging(s.Log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Book.GetMarketDepth(10))
	})))

	return mux
}

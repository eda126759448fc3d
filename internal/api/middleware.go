package api

import (
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/spam-detection/backend/internal/auth"
)

// cors adds the CORS headers to every response and answers preflight requests.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", s.Engine.Config.Server.CORSAllowedOrigin)
		h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,"+AdminTokenHeader)
		h.Set("Access-Control-Allow-Methods", "GET,PUT,POST,DELETE,OPTIONS")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.Logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("Request handled")
	})
}

// throttled limits the wrapped handler per authenticated user, or per client
// address when no user is attached to the request.
func (s *Server) throttled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Throttle == nil || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		key, ok := auth.UserID(r.Context())
		if !ok {
			key = "addr:" + clientIP(r)
		}
		release, err := s.Throttle.Acquire(r.Context(), key)
		if err != nil {
			s.writeError(w, err)
			return
		}
		defer release()
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

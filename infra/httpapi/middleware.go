package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/CrestNiraj12/rantfeed/infra/auth"
)

type contextKey string

const identityContextKey = contextKey("identity")

// statusRecorder captures the status code for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (rw *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

// requireAuth verifies the bearer token and stores the caller's identity
// in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, APIResponse{Error: "missing bearer token", Code: CodeUnauthenticated})
			return
		}
		id, err := s.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			s.log.Debug("rejected token", zap.Error(err))
			writeJSON(w, http.StatusUnauthorized, APIResponse{Error: "invalid token", Code: CodeUnauthenticated})
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next(w, r.WithContext(ctx))
	}
}

func identityFrom(ctx context.Context) auth.Identity {
	id, _ := ctx.Value(identityContextKey).(auth.Identity)
	return id
}

package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireSecret authenticates the shared bearer secret with a
// constant-time comparison. With no secret configured the server
// fails closed rather than open.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret == "" {
			s.logger.Error("capture shared secret not configured, refusing request", "path", r.URL.Path)
			writeError(w, http.StatusInternalServerError, "server_misconfiguration")
			return
		}

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Secret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

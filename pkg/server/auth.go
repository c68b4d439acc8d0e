package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bitosome/real-electricity-price/pkg/log"
)

// requireAdmin only lets requests through that carry a valid bearer ID token
// for one of the admin emails. Everything is allowed when auth is bypassed.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.bypassAuth {
			next(w, r)
			return
		}
		ctx := r.Context()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeJSONError(w, "missing authorization header", http.StatusUnauthorized)
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			writeJSONError(w, "invalid authorization header", http.StatusUnauthorized)
			return
		}
		if s.verifier == nil {
			log.Ctx(ctx).ErrorContext(ctx, "no token verifier configured")
			writeJSONError(w, "authentication unavailable", http.StatusUnauthorized)
			return
		}

		email, err := s.verifier(ctx, parts[1])
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to validate id token", slog.Any("error", err))
			writeJSONError(w, "invalid id token", http.StatusUnauthorized)
			return
		}
		if !s.isAdmin(email) {
			log.Ctx(ctx).WarnContext(ctx, "unauthorized email", slog.String("email", email))
			writeJSONError(w, "unauthorized email", http.StatusForbidden)
			return
		}
		log.Ctx(ctx).DebugContext(ctx, "authorized", slog.String("email", email))
		next(w, r.WithContext(log.With(ctx, log.Ctx(ctx).With(slog.String("email", email)))))
	}
}

func (s *Server) isAdmin(email string) bool {
	if email == "" {
		return false
	}
	for _, admin := range s.adminEmails {
		if subtle.ConstantTimeCompare([]byte(email), []byte(admin)) == 1 {
			return true
		}
	}
	return false
}

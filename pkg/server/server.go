package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/bitosome/real-electricity-price/pkg/common"
	"github.com/bitosome/real-electricity-price/pkg/controller"
	"github.com/bitosome/real-electricity-price/pkg/log"
	"github.com/bitosome/real-electricity-price/pkg/market"
	"github.com/bitosome/real-electricity-price/pkg/types"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/levenlabs/go-lflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// tokenVerifier validates a Google ID token and returns its email claim.
type tokenVerifier func(ctx context.Context, rawIDToken string) (string, error)

// Server handles the HTTP API. Reads are served from the controller's
// snapshots; writes go through the controller.
type Server struct {
	controller *controller.Controller

	listenAddr string
	httpServer *http.Server
	serverName string

	adminEmails []string
	verifier    tokenVerifier
	bypassAuth  bool

	now func() time.Time
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(c *controller.Controller) *Server {
	srv := &Server{
		controller: c,
		serverName: "real-electricity-price/" + common.Version(),
		now:        time.Now,
	}
	revision := os.Getenv("K_REVISION")
	if revision != "" {
		srv.serverName = revision
	}

	// get the port from PORT when running in cloud run
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	adminEmails := lflag.String("admin-emails", "", "comma-delimited list of email addresses allowed to call POST endpoints")
	oidcAudience := lflag.String("oidc-audience", "", "audience to validate Google ID tokens against; POST endpoints are unauthenticated when empty")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		if *adminEmails != "" {
			srv.adminEmails = strings.Split(*adminEmails, ",")
			for i, email := range srv.adminEmails {
				srv.adminEmails[i] = strings.TrimSpace(email)
			}
		}
		if *oidcAudience == "" {
			srv.bypassAuth = true
			return
		}
		if len(srv.adminEmails) == 0 {
			panic("admin-emails is required when oidc-audience is set")
		}
		provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
			os.Exit(1)
		}
		verifier := provider.Verifier(&oidc.Config{ClientID: *oidcAudience})
		srv.verifier = func(ctx context.Context, rawIDToken string) (string, error) {
			idToken, err := verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return "", err
			}
			var claims struct {
				Email         string `json:"email"`
				EmailVerified bool   `json:"email_verified"`
			}
			if err := idToken.Claims(&claims); err != nil {
				return "", fmt.Errorf("failed to parse claims: %w", err)
			}
			if !claims.EmailVerified {
				return "", errors.New("email not verified")
			}
			return claims.Email, nil
		}
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/prices", s.handlePrices)
	apiMux.HandleFunc("GET /api/current", s.handleCurrent)
	apiMux.HandleFunc("GET /api/cheap", s.handleCheap)
	apiMux.HandleFunc("GET /api/settings", s.handleGetSettings)
	apiMux.HandleFunc("GET /api/overrides", s.handleGetOverrides)
	apiMux.HandleFunc("POST /api/refresh", s.requireAdmin(s.handleRefresh))
	apiMux.HandleFunc("POST /api/cheap/recalculate", s.requireAdmin(s.handleRecalculate))
	apiMux.HandleFunc("POST /api/settings", s.requireAdmin(s.handleUpdateSettings))
	apiMux.HandleFunc("POST /api/overrides", s.requireAdmin(s.handleUpdateOverrides))

	mux := http.NewServeMux()
	mux.Handle("/api/", s.requestLogMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/metrics", promhttp.Handler())
	return s.revisionMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
}

// Run starts the HTTP server and blocks until the context is canceled or an error occurs.
// It also handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.setupHandler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	// use a channel to capturing server errors
	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr), slog.Bool("bypassAuth", s.bypassAuth))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		// Context canceled, shut down gracefully
		log.Ctx(ctx).InfoContext(ctx, "shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		slog.Warn("failed to write error response", slog.Any("error", err))
		panic(http.ErrAbortHandler)
	}
}

// writeControllerError maps controller errors to status codes.
func writeControllerError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, types.ErrInvalidConfig):
		log.Ctx(ctx).WarnContext(ctx, msg, slog.Any("error", err))
		writeJSONError(w, fmt.Sprintf("%s: %v", msg, err), http.StatusBadRequest)
	case errors.Is(err, market.ErrUnauthorized):
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
		writeJSONError(w, msg+": market rejected credentials", http.StatusBadGateway)
	default:
		log.Ctx(ctx).ErrorContext(ctx, msg, slog.Any("error", err))
		writeJSONError(w, msg, http.StatusInternalServerError)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) revisionMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = log.With(ctx, log.Ctx(ctx).With(slog.String("reqPath", r.URL.Path), slog.String("method", r.Method)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

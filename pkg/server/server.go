package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/genesismon/genesismon/pkg/genesis"
	"github.com/genesismon/genesismon/pkg/log"
	"github.com/genesismon/genesismon/pkg/poller"
	"github.com/genesismon/genesismon/pkg/storage"
	"github.com/levenlabs/go-lflag"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// tokenVerifier is a function that validates a Google ID Token.
type tokenVerifier func(ctx context.Context, rawIDToken string) (*oidc.IDToken, error)

// Server exposes the monitored account over a local HTTP API: the latest
// snapshot, stored usage statistics, and the manual refresh, backfill and
// PowerShout booking operations.
type Server struct {
	api    genesis.API
	db     storage.Database
	poller *poller.Poller

	listenAddr string
	httpServer *http.Server

	oidcAudience string
	oidcVerifier tokenVerifier
	bypassAuth   bool
	serverName   string
}

// Configured initializes the Server with dependencies.
// It uses lflag to register command-line flags for configuration.
func Configured(api genesis.API, db storage.Database, p *poller.Poller) *Server {
	srv := &Server{
		api:        api,
		db:         db,
		poller:     p,
		serverName: "genesismon",
	}

	// get the port from PORT when running under a supervisor
	port := os.Getenv("PORT")
	if port == "" {
		// otherwise default to 8080
		port = "8080"
	}

	listenAddr := lflag.String("http-listen", ":"+port, "HTTP server listen address")
	oidcAudience := lflag.String("oidc-audience", "", "Google audience/client ID to validate bearer tokens against; empty disables auth")

	lflag.Do(func() {
		srv.listenAddr = *listenAddr
		srv.oidcAudience = *oidcAudience
		if srv.oidcAudience == "" {
			srv.bypassAuth = true
			return
		}
		provider, err := oidc.NewProvider(context.Background(), "https://accounts.google.com")
		if err != nil {
			log.Ctx(context.Background()).Error("failed to initialize Google OIDC provider", slog.Any("error", err))
			os.Exit(1)
		}
		srv.oidcVerifier = provider.Verifier(&oidc.Config{ClientID: srv.oidcAudience}).Verify
	})

	return srv
}

func (s *Server) setupHandler() http.Handler {
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("GET /api/data", s.handleGetData)
	apiMux.HandleFunc("GET /api/data/{key}", s.handleGetDataKey)
	apiMux.HandleFunc("POST /api/refresh", s.handleRefresh)
	apiMux.HandleFunc("POST /api/powershout/book", s.handleBookPowerShout)
	apiMux.HandleFunc("POST /api/backfill", s.handleBackfill)
	apiMux.HandleFunc("GET /api/history/usage", s.handleHistoryUsage)

	mux := http.NewServeMux()
	mux.Handle("/api/", s.authMiddleware(apiMux))
	mux.HandleFunc("/healthz", s.handleHealthz)
	return s.serverNameMiddleware(gziphandler.GzipHandler(s.securityHeadersMiddleware(mux)))
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
		log.Ctx(ctx).InfoContext(ctx, "starting server", slog.String("addr", s.listenAddr))
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

// writeUpstreamError maps a failure from the account portal onto an HTTP
// status: rejected credentials need operator action (403), everything else
// coming back from the portal is a bad gateway.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var apiErr *genesis.APIError
	switch {
	case genesis.IsAuthError(err):
		writeJSONError(w, err.Error(), http.StatusForbidden)
	case genesis.IsConnectError(err), errors.As(err, &apiErr):
		writeJSONError(w, err.Error(), http.StatusBadGateway)
	default:
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		panic(http.ErrAbortHandler)
	}
}

func (s *Server) securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Prevent MIME-sniffing
		w.Header().Set("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		w.Header().Set("X-Frame-Options", "DENY")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) serverNameMiddleware(next http.Handler) http.Handler {
	if s.serverName == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", s.serverName)
		next.ServeHTTP(w, r)
	})
}

package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/iotfleet-server/iotfleet-server/internal/admission"
	"github.com/iotfleet-server/iotfleet-server/internal/auth"
	"github.com/iotfleet-server/iotfleet-server/internal/binding"
	"github.com/iotfleet-server/iotfleet-server/internal/config"
	"github.com/iotfleet-server/iotfleet-server/internal/registry"
	"github.com/iotfleet-server/iotfleet-server/internal/storage"
	"github.com/iotfleet-server/iotfleet-server/internal/tenant"
	"github.com/iotfleet-server/iotfleet-server/internal/validation"
)

type contextKey string

const claimsContextKey contextKey = "identity-claims"

// RESTServer represents the REST API server
type RESTServer struct {
	config    *config.Config
	store     storage.Store
	verifier  auth.Verifier
	resolver  *tenant.AccessResolver
	gate      *admission.Gate
	binder    *binding.Binder
	registry  registry.Registry
	claims    *auth.ClaimIssuer
	validator *validation.Validator
	router    chi.Router
	server    *http.Server
}

// NewRESTServer creates a new REST API server
func NewRESTServer(
	cfg *config.Config,
	store storage.Store,
	verifier auth.Verifier,
	gate *admission.Gate,
	binder *binding.Binder,
	reg registry.Registry,
	claims *auth.ClaimIssuer,
) *RESTServer {
	s := &RESTServer{
		config:    cfg,
		store:     store,
		verifier:  verifier,
		resolver:  tenant.NewAccessResolver(store),
		gate:      gate,
		binder:    binder,
		registry:  reg,
		claims:    claims,
		validator: validation.NewValidator(),
		router:    chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		claims, err := s.verifier.Verify(r.Context(), parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// callerClaims extracts the verified identity from the request context
func callerClaims(r *http.Request) *auth.IdentityClaims {
	claims, _ := r.Context().Value(claimsContextKey).(*auth.IdentityClaims)
	return claims
}

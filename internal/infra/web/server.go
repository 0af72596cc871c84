package web

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"game-activation-ledger/internal/infra/api"
	"game-activation-ledger/internal/infra/i18n"
	"game-activation-ledger/internal/usecase"
)

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	codes   usecase.CodeUseCase
	redeem  usecase.RedemptionUseCase
	ledger  usecase.LedgerUseCase
	auth    *AuthManager
	health  HealthCheck
	msgs    *i18n.Catalog
	origins []string
	log     *zerolog.Logger
}

func NewServer(
	codes usecase.CodeUseCase,
	redeem usecase.RedemptionUseCase,
	ledger usecase.LedgerUseCase,
	auth *AuthManager,
	health HealthCheck,
	msgs *i18n.Catalog,
	corsOrigins []string,
	logger *zerolog.Logger,
) *Server {
	compLog := logger.With().Str("component", "WebServer").Logger()
	return &Server{
		codes:   codes,
		redeem:  redeem,
		ledger:  ledger,
		auth:    auth,
		health:  health,
		msgs:    msgs,
		origins: corsOrigins,
		log:     &compLog,
	}
}

// Routes builds the chi router for the public and admin API.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.authenticate(s.log))

		r.Post("/redeem", s.handleRedeem)
		r.Get("/me/entitlements", s.handleMyEntitlements)
		r.Get("/games/{gameID}/access", s.handleAccess)

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAdmin)

			r.Post("/codes/generate", s.handleGenerate)
			r.Get("/codes", s.handleListCodes)
			r.Delete("/codes/{codeID}", s.handleDeleteCode)
			r.Post("/codes/batch-delete", s.handleDeleteMany)
			r.Delete("/batches/{batchTag}", s.handleDeleteBatch)

			r.Get("/users/{userID}/entitlements", s.handleUserEntitlements)
			r.Post("/users/{userID}/entitlements", s.handleGrant)
			r.Delete("/users/{userID}/entitlements/{gameID}", s.handleRevoke)
			r.Get("/games/{gameID}/entitlements", s.handleGameEntitlements)
			r.Get("/consistency", s.handleConsistency)
		})
	})
	return r
}

// message renders key in the caller's language, or returns fallback when no
// catalog is configured.
func (s *Server) message(r *http.Request, fallback, key string, args ...interface{}) string {
	if s.msgs == nil {
		return fallback
	}
	return s.msgs.For(r.Header.Get("Accept-Language")).T(key, args...)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("health check failed")
			api.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// File: internal/infra/web/server.go
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"media-cardkey-platform/internal/usecase"
)

type Server struct {
	keysUC    usecase.CardKeyUseCase
	codesUC   usecase.ActivationCodeUseCase
	pointsUC  usecase.PointsUseCase
	inviteUC  usecase.InvitationUseCase
	inviteCfg usecase.InvitationConfigUseCase
	redeemUC  usecase.RedeemUseCase
	auth      *AuthManager
	log       *zerolog.Logger
}

func NewServer(
	keysUC usecase.CardKeyUseCase,
	codesUC usecase.ActivationCodeUseCase,
	pointsUC usecase.PointsUseCase,
	inviteUC usecase.InvitationUseCase,
	inviteCfg usecase.InvitationConfigUseCase,
	redeemUC usecase.RedeemUseCase,
	auth *AuthManager,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		keysUC:    keysUC,
		codesUC:   codesUC,
		pointsUC:  pointsUC,
		inviteUC:  inviteUC,
		inviteCfg: inviteCfg,
		redeemUC:  redeemUC,
		auth:      auth,
		log:       logger,
	}
}

// Router assembles the full HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireRole(true))

			r.Post("/cardkeys", s.cardKeysCreateHandler())
			r.Get("/cardkeys", s.cardKeysListHandler())
			r.Get("/cardkeys/stats", s.cardKeysStatsHandler())
			r.Get("/cardkeys/export", s.cardKeysExportHandler())
			r.Post("/cardkeys/cleanup", s.cardKeysCleanupHandler())
			r.Delete("/cardkeys/{hash}", s.cardKeysDeleteHandler())

			r.Post("/activation-codes", s.codesCreateHandler())
			r.Get("/activation-codes", s.codesListHandler())
			r.Get("/activation-codes/export", s.codesExportHandler())
			r.Delete("/activation-codes/{code}", s.codesDeleteHandler())

			r.Post("/points/adjust", s.pointsAdjustHandler())
			r.Get("/points/users", s.pointsUsersHandler())
			r.Get("/points/history", s.pointsAdminHistoryHandler())

			r.Get("/invitation-config", s.inviteConfigGetHandler())
			r.Put("/invitation-config", s.inviteConfigPutHandler())
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(s.requireRole(false))

			r.Post("/cardkey", s.bindCardKeyHandler())
			r.Get("/cardkey", s.cardKeyStatusHandler())
			r.Get("/cardkeys", s.ownedCardKeysHandler())
			r.Post("/redeem", s.redeemHandler())
			r.Get("/points", s.pointsBalanceHandler())
			r.Get("/points/history", s.pointsHistoryHandler())
			r.Get("/invitation", s.invitationInfoHandler())
		})

		r.Route("/invitation", func(r chi.Router) {
			r.Post("/validate", s.invitationValidateHandler())
			// called by the account service when a referred registration
			// completes
			r.With(s.requireRole(true)).Post("/referral", s.invitationReferralHandler())
		})

		r.Route("/activation-codes", func(r chi.Router) {
			r.Post("/validate", s.codeValidateHandler())
			// called by the account service when a registration presents an
			// activation code
			r.With(s.requireRole(true)).Post("/use", s.codeUseHandler())
		})
	})

	return r
}

// requireRole authenticates the bearer token and, when admin is set,
// rejects non-privileged roles.
func (s *Server) requireRole(admin bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := s.auth.ParseFromRequest(r)
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if admin && !claims.IsAdmin() {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSession(r.Context(), claims)))
		})
	}
}

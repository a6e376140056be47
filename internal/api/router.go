package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/samandr77/microservices/identity/docs" // swagger docs
)

const corsMaxAge = 300

func NewRouter(h *Handler, mw *Middleware, allowedOrigins []string) http.Handler {
	mux := chi.NewRouter()
	mux.Use(mw.Recover, mw.WithIP, mw.Log)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Service-Name", "X-Api-Key"},
		AllowCredentials: true,
		MaxAge:           corsMaxAge,
	}))

	mux.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Get("/swagger/*", httpSwagger.WrapHandler)

		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Get("/oauth/providers", h.Providers)
		r.Get("/oauth/{provider}/authorize", h.Authorize)
		r.Post("/oauth/{provider}/callback", h.OAuthCallback)

		r.Route("/otp", func(r chi.Router) {
			r.Use(mw.StepUp)
			r.Post("/resend", h.ResendCode)
			r.Post("/verify", h.VerifyCode)
		})

		r.Post("/token/refresh", h.RefreshToken)
		r.Post("/token/destroy", h.DestroyToken)
		r.Post("/token/validate", h.ValidateToken)

		r.Group(func(r chi.Router) {
			r.Use(mw.Authenticate)
			r.Get("/session", h.Session)
			r.Get("/me", h.Me)
			r.Post("/me/role", h.SelectRole)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole)
				r.Patch("/me", h.UpdateProfile)
				r.Post("/wallet/link", h.LinkWallet)
			})
		})
	})

	mux.Route("/internal/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth)
		r.Post("/identities/role", h.AssignRole)
		r.Post("/token/destroy", h.RevokeSessions)
	})

	return mux
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/samandr77/microservices/identity/pkg/logger"
)

const (
	bindingCookie     = "oauth_binding"
	bindingCookiePath = "/api/oauth"
)

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

type AuthorizeResponse struct {
	URL string `json:"url"`
}

// @Summary List identity providers
// @Tags oauth
// @Produce json
// @Success 200 {object} ProvidersResponse
// @Router /api/oauth/providers [get]
func (h *Handler) Providers(w http.ResponseWriter, r *http.Request) {
	sendJSON(r.Context(), w, http.StatusOK, ProvidersResponse{Providers: h.s.Providers()})
}

// @Summary Start the provider sign-in
// @Description Returns the provider authorization URL carrying a signed state and sets the oauth_binding cookie the state is bound to.
// @Tags oauth
// @Produce json
// @Param provider path string true "Provider name"
// @Success 200 {object} AuthorizeResponse
// @Failure 404 {object} ResponseError "Unknown provider"
// @Router /api/oauth/{provider}/authorize [get]
func (h *Handler) Authorize(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "oauth")

	start, err := h.s.AuthorizeURL(ctx, chi.URLParam(r, "provider"))
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     bindingCookie,
		Value:    start.Binding,
		Path:     bindingCookiePath,
		Expires:  start.ExpiresAt,
		MaxAge:   int(time.Until(start.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	sendJSON(ctx, w, http.StatusOK, AuthorizeResponse{URL: start.URL})
}

// @Summary Finish the provider sign-in
// @Description Exchanges the authorization code, links or creates the identity and sends a confirmation code.
// @Tags oauth
// @Accept json
// @Produce json
// @Param provider path string true "Provider name"
// @Param request body OAuthCallbackRequest true "Authorization code and state"
// @Param oauth_binding cookie string true "Set by the authorize call"
// @Success 200 {object} entity.StepUp "Code sent"
// @Failure 400 {object} ResponseError "Invalid code or state"
// @Failure 404 {object} ResponseError "Unknown provider"
// @Failure 503 {object} ResponseError "Provider unavailable"
// @Router /api/oauth/{provider}/callback [post]
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "oauth")

	var req OAuthCallbackRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	var binding string
	if c, err := r.Cookie(bindingCookie); err == nil {
		binding = c.Value
	}

	http.SetCookie(w, &http.Cookie{
		Name:     bindingCookie,
		Path:     bindingCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	stepUp, err := h.s.OAuthCallback(ctx, chi.URLParam(r, "provider"), req.Code, req.State, binding)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, stepUp)
}

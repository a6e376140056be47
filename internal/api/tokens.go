package api

import (
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/pkg/logger"
)

type MessageResponse struct {
	Message string `json:"message"`
}

// @Summary Refresh the session
// @Description Rotates the refresh token. The presented token stops working.
// @Tags token
// @Accept json
// @Produce json
// @Param request body RefreshTokenRequest true "Refresh token"
// @Success 200 {object} entity.UserTokens
// @Failure 401 {object} ResponseError "Invalid or revoked refresh token"
// @Router /api/token/refresh [post]
func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "token")

	var req RefreshTokenRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	tokens, err := h.s.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, tokens)
}

// @Summary Sign out
// @Description Deletes the session of the refresh token. Its access token stops working too.
// @Tags token
// @Accept json
// @Produce json
// @Param request body DestroyTokenRequest true "Refresh token"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ResponseError "Invalid token"
// @Router /api/token/destroy [post]
func (h *Handler) DestroyToken(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "token")

	var req DestroyTokenRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	err := h.s.DestroyToken(ctx, req.RefreshToken)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

// @Summary Validate an access token
// @Description Used by other services. Returns the principal composed from the current identity record.
// @Tags token
// @Accept json
// @Produce json
// @Param request body ValidateTokenRequest true "Access token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ResponseError "Invalid token"
// @Router /api/token/validate [post]
func (h *Handler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "token")

	var req ValidateTokenRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	p, err := h.s.ValidateToken(ctx, req.AccessToken)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, newSessionResponse(p))
}

// @Summary Revoke all sessions of an identity (internal)
// @Tags internal
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body RevokeSessionsRequest true "Identity ID"
// @Success 200 {object} MessageResponse
// @Failure 401 {object} ResponseError "Missing or wrong API key"
// @Failure 422 {object} ResponseError "Invalid request"
// @Router /internal/api/token/destroy [post]
func (h *Handler) RevokeSessions(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "token")

	var req RevokeSessionsRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	err := h.s.RevokeToken(ctx, uuid.FromStringOrNil(req.UserID))
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, MessageResponse{Message: "Sessions revoked"})
}

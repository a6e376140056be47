package api

import (
	"errors"
	"net/http"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

// @Summary Register with a password
// @Description Creates a pending identity or attaches a password to a federated one, then sends a sign-in code.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Credentials"
// @Success 200 {object} entity.StepUp "Code sent"
// @Failure 409 {object} ResponseError "Email already has a password"
// @Failure 422 {object} ResponseError "Invalid request"
// @Failure 502 {object} ResponseError "Code delivery failed"
// @Router /api/auth/register [post]
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "auth")

	var req RegisterRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	stepUp, err := h.s.Register(ctx, req.Email, req.Password, req.Name)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, stepUp)
}

// @Summary Sign in with a password
// @Description Checks the password and sends a sign-in code. No session is issued before the code is verified.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} entity.StepUp "Code sent"
// @Failure 401 {object} ResponseError "Wrong email or password"
// @Failure 502 {object} ResponseError "Code delivery failed"
// @Router /api/auth/login [post]
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "auth")

	var req LoginRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	stepUp, err := h.s.Login(ctx, req.Email, req.Password)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, stepUp)
}

// @Summary Send a new code
// @Description Replaces the pending code of the step-up token. Earlier codes stop working.
// @Tags otp
// @Produce json
// @Security StepUpToken
// @Success 200 {object} entity.StepUp "Code sent"
// @Failure 401 {object} ResponseError "Invalid step-up token"
// @Failure 429 {object} ResponseError "Resend cooldown"
// @Failure 502 {object} ResponseError "Code delivery failed"
// @Router /api/otp/resend [post]
func (h *Handler) ResendCode(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "otp")

	claims, ok := entity.StepUpFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	stepUp, err := h.s.ResendCode(ctx, claims)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, stepUp)
}

// @Summary Verify a code
// @Description Consumes the code of the step-up token and issues the session tokens.
// @Tags otp
// @Accept json
// @Produce json
// @Security StepUpToken
// @Param request body VerifyCodeRequest true "Code"
// @Success 200 {object} entity.UserTokens "Signed in"
// @Failure 400 {object} ResponseError "Wrong code"
// @Failure 404 {object} ResponseError "No active code"
// @Failure 410 {object} ResponseError "Code expired"
// @Failure 429 {object} ResponseError "Too many wrong codes"
// @Router /api/otp/verify [post]
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "otp")

	claims, ok := entity.StepUpFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	var req VerifyCodeRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	tokens, err := h.s.VerifyCode(ctx, claims, req.Code)
	if err != nil {
		if errors.Is(err, entity.ErrNotFound) {
			sendErr(ctx, w, http.StatusNotFound, err, "No active code, request a new one")
			return
		}

		sendServiceErr(ctx, w, err)

		return
	}

	sendJSON(ctx, w, http.StatusOK, tokens)
}

package api

import (
	"net/http"
	"time"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/pkg/logger"
)

type SessionResponse struct {
	entity.Principal
	RequiresRoleSelection bool `json:"requiresRoleSelection"`
}

func newSessionResponse(p entity.Principal) SessionResponse {
	return SessionResponse{Principal: p, RequiresRoleSelection: p.RequiresRoleSelection()}
}

// RoleSelectedResponse carries the session with its new role and a token pair
// whose claims already name it.
type RoleSelectedResponse struct {
	Session SessionResponse   `json:"session"`
	Tokens  entity.UserTokens `json:"tokens"`
}

type WalletResponse struct {
	WalletAddress  string     `json:"walletAddress"`
	WalletLinkedAt *time.Time `json:"walletLinkedAt"`
}

// @Summary Current session
// @Description The principal composed from the identity record on this request.
// @Tags identity
// @Produce json
// @Security BearerAuth
// @Success 200 {object} SessionResponse
// @Failure 401 {object} ResponseError "Sign in to continue"
// @Router /api/session [get]
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := entity.PrincipalFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	sendJSON(ctx, w, http.StatusOK, newSessionResponse(p))
}

// @Summary Current identity
// @Tags identity
// @Produce json
// @Security BearerAuth
// @Success 200 {object} entity.Identity
// @Failure 401 {object} ResponseError "Sign in to continue"
// @Router /api/me [get]
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := entity.PrincipalFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	i, err := h.s.Identity(ctx, p.Email)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, i)
}

// @Summary Update the profile
// @Description Changes the display name and avatar. Omitted fields are kept.
// @Tags identity
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body UpdateProfileRequest true "Profile fields"
// @Success 200 {object} entity.Identity
// @Failure 403 {object} ResponseError "Choose a role to continue"
// @Failure 422 {object} ResponseError "Invalid request"
// @Router /api/me [patch]
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	p, ok := entity.PrincipalFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	var req UpdateProfileRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	i, err := h.s.UpdateProfile(ctx, p.Email, req.DisplayName, req.AvatarURI)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, i)
}

// @Summary Choose a role
// @Description Moves a pending identity to freelancer or client. A role can be chosen once.
// @Tags identity
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body SelectRoleRequest true "Role"
// @Success 200 {object} RoleSelectedResponse
// @Failure 400 {object} ResponseError "Invalid role"
// @Failure 409 {object} ResponseError "Role already selected"
// @Router /api/me/role [post]
func (h *Handler) SelectRole(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "role")

	p, ok := entity.PrincipalFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	var req SelectRoleRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	i, err := h.s.SelectRole(ctx, p.Email, entity.Role(req.Role))
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	tokens, err := h.s.IssueSession(ctx, i)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, RoleSelectedResponse{
		Session: newSessionResponse(entity.PrincipalFromIdentity(i)),
		Tokens:  tokens,
	})
}

// @Summary Link a wallet
// @Description Verifies a personal-message signature and stores the recovered address. The last link wins.
// @Tags identity
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body LinkWalletRequest true "Signed message"
// @Success 200 {object} WalletResponse
// @Failure 400 {object} ResponseError "Signature could not be verified"
// @Failure 403 {object} ResponseError "Choose a role to continue"
// @Router /api/wallet/link [post]
func (h *Handler) LinkWallet(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "wallet")

	p, ok := entity.PrincipalFromCtx(ctx)
	if !ok {
		sendServiceErr(ctx, w, entity.ErrUnauthorized)
		return
	}

	var req LinkWalletRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	i, err := h.s.LinkWallet(ctx, p.Email, entity.WalletProof{
		Address:   req.Address,
		Message:   req.Message,
		Signature: req.Signature,
	})
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	resp := WalletResponse{WalletLinkedAt: i.WalletLinkedAt}
	if i.WalletAddress != nil {
		resp.WalletAddress = *i.WalletAddress
	}

	sendJSON(ctx, w, http.StatusOK, resp)
}

// @Summary Assign a role (internal)
// @Description Administrative role assignment. Replacing a selected role is allowed and audited.
// @Tags internal
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body AssignRoleRequest true "Email and role"
// @Success 200 {object} entity.Identity
// @Failure 404 {object} ResponseError "Identity not found"
// @Router /internal/api/identities/role [post]
func (h *Handler) AssignRole(w http.ResponseWriter, r *http.Request) {
	ctx := logger.SetLogType(r.Context(), "role")

	var req AssignRoleRequest
	if !decode(ctx, w, r, &req) {
		return
	}

	i, err := h.s.AssignRole(ctx, req.Email, entity.Role(req.Role), entity.RoleSourceAdmin)
	if err != nil {
		sendServiceErr(ctx, w, err)
		return
	}

	sendJSON(ctx, w, http.StatusOK, i)
}

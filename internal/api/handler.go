package api

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
)

//go:generate go run go.uber.org/mock/mockgen@latest -source=handler.go -destination=../mocks/api.go -package=mocks

type Service interface {
	Register(ctx context.Context, email, password, name string) (entity.StepUp, error)
	Login(ctx context.Context, email, password string) (entity.StepUp, error)
	Providers() []string
	AuthorizeURL(ctx context.Context, provider string) (entity.OAuthStart, error)
	OAuthCallback(ctx context.Context, provider, code, state, binding string) (entity.StepUp, error)
	ParseStepUp(token string) (entity.StepUpClaims, error)
	ResendCode(ctx context.Context, claims entity.StepUpClaims) (entity.StepUp, error)
	VerifyCode(ctx context.Context, claims entity.StepUpClaims, code string) (entity.UserTokens, error)
	RefreshToken(ctx context.Context, refreshToken string) (entity.UserTokens, error)
	DestroyToken(ctx context.Context, refreshToken string) error
	RevokeToken(ctx context.Context, identityID uuid.UUID) error
	Authenticate(ctx context.Context, accessToken string) (entity.SessionClaims, error)
	ValidateToken(ctx context.Context, accessToken string) (entity.Principal, error)
	ComposeSession(ctx context.Context, claims entity.SessionClaims) entity.Principal
	Identity(ctx context.Context, email string) (entity.Identity, error)
	UpdateProfile(ctx context.Context, email string, displayName, avatarURI *string) (entity.Identity, error)
	SelectRole(ctx context.Context, email string, role entity.Role) (entity.Identity, error)
	IssueSession(ctx context.Context, i entity.Identity) (entity.UserTokens, error)
	AssignRole(ctx context.Context, email string, role entity.Role, source entity.RoleSource) (entity.Identity, error)
	LinkWallet(ctx context.Context, email string, proof entity.WalletProof) (entity.Identity, error)
}

type Handler struct {
	s Service
}

func NewHandler(s Service) *Handler {
	return &Handler{s: s}
}

// @Summary Health check
// @Description Reports that the server is up
// @Tags system
// @Produce plain
// @Success 200 {string} string "ok"
// @Router /api/health [get]
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok\n"))
}

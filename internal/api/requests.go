package api

import (
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofrs/uuid/v5"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/service"
)

var otpCodeRegexp = regexp.MustCompile(`^[0-9]{6}$`)

var errEmptyPatch = errors.New("nothing to update")

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(0, service.EmailMaxLen), is.Email),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(service.NameMinLen, service.NameMaxLen)),
	)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

type VerifyCodeRequest struct {
	Code string `json:"code"`
}

func (r VerifyCodeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Match(otpCodeRegexp)),
	)
}

type OAuthCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}

func (r OAuthCallbackRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required),
		validation.Field(&r.State, validation.Required),
	)
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshTokenRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.RefreshToken, validation.Required))
}

type DestroyTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r DestroyTokenRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.RefreshToken, validation.Required))
}

type ValidateTokenRequest struct {
	AccessToken string `json:"accessToken"`
}

func (r ValidateTokenRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.AccessToken, validation.Required))
}

type RevokeSessionsRequest struct {
	UserID string `json:"userId"`
}

func (r RevokeSessionsRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, validation.By(isUUID)),
	)
}

type UpdateProfileRequest struct {
	DisplayName *string `json:"displayName"`
	AvatarURI   *string `json:"avatarUri"`
}

func (r UpdateProfileRequest) Validate() error {
	if r.DisplayName == nil && r.AvatarURI == nil {
		return errEmptyPatch
	}

	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.NilOrNotEmpty, validation.RuneLength(service.NameMinLen, service.NameMaxLen)),
		validation.Field(&r.AvatarURI, is.URL),
	)
}

type SelectRoleRequest struct {
	Role string `json:"role"`
}

func (r SelectRoleRequest) Validate() error {
	return validation.ValidateStruct(&r, validation.Field(&r.Role, validation.Required))
}

type LinkWalletRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

func (r LinkWalletRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Address, validation.Required),
		validation.Field(&r.Message, validation.Required),
		validation.Field(&r.Signature, validation.Required),
	)
}

type AssignRoleRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (r AssignRoleRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Role, validation.Required, validation.In(string(entity.RoleFreelancer), string(entity.RoleClient))),
	)
}

func isUUID(value any) error {
	s, _ := value.(string)
	if _, err := uuid.FromString(s); err != nil {
		return errors.New("must be a valid UUID")
	}

	return nil
}

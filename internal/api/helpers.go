package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const errInternalText = "Internal error"

type ResponseError struct {
	Message           string `json:"message"`
	AttemptsRemaining *int   `json:"attemptsRemaining,omitempty"`
	RetryAfter        *int   `json:"retryAfter,omitempty"`
	Redirect          string `json:"redirect,omitempty"`
}

type errorStatus struct {
	err  error
	code int
	msg  string
}

// errorStatuses is matched in order with errors.Is.
var errorStatuses = []errorStatus{
	{entity.ErrNotFound, http.StatusNotFound, "No active code or account was found"},
	{entity.ErrRoleSelected, http.StatusConflict, "A role has already been chosen for this account"},
	{entity.ErrConflict, http.StatusConflict, "An account with this email already exists"},
	{entity.ErrInvalidRole, http.StatusBadRequest, "Role must be freelancer or client"},
	{entity.ErrSignatureInvalid, http.StatusBadRequest, "Wallet signature could not be verified"},
	{entity.ErrExpired, http.StatusGone, "The code has expired, request a new one"},
	{entity.ErrRegistrationExpired, http.StatusGone, "The sign-up has expired, register again"},
	{entity.ErrExhausted, http.StatusTooManyRequests, "Too many wrong codes, request a new one"},
	{entity.ErrInvalidPurpose, http.StatusBadRequest, "Unknown code purpose"},
	{entity.ErrDeliveryFailed, http.StatusBadGateway, "Could not deliver the code, try again"},
	{entity.ErrUnauthorized, http.StatusUnauthorized, "Sign in to continue"},
	{entity.ErrInvalidCredentials, http.StatusUnauthorized, "Wrong email or password"},
	{entity.ErrTokenExpired, http.StatusUnauthorized, "The token has expired"},
	{entity.ErrTokenRevoked, http.StatusUnauthorized, "The session has ended, sign in again"},
	{entity.ErrTokenInvalid, http.StatusUnauthorized, "Invalid token"},
	{entity.ErrRoleRequired, http.StatusForbidden, "Choose a role to continue"},
	{entity.ErrPasswordInvalidLen, http.StatusUnprocessableEntity, entity.ErrPasswordInvalidLen.Error()},
	{entity.ErrPasswordNoUpperCase, http.StatusUnprocessableEntity, entity.ErrPasswordNoUpperCase.Error()},
	{entity.ErrPasswordNoDigit, http.StatusUnprocessableEntity, entity.ErrPasswordNoDigit.Error()},
	{entity.ErrEmailInvalidLen, http.StatusUnprocessableEntity, entity.ErrEmailInvalidLen.Error()},
	{entity.ErrEmailInvalidFormat, http.StatusUnprocessableEntity, entity.ErrEmailInvalidFormat.Error()},
	{entity.ErrNameInvalidLen, http.StatusUnprocessableEntity, entity.ErrNameInvalidLen.Error()},
	{entity.ErrProviderUnknown, http.StatusNotFound, "Unknown sign-in provider"},
	{entity.ErrProviderInvalidState, http.StatusBadRequest, "The sign-in link has expired, start again"},
	{entity.ErrProviderInvalidCode, http.StatusBadRequest, "The provider rejected the authorization code"},
	{entity.ErrProviderNoEmail, http.StatusBadRequest, "The provider did not share a verified email"},
	{entity.ErrProviderInvalidClient, http.StatusBadGateway, "The provider rejected our credentials"},
	{entity.ErrProviderRateLimit, http.StatusServiceUnavailable, "The provider is busy, try again later"},
	{entity.ErrProviderUnavailable, http.StatusServiceUnavailable, "The provider is unavailable, try again later"},
}

func sendErr(ctx context.Context, w http.ResponseWriter, code int, err error, msg string) {
	sendErrResponse(ctx, w, code, err, ResponseError{Message: msg})
}

func sendErrResponse(ctx context.Context, w http.ResponseWriter, code int, err error, resp ResponseError) {
	level := slog.LevelWarn
	if code >= http.StatusInternalServerError {
		level = slog.LevelError
	}

	cause := ""
	if err != nil {
		cause = err.Error()
	}

	slog.Log(ctx, level, resp.Message, "error", cause, "http_code", code)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err = json.NewEncoder(w).Encode(resp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode error response",
			"error", err.Error(),
			"http_code", http.StatusInternalServerError)
	}
}

// sendServiceErr maps an error returned by the service to its HTTP status.
func sendServiceErr(ctx context.Context, w http.ResponseWriter, err error) {
	var (
		mismatch *entity.MismatchError
		cooldown *entity.CooldownError
	)

	switch {
	case errors.As(err, &mismatch):
		left := mismatch.AttemptsRemaining
		sendErrResponse(ctx, w, http.StatusBadRequest, err, ResponseError{
			Message:           fmt.Sprintf("Wrong code, %d attempts left", left),
			AttemptsRemaining: &left,
		})

		return
	case errors.As(err, &cooldown):
		seconds := int(math.Ceil(cooldown.RetryAfter.Seconds()))
		sendErrResponse(ctx, w, http.StatusTooManyRequests, err, ResponseError{
			Message:    fmt.Sprintf("Wait %d seconds before requesting a new code", seconds),
			RetryAfter: &seconds,
		})

		return
	}

	for _, s := range errorStatuses {
		if errors.Is(err, s.err) {
			sendErr(ctx, w, s.code, err, s.msg)
			return
		}
	}

	sendErr(ctx, w, http.StatusInternalServerError, err, errInternalText)
}

func sendJSON(ctx context.Context, w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err.Error())
	}
}

// decode reads a JSON body into req and validates it. On failure the
// response is already written.
func decode(ctx context.Context, w http.ResponseWriter, r *http.Request, req validation.Validatable) bool {
	err := json.NewDecoder(r.Body).Decode(req)
	if err != nil {
		sendErr(ctx, w, http.StatusBadRequest, err, "Invalid request body")
		return false
	}

	err = req.Validate()
	if err != nil {
		sendErr(ctx, w, http.StatusUnprocessableEntity, err, err.Error())
		return false
	}

	return true
}

package service

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/samandr77/microservices/identity/internal/entity"
)

const (
	EmailMaxLen      = 255
	NameMinLen       = 1
	NameMaxLen       = 100
	PasswordMinLen   = 8
	PasswordMaxLen   = 72
	WalletMessageMax = 1024
)

var emailRegexp = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[\p{L}0-9.-]+\.[\p{L}]{2,}$`)

func ValidateEmail(email string) error {
	if len(email) > EmailMaxLen {
		return entity.ErrEmailInvalidLen
	}

	if !emailRegexp.MatchString(email) {
		return entity.ErrEmailInvalidFormat
	}

	if strings.Contains(email, "..") {
		return entity.ErrEmailInvalidFormat
	}

	return nil
}

func ValidateName(name string) error {
	nameLen := utf8.RuneCountInString(strings.TrimSpace(name))
	if nameLen < NameMinLen || nameLen > NameMaxLen {
		return entity.ErrNameInvalidLen
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return entity.ErrNameInvalidLen
		}
	}

	return nil
}

// ValidatePassword applies the password policy. The upper bound is the
// bcrypt input limit.
func ValidatePassword(password string) error {
	if len(password) < PasswordMinLen || len(password) > PasswordMaxLen {
		return entity.ErrPasswordInvalidLen
	}

	var hasUpper, hasDigit bool

	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		return entity.ErrPasswordNoUpperCase
	}

	if !hasDigit {
		return entity.ErrPasswordNoDigit
	}

	return nil
}

// NormalizeEmail trims the address and validates it. Case is kept: the
// store compares emails case-insensitively.
func NormalizeEmail(email string) (string, error) {
	normalized := strings.TrimSpace(email)

	err := ValidateEmail(normalized)
	if err != nil {
		return "", err
	}

	return normalized, nil
}

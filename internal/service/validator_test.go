package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/service"
)

func TestValidateEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		email string
		errFn require.ErrorAssertionFunc
	}{
		{"Valid email", "user@example.com", require.NoError},
		{"Valid email with plus and upper case", "First.Last+tag@Example.COM", require.NoError},
		{"Valid email with unicode domain", "test@пример.рф", require.NoError},
		{"Invalid: no domain zone", "abc@mail", require.Error},
		{"Invalid: double @ symbol", "user@@example.com", require.Error},
		{"Invalid: two consecutive dots", "user..name@example.com", require.Error},
		{"Invalid: exceeds length limit", strings.Repeat("x", service.EmailMaxLen) + "@example.com", require.Error},
		{"Invalid: empty email", "", require.Error},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			err := service.ValidateEmail(test.email)
			test.errFn(t, err)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		password string
		err      error
	}{
		{"Valid password", "Passw0rdX", nil},
		{"Too short", "Pa0", entity.ErrPasswordInvalidLen},
		{"Too long", "P0" + strings.Repeat("a", service.PasswordMaxLen), entity.ErrPasswordInvalidLen},
		{"No upper case", "passw0rdx", entity.ErrPasswordNoUpperCase},
		{"No digit", "Passwordx", entity.ErrPasswordNoDigit},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			err := service.ValidatePassword(test.password)
			if test.err == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, test.err)
		})
	}
}

func TestValidateName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		errFn require.ErrorAssertionFunc
	}{
		{"Valid name", "Ann", require.NoError},
		{"Valid unicode name", "Анна-Мария", require.NoError},
		{"Single letter", "A", require.NoError},
		{"Invalid: blank", "   ", require.Error},
		{"Invalid: control character", "Ann\x00", require.Error},
		{"Invalid: too long", strings.Repeat("a", service.NameMaxLen+1), require.Error},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			err := service.ValidateName(test.input)
			test.errFn(t, err)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	email, err := service.NormalizeEmail("  Ann@Example.com ")
	require.NoError(t, err)
	require.Equal(t, "Ann@Example.com", email)

	_, err = service.NormalizeEmail("not an email")
	require.ErrorIs(t, err, entity.ErrEmailInvalidFormat)
}

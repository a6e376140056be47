package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/pkg/config"
)

func TestNew(t *testing.T) { //nolint:paralleltest
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")

	err := os.WriteFile(envPath, []byte(
		"STORE_DRIVER=memory\n"+
			"OTP_STORE=memory\n"+
			"OTP_DELIVERY=smtp\n"+
			"SMTP_HOST=smtp.example.com\n"+
			"JWT_PRIVATE_KEY=private\n"+
			"JWT_PUBLIC_KEY=public\n"+
			"OAUTH_GOOGLE_CLIENT_ID=google-client\n"+
			"OAUTH_GOOGLE_TOKEN_URL=https://oauth2.example.com/token\n"+
			"OAUTH_GOOGLE_USERINFO_URL=https://oauth2.example.com/userinfo\n",
	), 0o600)
	require.NoError(t, err)

	cfg, err := config.New(envPath)
	require.NoError(t, err)

	require.Equal(t, config.StoreDriverMemory, cfg.StoreDriver)
	require.Equal(t, 10*time.Minute, cfg.OTP.CodeTTL)
	require.Equal(t, 5, cfg.OTP.CodeAttempts)
	require.Equal(t, 60*time.Second, cfg.OTP.ResendCooldown)
	require.Equal(t, 587, cfg.SMTP.Port)
	require.True(t, cfg.OAuth.Google.Enabled())
	require.False(t, cfg.OAuth.GitHub.Enabled())
}

func TestNew_Invalid(t *testing.T) { //nolint:paralleltest
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "postgres without dsn",
			env: map[string]string{
				"STORE_DRIVER": "postgres",
				"POSTGRES_DSN": "",
			},
		},
		{
			name: "unknown otp store",
			env: map[string]string{
				"STORE_DRIVER": "memory",
				"OTP_STORE":    "etcd",
			},
		},
		{
			name: "kafka without brokers",
			env: map[string]string{
				"STORE_DRIVER":  "memory",
				"OTP_STORE":     "memory",
				"OTP_DELIVERY":  "kafka",
				"KAFKA_BROKERS": "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_PRIVATE_KEY", "private")
			t.Setenv("JWT_PUBLIC_KEY", "public")

			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.New(filepath.Join(t.TempDir(), "missing.env"))
			require.Error(t, err)
		})
	}
}

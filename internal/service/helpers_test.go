package service_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/samandr77/microservices/identity/internal/entity"
	"github.com/samandr77/microservices/identity/internal/otp"
	"github.com/samandr77/microservices/identity/internal/repository/memory"
	"github.com/samandr77/microservices/identity/internal/service"
	"github.com/samandr77/microservices/identity/internal/signature"
	"github.com/samandr77/microservices/identity/pkg/config"
)

var (
	keysOnce   sync.Once
	privatePEM string
	publicPEM  string
)

// testKeys returns one RSA key pair per test binary, base64 encoded the way
// the JWT_* variables carry them.
func testKeys(t *testing.T) (string, string) {
	t.Helper()

	keysOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		require.NoError(t, err)

		privatePEM = base64.StdEncoding.EncodeToString(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		}))
		publicPEM = base64.StdEncoding.EncodeToString(pem.EncodeToMemory(&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pub,
		}))
	})

	return privatePEM, publicPEM
}

func testConfig(t *testing.T) config.Config {
	t.Helper()

	private, public := testKeys(t)

	return config.Config{
		OnboardingPath: "/onboarding/role",
		JWT: config.JWTConfig{
			PrivateKey:         private,
			PublicKey:          public,
			Issuer:             "identity-test",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 24 * time.Hour,
			StateTokenExpiry:   10 * time.Minute,
		},
		OTP: config.OTPConfig{
			CodeTTL:        10 * time.Minute,
			CodeAttempts:   5,
			ResendCooldown: time.Minute,
		},
	}
}

type outbox struct {
	mu         sync.Mutex
	deliveries []entity.Delivery
	err        error
}

func (o *outbox) Deliver(_ context.Context, d entity.Delivery) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.err != nil {
		return o.err
	}

	o.deliveries = append(o.deliveries, d)

	return nil
}

func (o *outbox) code(t *testing.T, email string, purpose entity.Purpose) string {
	t.Helper()

	o.mu.Lock()
	defer o.mu.Unlock()

	for i := len(o.deliveries) - 1; i >= 0; i-- {
		d := o.deliveries[i]
		if entity.EmailKey(d.Email) == entity.EmailKey(email) && d.Purpose == purpose {
			return d.Code
		}
	}

	t.Fatalf("no code delivered to %s for %s", email, purpose)

	return ""
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.deliveries)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

type env struct {
	svc        *service.Service
	identities *memory.IdentityStore
	tokens     *memory.RefreshTokenStore
	challenges *memory.ChallengeStore
	outbox     *outbox
	clock      *clock
}

func newEnv(t *testing.T, providers map[string]service.OAuthProvider) *env {
	t.Helper()

	cfg := testConfig(t)

	e := &env{
		identities: memory.NewIdentityStore(),
		tokens:     memory.NewRefreshTokenStore(),
		challenges: memory.NewChallengeStore(),
		outbox:     &outbox{},
		clock:      &clock{now: time.Now()},
	}

	engine := otp.New(e.challenges, e.outbox, otp.Config{
		TTL:      cfg.OTP.CodeTTL,
		Attempts: cfg.OTP.CodeAttempts,
		Now:      e.clock.Now,
	})

	svc, err := service.NewService(cfg, e.identities, e.tokens, engine, signature.Verifier{}, providers)
	require.NoError(t, err)

	svc.SetNow(e.clock.Now)

	e.svc = svc

	return e
}

// signIn runs password registration and the OTP step-up.
func (e *env) signIn(t *testing.T, email string) entity.UserTokens {
	t.Helper()

	stepUp, err := e.svc.Register(context.Background(), email, "Passw0rdX", "Test User")
	require.NoError(t, err)

	tokens, err := e.verify(t, stepUp)
	require.NoError(t, err)

	return tokens
}

// verify redeems the latest code mailed for the step-up.
func (e *env) verify(t *testing.T, stepUp entity.StepUp) (entity.UserTokens, error) {
	t.Helper()

	claims, err := e.svc.ParseStepUp(stepUp.Token)
	require.NoError(t, err)

	return e.svc.VerifyCode(context.Background(), claims, e.outbox.code(t, claims.Email, claims.Purpose))
}

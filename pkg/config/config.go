package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	env "github.com/caarlos0/env/v7"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	ChallengeStorePostgres = "postgres"
	ChallengeStoreRedis    = "redis"
	ChallengeStoreMemory   = "memory"

	DeliveryKafka = "kafka"
	DeliverySMTP  = "smtp"
)

type Config struct {
	HTTPPort         int    `env:"HTTP_PORT" envDefault:"8080"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`
	StoreDriver      string `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresDSN      string `env:"POSTGRES_DSN"`
	PostgresMaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
	InternalAPIKey   string `env:"INTERNAL_API_KEY"`
	OnboardingPath   string `env:"ONBOARDING_PATH" envDefault:"/onboarding/role"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	JWT   JWTConfig
	OTP   OTPConfig
	Redis RedisConfig
	Kafka KafkaConfig
	SMTP  SMTPConfig
	OAuth OAuthConfig

	// TLS
	ServerCert string `env:"TLS_SERVER_CERT"`
	ServerKey  string `env:"TLS_SERVER_KEY"`
}

type JWTConfig struct {
	PrivateKey         string        `env:"JWT_PRIVATE_KEY"`
	PublicKey          string        `env:"JWT_PUBLIC_KEY"`
	Issuer             string        `env:"JWT_ISSUER" envDefault:"identity"`
	AccessTokenExpiry  time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenExpiry time.Duration `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"720h"`
	StateTokenExpiry   time.Duration `env:"JWT_STATE_TOKEN_EXPIRY" envDefault:"10m"`
}

type OTPConfig struct {
	Store                 string        `env:"OTP_STORE"           envDefault:"postgres"`
	Delivery              string        `env:"OTP_DELIVERY"        envDefault:"kafka"`
	CodeTTL               time.Duration `env:"OTP_CODE_TTL"        envDefault:"10m"`
	CodeAttempts          int           `env:"OTP_CODE_ATTEMPTS"   envDefault:"5"`
	ResendCooldown        time.Duration `env:"OTP_RESEND_COOLDOWN" envDefault:"60s"`
	JobPurgeCodeInterval  time.Duration `env:"JOB_PURGE_CODE_INTERVAL" envDefault:"1h"`
	JobPurgeTokenInterval time.Duration `env:"JOB_PURGE_TOKEN_INTERVAL" envDefault:"24h"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type KafkaConfig struct {
	Brokers             []string `env:"KAFKA_BROKERS" envSeparator:","`
	NotificationTopic   string   `env:"KAFKA_NOTIFICATION_TOPIC" envDefault:"notifications"`
	DeliveryReportTopic string   `env:"KAFKA_DELIVERY_REPORT_TOPIC"`
	GroupID             string   `env:"KAFKA_GROUP_ID" envDefault:"identity"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Login    string `env:"SMTP_LOGIN"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM"`
	FromName string `env:"SMTP_FROM_NAME" envDefault:"Marketplace"`
}

type OAuthConfig struct {
	Google ProviderConfig `envPrefix:"OAUTH_GOOGLE_"`
	GitHub ProviderConfig `envPrefix:"OAUTH_GITHUB_"`
}

type ProviderConfig struct {
	Kind          string        `env:"KIND"`
	AuthURL       string        `env:"AUTH_URL"`
	TokenURL      string        `env:"TOKEN_URL"`
	UserInfoURL   string        `env:"USERINFO_URL"`
	ClientID      string        `env:"CLIENT_ID"`
	ClientSecret  string        `env:"CLIENT_SECRET"`
	RedirectURI   string        `env:"REDIRECT_URI"`
	Scope         string        `env:"SCOPE"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	RetryAttempts int           `env:"RETRY_ATTEMPTS" envDefault:"3"`
}

func (p ProviderConfig) Enabled() bool {
	return p.ClientID != "" && p.TokenURL != "" && p.UserInfoURL != ""
}

func New(envPath string) (Config, error) {
	var c Config

	err := godotenv.Load(envPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, err
	}

	err = env.Parse(&c)
	if err != nil {
		return Config{}, err
	}

	err = c.validate()
	if err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.PostgresDSN == "" {
			return errors.New("POSTGRES_DSN is required for the postgres store driver")
		}
	case StoreDriverMemory:
		if c.OTP.Store == ChallengeStorePostgres {
			return errors.New("OTP_STORE=postgres requires STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.OTP.Store {
	case ChallengeStorePostgres, ChallengeStoreRedis, ChallengeStoreMemory:
	default:
		return fmt.Errorf("unknown OTP_STORE %q", c.OTP.Store)
	}

	switch c.OTP.Delivery {
	case DeliveryKafka:
		if len(c.Kafka.Brokers) == 0 {
			return errors.New("KAFKA_BROKERS is required for kafka delivery")
		}
	case DeliverySMTP:
		if c.SMTP.Host == "" {
			return errors.New("SMTP_HOST is required for smtp delivery")
		}
	default:
		return fmt.Errorf("unknown OTP_DELIVERY %q", c.OTP.Delivery)
	}

	if c.JWT.PrivateKey == "" || c.JWT.PublicKey == "" {
		return errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required")
	}

	for name, path := range map[string]string{
		"TLS_SERVER_CERT": c.ServerCert,
		"TLS_SERVER_KEY":  c.ServerKey,
	} {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			return fmt.Errorf("missing TLS file for %s: %s", name, path)
		}
	}

	return nil
}

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samandr77/microservices/identity/internal/api"
	"github.com/samandr77/microservices/identity/internal/api/events"
	"github.com/samandr77/microservices/identity/internal/clients/oauth"
	"github.com/samandr77/microservices/identity/internal/otp"
	"github.com/samandr77/microservices/identity/internal/repository"
	"github.com/samandr77/microservices/identity/internal/repository/memory"
	"github.com/samandr77/microservices/identity/internal/repository/rediscache"
	"github.com/samandr77/microservices/identity/internal/service"
	"github.com/samandr77/microservices/identity/internal/signature"
	"github.com/samandr77/microservices/identity/pkg/broker"
	"github.com/samandr77/microservices/identity/pkg/config"
	"github.com/samandr77/microservices/identity/pkg/job"
	"github.com/samandr77/microservices/identity/pkg/logger"
	"github.com/samandr77/microservices/identity/pkg/mailer"
	"github.com/samandr77/microservices/identity/pkg/postgres"
	"github.com/samandr77/microservices/identity/pkg/redisclient"
)

const (
	ReadTimeout       = 3 * time.Second
	WriteTimeout      = 10 * time.Second
	IdleTimeout       = 60 * time.Second
	ReadHeaderTimeout = 1 * time.Second
	ShutdownTimeout   = 5 * time.Second
)

type stores struct {
	identities service.IdentityStore
	tokens     service.RefreshTokenStore
	challenges otp.ChallengeStore
	closers    []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// @title Identity service API
// @version 1.0
// @description Password, OAuth and wallet sign-in unified into one identity, with role onboarding and an OTP step-up.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @securityDefinitions.apikey StepUpToken
// @in header
// @name Authorization
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-Api-Key
//
//nolint:funlen
func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.New(".env")
	panicOnErr("load config", err)

	l := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(l)

	st, err := openStores(ctx, cfg)
	panicOnErr("open stores", err)

	defer st.Close()

	deliverer, closeDeliverer := newDeliverer(l, cfg)
	defer closeDeliverer()

	engine := otp.New(st.challenges, deliverer, otp.Config{
		TTL:      cfg.OTP.CodeTTL,
		Attempts: cfg.OTP.CodeAttempts,
	})

	providers := make(map[string]service.OAuthProvider)
	for name, client := range oauth.NewProviders(cfg.OAuth) {
		providers[name] = client
	}

	s, err := service.NewService(cfg, st.identities, st.tokens, engine, signature.Verifier{}, providers)
	panicOnErr("create service", err)

	l.Info("identity providers configured", "providers", s.Providers())

	h := api.NewHandler(s)
	mw := api.NewMiddleware(s, cfg.InternalAPIKey, cfg.OnboardingPath)
	router := api.NewRouter(h, mw, cfg.CORSAllowedOrigins)

	if cfg.Kafka.DeliveryReportTopic != "" && len(cfg.Kafka.Brokers) > 0 {
		consumer := broker.NewConsumer(l, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.DeliveryReportTopic).
			Handle(cfg.Kafka.DeliveryReportTopic, events.NewEventHandler(engine).DeliveryReport).
			Consume(ctx)
		defer consumer.Close()
	}

	jobs := job.NewService().
		RegisterJob("purge_challenges", cfg.OTP.JobPurgeCodeInterval, engine.Purge).
		RegisterJob("purge_refresh_tokens", cfg.OTP.JobPurgeTokenInterval, s.DeleteExpiredTokens)
	jobs.Start(ctx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
		ReadHeaderTimeout: ReadHeaderTimeout,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		tlsEnabled := cfg.ServerCert != "" && cfg.ServerKey != ""
		l.Info("http server started", "port", cfg.HTTPPort, "tls", tlsEnabled,
			"store", cfg.StoreDriver, "otp_store", cfg.OTP.Store, "otp_delivery", cfg.OTP.Delivery)

		var err error
		if tlsEnabled {
			err = server.ListenAndServeTLS(cfg.ServerCert, cfg.ServerKey)
		} else {
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Panicf("listen and serve: %s", err)
		}

		l.Debug("http server stopped")
	}()

	waitSignal(l, cancel, server)
	jobs.Stop()
	wg.Wait()
}

func openStores(ctx context.Context, cfg config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pool, err := postgres.ConnectToPostgres(ctx, cfg.PostgresDSN, cfg.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}

		st.closers = append(st.closers, pool.Close)

		err = postgres.UpMigrations(cfg.PostgresDSN)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("up migrations: %w", err)
		}

		st.identities = repository.NewIdentityRepository(pool)
		st.tokens = repository.NewRefreshTokenRepository(pool)

		if cfg.OTP.Store == config.ChallengeStorePostgres {
			st.challenges = repository.NewChallengeRepository(pool)
		}
	default:
		st.identities = memory.NewIdentityStore()
		st.tokens = memory.NewRefreshTokenStore()
	}

	switch cfg.OTP.Store {
	case config.ChallengeStoreRedis:
		client, err := redisclient.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}

		st.closers = append(st.closers, func() { _ = client.Close() })
		st.challenges = rediscache.NewChallengeStore(client)
	case config.ChallengeStoreMemory:
		st.challenges = memory.NewChallengeStore()
	}

	return st, nil
}

func newDeliverer(l *slog.Logger, cfg config.Config) (otp.Deliverer, func()) {
	if cfg.OTP.Delivery == config.DeliverySMTP {
		return mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Login:    cfg.SMTP.Login,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
		}), func() {}
	}

	producer := broker.NewProducer(l, cfg.Kafka.Brokers, cfg.Kafka.NotificationTopic)

	return producer, producer.Close
}

func waitSignal(l *slog.Logger, cancel context.CancelFunc, server *http.Server) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	sig := <-ch

	l.Info("got OS signal", "signal", sig.String())

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer shutdownCancel()

	err := server.Shutdown(shutdownCtx)
	if err != nil {
		l.Error("server shutdown", "error", err)
	}
}

func panicOnErr(msg string, err error) {
	if err != nil {
		log.Panicf("%s: %s", msg, err)
	}
}

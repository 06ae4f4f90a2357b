package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/azizikri/loyalty-wallet/internal/config"
	httphandler "github.com/azizikri/loyalty-wallet/internal/delivery/http"
	"github.com/azizikri/loyalty-wallet/internal/delivery/kafka"
	"github.com/azizikri/loyalty-wallet/internal/logging"
	"github.com/azizikri/loyalty-wallet/internal/metrics"
	"github.com/azizikri/loyalty-wallet/internal/realtime"
	"github.com/azizikri/loyalty-wallet/internal/repository"
	"github.com/azizikri/loyalty-wallet/internal/usecase"
	"github.com/azizikri/loyalty-wallet/internal/wallet/apple"
	"github.com/azizikri/loyalty-wallet/internal/wallet/google"
	"github.com/azizikri/loyalty-wallet/internal/webpush"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	if cfg.UseMemoryStore() {
		logger.Warn().Msg("using in-memory store, data is lost on restart")
		store = repository.NewMemory()
	} else {
		pool, err := initDB(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()

		if err := repository.RunMigrations(ctx, pool, "db/migrations", logger); err != nil {
			logger.Fatal().Err(err).Msg("failed to run migrations")
		}
		metrics.RegisterPgxPoolMetrics(pool)
		store = repository.New(pool)
	}

	directory := usecase.NewDirectoryService(store, logger)

	var creds *apple.Credentials
	if cfg.AppleEnabled() {
		loaded, err := apple.LoadCredentials(cfg.AppleCertPath, cfg.AppleKeyPath, cfg.AppleWWDRPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to load apple wallet credentials")
		}
		creds = loaded
	}
	renderer := apple.NewRenderer(creds, apple.RendererConfig{
		PassTypeID:       cfg.ApplePassTypeID,
		TeamID:           cfg.AppleTeamID,
		OrganizationName: cfg.AppleOrgName,
		WebServiceURL:    strings.TrimRight(cfg.PublicURL, "/") + "/wallet",
		Assets:           os.DirFS(cfg.PassAssetsDir),
	})
	var apns usecase.APNsNotifier
	if renderer.Configured() {
		apns = apple.NewPusher(apple.NewAPNsClient(creds, cfg.Timeout()), cfg.AppleAPNsHost, logger)
	} else {
		logger.Info().Msg("apple wallet disabled")
	}

	googleWallet, err := initGoogle(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise google wallet client")
	}
	if !googleWallet.Configured() {
		logger.Info().Msg("google wallet disabled")
	}

	push := webpush.NewDispatcher(directory, webpush.Options{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subscriber:      cfg.VAPIDSubject,
		TTL:             cfg.PushTTLSeconds(),
		Concurrency:     cfg.Concurrency(),
	}, logger)
	walletDispatcher := usecase.NewWalletDispatcher(store, directory, usecase.WalletDispatcherConfig{
		Apple:       apns,
		Google:      googleWallet,
		Concurrency: cfg.Concurrency(),
	}, logger)

	broadcaster := realtime.New(logger, realtime.Options{
		Heartbeat:    cfg.Heartbeat(),
		Buffer:       cfg.StreamBuffer(),
		PollInterval: cfg.PollInterval(),
	})

	ledgerOpts := []usecase.LedgerOption{
		usecase.WithWalletNotifier(walletDispatcher),
		usecase.WithListeners(broadcaster),
		usecase.WithDispatchTimeout(cfg.Timeout()),
	}
	if cfg.WebPushEnabled() {
		ledgerOpts = append(ledgerOpts, usecase.WithPushNotifier(push))
	} else {
		logger.Info().Msg("web push disabled")
	}
	ledger := usecase.NewLedgerService(store, logger, ledgerOpts...)
	cards := usecase.NewCardService(store, directory, renderer, googleWallet, logger)

	var kafkaClient *kgo.Client
	if cfg.RelayOn() {
		kafkaClient, err = newRelayClient(cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to create kafka client")
		}
		if err := kafka.EnsureTopics(ctx, kafkaClient, cfg, logger); err != nil {
			logger.Warn().Err(err).Msg("failed to ensure relay topics")
		}

		ledger.AddListener(kafka.NewPublisher(kafkaClient, cfg.KafkaInstanceID, logger))
		consumer := kafka.NewConsumer(kafkaClient, cfg.KafkaInstanceID, broadcaster, logger)
		go consumer.Start(ctx)
	}

	handler := httphandler.NewHandler(httphandler.Services{
		Ledger:      ledger,
		Cards:       cards,
		Directory:   directory,
		Push:        push,
		Broadcaster: broadcaster,
	}, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(httphandler.RequestLogger(logger))
	r.Use(httphandler.Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	handler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := metrics.NewServer(cfg.MetricsAddr)

	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		logger.Info().Str("port", cfg.AppPort).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()
	go func() {
		defer wg.Done()
		logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	// Open event streams never finish on their own.
	broadcaster.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown error")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("metrics shutdown error")
	}

	if kafkaClient != nil {
		kafkaClient.Close()
	}

	wg.Wait()
	logger.Info().Msg("shutdown complete")
}

func initDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgresql://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBSSLMode,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return pool, nil
}

// initGoogle returns a nil client when Google Wallet is not configured.
func initGoogle(ctx context.Context, cfg *config.Config) (*google.Client, error) {
	if !cfg.GoogleEnabled() {
		return nil, nil
	}
	serviceAccount, err := os.ReadFile(cfg.GoogleCredentials)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	return google.NewClient(ctx, google.Config{
		ServiceAccountJSON: serviceAccount,
		IssuerID:           cfg.GoogleIssuerID,
		ClassSuffix:        cfg.GoogleClassSuffix,
		Origins:            cfg.GoogleOriginList(),
	})
}

func newRelayClient(cfg *config.Config) (*kgo.Client, error) {
	return kgo.NewClient(
		kgo.SeedBrokers(strings.Split(cfg.KafkaBrokers, ",")...),
		kgo.ClientID(cfg.KafkaClientID),
		kgo.ConsumerGroup(cfg.KafkaGroupID),
		kgo.ConsumeTopics(kafka.TopicBalanceEvents),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtEnd()),
		kgo.DisableAutoCommit(),
	)
}

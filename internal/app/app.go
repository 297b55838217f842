package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Vadebaba/imageefy-ai/database"
	"github.com/Vadebaba/imageefy-ai/internal/clerk"
	"github.com/Vadebaba/imageefy-ai/internal/config"
	"github.com/Vadebaba/imageefy-ai/internal/eventbus"
	"github.com/Vadebaba/imageefy-ai/internal/middleware"
	"github.com/Vadebaba/imageefy-ai/internal/webhook"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config       *config.Config
	logger       *slog.Logger
	pool         *pgxpool.Pool
	redis        *redis.Client
	userEventBus *eventbus.UserEventBus
	verifier     *webhook.Verifier
	clerk        *clerk.Client
}

// LoadConfig loads the process environment into a Config.
func LoadConfig() (*config.Config, error) {
	return config.LoadConfig()
}

// Returns a new instance of the application with a connection instance
// to the database pool and all webhook collaborators wired. A missing
// webhook signing secret fails here so the service never serves traffic
// it cannot verify.
func New(logger *slog.Logger, cfg *config.Config) (*App, error) {

	verifier, err := webhook.NewVerifier(webhook.VerifierConfig{
		Secret:    cfg.WebhookConfig.ClerkWebhookSecret,
		Tolerance: time.Duration(cfg.WebhookConfig.ToleranceSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}

	dbConfig, err := pgxpool.ParseConfig(fmt.Sprintf(
		"postgresql://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.DatabaseConfig.DatabaseUser,
		cfg.DatabaseConfig.DatabasePassword,
		cfg.DatabaseConfig.DatabaseHost,
		cfg.DatabaseConfig.DatabasePort,
		cfg.DatabaseConfig.DatabaseName,
	))
	if err != nil {
		return nil, err
	}

	dbConfig.MaxConns = cfg.DatabaseConfig.DatabasePoolMaxConnections
	dbConfig.MinConns = cfg.DatabaseConfig.DatabasePoolMinConnections
	dbConfig.MaxConnLifetime = time.Hour * time.Duration(cfg.DatabaseConfig.DatabasePoolMaxConnectionLifetime)

	connPool, err := pgxpool.NewWithConfig(context.Background(), dbConfig)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisConfig.RedisAddress,
		Password: cfg.RedisConfig.RedisPassword,
		DB:       0,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	userEventBus, err := eventbus.NewUserEventBus(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		config:       cfg,
		logger:       logger,
		pool:         connPool,
		redis:        redisClient,
		userEventBus: userEventBus,
		verifier:     verifier,
		clerk:        clerk.NewClient(cfg.ClerkConfig.SecretKey, cfg.ClerkConfig.APIURL),
	}, nil
}

// Starts the application server
func (a *App) Start(ctx context.Context) error {

	database.RunGooseMigrations(a.logger, a.pool)

	middlewares := middleware.CreateStack(
		middleware.Logging(a.logger),
		middleware.WithDBConnection(a.logger, a.pool),
	)
	router := a.loadRoutes()

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.config.AppConfig.Address, a.config.AppConfig.Port),
		Handler: middlewares(router),
	}

	errCh := make(chan error, 1)

	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("failed to listen and serve: %w", err)
		}

		close(errCh)
	}()

	a.logger.Info("server running",
		slog.String("Address", a.config.AppConfig.Address),
		slog.Int("port", a.config.AppConfig.Port),
	)

	select {
	// Wait until we receive SIGINT (ctrl+c on cli)
	case <-ctx.Done():
		break
	case err := <-errCh:
		return err
	}

	sCtx, cancel := context.WithTimeout(context.Background(), time.Second*15)
	defer cancel()

	srv.Shutdown(sCtx)
	a.userEventBus.Close()
	a.redis.Close()
	a.pool.Close()

	return nil
}

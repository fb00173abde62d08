package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Tandem/internal/adapters/http"
	socket "github.com/dkeye/Tandem/internal/adapters/signal"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/auth"
	"github.com/dkeye/Tandem/internal/catalog"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/core"
	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/db"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/dkeye/Tandem/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("CONFIG_ENV") != "prod" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	dbc, err := db.New(cfg.Database)
	if err != nil {
		return err
	}
	defer dbc.Close()
	if err := dbc.AutoMigrate(); err != nil {
		return err
	}
	users := db.NewUserStore(dbc)

	dir, closeDir, err := newDirectory(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	defer closeDir()

	refresher := credential.NewOAuthRefresher(&http.Client{Timeout: cfg.Providers.RefreshTimeout}, map[domain.Provider]credential.OAuthEndpoint{
		domain.ProviderYouTube: {
			TokenURL:     cfg.Providers.YouTube.TokenURL,
			ClientID:     cfg.Providers.YouTube.ClientID,
			ClientSecret: cfg.Providers.YouTube.ClientSecret,
		},
		domain.ProviderSoundCloud: {
			TokenURL:     cfg.Providers.SoundCloud.TokenURL,
			ClientID:     cfg.Providers.SoundCloud.ClientID,
			ClientSecret: cfg.Providers.SoundCloud.ClientSecret,
		},
	})
	proxy := credential.NewProxy(users, refresher, []credential.Provider{
		{
			Name:     domain.ProviderYouTube,
			BaseURL:  cfg.Providers.YouTube.APIBase,
			Expiring: true,
			APIKey:   cfg.Providers.YouTube.APIKey,
		},
		{
			Name:    domain.ProviderSoundCloud,
			BaseURL: cfg.Providers.SoundCloud.APIBase,
		},
	},
		credential.WithRefreshTimeout(cfg.Providers.RefreshTimeout),
		credential.WithExpirySkew(cfg.Providers.ExpirySkew),
	)

	yt, err := catalog.NewYouTube(ctx, cfg.Providers.YouTube.APIKey, proxy)
	if err != nil {
		return err
	}
	cat := catalog.New(yt, catalog.NewSoundCloud(
		cfg.Providers.SoundCloud.APIBase,
		cfg.Providers.SoundCloud.ClientID,
		&http.Client{Timeout: cfg.Providers.RefreshTimeout},
		proxy,
	))

	rooms := app.NewRegistry(ctx, dir,
		core.WithTickInterval(cfg.Room.TickInterval),
		core.WithLimits(core.Limits{ChatHistory: cfg.Room.ChatHistory, ChatMaxLength: cfg.Room.ChatMaxLength}),
		core.WithDropHandler(app.DropHandler(app.SimplePolicy{})),
	)
	defer rooms.StopAll()
	go rooms.StartCleanupWorker(ctx, cfg.Room.CleanupInterval, cfg.Room.EmptyGrace)

	metrics.Register()

	signer := auth.NewSigner(cfg.Secret)
	r := router.SetupRouter(ctx, cfg, router.Services{
		Rooms:  rooms,
		Users:  users,
		Proxy:  proxy,
		Signer: signer,
		Signal: socket.NewSignalWSController(rooms, users, cat, signer, cfg.WS),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Tandem server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	return nil
}

// newDirectory keeps rooms in redis when redis.url is set and in
// process memory otherwise.
func newDirectory(ctx context.Context, cfg config.Redis) (app.Directory, func(), error) {
	if cfg.URL == "" {
		log.Warn().Str("module", "main").Msg("redis.url not set, rooms are kept in memory")
		return app.NewMemoryDirectory(), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	log.Info().Str("module", "main").Str("addr", opts.Addr).Msg("room directory on redis")
	return app.NewRedisDirectory(rdb), func() { _ = rdb.Close() }, nil
}

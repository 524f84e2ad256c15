package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"donation-agent/config"
	"donation-agent/internal/handlers"
	"donation-agent/internal/services"
	"donation-agent/internal/services/callback"
	"donation-agent/internal/services/donation"
	"donation-agent/internal/services/redirect"
	"donation-agent/models"
	"donation-agent/monitoring"
	"donation-agent/security"
	"donation-agent/utils"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func Start() error {
	// Load configuration
	cfg := config.LoadConfig()
	logger := utils.NewLogger(cfg.Environment)

	// Setup graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize Redis. Without it the agent still works, only submissions are
	// no longer rate limited.
	var redisClient *redis.Client
	if rc, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, submit rate limiting disabled")
	} else {
		redisClient = rc
		defer redisClient.Close()
	}

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor()
	}

	client := donation.NewClient(&donation.Config{
		BaseURL: cfg.DonationBaseURL,
		Timeout: cfg.RequestTimeout,
		Breaker: utils.BreakerSettings{
			MinRequests:  cfg.BreakerMaxRequests,
			Interval:     cfg.BreakerInterval,
			Timeout:      cfg.BreakerTimeout,
			FailureRatio: cfg.BreakerFailureRatio,
		},
	},
		donation.WithMonitor(monitor),
		donation.WithLogger(logger.With().Str("component", "donation_client").Logger()),
	)

	// Callbacks come from the HTTP relay and, when configured, from PubNub.
	hub := callback.NewHub()
	sources := callback.Multi{hub}

	var (
		presenter services.Presenter = logPresenter(logger)
		publisher utils.Publisher
	)

	if cfg.PubNubEnabled() {
		pn := utils.NewPubNub(utils.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		})
		publisher = utils.NewPubNubPublisher(pn)

		pnPresenter := services.NewPubNubPresenter(publisher, cfg.DeviceChannel, 0, logger.With().Str("component", "presenter").Logger())
		go pnPresenter.Run(ctx)
		presenter = services.Presenters{presenter, pnPresenter}

		sources = append(sources, callback.NewPubNubSource(pn, cfg.CallbackChannel, logger.With().Str("component", "pubnub_source").Logger()))
	} else {
		logger.Warn().Msg("pubnub keys not set, device presenter and pubnub callbacks disabled")
	}

	kind := redirect.Kind(cfg.Redirector)
	if publisher == nil && kind == redirect.KindPubNub {
		logger.Warn().Msg("no device to render on, payment pages open in the system browser")
		kind = redirect.KindBrowser
	}
	redirector, err := redirect.New(kind, publisher, cfg.DeviceChannel, logger.With().Str("component", "redirector").Logger())
	if err != nil {
		return err
	}

	flow := services.NewHandoffService(client, redirector, presenter,
		services.WithHandoffMonitor(monitor),
		services.WithHandoffLogger(logger.With().Str("component", "handoff").Logger()),
	)

	// The subscription lives as long as the process.
	listener := callback.NewListener(
		sources,
		callback.NewMatcher(cfg.CallbackScheme, cfg.CallbackHost),
		flow,
		monitor,
		logger.With().Str("component", "callback_listener").Logger(),
	)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("start callback listener: %w", err)
	}
	defer listener.Stop()

	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(handlers.RequestLogger(logger.With().Str("component", "http").Logger()))

	rateLimiter := security.NewRateLimiter(redisClient, cfg.SubmitLimit, cfg.SubmitWindow, logger)
	handlers.NewFlowHandler(flow, hub, logger).
		Register(e.Group("/api/flow"), rateLimiter.AntiBotMiddleware(), rateLimiter.SubmitRateLimit())

	e.GET("/health", handlers.NewHealthHandler(redisClient, client.Breaker()).Health)
	if cfg.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}

	logger.Info().
		Str("port", cfg.Port).
		Str("donation_api", cfg.DonationBaseURL).
		Str("callback", cfg.CallbackScheme+"://"+cfg.CallbackHost).
		Msg("donation agent started")

	// Start server
	sc := echo.StartConfig{
		Address:         ":" + cfg.Port,
		HideBanner:      true,
		GracefulContext: ctx,
	}
	if err := sc.Start(e); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info().Msg("shutdown signal received, cleaning up")
	return nil
}

func logPresenter(log zerolog.Logger) services.PresenterFunc {
	return func(v models.View) {
		log.Debug().Str("kind", string(v.Kind)).Str("message", v.Message).Msg("view")
	}
}

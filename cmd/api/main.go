package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	server "portfolio_reviews/internal/adapters/http_server"
	"portfolio_reviews/internal/adapters/mail"
	"portfolio_reviews/internal/adapters/observability"
	"portfolio_reviews/internal/adapters/ratelimit"
	redisad "portfolio_reviews/internal/adapters/redis"
	"portfolio_reviews/internal/app"
	"portfolio_reviews/internal/domain"
	"portfolio_reviews/internal/shared"
	"portfolio_reviews/internal/storage"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON or ECS otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogFormat)

	// storage
	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	// cache + limiters: redis when configured, in-process otherwise
	var cache domain.Cache
	guards := server.Guards{AdminToken: cfg.AdminToken}
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		defer rc.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis ping failed; requests will retry lazily")
		}
		cancel()
		cache = rc
		ws := redisad.NewRateStore(rc.Client())
		guards.Submit = ratelimit.NewWindow(ws, "submit", cfg.RateSubmitPerHour, time.Hour)
		guards.Verify = ratelimit.NewWindow(ws, "verify", cfg.RateVerifyPer15Min, 15*time.Minute)
		guards.Admin = ratelimit.NewWindow(ws, "admin", cfg.RateAdminPerMin, time.Minute)
	} else {
		log.Info().Msg("REDIS_ADDR empty; using in-process rate limits and no cache")
		guards.Submit = ratelimit.NewBucket(cfg.RateSubmitPerHour, time.Hour)
		guards.Verify = ratelimit.NewBucket(cfg.RateVerifyPer15Min, 15*time.Minute)
		guards.Admin = ratelimit.NewBucket(cfg.RateAdminPerMin, time.Minute)
	}

	// mail
	var mailer domain.Mailer = mail.LogSender{}
	switch cfg.MailProvider {
	case "http":
		c, err := mail.New(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom, cfg.MailRPS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize mail client")
		}
		mailer = c
	case "smtp":
		s, err := mail.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.MailFrom)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize smtp sender")
		}
		mailer = s
	}

	// deps
	notifier := app.NewNotifier(mailer, cfg.PublicBaseURL, cfg.AdminEmail, cfg.VerificationTTL)
	cmd := app.NewReviewService(store.Repo, store.Audit, cache, notifier, cfg.VerificationTTL)
	q := app.NewQueryService(store.Repo, store.Audit, cache, cfg.CacheTTL)

	// http
	srv := server.New(cfg.TrustProxy)
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{
		Cmd:       cmd,
		Q:         q,
		AdminName: cfg.AdminName,
		Ready: func(r *http.Request) error {
			if store.Ping == nil {
				return nil
			}
			return store.Ping(r.Context())
		},
	}, guards)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("storage", cfg.StorageDriver).Msg("API listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if err := notifier.Drain(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("pending emails dropped on shutdown")
	}
}

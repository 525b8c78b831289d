package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"portfolio_reviews/internal/adapters/observability"
	"portfolio_reviews/internal/app"
	"portfolio_reviews/internal/domain"
	"portfolio_reviews/internal/shared"
	"portfolio_reviews/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg := shared.Load()

	// 1) initialize global logger
	log.Logger = observability.NewLogger(cfg.AppEnv, cfg.LogFormat)

	workers := cfg.JanitorWorkers
	if workers <= 0 {
		workers = 1
	}
	log.Info().
		Str("storage", cfg.StorageDriver).
		Int("workers", workers).
		Dur("verification_ttl", cfg.VerificationTTL).
		Msg("janitor starting")

	store, err := storage.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer store.Close()

	svc := app.NewReviewService(store.Repo, store.Audit, nil, nil, cfg.VerificationTTL)

	page, err := store.Repo.List(ctx, domain.ListQuery{Statuses: []domain.Status{domain.StatusPending}})
	if err != nil {
		log.Fatal().Err(err).Msg("list pending failed")
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var purged, failed atomic.Int64

	for _, rv := range page.Items {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			log.Warn().Err(err).Msg("janitor interrupted")
			break
		}

		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer sem.Release(1)

			ok, err := svc.PurgeExpired(ctx, id)
			if err != nil {
				failed.Add(1)
				log.Warn().Str("review_id", id).Err(err).Msg("purge failed")
				return
			}
			if ok {
				purged.Add(1)
				log.Info().Str("review_id", id).Msg("expired review purged")
			}
		}(rv.ID)
	}
	wg.Wait()

	if err := store.Repo.Reindex(context.WithoutCancel(ctx)); err != nil {
		log.Error().Err(err).Msg("reindex failed")
	}
	log.Info().
		Int("scanned", len(page.Items)).
		Int64("purged", purged.Load()).
		Int64("failed", failed.Load()).
		Msg("janitor completed")
}

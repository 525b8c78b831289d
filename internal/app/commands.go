package app

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/adapters/observability"
	"portfolio_reviews/internal/domain"
)

type ReviewService struct {
	repo     domain.ReviewRepository
	audit    domain.AuditLog
	cache    domain.Cache
	notify   *Notifier
	ttl      time.Duration
	now      func() time.Time
	newID    func(time.Time) string
	newToken func() string
}

func NewReviewService(r domain.ReviewRepository, a domain.AuditLog, c domain.Cache, n *Notifier, verificationTTL time.Duration) *ReviewService {
	if verificationTTL <= 0 {
		verificationTTL = domain.VerificationWindow
	}
	return &ReviewService{
		repo:     r,
		audit:    a,
		cache:    c,
		notify:   n,
		ttl:      verificationTTL,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    newReviewID,
		newToken: uuid.NewString,
	}
}

// WithClock swaps the time source; tests use it to step past the verification window.
func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

func (s *ReviewService) Submit(ctx context.Context, sub Submission, meta RequestMeta) (domain.Review, error) {
	// bots fill every field; reject before doing any work
	if sub.Honeypot != "" {
		log.Warn().Str("ip", meta.IP).Str("request_id", meta.RequestID).Msg("honeypot triggered")
		return domain.Review{}, domain.ErrSpam
	}
	sub.normalize()
	if err := sub.Validate(); err != nil {
		return domain.Review{}, err
	}

	now := s.now()
	rv := mapSubmission(sub, s.newID(now), s.newToken(), now, s.ttl, meta)
	if err := s.repo.Create(ctx, rv); err != nil {
		return domain.Review{}, fmt.Errorf("store submission: %w", err)
	}
	observability.ObserveTransition("", string(domain.StatusPending))
	log.Info().Str("review_id", rv.ID).Int("rating", rv.Content.Rating).Msg("review submitted")

	s.notify.SendVerification(ctx, rv)
	return rv, nil
}

func (s *ReviewService) Verify(ctx context.Context, id, token string) (domain.Review, error) {
	now := s.now()
	_, after, err := s.repo.Update(ctx, id, func(r *domain.Review) error {
		if r.Status != domain.StatusPending {
			return domain.ErrAlreadyVerified
		}
		if want := r.Verification.Token; want != "" &&
			subtle.ConstantTimeCompare([]byte(want), []byte(token)) != 1 {
			return domain.ErrInvalidToken
		}
		if r.Expired(now) {
			return domain.ErrExpired
		}
		r.Status = domain.StatusVerified
		r.Reviewer.Verified = true
		r.Metadata.VerifiedAt = &now
		return nil
	})
	if err != nil {
		return domain.Review{}, err
	}
	observability.ObserveTransition(string(domain.StatusPending), string(domain.StatusVerified))
	log.Info().Str("review_id", id).Msg("review verified")

	s.notify.NotifyAdmin(ctx, after)
	return after, nil
}

// ModerationCommand is one admin action on one review.
type ModerationCommand struct {
	ReviewID string
	Action   domain.Action
	Notes    *string
	Reason   *string
	Admin    string
	Meta     RequestMeta
}

func (s *ReviewService) Moderate(ctx context.Context, cmd ModerationCommand) (domain.Review, error) {
	if !domain.ValidID(cmd.ReviewID) {
		return domain.Review{}, &domain.Error{
			Code: domain.CodeValidation, Message: "reviewId is required",
			Details: map[string]string{"reviewId": "is required"},
		}
	}
	if !cmd.Action.Valid() {
		return domain.Review{}, &domain.Error{
			Code: domain.CodeValidation, Message: "unsupported action",
			Details: map[string]string{"action": "must be one of: approve reject feature unfeature"},
		}
	}

	now := s.now()
	before, after, err := s.repo.Update(ctx, cmd.ReviewID, func(r *domain.Review) error {
		return r.Apply(cmd.Action, now, cmd.Admin, cmd.Notes, cmd.Reason)
	})
	if err != nil {
		return domain.Review{}, err
	}
	if before.Status != after.Status {
		observability.ObserveTransition(string(before.Status), string(after.Status))
	}

	entry := domain.AdminActionLog{
		Timestamp: now,
		RequestID: cmd.Meta.RequestID,
		Action:    cmd.Action,
		ReviewID:  cmd.ReviewID,
		Admin:     cmd.Admin,
		IPAddress: cmd.Meta.IP,
		UserAgent: cmd.Meta.UserAgent,
		Notes:     cmd.Notes,
		Before:    before.State(),
		After:     after.State(),
	}
	if err := s.audit.Append(ctx, entry); err != nil {
		// the move already happened; surface loudly but keep the result
		log.Error().Err(err).Str("review_id", cmd.ReviewID).Str("action", string(cmd.Action)).Msg("audit append failed")
	}

	if before.Status == domain.StatusApproved || after.Status == domain.StatusApproved {
		s.invalidatePublished(ctx)
	}
	log.Info().
		Str("review_id", cmd.ReviewID).
		Str("action", string(cmd.Action)).
		Str("from", string(before.Status)).
		Str("to", string(after.Status)).
		Str("admin", cmd.Admin).
		Msg("review moderated")
	return after, nil
}

// PurgeExpired deletes a pending review whose verification window has closed.
// It reports false when the review is gone, no longer pending, or still valid.
func (s *ReviewService) PurgeExpired(ctx context.Context, id string) (bool, error) {
	rv, err := s.repo.Get(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if rv.Status != domain.StatusPending || !rv.Expired(s.now()) {
		return false, nil
	}
	if err := s.repo.Delete(ctx, id, domain.StatusPending); err != nil {
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidTransition) {
			return false, nil
		}
		return false, err
	}
	observability.ObserveTransition(string(domain.StatusPending), "purged")
	return true, nil
}

func (s *ReviewService) invalidatePublished(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, publishedCacheKey); err != nil {
		log.Warn().Err(err).Msg("published cache invalidation failed")
	}
}

package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
)

const publishedCacheKey = "reviews:published:v1"

const (
	DefaultAdminLimit = 20
	MaxAdminLimit     = 100
)

type QueryService struct {
	repo     domain.ReviewRepository
	audit    domain.AuditLog
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ReviewRepository, a domain.AuditLog, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, audit: a, cache: c, cacheTTL: ttl}
}

// AdminListQuery mirrors GET /api/reviews/admin.
type AdminListQuery struct {
	Status string
	Limit  int
	Offset int
}

// statusesFor resolves the status filter; "all" spans the moderatable directories.
func statusesFor(status string) ([]domain.Status, bool) {
	switch status {
	case "", string(domain.StatusVerified):
		return []domain.Status{domain.StatusVerified}, true
	case string(domain.StatusApproved):
		return []domain.Status{domain.StatusApproved}, true
	case string(domain.StatusRejected):
		return []domain.Status{domain.StatusRejected}, true
	case "all":
		return []domain.Status{domain.StatusVerified, domain.StatusApproved, domain.StatusRejected}, true
	}
	return nil, false
}

func (s *QueryService) ListForAdmin(ctx context.Context, q AdminListQuery) (domain.ReviewsPage, error) {
	sts, ok := statusesFor(q.Status)
	if !ok {
		return domain.ReviewsPage{}, &domain.Error{
			Code: domain.CodeValidation, Message: "invalid status filter",
			Details: map[string]string{"status": "must be one of: verified approved rejected all"},
		}
	}
	if q.Limit == 0 {
		q.Limit = DefaultAdminLimit
	}
	if q.Limit < 0 || q.Limit > MaxAdminLimit || q.Offset < 0 {
		return domain.ReviewsPage{}, &domain.Error{
			Code: domain.CodeValidation, Message: "invalid pagination",
			Details: map[string]string{"limit": "must be between 1 and 100", "offset": "must be zero or positive"},
		}
	}

	page, err := s.repo.List(ctx, domain.ListQuery{Statuses: sts, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	for i := range page.Items {
		page.Items[i] = page.Items[i].Redacted()
	}
	return page, nil
}

// Published returns the approved index, featured first. limit <= 0 means no cap.
func (s *QueryService) Published(ctx context.Context, featuredOnly bool, limit int) ([]domain.PublishedReview, error) {
	var all []domain.PublishedReview
	hit := false
	if s.cache != nil {
		var err error
		hit, err = s.cache.Get(ctx, publishedCacheKey, &all)
		if err != nil {
			// a partly decoded entry is not trustworthy
			log.Warn().Err(err).Str("key", publishedCacheKey).Msg("cache read failed, using store")
			hit, all = false, nil
		}
	}
	if !hit {
		var err error
		all, err = s.repo.Published(ctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			_ = s.cache.Set(ctx, publishedCacheKey, all, int(s.cacheTTL.Seconds()))
		}
	}

	out := make([]domain.PublishedReview, 0, len(all))
	for _, p := range all {
		if featuredOnly && !p.Featured {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *QueryService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.repo.Stats(ctx)
}

func (s *QueryService) RecentActions(ctx context.Context, limit int) ([]domain.AdminActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.audit.Recent(ctx, limit)
}

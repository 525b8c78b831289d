package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"portfolio_reviews/internal/domain"
)

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	RequestID string
	IP        string
	UserAgent string
}

// newReviewID yields review_<unix-millis>_<8 hex>; lexical order follows submission time.
func newReviewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("review_%d_%s", now.UnixMilli(), suffix)
}

func ptrStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func mapSubmission(s Submission, id, token string, now time.Time, ttl time.Duration, meta RequestMeta) domain.Review {
	var skills []string
	if len(s.Skills) > 0 {
		skills = append(skills, s.Skills...)
	}
	return domain.Review{
		ID:     id,
		Status: domain.StatusPending,
		Reviewer: domain.Reviewer{
			Name:         s.Name,
			Email:        s.Email,
			Organization: ptrStr(s.Organization),
			Role:         ptrStr(s.Role),
			Relationship: s.Relationship,
			LinkedInURL:  ptrStr(s.LinkedInURL),
		},
		Content: domain.Content{
			Rating:         s.Rating,
			Testimonial:    s.Testimonial,
			Recommendation: s.Recommendation,
			ProjectContext: ptrStr(s.ProjectContext),
			Skills:         skills,
		},
		Metadata: domain.Metadata{
			SubmittedAt: now,
			IPAddress:   meta.IP,
			UserAgent:   meta.UserAgent,
			Source:      "website",
		},
		Verification: domain.Verification{
			Token:     token,
			ExpiresAt: now.Add(ttl),
		},
	}
}

package domain

import (
	"context"
	"time"
)

type ReviewRepository interface {
	// Write paths
	Create(ctx context.Context, r Review) error
	// Update loads id, applies fn and persists the result under the new
	// status. The read-modify-write is exclusive per review.
	Update(ctx context.Context, id string, fn func(*Review) error) (before, after Review, err error)
	// Delete removes id only while it is still in status st.
	Delete(ctx context.Context, id string, st Status) error
	Reindex(ctx context.Context) error

	// Read paths
	Get(ctx context.Context, id string) (Review, error)
	List(ctx context.Context, q ListQuery) (ReviewsPage, error)
	Published(ctx context.Context) ([]PublishedReview, error)
	Stats(ctx context.Context) (Stats, error)
}

type AuditLog interface {
	Append(ctx context.Context, e AdminActionLog) error
	Recent(ctx context.Context, limit int) ([]AdminActionLog, error)
}

type Mailer interface {
	Send(ctx context.Context, m Message) error
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// RateLimiter counts one hit for key and reports whether it is allowed.
// When blocked, retryAfter is how long until the next hit can pass.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (retryAfter time.Duration, ok bool, err error)
}

type Message struct {
	To      string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// Read models & queries
type ListQuery struct {
	Statuses []Status
	Limit    int
	Offset   int
}

type ReviewsPage struct {
	Items  []Review
	Total  int
	Limit  int
	Offset int
}

func (p ReviewsPage) HasMore() bool { return p.Offset+len(p.Items) < p.Total }

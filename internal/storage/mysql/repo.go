package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"

	"portfolio_reviews/internal/domain"
)

// Repo stores each review as a JSON document plus the columns queries filter on.
type Repo struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Repo { return &Repo{db: db, now: time.Now} }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanReview(status string, doc []byte) (domain.Review, error) {
	var rv domain.Review
	if err := json.Unmarshal(doc, &rv); err != nil {
		return domain.Review{}, fmt.Errorf("decode review doc: %w", err)
	}
	// the status column wins over the copy inside the document
	rv.Status = domain.Status(status)
	return rv, nil
}

func isDuplicate(err error) bool {
	var me *gomysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

func (r *Repo) Create(ctx context.Context, rv domain.Review) error {
	if !domain.ValidID(rv.ID) {
		return fmt.Errorf("create review: invalid id %q", rv.ID)
	}
	if !rv.Status.Valid() {
		return fmt.Errorf("create review %s: invalid status %q", rv.ID, rv.Status)
	}
	doc, err := json.Marshal(rv)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, insertReviewSQL,
		rv.ID, string(rv.Status), boolInt(rv.AdminFields.Featured), rv.Content.Rating,
		rv.Metadata.SubmittedAt.UTC(), string(doc),
	)
	if isDuplicate(err) {
		return fmt.Errorf("create review %s: already exists", rv.ID)
	}
	return err
}

func (r *Repo) Get(ctx context.Context, id string) (domain.Review, error) {
	if !domain.ValidID(id) {
		return domain.Review{}, domain.ErrNotFound
	}
	var status string
	var doc []byte
	if err := r.db.QueryRowContext(ctx, getReviewSQL, id).Scan(&status, &doc); err != nil {
		if err == sql.ErrNoRows {
			return domain.Review{}, domain.ErrNotFound
		}
		return domain.Review{}, err
	}
	return scanReview(status, doc)
}

// Update runs fn against the row under SELECT ... FOR UPDATE.
func (r *Repo) Update(ctx context.Context, id string, fn func(*domain.Review) error) (before, after domain.Review, err error) {
	if !domain.ValidID(id) {
		return domain.Review{}, domain.Review{}, domain.ErrNotFound
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Review{}, domain.Review{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var status string
	var doc []byte
	if err = tx.QueryRowContext(ctx, lockReviewSQL, id).Scan(&status, &doc); err != nil {
		if err == sql.ErrNoRows {
			err = domain.ErrNotFound
		}
		return domain.Review{}, domain.Review{}, err
	}
	if before, err = scanReview(status, doc); err != nil {
		return domain.Review{}, domain.Review{}, err
	}
	after = before
	after.Content.Skills = append([]string(nil), before.Content.Skills...)
	if err = fn(&after); err != nil {
		return before, domain.Review{}, err
	}
	if after.ID != before.ID {
		err = fmt.Errorf("update review %s: id is immutable", id)
		return before, domain.Review{}, err
	}
	if !after.Status.Valid() {
		err = fmt.Errorf("update review %s: invalid status %q", id, after.Status)
		return before, domain.Review{}, err
	}

	newDoc, err := json.Marshal(after)
	if err != nil {
		return before, domain.Review{}, err
	}
	if _, err = tx.ExecContext(ctx, updateReviewSQL,
		string(after.Status), boolInt(after.AdminFields.Featured), after.Content.Rating, string(newDoc), id,
	); err != nil {
		return before, domain.Review{}, err
	}
	if err = tx.Commit(); err != nil {
		return before, domain.Review{}, err
	}
	return before, after, nil
}

func (r *Repo) Delete(ctx context.Context, id string, st domain.Status) error {
	res, err := r.db.ExecContext(ctx, deleteReviewSQL, id, string(st))
	if err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	// nothing deleted: either gone or no longer in st
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return domain.ErrInvalidTransition
}

// Reindex is a no-op: the published list and stats are computed by queries.
func (r *Repo) Reindex(ctx context.Context) error { return nil }

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (r *Repo) List(ctx context.Context, q domain.ListQuery) (domain.ReviewsPage, error) {
	page := domain.ReviewsPage{Limit: q.Limit, Offset: q.Offset, Items: []domain.Review{}}
	if len(q.Statuses) == 0 {
		return page, nil
	}
	args := make([]any, 0, len(q.Statuses)+2)
	for _, st := range q.Statuses {
		args = append(args, string(st))
	}
	where := "WHERE status IN (" + placeholders(len(q.Statuses)) + ")"

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM reviews "+where, args...).Scan(&page.Total); err != nil {
		return domain.ReviewsPage{}, err
	}

	limit := q.Limit
	if limit <= 0 {
		limit = math.MaxInt32
	}
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, doc FROM reviews "+where+" ORDER BY id DESC LIMIT ? OFFSET ?",
		append(args, limit, q.Offset)...,
	)
	if err != nil {
		return domain.ReviewsPage{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var doc []byte
		if err := rows.Scan(&status, &doc); err != nil {
			return domain.ReviewsPage{}, err
		}
		rv, err := scanReview(status, doc)
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		page.Items = append(page.Items, rv)
	}
	if err := rows.Err(); err != nil {
		return domain.ReviewsPage{}, err
	}
	return page, nil
}

func (r *Repo) Published(ctx context.Context) ([]domain.PublishedReview, error) {
	rows, err := r.db.QueryContext(ctx, publishedSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.PublishedReview{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		rv, err := scanReview(string(domain.StatusApproved), doc)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Publish(rv))
	}
	return out, rows.Err()
}

func (r *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	st := domain.Stats{UpdatedAt: r.now().UTC()}
	rows, err := r.db.QueryContext(ctx, countByStatusSQL)
	if err != nil {
		return domain.Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return domain.Stats{}, err
		}
		switch domain.Status(status) {
		case domain.StatusPending:
			st.Pending = n
		case domain.StatusVerified:
			st.Verified = n
		case domain.StatusApproved:
			st.Approved = n
		case domain.StatusRejected:
			st.Rejected = n
		}
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return domain.Stats{}, err
	}

	var avg float64
	if err := r.db.QueryRowContext(ctx, approvedAggSQL).Scan(&st.Featured, &avg); err != nil {
		return domain.Stats{}, err
	}
	st.AverageRating = math.Round(avg*100) / 100
	return st, nil
}

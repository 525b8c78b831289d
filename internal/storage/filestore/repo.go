package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
)

// Repo keeps one JSON document per review under <root>/reviews/<status>/<id>.json.
type Repo struct {
	root    string
	locks   keyedMutex
	indexMu sync.Mutex
	now     func() time.Time
}

func New(root string) (*Repo, error) {
	r := &Repo{root: root, now: time.Now}
	for _, st := range domain.Statuses {
		if err := os.MkdirAll(r.dir(st), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", st, err)
		}
	}
	return r, nil
}

func (r *Repo) reviewsDir() string         { return filepath.Join(r.root, "reviews") }
func (r *Repo) dir(st domain.Status) string { return filepath.Join(r.reviewsDir(), string(st)) }
func (r *Repo) indexPath() string           { return filepath.Join(r.dir(domain.StatusApproved), indexFile) }
func (r *Repo) statsPath() string           { return filepath.Join(r.reviewsDir(), statsFile) }
func (r *Repo) path(st domain.Status, id string) string {
	return filepath.Join(r.dir(st), id+jsonExt)
}

// locate finds the directory currently holding id. A crash between writing
// the new copy and removing the old one leaves two; the newest file wins.
func (r *Repo) locate(id string) (domain.Review, error) {
	if !domain.ValidID(id) {
		return domain.Review{}, domain.ErrNotFound
	}
	var (
		found   domain.Review
		foundAt time.Time
		ok      bool
	)
	for _, st := range domain.Statuses {
		p := r.path(st, id)
		info, err := os.Stat(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Review{}, err
		}
		if ok && info.ModTime().Before(foundAt) {
			continue
		}
		var rv domain.Review
		err = readJSON(p, &rv)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return domain.Review{}, err
		}
		// the directory is the source of truth for status
		rv.Status = st
		found, foundAt, ok = rv, info.ModTime(), true
	}
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return found, nil
}

func (r *Repo) Create(ctx context.Context, rv domain.Review) error {
	if !domain.ValidID(rv.ID) {
		return fmt.Errorf("create review: invalid id %q", rv.ID)
	}
	if !rv.Status.Valid() {
		return fmt.Errorf("create review %s: invalid status %q", rv.ID, rv.Status)
	}
	unlock := r.locks.Lock(rv.ID)
	defer unlock()

	if _, err := r.locate(rv.ID); err == nil {
		return fmt.Errorf("create review %s: already exists", rv.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if err := writeJSON(r.path(rv.Status, rv.ID), rv); err != nil {
		return err
	}
	if err := r.Reindex(ctx); err != nil {
		log.Error().Err(err).Str("review_id", rv.ID).Msg("reindex after create failed")
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, id string) (domain.Review, error) {
	return r.locate(id)
}

func (r *Repo) Update(ctx context.Context, id string, fn func(*domain.Review) error) (domain.Review, domain.Review, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	before, err := r.locate(id)
	if err != nil {
		return domain.Review{}, domain.Review{}, err
	}
	after := before
	after.Content.Skills = append([]string(nil), before.Content.Skills...)
	if err := fn(&after); err != nil {
		return before, domain.Review{}, err
	}
	if after.ID != before.ID {
		return before, domain.Review{}, fmt.Errorf("update review %s: id is immutable", id)
	}
	if !after.Status.Valid() {
		return before, domain.Review{}, fmt.Errorf("update review %s: invalid status %q", id, after.Status)
	}

	// write the new location first so a crash leaves a duplicate, never a loss
	if err := writeJSON(r.path(after.Status, id), after); err != nil {
		return before, domain.Review{}, err
	}
	// drop the old copy and any stale duplicate
	for _, st := range domain.Statuses {
		if st == after.Status {
			continue
		}
		if err := os.Remove(r.path(st, id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return before, domain.Review{}, fmt.Errorf("remove %s copy of %s: %w", st, id, err)
		}
	}
	if err := r.Reindex(ctx); err != nil {
		log.Error().Err(err).Str("review_id", id).Msg("reindex after update failed")
	}
	return before, after, nil
}

func (r *Repo) Delete(ctx context.Context, id string, st domain.Status) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	rv, err := r.locate(id)
	if err != nil {
		return err
	}
	if rv.Status != st {
		return domain.ErrInvalidTransition
	}
	if err := os.Remove(r.path(rv.Status, id)); err != nil {
		return fmt.Errorf("delete review %s: %w", id, err)
	}
	if err := r.Reindex(ctx); err != nil {
		log.Error().Err(err).Str("review_id", id).Msg("reindex after delete failed")
	}
	return nil
}

type entry struct {
	id string
	st domain.Status
}

func (r *Repo) List(ctx context.Context, q domain.ListQuery) (domain.ReviewsPage, error) {
	var all []entry
	for _, st := range q.Statuses {
		ids, err := listIDs(r.dir(st))
		if err != nil {
			return domain.ReviewsPage{}, fmt.Errorf("list %s: %w", st, err)
		}
		for _, id := range ids {
			all = append(all, entry{id: id, st: st})
		}
	}
	// newest first by file name across all requested directories
	sort.SliceStable(all, func(i, j int) bool { return all[i].id > all[j].id })

	page := domain.ReviewsPage{Total: len(all), Limit: q.Limit, Offset: q.Offset, Items: []domain.Review{}}
	if q.Offset >= len(all) {
		return page, nil
	}
	end := len(all)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	for _, e := range all[q.Offset:end] {
		if err := ctx.Err(); err != nil {
			return domain.ReviewsPage{}, err
		}
		var rv domain.Review
		err := readJSON(r.path(e.st, e.id), &rv)
		if errors.Is(err, fs.ErrNotExist) {
			// moved by a concurrent action between the scan and the read
			continue
		}
		if err != nil {
			return domain.ReviewsPage{}, err
		}
		rv.Status = e.st
		page.Items = append(page.Items, rv)
	}
	return page, nil
}

func (r *Repo) Published(ctx context.Context) ([]domain.PublishedReview, error) {
	var out []domain.PublishedReview
	err := readJSON(r.indexPath(), &out)
	if errors.Is(err, fs.ErrNotExist) {
		if err := r.Reindex(ctx); err != nil {
			return nil, err
		}
		err = readJSON(r.indexPath(), &out)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.PublishedReview{}
	}
	return out, nil
}

func (r *Repo) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := readJSON(r.statsPath(), &st)
	if errors.Is(err, fs.ErrNotExist) {
		if err := r.Reindex(ctx); err != nil {
			return domain.Stats{}, err
		}
		err = readJSON(r.statsPath(), &st)
	}
	return st, err
}

// Reindex rewrites approved/index.json and stats.json from the directories.
func (r *Repo) Reindex(ctx context.Context) error {
	r.indexMu.Lock()
	defer r.indexMu.Unlock()

	stats := domain.Stats{UpdatedAt: r.now().UTC()}
	counts := map[domain.Status]*int{
		domain.StatusPending:  &stats.Pending,
		domain.StatusVerified: &stats.Verified,
		domain.StatusApproved: &stats.Approved,
		domain.StatusRejected: &stats.Rejected,
	}
	for _, st := range domain.Statuses {
		ids, err := listIDs(r.dir(st))
		if err != nil {
			return fmt.Errorf("reindex %s: %w", st, err)
		}
		*counts[st] = len(ids)
		stats.Total += len(ids)
	}

	ids, err := listIDs(r.dir(domain.StatusApproved))
	if err != nil {
		return err
	}
	published := make([]domain.PublishedReview, 0, len(ids))
	ratingSum := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		var rv domain.Review
		if err := readJSON(r.path(domain.StatusApproved, id), &rv); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
		published = append(published, domain.Publish(rv))
		ratingSum += rv.Content.Rating
		if rv.AdminFields.Featured {
			stats.Featured++
		}
	}
	if n := len(published); n > 0 {
		stats.AverageRating = math.Round(float64(ratingSum)/float64(n)*100) / 100
	}
	sort.SliceStable(published, func(i, j int) bool {
		if published[i].Featured != published[j].Featured {
			return published[i].Featured
		}
		return published[i].ID > published[j].ID
	})

	if err := writeJSON(r.indexPath(), published); err != nil {
		return err
	}
	return writeJSON(r.statsPath(), stats)
}

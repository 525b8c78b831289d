package mysql

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
)

// AuditLog appends moderation entries to admin_actions.
type AuditLog struct{ db *sql.DB }

func NewAuditLog(db *sql.DB) *AuditLog { return &AuditLog{db: db} }

func (a *AuditLog) Append(ctx context.Context, e domain.AdminActionLog) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = a.db.ExecContext(ctx, insertActionSQL, e.ReviewID, string(e.Action), e.Timestamp.UTC(), string(b))
	return err
}

func (a *AuditLog) Recent(ctx context.Context, limit int) ([]domain.AdminActionLog, error) {
	rows, err := a.db.QueryContext(ctx, recentActionsSQL, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []domain.AdminActionLog{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e domain.AdminActionLog
		if err := json.Unmarshal(raw, &e); err != nil {
			log.Warn().Err(err).Msg("skipping malformed audit row")
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

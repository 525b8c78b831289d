// Package storage picks the review backend named by STORAGE_DRIVER.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"portfolio_reviews/internal/domain"
	"portfolio_reviews/internal/shared"
	"portfolio_reviews/internal/storage/filestore"
	mysqlrepo "portfolio_reviews/internal/storage/mysql"
)

type Backend struct {
	Repo  domain.ReviewRepository
	Audit domain.AuditLog
	// Ping is nil for the file backend.
	Ping  func(ctx context.Context) error
	Close func() error
}

func Open(cfg shared.Config) (Backend, error) {
	switch cfg.StorageDriver {
	case "mysql":
		db, err := sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			return Backend{}, fmt.Errorf("sql.Open: %w", err)
		}
		if err := db.Ping(); err != nil {
			_ = db.Close()
			return Backend{}, fmt.Errorf("db.Ping: %w", err)
		}
		log.Info().Msg("database connection ok")
		return Backend{
			Repo:  mysqlrepo.New(db),
			Audit: mysqlrepo.NewAuditLog(db),
			Ping:  db.PingContext,
			Close: db.Close,
		}, nil
	case "file", "":
		repo, err := filestore.New(cfg.DataDir)
		if err != nil {
			return Backend{}, err
		}
		audit, err := filestore.NewAuditLog(cfg.DataDir)
		if err != nil {
			return Backend{}, err
		}
		log.Info().Str("dir", cfg.DataDir).Msg("file storage ready")
		return Backend{Repo: repo, Audit: audit, Close: func() error { return nil }}, nil
	default:
		return Backend{}, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

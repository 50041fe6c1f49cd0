package reconcile

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tryon/internal/domain"
	"tryon/internal/sqlinline"
)

// Index answers which gallery rows exist and records missing ones.
type Index interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Insert(ctx context.Context, item domain.GalleryItem) error
}

// SQLIndex is the Postgres Index.
type SQLIndex struct {
	db *sqlx.DB
}

// OpenSQLIndex connects with the lib/pq driver.
func OpenSQLIndex(ctx context.Context, dsn string) (*SQLIndex, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("reconcile: connect: %w", err)
	}
	db.SetMaxOpenConns(4)
	return &SQLIndex{db: db}, nil
}

func NewSQLIndex(db *sqlx.DB) *SQLIndex {
	return &SQLIndex{db: db}
}

func (s *SQLIndex) Close() error {
	return s.db.Close()
}

func (s *SQLIndex) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	var rows []string
	if err := s.db.SelectContext(ctx, &rows, sqlinline.QSelectGalleryIDsIn, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("reconcile: select gallery ids: %w", err)
	}
	for _, id := range rows {
		found[id] = true
	}
	return found, nil
}

func (s *SQLIndex) Insert(ctx context.Context, item domain.GalleryItem) error {
	_, err := s.db.ExecContext(ctx, sqlinline.QInsertReconciledGalleryItem,
		item.ID,
		item.OwnerID,
		item.URL,
		item.ThumbnailURL,
		item.MimeType,
		string(item.Type),
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("reconcile: insert %s: %w", item.ID, err)
	}
	return nil
}

package repo

import (
	"context"
	"fmt"

	"tryon/internal/domain"
	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

// GalleryRepositoryPG implements domain.GalleryRepository.
type GalleryRepositoryPG struct {
	db infra.SQLExecutor
}

// NewGalleryRepository creates a new GalleryRepositoryPG.
func NewGalleryRepository(db infra.SQLExecutor) *GalleryRepositoryPG {
	return &GalleryRepositoryPG{db: db}
}

// Insert stores item, or returns the row already saved for the same task result.
func (r *GalleryRepositoryPG) Insert(ctx context.Context, item *domain.GalleryItem) (*domain.GalleryItem, error) {
	row := r.db.QueryRow(ctx, sqlinline.QInsertGalleryItem,
		item.ID,
		item.OwnerID,
		item.TaskID,
		item.ResultIndex,
		item.URL,
		item.ThumbnailURL,
		item.MimeType,
		string(item.Type),
		item.CreatedAt,
	)
	saved, err := scanGalleryItem(row)
	if err != nil {
		return nil, fmt.Errorf("insert gallery item: %w", err)
	}
	return saved, nil
}

// ListByTask returns the saved results of one task, owner scoped.
func (r *GalleryRepositoryPG) ListByTask(ctx context.Context, ownerID, taskID string) ([]domain.GalleryItem, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListGalleryByTask, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.GalleryItem
	for rows.Next() {
		item, err := scanGalleryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanGalleryItem(row interface{ Scan(...any) error }) (*domain.GalleryItem, error) {
	var (
		item domain.GalleryItem
		typ  string
	)
	if err := row.Scan(
		&item.ID,
		&item.OwnerID,
		&item.TaskID,
		&item.ResultIndex,
		&item.URL,
		&item.ThumbnailURL,
		&item.MimeType,
		&typ,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}
	item.Type = domain.GalleryItemType(typ)
	return &item, nil
}

var _ domain.GalleryRepository = (*GalleryRepositoryPG)(nil)

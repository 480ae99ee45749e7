package repo

import (
	"context"

	"github.com/jackc/pgx/v5"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/sqlinline"
)

// ImageRepositoryPG implements domain.ImageRepository.
type ImageRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewImageRepository(sql infra.SQLExecutor) *ImageRepositoryPG {
	return &ImageRepositoryPG{sql: sql}
}

// Save inserts the image and fills in its ID and CreatedAt.
func (r *ImageRepositoryPG) Save(ctx context.Context, img *domain.GeneratedImage) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertGeneratedImage,
		img.UserID,
		img.RequestID,
		img.Prompt,
		img.RefinedPrompt,
		img.Provider,
		img.StorageKey,
		img.SourceURL,
		img.MIMEType,
		img.Bytes,
		img.Width,
		img.Height,
		img.AspectRatio,
		img.Fallback,
		nullableBytes(img.Properties),
	)
	return row.Scan(&img.ID, &img.CreatedAt)
}

func (r *ImageRepositoryPG) Get(ctx context.Context, userID, id string) (*domain.GeneratedImage, error) {
	return scanImage(r.sql.QueryRow(ctx, sqlinline.QSelectGeneratedImage, id, userID))
}

func (r *ImageRepositoryPG) List(ctx context.Context, userID string, limit, offset int) ([]domain.GeneratedImage, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := r.sql.Query(ctx, sqlinline.QListGeneratedImages, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

func (r *ImageRepositoryPG) ListByRequest(ctx context.Context, userID, requestID string) ([]domain.GeneratedImage, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListGeneratedImagesByRequest, requestID, userID)
	if err != nil {
		return nil, err
	}
	return collectImages(rows)
}

// Delete removes the row and returns it so the caller can drop the stored file.
func (r *ImageRepositoryPG) Delete(ctx context.Context, userID, id string) (*domain.GeneratedImage, error) {
	return scanImage(r.sql.QueryRow(ctx, sqlinline.QDeleteGeneratedImage, id, userID))
}

func scanImage(row pgx.Row) (*domain.GeneratedImage, error) {
	var img domain.GeneratedImage
	if err := row.Scan(
		&img.ID,
		&img.UserID,
		&img.RequestID,
		&img.Prompt,
		&img.RefinedPrompt,
		&img.Provider,
		&img.StorageKey,
		&img.SourceURL,
		&img.MIMEType,
		&img.Bytes,
		&img.Width,
		&img.Height,
		&img.AspectRatio,
		&img.Fallback,
		&img.Properties,
		&img.CreatedAt,
	); err != nil {
		if infra.IsNoRows(err) || infra.IsInvalidText(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &img, nil
}

func collectImages(rows pgx.Rows) ([]domain.GeneratedImage, error) {
	defer rows.Close()
	var out []domain.GeneratedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

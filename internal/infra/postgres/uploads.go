package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dvloznov/statement-insights/internal/domain"
	"github.com/dvloznov/statement-insights/internal/insights"
)

// Uploads is the uploads table.
type Uploads struct {
	pool *pgxpool.Pool
}

var _ insights.UploadRepository = (*Uploads)(nil)

// NewUploads creates an upload repository.
func NewUploads(pool *pgxpool.Pool) *Uploads {
	return &Uploads{pool: pool}
}

func (r *Uploads) CreateUpload(ctx context.Context, u domain.Upload) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO uploads (id, filename, file_type, status, row_count, error_msg, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Filename, u.FileType, string(u.Status), u.RowCount, u.ErrorMsg, u.UploadedAt)
	if err != nil {
		return fmt.Errorf("CreateUpload: %w", err)
	}
	return nil
}

func (r *Uploads) GetUpload(ctx context.Context, id string) (domain.Upload, error) {
	var (
		u      domain.Upload
		status string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, filename, file_type, status, row_count, error_msg, uploaded_at
		FROM uploads WHERE id = $1
	`, id).Scan(&u.ID, &u.Filename, &u.FileType, &status, &u.RowCount, &u.ErrorMsg, &u.UploadedAt)
	if isNoRows(err) {
		return domain.Upload{}, domain.NewNotFound("upload", id)
	}
	if err != nil {
		return domain.Upload{}, fmt.Errorf("GetUpload: %w", err)
	}
	u.Status = domain.UploadStatus(status)
	return u, nil
}

func (r *Uploads) UpdateUploadStatus(ctx context.Context, id string, status domain.UploadStatus, rowCount int, errorMsg string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE uploads SET status = $2, row_count = $3, error_msg = $4 WHERE id = $1
	`, id, string(status), rowCount, errorMsg)
	if err != nil {
		return fmt.Errorf("UpdateUploadStatus: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound("upload", id)
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

type UploadHistoryRepository interface {
	Create(ctx context.Context, h *models.UploadHistory) (int64, error)
	HasSuccess(ctx context.Context, contentID int64) (bool, error)
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.UploadHistory, error)
	ListByContentID(ctx context.Context, contentID int64) ([]*models.UploadHistory, error)
}

type uploadHistoryRepository struct {
	db *sql.DB
}

func NewUploadHistoryRepository(db *sql.DB) UploadHistoryRepository {
	return &uploadHistoryRepository{db: db}
}

const historyColumns = `id, content_id, profile_id, user_id, status, error_message, uploaded_at`

// Create appends a record. A second success row for the same content id
// violates the partial unique index and is reported as an error.
func (r *uploadHistoryRepository) Create(ctx context.Context, h *models.UploadHistory) (int64, error) {
	query := `
		INSERT INTO upload_history (content_id, profile_id, user_id, status, error_message, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query, h.ContentID, h.ProfileID, h.UserID, h.Status, h.ErrorMessage, h.UploadedAt.UTC()).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *uploadHistoryRepository) HasSuccess(ctx context.Context, contentID int64) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM upload_history WHERE content_id = $1 AND status = 'success')`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, contentID).Scan(&exists); err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return exists, nil
}

func (r *uploadHistoryRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*models.UploadHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM upload_history WHERE user_id = $1 ORDER BY uploaded_at DESC, id DESC LIMIT $2`
	return r.list(ctx, query, userID, limit)
}

func (r *uploadHistoryRepository) ListByContentID(ctx context.Context, contentID int64) ([]*models.UploadHistory, error) {
	query := `SELECT ` + historyColumns + ` FROM upload_history WHERE content_id = $1 ORDER BY uploaded_at, id`
	return r.list(ctx, query, contentID)
}

func (r *uploadHistoryRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.UploadHistory, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var records []*models.UploadHistory
	for rows.Next() {
		var h models.UploadHistory
		if err := rows.Scan(&h.ID, &h.ContentID, &h.ProfileID, &h.UserID, &h.Status, &h.ErrorMessage, &h.UploadedAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		records = append(records, &h)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return records, nil
}

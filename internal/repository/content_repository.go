package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/lib/pq"
)

// ContentRepository persists content items. Every state transition that can
// race is a single conditional UPDATE; a write that matched no row returns
// (false, nil).
type ContentRepository interface {
	Create(ctx context.Context, tx *sql.Tx, c *models.Content) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Content, error)
	ListByUserID(ctx context.Context, userID int64, status string) ([]*models.Content, error)
	CheckByUserID(ctx context.Context, contentID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error

	ListReservations(ctx context.Context, slotIDs []int64, from time.Time) ([]models.Reservation, error)
	Reserve(ctx context.Context, r models.SlotReservation) (bool, error)

	AcquireLease(ctx context.Context, id int64, holder string, now time.Time) (bool, error)
	LeaseHolder(ctx context.Context, id int64) (string, error)
	ReleaseLease(ctx context.Context, id int64, holder string) (bool, error)
	ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int64, error)
	RequeueStaleProcessing(ctx context.Context, cutoff, now time.Time) (int64, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Content, error)

	MarkProcessing(ctx context.Context, id int64, holder, trackingID string) (bool, error)
	MarkPublished(ctx context.Context, id int64, holder string, now time.Time) (bool, error)
	MarkRetryPending(ctx context.Context, id int64, holder string, nextRetryAt time.Time, lastErr string) (bool, error)
	MarkFailed(ctx context.Context, id int64, holder, lastErr string) (bool, error)
	ForceRemoved(ctx context.Context, id int64, now time.Time) (bool, error)

	Unschedule(ctx context.Context, id int64) (bool, error)
	RevertToFailed(ctx context.Context, id, profileID int64, slotID *int64, lastErr string) (bool, error)
	MoveToTrash(ctx context.Context, id int64, now time.Time) (bool, error)
	Restore(ctx context.Context, id int64) (bool, error)
	CountByFileKey(ctx context.Context, fileKey string) (int, error)
}

type contentRepository struct {
	db *sql.DB
}

func NewContentRepository(db *sql.DB) ContentRepository {
	return &contentRepository{db: db}
}

const contentColumns = `id, user_id, file_name, file_key, file_url, caption, description, status,
	assigned_profile_id, scheduled_slot_id, scheduled_at, platform, lease_holder, leased_at,
	retry_count, next_retry_at, last_attempt_at, last_error, tracking_id, uploaded_at,
	removed_at, removed_from_profile_id, created_at, updated_at`

func scanContent(row rowScanner) (*models.Content, error) {
	var c models.Content
	var profileID, slotID, removedFrom sql.NullInt64
	var scheduledAt, leasedAt, nextRetryAt, lastAttemptAt, uploadedAt, removedAt sql.NullTime

	err := row.Scan(
		&c.ID, &c.UserID, &c.FileName, &c.FileKey, &c.FileURL, &c.Caption, &c.Description, &c.Status,
		&profileID, &slotID, &scheduledAt, &c.Platform, &c.LeaseHolder, &leasedAt,
		&c.RetryCount, &nextRetryAt, &lastAttemptAt, &c.LastError, &c.TrackingID, &uploadedAt,
		&removedAt, &removedFrom, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.AssignedProfileID = nullInt64(profileID)
	c.ScheduledSlotID = nullInt64(slotID)
	c.RemovedFromProfileID = nullInt64(removedFrom)
	c.ScheduledAt = nullTime(scheduledAt)
	c.LeasedAt = nullTime(leasedAt)
	c.NextRetryAt = nullTime(nextRetryAt)
	c.LastAttemptAt = nullTime(lastAttemptAt)
	c.UploadedAt = nullTime(uploadedAt)
	c.RemovedAt = nullTime(removedAt)
	return &c, nil
}

func nullInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time.UTC()
	return &t
}

func (r *contentRepository) Create(ctx context.Context, tx *sql.Tx, c *models.Content) (int64, error) {
	query := `
		INSERT INTO contents (user_id, file_name, file_key, file_url, caption, description, status, assigned_profile_id, platform)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	status := c.Status
	if status == "" {
		status = models.ContentStatusPending
	}

	var id int64
	err := executor(r.db, tx).QueryRowContext(ctx, query,
		c.UserID,
		c.FileName,
		c.FileKey,
		c.FileURL,
		c.Caption,
		c.Description,
		status,
		c.AssignedProfileID,
		c.Platform,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *contentRepository) GetByID(ctx context.Context, id int64) (*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE id = $1`

	c, err := scanContent(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return c, nil
}

// ListByUserID lists a user's content, newest first. An empty status
// matches every status.
func (r *contentRepository) ListByUserID(ctx context.Context, userID int64, status string) ([]*models.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM contents WHERE user_id = $1`
	args := []interface{}{userID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	return r.list(ctx, query, args...)
}

func (r *contentRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.Content, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var contents []*models.Content
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		contents = append(contents, c)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return contents, nil
}

func (r *contentRepository) CheckByUserID(ctx context.Context, contentID, userID int64) (bool, error) {
	query := "SELECT 1 FROM contents WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, contentID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

func (r *contentRepository) Remove(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM contents WHERE id = $1", id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *contentRepository) CountByFileKey(ctx context.Context, fileKey string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM contents WHERE file_key = $1", fileKey).Scan(&n)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

// ListReservations returns the active reservations on the given slots whose
// instant is at or after from.
func (r *contentRepository) ListReservations(ctx context.Context, slotIDs []int64, from time.Time) ([]models.Reservation, error) {
	if len(slotIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT id, scheduled_slot_id, scheduled_at
		FROM contents
		WHERE scheduled_slot_id = ANY($1)
		  AND scheduled_at >= $2
		  AND status = ANY($3)
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(slotIDs), from, pq.Array(models.ActiveStatuses))
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		var res models.Reservation
		if err := rows.Scan(&res.ContentID, &res.SlotID, &res.ScheduledAt); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return out, nil
}

// Reserve moves a pending row onto (slot, date) only if no other active row
// holds that pair. A concurrent winner surfaces either as zero affected rows
// or as a unique violation on the partial index; both mean the race was lost.
func (r *contentRepository) Reserve(ctx context.Context, res models.SlotReservation) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'assigned',
			assigned_profile_id = $2,
			scheduled_slot_id = $3,
			scheduled_at = $4,
			scheduled_date = $5,
			retry_count = 0,
			next_retry_at = NULL,
			last_error = '',
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM contents other
			WHERE other.scheduled_slot_id = $3
			  AND other.scheduled_date = $5
			  AND other.status = ANY($6)
			  AND other.id <> $1
		  )
	`
	result, err := r.db.ExecContext(ctx, query,
		res.ContentID,
		res.ProfileID,
		res.SlotID,
		res.ScheduledAt.UTC(),
		res.ScheduledDate,
		pq.Array(models.ActiveStatuses),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return affectedOne(result)
}

// AcquireLease claims an unleased row that is waiting for dispatch.
func (r *contentRepository) AcquireLease(ctx context.Context, id int64, holder string, now time.Time) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'dispatching',
			lease_holder = $2,
			leased_at = $3,
			last_attempt_at = $3,
			updated_at = $3
		WHERE id = $1
		  AND lease_holder = ''
		  AND status IN ('assigned', 'retry_pending')
	`
	return r.conditional(ctx, query, id, holder, now.UTC())
}

func (r *contentRepository) LeaseHolder(ctx context.Context, id int64) (string, error) {
	var holder string
	err := r.db.QueryRowContext(ctx, "SELECT lease_holder FROM contents WHERE id = $1", id).Scan(&holder)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		slog.Info(err.Error())
		return "", err
	}
	return holder, nil
}

// ReleaseLease hands the row back without recording an outcome.
func (r *contentRepository) ReleaseLease(ctx context.Context, id int64, holder string) (bool, error) {
	query := `
		UPDATE contents
		SET status = CASE WHEN retry_count > 0 THEN 'retry_pending' ELSE 'assigned' END,
			lease_holder = '',
			leased_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND lease_holder = $2
		  AND status = 'dispatching'
	`
	return r.conditional(ctx, query, id, holder)
}

func (r *contentRepository) ReleaseStaleLeases(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE contents
		SET status = CASE WHEN retry_count > 0 THEN 'retry_pending' ELSE 'assigned' END,
			lease_holder = '',
			leased_at = NULL,
			updated_at = NOW()
		WHERE status = 'dispatching'
		  AND leased_at < $1
	`
	return r.count(ctx, query, cutoff.UTC())
}

// RequeueStaleProcessing makes processing rows whose reconciliation never
// arrived due again.
func (r *contentRepository) RequeueStaleProcessing(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		UPDATE contents
		SET status = 'retry_pending',
			next_retry_at = $2,
			updated_at = $2
		WHERE status = 'processing'
		  AND COALESCE(last_attempt_at, updated_at) < $1
	`
	return r.count(ctx, query, cutoff.UTC(), now.UTC())
}

func (r *contentRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Content, error) {
	query := `SELECT ` + contentColumns + `
		FROM contents
		WHERE lease_holder = ''
		  AND (
			(status = 'assigned' AND scheduled_at <= $1)
			OR (status = 'retry_pending' AND COALESCE(next_retry_at, scheduled_at) <= $1)
		  )
		ORDER BY COALESCE(next_retry_at, scheduled_at), id
		LIMIT $2
	`
	return r.list(ctx, query, now.UTC(), limit)
}

func (r *contentRepository) MarkProcessing(ctx context.Context, id int64, holder, trackingID string) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'processing',
			tracking_id = $3,
			retry_count = 0,
			next_retry_at = NULL,
			last_error = '',
			lease_holder = '',
			leased_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND lease_holder = $2
		  AND status = 'dispatching'
	`
	return r.conditional(ctx, query, id, holder, trackingID)
}

// MarkPublished records a synchronous success. The slot and instant are
// cleared so the pair stops counting as occupied.
func (r *contentRepository) MarkPublished(ctx context.Context, id int64, holder string, now time.Time) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'removed',
			uploaded_at = $3,
			removed_at = $3,
			removed_from_profile_id = assigned_profile_id,
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			retry_count = 0,
			next_retry_at = NULL,
			last_error = '',
			lease_holder = '',
			leased_at = NULL,
			updated_at = $3
		WHERE id = $1
		  AND lease_holder = $2
		  AND status = 'dispatching'
	`
	return r.conditional(ctx, query, id, holder, now.UTC())
}

func (r *contentRepository) MarkRetryPending(ctx context.Context, id int64, holder string, nextRetryAt time.Time, lastErr string) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'retry_pending',
			retry_count = retry_count + 1,
			next_retry_at = $3,
			last_error = $4,
			lease_holder = '',
			leased_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND lease_holder = $2
		  AND status = 'dispatching'
	`
	return r.conditional(ctx, query, id, holder, nextRetryAt.UTC(), lastErr)
}

func (r *contentRepository) MarkFailed(ctx context.Context, id int64, holder, lastErr string) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'failed',
			next_retry_at = NULL,
			last_error = $3,
			lease_holder = '',
			leased_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND lease_holder = $2
		  AND status = 'dispatching'
	`
	return r.conditional(ctx, query, id, holder, lastErr)
}

// ForceRemoved retires a row that already has a success record. A row under
// someone else's lease is left alone; that holder runs the same guard.
func (r *contentRepository) ForceRemoved(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'removed',
			removed_at = $2,
			removed_from_profile_id = COALESCE(assigned_profile_id, removed_from_profile_id),
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			next_retry_at = NULL,
			updated_at = $2
		WHERE id = $1
		  AND status NOT IN ('removed', 'dispatching')
	`
	return r.conditional(ctx, query, id, now.UTC())
}

// Unschedule returns a reserved or failed row to pending and frees its slot.
func (r *contentRepository) Unschedule(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'pending',
			assigned_profile_id = NULL,
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			retry_count = 0,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE id = $1
		  AND status IN ('assigned', 'retry_pending', 'failed')
	`
	return r.conditional(ctx, query, id)
}

// RevertToFailed puts a pending row back to failed on its previous profile
// and slot, undoing an Unschedule whose follow-up reservation fell through.
func (r *contentRepository) RevertToFailed(ctx context.Context, id, profileID int64, slotID *int64, lastErr string) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'failed',
			assigned_profile_id = $2,
			scheduled_slot_id = $3,
			last_error = $4,
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
	`
	var slot sql.NullInt64
	if slotID != nil {
		slot = sql.NullInt64{Int64: *slotID, Valid: true}
	}
	return r.conditional(ctx, query, id, profileID, slot, lastErr)
}

func (r *contentRepository) MoveToTrash(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'removed',
			removed_at = $2,
			removed_from_profile_id = assigned_profile_id,
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			next_retry_at = NULL,
			updated_at = $2
		WHERE id = $1
		  AND status NOT IN ('removed', 'dispatching')
	`
	return r.conditional(ctx, query, id, now.UTC())
}

func (r *contentRepository) Restore(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE contents
		SET status = 'pending',
			assigned_profile_id = NULL,
			removed_at = NULL,
			retry_count = 0,
			last_error = '',
			updated_at = NOW()
		WHERE id = $1
		  AND status = 'removed'
	`
	return r.conditional(ctx, query, id)
}

func (r *contentRepository) conditional(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	ok, err := affectedOne(res)
	if err != nil {
		slog.Info(err.Error())
		return false, err
	}
	return ok, nil
}

func (r *contentRepository) count(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return n, nil
}

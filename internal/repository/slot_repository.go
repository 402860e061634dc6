package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/lib/pq"
)

type SlotRepository interface {
	Create(ctx context.Context, s *models.ScheduleSlot) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.ScheduleSlot, error)
	ListByProfile(ctx context.Context, profileID int64, platform string) ([]*models.ScheduleSlot, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduleSlot, error)
	Update(ctx context.Context, s *models.ScheduleSlot) error
	SetActive(ctx context.Context, id int64, active bool) error
	Remove(ctx context.Context, id int64) (int64, error)
}

type slotRepository struct {
	db *sql.DB
}

func NewSlotRepository(db *sql.DB) SlotRepository {
	return &slotRepository{db: db}
}

const slotColumns = `id, profile_id, user_id, platform, hour, minute, type, week_days, is_active, created_at`

func scanSlot(row rowScanner) (*models.ScheduleSlot, error) {
	var s models.ScheduleSlot
	var days pq.Int64Array
	if err := row.Scan(&s.ID, &s.ProfileID, &s.UserID, &s.Platform, &s.Hour, &s.Minute, &s.Type, &days, &s.IsActive, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.WeekDays = []int64(days)
	return &s, nil
}

func weekDaysArg(s *models.ScheduleSlot) interface{} {
	if s.Type != models.SlotTypeWeekly {
		return nil
	}
	days := s.WeekDays
	if days == nil {
		days = []int64{}
	}
	return pq.Array(days)
}

func (r *slotRepository) Create(ctx context.Context, s *models.ScheduleSlot) (int64, error) {
	query := `
		INSERT INTO schedule_slots (profile_id, user_id, platform, hour, minute, type, week_days, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`

	var id int64
	err := r.db.QueryRowContext(ctx, query,
		s.ProfileID,
		s.UserID,
		s.Platform,
		s.Hour,
		s.Minute,
		s.Type,
		weekDaysArg(s),
		s.IsActive,
	).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *slotRepository) GetByID(ctx context.Context, id int64) (*models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE id = $1`

	s, err := scanSlot(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return s, nil
}

// ListByProfile returns every slot of a profile, active or not. An empty
// platform matches all platforms.
func (r *slotRepository) ListByProfile(ctx context.Context, profileID int64, platform string) ([]*models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE profile_id = $1`
	args := []interface{}{profileID}
	if platform != "" {
		query += ` AND platform = $2`
		args = append(args, platform)
	}
	query += ` ORDER BY hour, minute, id`

	return r.list(ctx, query, args...)
}

func (r *slotRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE user_id = $1 ORDER BY profile_id, hour, minute, id`
	return r.list(ctx, query, userID)
}

func (r *slotRepository) list(ctx context.Context, query string, args ...interface{}) ([]*models.ScheduleSlot, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var slots []*models.ScheduleSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return slots, nil
}

func (r *slotRepository) Update(ctx context.Context, s *models.ScheduleSlot) error {
	query := `
		UPDATE schedule_slots
		SET platform = $1,
			hour = $2,
			minute = $3,
			type = $4,
			week_days = $5,
			is_active = $6
		WHERE id = $7
	`
	_, err := r.db.ExecContext(ctx, query, s.Platform, s.Hour, s.Minute, s.Type, weekDaysArg(s), s.IsActive, s.ID)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *slotRepository) SetActive(ctx context.Context, id int64, active bool) error {
	_, err := r.db.ExecContext(ctx, `UPDATE schedule_slots SET is_active = $1 WHERE id = $2`, active, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Remove deletes a slot and returns its waiting reservations to pending in
// the same transaction. It reports how many content rows were released.
func (r *slotRepository) Remove(ctx context.Context, id int64) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE contents
		SET status = 'pending',
			assigned_profile_id = NULL,
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE scheduled_slot_id = $1
		  AND status IN ('assigned', 'retry_pending')
	`, id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	released, err := res.RowsAffected()
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM schedule_slots WHERE id = $1`, id); err != nil {
		slog.Info(err.Error())
		return 0, err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return released, nil
}

package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
	"github.com/lib/pq"
)

type ProfileRepository interface {
	Create(ctx context.Context, p *models.Profile) (int64, error)
	GetByID(ctx context.Context, id int64) (*models.Profile, error)
	ListByUserID(ctx context.Context, userID int64) ([]*models.Profile, error)
	CheckByUserID(ctx context.Context, profileID, userID int64) (bool, error)
	Remove(ctx context.Context, id int64) error
}

type profileRepository struct {
	db *sql.DB
}

func NewProfileRepository(db *sql.DB) ProfileRepository {
	return &profileRepository{db: db}
}

const profileColumns = `id, user_id, name, platform, connected_accounts, refresh_token, created_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var accounts pq.StringArray
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Platform, &accounts, &p.RefreshToken, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ConnectedAccounts = []string(accounts)
	return &p, nil
}

func (r *profileRepository) Create(ctx context.Context, p *models.Profile) (int64, error) {
	query := `
		INSERT INTO profiles (user_id, name, platform, connected_accounts, refresh_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	accounts := p.ConnectedAccounts
	if accounts == nil {
		accounts = []string{}
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, p.UserID, p.Name, p.Platform, pq.Array(accounts), p.RefreshToken).Scan(&id)
	if err != nil {
		slog.Info(err.Error())
		return 0, err
	}
	return id, nil
}

func (r *profileRepository) GetByID(ctx context.Context, id int64) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1`

	p, err := scanProfile(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	return p, nil
}

func (r *profileRepository) ListByUserID(ctx context.Context, userID int64) ([]*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	return profiles, nil
}

func (r *profileRepository) CheckByUserID(ctx context.Context, profileID, userID int64) (bool, error) {
	query := "SELECT 1 FROM profiles WHERE id = $1 AND user_id = $2"

	var result int
	err := r.db.QueryRowContext(ctx, query, profileID, userID).Scan(&result)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		slog.Info(err.Error())
		return false, err
	}
	return result == 1, nil
}

// Remove deletes a profile. Reservations that are not mid-dispatch go back
// to pending first so no content row points at a vanished slot.
func (r *profileRepository) Remove(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE contents
		SET status = 'pending',
			assigned_profile_id = NULL,
			scheduled_slot_id = NULL,
			scheduled_at = NULL,
			scheduled_date = NULL,
			next_retry_at = NULL,
			updated_at = NOW()
		WHERE assigned_profile_id = $1
		  AND status IN ('assigned', 'retry_pending')
	`, id)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		slog.Info(err.Error())
		return err
	}

	if err = tx.Commit(); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

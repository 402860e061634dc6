package models

import "time"

type UploadHistory struct {
	ID           int64     `db:"id" json:"id"`
	ContentID    int64     `db:"content_id" json:"content_id"`
	ProfileID    int64     `db:"profile_id" json:"profile_id"`
	UserID       int64     `db:"user_id" json:"user_id"`
	Status       string    `db:"status" json:"status"`
	ErrorMessage string    `db:"error_message" json:"error_message"`
	UploadedAt   time.Time `db:"uploaded_at" json:"uploaded_at"`
}

const (
	UploadStatusSuccess = "success"
	UploadStatusFailed  = "failed"
)

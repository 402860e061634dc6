package models

import "time"

type Content struct {
	ID                   int64      `db:"id" json:"id"`
	UserID               int64      `db:"user_id" json:"user_id"`
	FileName             string     `db:"file_name" json:"file_name"`
	FileKey              string     `db:"file_key" json:"file_key"`
	FileURL              string     `db:"file_url" json:"file_url"`
	Caption              string     `db:"caption" json:"caption"`
	Description          string     `db:"description" json:"description"`
	Status               string     `db:"status" json:"status"`
	AssignedProfileID    *int64     `db:"assigned_profile_id" json:"assigned_profile_id"`
	ScheduledSlotID      *int64     `db:"scheduled_slot_id" json:"scheduled_slot_id"`
	ScheduledAt          *time.Time `db:"scheduled_at" json:"scheduled_at"`
	Platform             string     `db:"platform" json:"platform"`
	LeaseHolder          string     `db:"lease_holder" json:"-"`
	LeasedAt             *time.Time `db:"leased_at" json:"-"`
	RetryCount           int        `db:"retry_count" json:"retry_count"`
	NextRetryAt          *time.Time `db:"next_retry_at" json:"next_retry_at"`
	LastAttemptAt        *time.Time `db:"last_attempt_at" json:"last_attempt_at"`
	LastError            string     `db:"last_error" json:"last_error"`
	TrackingID           string     `db:"tracking_id" json:"tracking_id"`
	UploadedAt           *time.Time `db:"uploaded_at" json:"uploaded_at"`
	RemovedAt            *time.Time `db:"removed_at" json:"removed_at"`
	RemovedFromProfileID *int64     `db:"removed_from_profile_id" json:"removed_from_profile_id"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Leased reports whether a dispatcher currently holds the item. The lease
// lives inside the status so the two can never disagree.
func (c *Content) Leased() bool {
	return c.Status == ContentStatusDispatching && c.LeaseHolder != ""
}

// Reservation is an occupied (slot, instant) pair derived from an active content row.
type Reservation struct {
	ContentID   int64     `db:"id" json:"content_id"`
	SlotID      int64     `db:"scheduled_slot_id" json:"slot_id"`
	ScheduledAt time.Time `db:"scheduled_at" json:"scheduled_at"`
}

// SlotReservation is the conditional write that moves a pending content row
// onto a slot instant.
type SlotReservation struct {
	ContentID     int64
	ProfileID     int64
	SlotID        int64
	Platform      string
	ScheduledAt   time.Time
	ScheduledDate string
}

const (
	ContentStatusPending      = "pending"
	ContentStatusAssigned     = "assigned"
	ContentStatusDispatching  = "dispatching"
	ContentStatusProcessing   = "processing"
	ContentStatusRetryPending = "retry_pending"
	ContentStatusFailed       = "failed"
	ContentStatusRemoved      = "removed"
)

// ActiveStatuses hold a slot reservation.
var ActiveStatuses = []string{
	ContentStatusAssigned,
	ContentStatusDispatching,
	ContentStatusProcessing,
	ContentStatusRetryPending,
}

func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func IsValidContentStatus(status string) bool {
	switch status {
	case ContentStatusPending, ContentStatusAssigned, ContentStatusDispatching, ContentStatusProcessing,
		ContentStatusRetryPending, ContentStatusFailed, ContentStatusRemoved:
		return true
	}
	return false
}

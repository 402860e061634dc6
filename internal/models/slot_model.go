package models

import (
	"errors"
	"fmt"
	"time"
)

type ScheduleSlot struct {
	ID        int64     `db:"id" json:"id"`
	ProfileID int64     `db:"profile_id" json:"profile_id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Platform  string    `db:"platform" json:"platform"`
	Hour      int       `db:"hour" json:"hour"`
	Minute    int       `db:"minute" json:"minute"`
	Type      string    `db:"type" json:"type"`
	WeekDays  []int64   `db:"week_days" json:"week_days"` // 0 = Sunday
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

const (
	SlotTypeDaily  = "daily"
	SlotTypeWeekly = "weekly"
)

// RunsOn reports whether the slot recurs on the given weekday. A weekly slot
// with an empty mask never runs.
func (s *ScheduleSlot) RunsOn(day time.Weekday) bool {
	switch s.Type {
	case SlotTypeDaily:
		return true
	case SlotTypeWeekly:
		for _, d := range s.WeekDays {
			if time.Weekday(d) == day {
				return true
			}
		}
	}
	return false
}

func (s *ScheduleSlot) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", s.Minute)
	}
	switch s.Type {
	case SlotTypeDaily:
	case SlotTypeWeekly:
		for _, d := range s.WeekDays {
			if d < 0 || d > 6 {
				return fmt.Errorf("week day %d out of range 0-6", d)
			}
		}
	default:
		return fmt.Errorf("unknown slot type %q", s.Type)
	}
	if s.Platform == "" {
		return errors.New("platform is required")
	}
	return nil
}

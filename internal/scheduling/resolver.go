package scheduling

import (
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

// HorizonDays bounds the search so a profile whose slots never match a day
// cannot loop forever.
const HorizonDays = 365

type Candidate struct {
	Slot        *models.ScheduleSlot
	Date        Date
	ScheduledAt time.Time // UTC
}

type Resolver struct {
	loc     *time.Location
	horizon int
}

func NewResolver(loc *time.Location, horizonDays int) *Resolver {
	if horizonDays <= 0 {
		horizonDays = HorizonDays
	}
	return &Resolver{loc: loc, horizon: horizonDays}
}

func (r *Resolver) Location() *time.Location { return r.loc }

// FindNext returns the earliest (slot, date) pair that is strictly after now
// and not present in occupied. Dates are scanned ascending from today in the
// display zone; within a day slots are tried in time-of-day order.
func (r *Resolver) FindNext(slots []*models.ScheduleSlot, occupied *Occupancy, now time.Time) (Candidate, bool) {
	ordered := eligible(slots)
	if len(ordered) == 0 {
		return Candidate{}, false
	}

	today := DateOf(now, r.loc)
	for offset := 0; offset < r.horizon; offset++ {
		day := today.AddDays(offset)
		weekday := day.Weekday()
		for _, s := range ordered {
			if !s.RunsOn(weekday) {
				continue
			}
			at := day.At(s.Hour, s.Minute, r.loc)
			if offset == 0 && !at.After(now) {
				continue
			}
			if occupied.Occupied(s.ID, day) {
				continue
			}
			return Candidate{Slot: s, Date: day, ScheduledAt: at.UTC()}, true
		}
	}
	return Candidate{}, false
}

// eligible drops inactive slots and weekly slots that can never match, then
// sorts the remainder by time of day.
func eligible(slots []*models.ScheduleSlot) []*models.ScheduleSlot {
	out := make([]*models.ScheduleSlot, 0, len(slots))
	for _, s := range slots {
		if s == nil || !s.IsActive {
			continue
		}
		if s.Type == models.SlotTypeWeekly && len(s.WeekDays) == 0 {
			continue
		}
		if s.Type != models.SlotTypeDaily && s.Type != models.SlotTypeWeekly {
			continue
		}
		out = append(out, s)
	}
	SortByTimeOfDay(out)
	return out
}

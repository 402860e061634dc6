package scheduling

import (
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

// Occupancy maps a slot id to the dates already reserved on it. It is built
// fresh for every planning call and never cached across requests.
type Occupancy struct {
	dates map[int64]map[Date]struct{}
}

func NewOccupancy() *Occupancy {
	return &Occupancy{dates: make(map[int64]map[Date]struct{})}
}

// BuildOccupancy indexes persisted reservations by their display-zone date.
func BuildOccupancy(reservations []models.Reservation, loc *time.Location) *Occupancy {
	o := NewOccupancy()
	for _, r := range reservations {
		o.Add(r.SlotID, DateOf(r.ScheduledAt, loc))
	}
	return o
}

func (o *Occupancy) Add(slotID int64, d Date) {
	set, ok := o.dates[slotID]
	if !ok {
		set = make(map[Date]struct{})
		o.dates[slotID] = set
	}
	set[d] = struct{}{}
}

func (o *Occupancy) Occupied(slotID int64, d Date) bool {
	if o == nil {
		return false
	}
	_, ok := o.dates[slotID][d]
	return ok
}

// Merge returns a new index holding the union of o and other. Neither input
// is modified.
func (o *Occupancy) Merge(other *Occupancy) *Occupancy {
	out := NewOccupancy()
	for _, src := range []*Occupancy{o, other} {
		if src == nil {
			continue
		}
		for slotID, set := range src.dates {
			for d := range set {
				out.Add(slotID, d)
			}
		}
	}
	return out
}

// Len returns the number of reserved (slot, date) pairs.
func (o *Occupancy) Len() int {
	if o == nil {
		return 0
	}
	n := 0
	for _, set := range o.dates {
		n += len(set)
	}
	return n
}

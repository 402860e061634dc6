package scheduling

import (
	"testing"
	"time"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

func TestBuildOccupancyUsesDisplayDate(t *testing.T) {
	t.Parallel()
	loc := testZone(t)

	// 20:00 UTC is 03:00 the next day in UTC+7.
	occ := BuildOccupancy([]models.Reservation{
		{ContentID: 1, SlotID: 10, ScheduledAt: time.Date(2024, time.March, 4, 20, 0, 0, 0, time.UTC)},
	}, loc)

	if !occ.Occupied(10, Date{2024, time.March, 5}) {
		t.Error("expected 2024-03-05 to be occupied")
	}
	if occ.Occupied(10, Date{2024, time.March, 4}) {
		t.Error("2024-03-04 should be free")
	}
}

func TestOccupancyMerge(t *testing.T) {
	t.Parallel()
	a := NewOccupancy()
	a.Add(1, Date{2024, time.May, 1})
	b := NewOccupancy()
	b.Add(1, Date{2024, time.May, 2})
	b.Add(2, Date{2024, time.May, 1})

	merged := a.Merge(b)
	if merged.Len() != 3 {
		t.Fatalf("merged len = %d, want 3", merged.Len())
	}
	if a.Len() != 1 || b.Len() != 2 {
		t.Error("merge modified its inputs")
	}
	if !merged.Occupied(2, Date{2024, time.May, 1}) {
		t.Error("missing pair from other")
	}
	if got := a.Merge(nil).Len(); got != 1 {
		t.Errorf("merge with nil len = %d, want 1", got)
	}
}

func TestNilOccupancyIsEmpty(t *testing.T) {
	t.Parallel()
	var o *Occupancy
	if o.Occupied(1, Date{2024, time.May, 1}) {
		t.Error("nil occupancy reported a reservation")
	}
	if o.Len() != 0 {
		t.Error("nil occupancy has non-zero len")
	}
}

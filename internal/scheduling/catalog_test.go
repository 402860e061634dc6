package scheduling

import (
	"testing"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

func TestCatalogActive(t *testing.T) {
	t.Parallel()
	inactive := dailySlot(4, 6, 0)
	inactive.IsActive = false
	other := dailySlot(5, 7, 0)
	other.ProfileID = 2
	yt := dailySlot(6, 5, 0)
	yt.Platform = models.PlatformYoutube

	c := NewCatalog([]*models.ScheduleSlot{dailySlot(1, 20, 0), dailySlot(2, 8, 30), dailySlot(3, 8, 15), inactive, other, yt, nil})

	got := c.Active(1, models.PlatformTiktok)
	want := []int64{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("got %d slots, want %d", len(got), len(want))
	}
	for i, s := range got {
		if s.ID != want[i] {
			t.Errorf("position %d: slot %d, want %d", i, s.ID, want[i])
		}
	}
	if _, ok := c.Lookup(4); !ok {
		t.Error("lookup should find inactive slots")
	}
	if c.Len() != 6 {
		t.Errorf("len = %d, want 6", c.Len())
	}
}

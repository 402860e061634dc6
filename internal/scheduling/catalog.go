package scheduling

import (
	"sort"

	"github.com/avataralabs/queuelabs-sub000/internal/models"
)

// Catalog is a read-only view over the slots of one or more profiles.
type Catalog struct {
	slots []*models.ScheduleSlot
	byID  map[int64]*models.ScheduleSlot
}

func NewCatalog(slots []*models.ScheduleSlot) *Catalog {
	c := &Catalog{byID: make(map[int64]*models.ScheduleSlot, len(slots))}
	for _, s := range slots {
		if s == nil {
			continue
		}
		c.slots = append(c.slots, s)
		c.byID[s.ID] = s
	}
	return c
}

func (c *Catalog) Lookup(id int64) (*models.ScheduleSlot, bool) {
	s, ok := c.byID[id]
	return s, ok
}

// Active returns the active slots of a profile on a platform, ordered by
// time of day. The order is the intra-day tie-break used by FindNext.
func (c *Catalog) Active(profileID int64, platform string) []*models.ScheduleSlot {
	var out []*models.ScheduleSlot
	for _, s := range c.slots {
		if !s.IsActive || s.ProfileID != profileID || s.Platform != platform {
			continue
		}
		out = append(out, s)
	}
	SortByTimeOfDay(out)
	return out
}

func (c *Catalog) IDs() []int64 {
	ids := make([]int64, 0, len(c.slots))
	for _, s := range c.slots {
		ids = append(ids, s.ID)
	}
	return ids
}

func (c *Catalog) Len() int { return len(c.slots) }

// SortByTimeOfDay orders by (hour, minute), then id for a stable result.
func SortByTimeOfDay(slots []*models.ScheduleSlot) {
	sort.SliceStable(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.Hour != b.Hour {
			return a.Hour < b.Hour
		}
		if a.Minute != b.Minute {
			return a.Minute < b.Minute
		}
		return a.ID < b.ID
	})
}

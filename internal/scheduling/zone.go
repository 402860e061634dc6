package scheduling

import (
	"fmt"
	"time"
)

// DefaultOffsetHours is UTC+7, the zone slot hours are entered in.
const DefaultOffsetHours = 7

// DisplayZone returns the fixed-offset zone used to interpret slot hour and
// minute values. Only positive offsets are accepted.
func DisplayZone(offsetHours int) (*time.Location, error) {
	if offsetHours <= 0 || offsetHours > 14 {
		return nil, fmt.Errorf("display zone offset must be in 1..14 hours, got %d", offsetHours)
	}
	return time.FixedZone(fmt.Sprintf("UTC+%d", offsetHours), offsetHours*3600), nil
}

// DayBounds returns the UTC instants [start, end) covering d in loc.
func DayBounds(d Date, loc *time.Location) (time.Time, time.Time) {
	start := d.At(0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

package scheduling

import (
	"testing"
	"time"
)

func TestDateAddDaysRollsOver(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from Date
		n    int
		want string
	}{
		{Date{2024, time.January, 31}, 1, "2024-02-01"},
		{Date{2024, time.February, 28}, 1, "2024-02-29"},
		{Date{2023, time.December, 31}, 1, "2024-01-01"},
		{Date{2024, time.March, 1}, -1, "2024-02-29"},
	}
	for _, tt := range tests {
		if got := tt.from.AddDays(tt.n).String(); got != tt.want {
			t.Errorf("%s + %d = %s, want %s", tt.from, tt.n, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	t.Parallel()
	d, err := ParseDate("2024-07-09")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Weekday() != time.Tuesday {
		t.Errorf("weekday = %v, want Tuesday", d.Weekday())
	}
	if _, err := ParseDate("09/07/2024"); err == nil {
		t.Error("expected error for bad layout")
	}
}

func TestDisplayZoneRejectsNonPositiveOffsets(t *testing.T) {
	t.Parallel()
	for _, h := range []int{0, -3, 15} {
		if _, err := DisplayZone(h); err == nil {
			t.Errorf("offset %d accepted", h)
		}
	}
}

func TestDayBounds(t *testing.T) {
	t.Parallel()
	loc := testZone(t)
	start, end := DayBounds(Date{2024, time.June, 10}, loc)
	if want := time.Date(2024, time.June, 9, 17, 0, 0, 0, time.UTC); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if end.Sub(start) != 24*time.Hour {
		t.Errorf("span = %v", end.Sub(start))
	}
}

package calendar

import (
	"testing"
	"time"
)

func weekdays() []time.Weekday {
	return []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}
}

func TestWindow(t *testing.T) {
	cal, err := New("09:00", "17:00", weekdays(), 30)
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	friday := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)
	start, end, ok := cal.Window(friday)
	if !ok {
		t.Fatal("expected friday to be open")
	}
	if start.Format(ClockLayout) != "09:00" || end.Format(ClockLayout) != "17:00" {
		t.Fatalf("unexpected window %s-%s", start, end)
	}

	if _, _, ok := cal.Window(friday.AddDate(0, 0, 1)); ok {
		t.Fatal("expected saturday to be closed")
	}
}

func TestContains(t *testing.T) {
	cal, _ := New("09:00", "17:00", weekdays(), 30)
	day := time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		start, end int
		want       bool
	}{
		{9 * 60, 9*60 + 30, true},
		{16*60 + 30, 17 * 60, true},
		{8*60 + 30, 9 * 60, false},
		{16*60 + 45, 17*60 + 15, false},
	}
	for _, tc := range cases {
		if got := cal.Contains(At(day, tc.start), At(day, tc.end)); got != tc.want {
			t.Fatalf("Contains(%s, %s) = %v", FormatClock(tc.start), FormatClock(tc.end), got)
		}
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New("17:00", "09:00", weekdays(), 30); err == nil {
		t.Fatal("expected error for inverted hours")
	}
	if _, err := New("09:00", "17:00", nil, 30); err == nil {
		t.Fatal("expected error without open days")
	}
	if _, err := New("9am", "17:00", weekdays(), 30); err == nil {
		t.Fatal("expected error for bad clock")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BUSINESS_OPEN", "10:00")
	t.Setenv("BUSINESS_CLOSE", "14:00")
	t.Setenv("BUSINESS_DAYS", "saturday,sun")
	t.Setenv("SLOT_MINUTES", "60")

	cal, err := FromEnv()
	if err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cal.Hours() != "10:00-14:00" || cal.SlotMinutes() != 60 {
		t.Fatalf("unexpected calendar %s", cal.Describe())
	}
	if !cal.OpenDay(time.Saturday) || cal.OpenDay(time.Monday) {
		t.Fatal("unexpected open days")
	}
}

func TestParseDateAndClock(t *testing.T) {
	if _, err := ParseDate("2024-02-30"); err == nil {
		t.Fatal("expected invalid date")
	}
	if _, err := ParseClock("7:00"); err == nil {
		t.Fatal("expected single digit hour to be rejected")
	}
	m, err := ParseClock("14:30")
	if err != nil || m != 14*60+30 {
		t.Fatalf("unexpected clock %d %v", m, err)
	}
}

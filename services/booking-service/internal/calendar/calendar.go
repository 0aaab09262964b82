// Package calendar holds the business calendar: opening hours, open weekdays
// and the default slot length. A Calendar is loaded once and never mutated.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/chatbook/libs/config"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time")
)

type Calendar struct {
	open  int // minutes after midnight
	close int
	days  [7]bool
	slot  int
}

// New builds a calendar from "HH:MM" bounds, the open weekdays and a slot length in minutes.
func New(open, close string, days []time.Weekday, slotMinutes int) (Calendar, error) {
	o, err := ParseClock(open)
	if err != nil {
		return Calendar{}, fmt.Errorf("open time: %w", err)
	}
	c, err := ParseClock(close)
	if err != nil {
		return Calendar{}, fmt.Errorf("close time: %w", err)
	}
	if c <= o {
		return Calendar{}, errors.New("close time must be after open time")
	}
	if slotMinutes <= 0 || slotMinutes > c-o {
		return Calendar{}, fmt.Errorf("slot minutes %d does not fit business hours", slotMinutes)
	}
	if len(days) == 0 {
		return Calendar{}, errors.New("at least one open day is required")
	}
	cal := Calendar{open: o, close: c, slot: slotMinutes}
	for _, d := range days {
		cal.days[d] = true
	}
	return cal, nil
}

func FromEnv() (Calendar, error) {
	slot, err := config.Int("SLOT_MINUTES", 30)
	if err != nil {
		return Calendar{}, err
	}
	days, err := ParseWeekdays(config.List("BUSINESS_DAYS", "mon,tue,wed,thu,fri"))
	if err != nil {
		return Calendar{}, err
	}
	return New(
		config.String("BUSINESS_OPEN", "09:00"),
		config.String("BUSINESS_CLOSE", "17:00"),
		days,
		slot,
	)
}

// Window returns the open interval for the given date, or ok=false on a closed day.
func (c Calendar) Window(date time.Time) (start, end time.Time, ok bool) {
	day := Day(date)
	if !c.days[day.Weekday()] {
		return time.Time{}, time.Time{}, false
	}
	return At(day, c.open), At(day, c.close), true
}

// Contains reports whether [start, end) lies inside the open window of start's date.
func (c Calendar) Contains(start, end time.Time) bool {
	ws, we, ok := c.Window(start)
	if !ok {
		return false
	}
	return !start.Before(ws) && !end.After(we) && end.After(start)
}

func (c Calendar) SlotMinutes() int { return c.slot }

func (c Calendar) OpenDay(d time.Weekday) bool { return c.days[d] }

// Hours renders the opening hours as "09:00-17:00".
func (c Calendar) Hours() string {
	return FormatClock(c.open) + "-" + FormatClock(c.close)
}

func (c Calendar) Describe() string {
	var open []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if c.days[d] {
			open = append(open, d.String()[:3])
		}
	}
	return fmt.Sprintf("open %s on %s, default slot %d minutes", c.Hours(), strings.Join(open, ", "), c.slot)
}

// ParseDate parses YYYY-MM-DD as a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// ParseClock parses HH:MM into minutes after midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	if len(s) != len(ClockLayout) {
		return 0, ErrInvalidClock
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, ErrInvalidClock
	}
	return t.Hour()*60 + t.Minute(), nil
}

func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Day truncates t to midnight of its UTC date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func At(date time.Time, minutes int) time.Time {
	return Day(date).Add(time.Duration(minutes) * time.Minute)
}

func ParseWeekdays(values []string) ([]time.Weekday, error) {
	names := map[string]time.Weekday{
		"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
		"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
	}
	var days []time.Weekday
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if len(key) > 3 {
			key = key[:3]
		}
		d, ok := names[key]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", v)
		}
		days = append(days, d)
	}
	return days, nil
}

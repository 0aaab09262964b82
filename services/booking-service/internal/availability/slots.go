package availability

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// String renders the interval as "HH:MM-HH:MM".
func (i Interval) String() string {
	return i.Start.UTC().Format("15:04") + "-" + i.End.UTC().Format("15:04")
}

// FreeGaps subtracts busy intervals from window and returns the remaining
// gaps in order. Busy intervals may be unsorted or extend past the window.
func FreeGaps(window Interval, busy []Interval) []Interval {
	if !window.End.After(window.Start) {
		return nil
	}
	sorted := append([]Interval(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var gaps []Interval
	cursor := window.Start
	for _, b := range sorted {
		if !b.Overlaps(window) {
			continue
		}
		if b.Start.After(cursor) {
			gaps = append(gaps, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if window.End.After(cursor) {
		gaps = append(gaps, Interval{Start: cursor, End: window.End})
	}
	return gaps
}

// Slice cuts each gap into consecutive units of d starting at the gap start.
// A remainder shorter than d is dropped.
func Slice(gaps []Interval, d time.Duration) []Interval {
	if d <= 0 {
		return nil
	}
	var slots []Interval
	for _, g := range gaps {
		for t := g.Start; !t.Add(d).After(g.End); t = t.Add(d) {
			slots = append(slots, Interval{Start: t, End: t.Add(d)})
		}
	}
	return slots
}

// FreeSlots slices the free gaps of window into units of d and skips slots
// starting before now. A zero now keeps every slot.
func FreeSlots(window Interval, busy []Interval, d time.Duration, now time.Time) []Interval {
	slots := Slice(FreeGaps(window, busy), d)
	if now.IsZero() {
		return slots
	}
	out := slots[:0]
	for _, s := range slots {
		if s.Start.Before(now) {
			continue
		}
		out = append(out, s)
	}
	return out
}

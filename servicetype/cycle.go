package servicetype

import "time"

// BillingCycle is the recurrence period of a service.
type BillingCycle string

const (
	CycleMonthly   BillingCycle = "monthly"
	CycleQuarterly BillingCycle = "quarterly"
	CycleYearly    BillingCycle = "yearly"
)

// Valid reports whether c is one of the known cycles.
func (c BillingCycle) Valid() bool {
	switch c {
	case CycleMonthly, CycleQuarterly, CycleYearly:
		return true
	}
	return false
}

// Months returns the length of the cycle in months. Unknown cycles bill monthly.
func (c BillingCycle) Months() int {
	switch c {
	case CycleQuarterly:
		return 3
	case CycleYearly:
		return 12
	default:
		return 1
	}
}

// NextBillingDate returns anchor advanced by one cycle. It is pure: the
// anchor is the only time input.
//
// The day of month is clamped to the last day of the target month, so
// Jan 31 + 1 month is Feb 28 (or 29) rather than Mar 3.
func NextBillingDate(cycle BillingCycle, anchor time.Time) time.Time {
	return addMonthsClamped(anchor, cycle.Months())
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, minute, sec := t.Clock()

	// Day 1 never overflows, so this lands in the target month.
	first := time.Date(year, month+time.Month(months), 1, hour, minute, sec, t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, minute, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

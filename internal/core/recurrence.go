package core

import "time"

// NextOccurrence returns the occurrence that follows d for the given
// frequency.
//
// Weekly rules advance exactly 7 days. Monthly rules keep the day of month
// and move to the following month, clamped to that month's last valid day
// when the day does not exist there (Jan 31 -> Feb 28/29, not Mar 2/3).
func NextOccurrence(d Date, f Frequency) Date {
	switch f {
	case Weekly:
		return Date{Time: d.AddDate(0, 0, 7)}
	case Monthly:
		year := d.Year()
		month := d.Month() + 1
		if month > 12 {
			month = 1
			year++
		}
		day := d.Day()
		if last := lastDayOfMonth(year, month); day > last {
			day = last
		}
		return NewDate(year, month, day)
	default:
		return d
	}
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year, month int) int {
	// Day zero of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

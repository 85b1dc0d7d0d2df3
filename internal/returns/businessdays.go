package returns

import "time"

// MaxBusinessDays is the return window for non-defective items.
const MaxBusinessDays = 10

// BusinessDaysBetween counts Monday to Friday calendar dates from start to end,
// both inclusive. Only the date part in each value's own location is used.
// It returns 0 when end falls on an earlier date than start.
func BusinessDaysBetween(start, end time.Time) int {
	from := dateOf(start)
	to := dateOf(end)
	if to.Before(from) {
		return 0
	}
	count := 0
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			count++
		}
	}
	return count
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

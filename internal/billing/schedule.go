package billing

import "time"

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// DateOnDay returns year/month/day, clamping day to the month's last day.
// Month values outside 1..12 roll over into adjacent years.
func DateOnDay(year int, month time.Month, day int) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	if day < 1 {
		day = 1
	}
	if last := daysIn(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, time.UTC)
}

// FirstDueDate returns the first date on or after start whose day is dueDay (clamped).
func FirstDueDate(start time.Time, dueDay int) time.Time {
	start = dateOnly(start)
	candidate := DateOnDay(start.Year(), start.Month(), dueDay)
	if candidate.Before(start) {
		candidate = DateOnDay(start.Year(), start.Month()+1, dueDay)
	}
	return candidate
}

// AddMonths moves d forward n calendar months and places it on dueDay (clamped).
func AddMonths(d time.Time, n, dueDay int) time.Time {
	return DateOnDay(d.Year(), d.Month()+time.Month(n), dueDay)
}

// MoveToDay keeps d's month and replaces the day with dueDay (clamped).
func MoveToDay(d time.Time, dueDay int) time.Time {
	return DateOnDay(d.Year(), d.Month(), dueDay)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

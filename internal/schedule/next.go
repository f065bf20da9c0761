package schedule

import "time"

// NextDaily returns the next instant hour:minute occurs strictly after
// now, in now's location. A candidate equal to now counts as passed and
// rolls to the next day. The result is always within (0, 24h] of now,
// DST shifts aside.
func NextDaily(now time.Time, hour, minute int) time.Time {
	cand := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !cand.After(now) {
		cand = time.Date(now.Year(), now.Month(), now.Day()+1, hour, minute, 0, 0, now.Location())
	}
	return cand
}

// NextWeekly returns the next instant weekday at hour:minute occurs
// strictly after now, in now's location. The result is always within
// (0, 7d] of now.
func NextWeekly(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	cand := time.Date(now.Year(), now.Month(), now.Day()+days, hour, minute, 0, 0, now.Location())
	if !cand.After(now) {
		cand = cand.AddDate(0, 0, 7)
	}
	return cand
}

package schedule

import "time"

// GraceWindow is how long after the expected instant a taking still counts
// for that dose.
const GraceWindow = 30 * time.Minute

// WithinGraceWindow reports whether t lies in [expected, expected+GraceWindow].
func WithinGraceWindow(expected, t time.Time) bool {
	return !t.Before(expected) && !t.After(expected.Add(GraceWindow))
}

// FindActualTaking returns the earliest candidate inside the grace window of
// expected, or nil. Candidates need not be sorted.
func FindActualTaking(expected time.Time, candidates []time.Time) *time.Time {
	var best *time.Time
	for i := range candidates {
		c := candidates[i]
		if !WithinGraceWindow(expected, c) {
			continue
		}
		if best == nil || c.Before(*best) {
			best = &c
		}
	}
	return best
}

// DayBounds returns the first and last instant of day's calendar day in loc.
func DayBounds(day time.Time, loc *time.Location) (start, end time.Time) {
	d := day.In(loc)
	start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	end = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
	return start, end
}

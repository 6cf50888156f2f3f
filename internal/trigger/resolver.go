// Package trigger turns a relative trigger specification into the absolute
// instant an action must fire.
package trigger

import (
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// Resolve computes the firing instant for spec measured from reference, doing
// all calendar arithmetic in loc. It reports false when the reference event has
// not happened yet.
//
// Days are added on the local calendar and the wall clock is applied after, so
// "3 days before" lands on the right local date across a DST change. A wall
// clock that does not exist on that date (spring forward gap) is normalized by
// time.Date. The result is always UTC.
func Resolve(reference *time.Time, spec domain.TriggerSpec, loc *time.Location) (time.Time, bool) {
	if reference == nil {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}
	local := reference.In(loc)
	y, m, d := local.Date()

	switch spec.Direction {
	case domain.DirectionBefore:
		d -= spec.DayOffset
	case domain.DirectionAfter:
		d += spec.DayOffset
	}

	hour, min, sec, nsec := local.Hour(), local.Minute(), local.Second(), local.Nanosecond()
	if spec.TimeOfDay != nil {
		hour, min, sec, nsec = spec.TimeOfDay.Hour, spec.TimeOfDay.Minute, 0, 0
	}
	return time.Date(y, m, d, hour, min, sec, nsec, loc).UTC(), true
}

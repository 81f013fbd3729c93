// Package clock defines the local day boundary used by quotas, caches and
// dedup scoping. The zone is a fixed UTC offset so that a "day" means the
// same thing regardless of where the process runs.
package clock

import (
	"fmt"
	"time"
)

type Clock struct {
	loc *time.Location

	// NowFunc is swappable in tests.
	NowFunc func() time.Time
}

// New creates a clock pinned to a fixed UTC offset in hours.
func New(offsetHours int) *Clock {
	name := fmt.Sprintf("UTC%+d", offsetHours)
	return &Clock{
		loc:     time.FixedZone(name, offsetHours*3600),
		NowFunc: time.Now,
	}
}

func (c *Clock) Location() *time.Location {
	return c.loc
}

// Now returns the current time in the configured zone.
func (c *Clock) Now() time.Time {
	return c.NowFunc().In(c.loc)
}

// Today returns the current date in the configured zone.
func (c *Clock) Today() (year int, month time.Month, day int) {
	return c.Now().Date()
}

// SameDay reports whether t falls on the current local day.
func (c *Clock) SameDay(t time.Time) bool {
	y1, m1, d1 := c.Today()
	y2, m2, d2 := t.In(c.loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// EndOfDay returns the last instant of the current local day.
func (c *Clock) EndOfDay() time.Time {
	now := c.Now()
	y, m, d := now.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, c.loc)
}

// Package clock supplies the server's notion of now. Play-time windows are
// evaluated on the weekday and wall time of the clock's location.
package clock

import "time"

// Clock provides time operations that can be mocked for testing
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock
type RealClock struct {
	loc *time.Location
}

// New creates a RealClock in the process's local time zone
func New() *RealClock {
	return NewIn(nil)
}

// NewIn creates a RealClock reporting times in loc; nil means time.Local
func NewIn(loc *time.Location) *RealClock {
	if loc == nil {
		loc = time.Local
	}
	return &RealClock{loc: loc}
}

// Now returns the current time in the clock's location
func (c *RealClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// Location returns the clock's time zone
func (c *RealClock) Location() *time.Location {
	return c.loc
}

// Package clock supplies timestamps in the configured application timezone.
package clock

import (
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
)

// DefaultTimezone is used when no zone is configured or the configured one
// cannot be loaded.
const DefaultTimezone = "UTC"

// Clock returns the current time in a fixed location.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

// New loads the named IANA zone. Unknown zones fall back to UTC with a
// warning.
func New(tzName string, logger *zap.SugaredLogger) *Clock {
	name := strings.TrimSpace(tzName)
	if name == "" {
		name = DefaultTimezone
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		if logger != nil {
			logger.Warnw("Timezone not found, falling back",
				"timezone", name,
				"fallback", DefaultTimezone,
				"error", err)
		}
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

// Fixed returns a clock frozen at t, reported in t's location.
func Fixed(t time.Time) *Clock {
	return &Clock{loc: t.Location(), now: func() time.Time { return t }}
}

// Now returns the current time in the clock's location.
func (c *Clock) Now() time.Time {
	return c.now().In(c.loc)
}

// Location returns the clock's zone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

package clock

import "time"

// Clock abstracts time retrieval so session expiry and timestamps are
// deterministic in tests.
type Clock interface {
	Now() time.Time
}

// Real returns the actual current time in UTC. Stored timestamps are
// compared as text by SQLite, so they must share one zone.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// OrReal returns c, or Real when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}

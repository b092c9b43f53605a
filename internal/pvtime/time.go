// Package pvtime provides the real-valued seconds timebase shared by every
// other package in this repository: media time (position within a file,
// starting at 0) and system time (wall-clock, used for scheduling
// presentation) are both represented the same way, a float64 number of
// seconds, and converted to monotonic durations only at the point a
// goroutine actually blocks.
package pvtime

import "time"

// Seconds is a real-valued seconds quantity with microsecond-or-finer
// precision. It is used for both media time and system time; callers keep
// the two separate by convention (see MediaTime/SystemTime below), not by
// the type system, matching the source design's single numeric timebase.
type Seconds float64

// Epsilon is the default tolerance used when comparing two Seconds values
// for "close enough" equality, e.g. when matching a media_time to a frame
// key. One microsecond is well below any plausible frame interval.
const Epsilon Seconds = 1e-6

// MediaTime and SystemTime are the two domains Seconds is used in. They are
// both plain Seconds; the aliases exist purely so signatures in this repo
// self-document which clock a given value is measured against.
type (
	MediaTime  = Seconds
	SystemTime = Seconds
)

// Duration converts a Seconds quantity to a time.Duration for use at a wait
// site (a timer, a context deadline, a condition-variable timed wait).
func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// FromDuration converts a time.Duration into Seconds.
func FromDuration(d time.Duration) Seconds {
	return Seconds(d.Seconds())
}

// Now returns the current wall-clock system time as Seconds since the Unix
// epoch. It is the one place this package touches the real clock; all other
// code receives SystemTime values as parameters, keeping tests independent
// of wall-clock time (spec.md's "no process-global" discipline, applied to
// time the same way it is applied to OS facades).
func Now() SystemTime {
	return FromUnixTime(time.Now())
}

// FromUnixTime converts a time.Time to Seconds since the Unix epoch.
func FromUnixTime(t time.Time) Seconds {
	return Seconds(float64(t.UnixNano()) / float64(time.Second))
}

// ToUnixTime converts Seconds since the Unix epoch back to a time.Time.
func (s Seconds) ToUnixTime() time.Time {
	return time.Unix(0, int64(float64(s)*float64(time.Second)))
}

// Close reports whether two Seconds values are within the given tolerance
// of each other. A zero or negative tolerance falls back to Epsilon.
func Close(a, b, tolerance Seconds) bool {
	if tolerance <= 0 {
		tolerance = Epsilon
	}
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// Clamp restricts s to the closed range [lo, hi]. If lo > hi the inputs are
// swapped so Clamp never panics on a degenerate range.
func Clamp(s, lo, hi Seconds) Seconds {
	if lo > hi {
		lo, hi = hi, lo
	}
	if s < lo {
		return lo
	}
	if s > hi {
		return hi
	}
	return s
}

// Max returns the larger of a and b.
func Max(a, b Seconds) Seconds {
	if a > b {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b Seconds) Seconds {
	if a < b {
		return a
	}
	return b
}

// String formats s the way time.Duration formats itself, e.g. "1.25s" or
// "250ms".
func (s Seconds) String() string {
	return time.Duration(float64(s) * float64(time.Second)).String()
}

package trace

import "time"

// Time in nanoseconds since the trace-local epoch.
type Time int64

func NewTime(t time.Duration) Time { return Time(t.Nanoseconds()) }

func (t Time) Std() time.Duration {
	return time.Duration(int64(t) * int64(time.Nanosecond))
}

// Millis converts to floating-point milliseconds for presentation.
func (t Time) Millis() float64 { return float64(t) / 1e6 }

// Seconds converts to floating-point seconds for presentation.
func (t Time) Seconds() float64 { return float64(t) / 1e9 }

func (t Time) Min(b Time) Time {
	if t < b {
		return t
	}
	return b
}

func (t Time) Max(b Time) Time {
	if t > b {
		return t
	}
	return b
}

type TimeRange struct {
	Start  Time
	Finish Time
}

var InvalidRange = TimeRange{
	Start:  1<<63 - 1,
	Finish: -1 << 63,
}

// EntireTrace spans every representable timestamp.
var EntireTrace = TimeRange{
	Start:  -1 << 63,
	Finish: 1<<63 - 1,
}

func (a TimeRange) Duration() Time {
	return a.Finish - a.Start
}

func (a TimeRange) Less(b TimeRange) bool {
	if a.Start == b.Start {
		return a.Finish < b.Finish
	}
	return a.Start < b.Start
}

func (a TimeRange) Expand(b TimeRange) TimeRange {
	return TimeRange{
		Start:  a.Start.Min(b.Start),
		Finish: a.Finish.Max(b.Finish),
	}
}

// Intersects reports whether the two ranges share any instant,
// endpoints included. Windows are inclusive on both ends throughout.
func (a TimeRange) Intersects(b TimeRange) bool {
	return a.Start <= b.Finish && b.Start <= a.Finish
}

// Contains reports whether b lies entirely within a.
func (a TimeRange) Contains(b TimeRange) bool {
	return a.Start <= b.Start && b.Finish <= a.Finish
}

// Pad widens the range by back on the left and forward on the right.
func (a TimeRange) Pad(back, forward Time) TimeRange {
	return TimeRange{Start: a.Start - back, Finish: a.Finish + forward}
}

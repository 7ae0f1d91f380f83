package store

import "time"

// Seq is an ordered sequence of values. It coerces to an ordered tuple of
// its elements, preserving order (spec: "ordered sequence").
type Seq []any

// Set is an unordered collection of values. It coerces to a sorted tuple
// of its coerced elements (spec: "set").
type Set []any

// Date is a calendar date with no time-of-day component, matching the
// Python original's use of datetime.date as a distinct value kind from
// datetime.datetime.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate truncates t to its calendar date in t's own location.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) toTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

var dateOrdinalEpoch = time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC)

// Ordinal returns the proleptic Gregorian ordinal day number, matching
// Python's date.toordinal() (Jan 1, year 1 is day 1).
func (d Date) Ordinal() int64 {
	return (d.toTime().Unix()-dateOrdinalEpoch.Unix())/86400 + 1
}

func (d Date) String() string {
	return d.toTime().Format("2006-01-02")
}

// Package dates implements calendar-day arithmetic for due dates and
// recurrence rules. A day is a time.Time at midnight UTC.
package dates

import (
	"errors"
	"fmt"
	"iter"
	"time"
)

// ErrInvalidDate is returned for strings that are not YYYY-MM-DD
var ErrInvalidDate = errors.New("invalid date")

// Unit is a recurrence period unit
type Unit string

const (
	Days   Unit = "days"
	Weeks  Unit = "weeks"
	Months Unit = "months"
	Years  Unit = "years"
)

// IsValid reports whether u is one of the supported units
func (u Unit) IsValid() bool {
	switch u {
	case Days, Weeks, Months, Years:
		return true
	}
	return false
}

// ParseUnit converts a string into a Unit
func ParseUnit(s string) (Unit, error) {
	u := Unit(s)
	if !u.IsValid() {
		return "", fmt.Errorf("unknown period unit %q", s)
	}
	return u, nil
}

// New returns the given calendar day
func New(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day, keeping t's own date components.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return New(y, m, d)
}

// Parse parses a YYYY-MM-DD string
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidDate, s, err)
	}
	return t, nil
}

// Format renders a day as YYYY-MM-DD
func Format(day time.Time) string {
	return day.Format(time.DateOnly)
}

// Add returns day + n units. Month and year arithmetic clamps to the last
// valid day of the resulting month (2024-01-31 + 1 month = 2024-02-29).
// It panics on an invalid unit; rules are validated on construction.
func Add(day time.Time, n int, unit Unit) time.Time {
	day = Day(day)
	switch unit {
	case Days:
		return day.AddDate(0, 0, n)
	case Weeks:
		return day.AddDate(0, 0, 7*n)
	case Months:
		return addMonths(day, n)
	case Years:
		return addMonths(day, 12*n)
	}
	panic(fmt.Sprintf("dates: unknown unit %q", unit))
}

func addMonths(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	total := int(m) - 1 + n
	year := y + floorDiv(total, 12)
	month := time.Month(total - floorDiv(total, 12)*12 + 1)
	if last := DaysIn(year, month); d > last {
		d = last
	}
	return New(year, month, d)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// DaysIn returns the number of days in the given month
func DaysIn(year int, month time.Month) int {
	return New(year, month+1, 0).Day()
}

// Sequence yields start + k*period units for k = 0, 1, 2, ..., skipping
// values before notBefore and stopping at the first value after notAfter.
// Every value is computed from start, so month-end clamping never drifts:
// 2024-08-31 monthly yields 09-30 and then 10-31.
// A non-positive period or an invalid unit yields nothing.
func Sequence(start time.Time, period int, unit Unit, notBefore, notAfter time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if period <= 0 || !unit.IsValid() {
			return
		}
		start = Day(start)
		notBefore, notAfter = Day(notBefore), Day(notAfter)
		for k := firstIndex(start, period, unit, notBefore); ; k++ {
			d := Add(start, k*period, unit)
			if d.After(notAfter) {
				return
			}
			if d.Before(notBefore) {
				continue
			}
			if !yield(d) {
				return
			}
		}
	}
}

// firstIndex returns a k no greater than the first index whose value is
// on or after notBefore, so long windows far from start are not walked.
func firstIndex(start time.Time, period int, unit Unit, notBefore time.Time) int {
	if !notBefore.After(start) {
		return 0
	}
	switch unit {
	case Days, Weeks:
		step := period
		if unit == Weeks {
			step *= 7
		}
		return DaysBetween(start, notBefore) / step
	default:
		step := period
		if unit == Years {
			step *= 12
		}
		months := (notBefore.Year()-start.Year())*12 + int(notBefore.Month()-start.Month())
		if k := months/step - 1; k > 0 {
			return k
		}
		return 0
	}
}

// DaysBetween returns the number of whole days from a to b
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Range yields every day from first through last inclusive
func Range(first, last time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		for d := Day(first); !d.After(Day(last)); d = d.AddDate(0, 0, 1) {
			if !yield(d) {
				return
			}
		}
	}
}

// NextDue computes the due date that follows a completed occurrence.
// Flexible rules count from today; otherwise from the previous due date,
// which may still lie in the past for a task overdue by more than a period.
func NextDue(previousDue, today time.Time, period int, unit Unit, flexible bool) time.Time {
	if flexible {
		return Add(today, period, unit)
	}
	return Add(previousDue, period, unit)
}

// Max returns the later of two days
func Max(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

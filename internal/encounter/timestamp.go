package encounter

import (
	"errors"
	"fmt"
	"time"
)

// TimestampLen is the number of ASCII digits in an encounter start time:
// YY MM DD WW HH MM SS, two BCD digits each.
const TimestampLen = 14

var (
	ErrNotDigit          = errors.New("encounter: timestamp byte is not a decimal digit")
	ErrTimestampComplete = errors.New("encounter: timestamp already complete")
)

// Timestamp is a start time received digit by digit off the wire. It is
// unset, partially filled, or complete.
type Timestamp struct {
	digits [TimestampLen]byte
	filled int
}

// ParseTimestamp builds a complete Timestamp from a 14 digit string.
func ParseTimestamp(s string) (Timestamp, error) {
	var ts Timestamp
	if len(s) != TimestampLen {
		return ts, fmt.Errorf("timestamp %q: want %d digits, got %d", s, TimestampLen, len(s))
	}
	for i := 0; i < len(s); i++ {
		if err := ts.Fill(s[i]); err != nil {
			return Timestamp{}, fmt.Errorf("timestamp %q: %w", s, err)
		}
	}
	return ts, nil
}

// TimestampFromTime formats t as a complete Timestamp. Years outside
// 2000-2099 cannot be represented.
func TimestampFromTime(t time.Time) (Timestamp, error) {
	if t.Year() < 2000 || t.Year() > 2099 {
		return Timestamp{}, fmt.Errorf("timestamp: year %d out of range", t.Year())
	}
	return ParseTimestamp(fmt.Sprintf("%02d%02d%02d%02d%02d%02d%02d",
		t.Year()%100, int(t.Month()), t.Day(), int(t.Weekday()), t.Hour(), t.Minute(), t.Second()))
}

// Fill stores b in the next unfilled slot.
func (t *Timestamp) Fill(b byte) error {
	if t.filled >= TimestampLen {
		return ErrTimestampComplete
	}
	if b < '0' || b > '9' {
		return ErrNotDigit
	}
	t.digits[t.filled] = b
	t.filled++
	return nil
}

// Filled returns how many digits have been received.
func (t Timestamp) Filled() int { return t.filled }

// Complete reports whether all 14 digits are present.
func (t Timestamp) Complete() bool { return t.filled == TimestampLen }

// Digits returns the digits received so far.
func (t Timestamp) Digits() string { return string(t.digits[:t.filled]) }

// Fields holds the decoded two-digit BCD pairs of a complete Timestamp.
type Fields struct {
	Year, Month, Day, DayOfWeek, Hour, Minute, Second int
}

// Fields decodes the digit pairs. Missing digits read as zero.
func (t Timestamp) Fields() Fields {
	pair := func(i int) int {
		v := 0
		for _, b := range t.digits[i : i+2] {
			v *= 10
			if b != 0 {
				v += int(b - '0')
			}
		}
		return v
	}
	return Fields{
		Year:      pair(0),
		Month:     pair(2),
		Day:       pair(4),
		DayOfWeek: pair(6),
		Hour:      pair(8),
		Minute:    pair(10),
		Second:    pair(12),
	}
}

// Time converts a complete Timestamp to a time.Time in loc, taking the year
// as 2000+YY. The day-of-week pair is not cross-checked against the date.
func (t Timestamp) Time(loc *time.Location) (time.Time, error) {
	if !t.Complete() {
		return time.Time{}, fmt.Errorf("timestamp %q is incomplete", t.Digits())
	}
	f := t.Fields()
	if f.Month < 1 || f.Month > 12 || f.Day < 1 || f.Day > 31 ||
		f.Hour > 23 || f.Minute > 59 || f.Second > 59 {
		return time.Time{}, fmt.Errorf("timestamp %q has out of range fields", t.Digits())
	}
	if loc == nil {
		loc = time.UTC
	}
	tm := time.Date(2000+f.Year, time.Month(f.Month), f.Day, f.Hour, f.Minute, f.Second, 0, loc)
	if tm.Day() != f.Day {
		return time.Time{}, fmt.Errorf("timestamp %q is not a calendar date", t.Digits())
	}
	return tm, nil
}

// Before orders two timestamps by their digits, which sort chronologically
// apart from the day-of-week pair.
func (t Timestamp) Before(o Timestamp) bool {
	a, b := t.Digits(), o.Digits()
	a = a[:min(6, len(a))] + a[min(8, len(a)):]
	b = b[:min(6, len(b))] + b[min(8, len(b)):]
	return a < b
}

func (t Timestamp) String() string {
	if !t.Complete() {
		return fmt.Sprintf("partial(%s)", t.Digits())
	}
	f := t.Fields()
	return fmt.Sprintf("20%02d-%02d-%02d %02d:%02d:%02d dow=%d",
		f.Year, f.Month, f.Day, f.Hour, f.Minute, f.Second, f.DayOfWeek)
}

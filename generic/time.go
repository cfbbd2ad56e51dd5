package generic

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// =============================================================================
// DATE - Calendar date, the unit every log entry is keyed on
// =============================================================================

// Date is a calendar day in UTC. The zero value means "no usable date".
type Date struct {
	Time time.Time
}

const isoDate = "2006-01-02"

// Layouts accepted by ParseDate, tried in order. Historical records carry
// ISO dates, US slash dates, full timestamps and spelled-out months.
var dateLayouts = []string{
	isoDate,
	"1/2/2006",
	"01/02/2006",
	"2006/01/02",
	"2006/1/2",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/06",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a time to its calendar day, keeping the wall-clock date.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate normalizes any supported encoding to a Date.
// The boolean is false for empty or unparseable input.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), true
		}
	}
	return Date{}, false
}

// MustParseDate is ParseDate without the flag; failures yield the zero Date.
func MustParseDate(s string) Date {
	d, _ := ParseDate(s)
	return d
}

func (d Date) Year() int         { return d.Time.Year() }
func (d Date) Month() time.Month { return d.Time.Month() }
func (d Date) Day() int          { return d.Time.Day() }
func (d Date) IsZero() bool      { return d.Time.IsZero() }

func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }
func (d Date) Equal(o Date) bool  { return d.Time.Equal(o.Time) }

func (d Date) AddDays(n int) Date  { return Date{Time: d.Time.AddDate(0, 0, n)} }
func (d Date) AddYears(n int) Date { return Date{Time: d.Time.AddDate(n, 0, 0)} }

// String returns the ISO form, or "" for the zero Date.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(isoDate)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON never fails on bad input: unparseable dates become the zero
// Date, which the fiscal calendar excludes from every year.
func (d *Date) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*d = Date{}
		return nil
	}
	*d = MustParseDate(s)
	return nil
}

// =============================================================================
// CLOCK - Injectable "today"
// =============================================================================

// Clock supplies the current time. Reward calculation depends on "today",
// so tests pin it with FixedClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the current calendar date according to c.
func Today(c Clock) Date {
	if c == nil {
		c = SystemClock{}
	}
	return DateOf(c.Now())
}

package calendar

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayFormat is the ISO-8601 representation of a Day.
const DayFormat = "2006-01-02"

// Day is a calendar day with no time of day.
//
// Day boundaries are always UTC: the Day of an instant is the UTC date of
// that instant, regardless of the process time zone. Grouping payments and
// sales by Day therefore gives the same result on every host.
type Day struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Day for the given year, month and day.
func New(year int, month time.Month, day int) Day {
	d := Day{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// Of returns the UTC day of t.
func Of(t time.Time) Day {
	return New(t.UTC().Date())
}

// Parse parses a Day in YYYY-MM-DD form.
func Parse(s string) (Day, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q want format %q: %w", s, DayFormat, err)
	}
	return New(t.Date()), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Day {
	d, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

func (d Day) Year() int { return d.y }

func (d Day) Month() time.Month { return d.m }

// Dom returns the day of the month.
func (d Day) Dom() int { return d.d }

// IsZero reports whether d is the zero Day.
func (d Day) IsZero() bool { return d == Day{} }

func (d Day) Before(x Day) bool { return d.Time().Before(x.Time()) }

func (d Day) After(x Day) bool { return d.Time().After(x.Time()) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or after x.
func (d Day) Compare(x Day) int { return d.Time().Compare(x.Time()) }

// String formats the day as YYYY-MM-DD.
func (d Day) String() string { return d.Time().Format(DayFormat) }

func (d *Day) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Day) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

var _ json.Marshaler = Day{}
var _ json.Unmarshaler = (*Day)(nil)

// Package hebdate is the boundary to the Hebrew calendar. Conversion,
// leap years and month lengths come from github.com/hebcal/hdate; this
// package only decides which Hebrew date a recurring anniversary lands on
// in a given year and exposes the result as a lazy sequence of Gregorian
// dates.
package hebdate

import (
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/hebcal/hdate"
)

// Month numbers follow hdate: Nisan is 1, Adar (or Adar I) is 12, Adar II is 13.
const (
	Nisan    = int(hdate.Nisan)
	Iyyar    = int(hdate.Iyyar)
	Tamuz    = int(hdate.Tamuz)
	Elul     = int(hdate.Elul)
	Tishrei  = int(hdate.Tishrei)
	Cheshvan = int(hdate.Cheshvan)
	Kislev   = int(hdate.Kislev)
	Tevet    = int(hdate.Tevet)
	Adar1    = int(hdate.Adar1)
	Adar2    = int(hdate.Adar2)
)

var monthNames = [...]string{
	"", "Nisan", "Iyyar", "Sivan", "Tamuz", "Av", "Elul",
	"Tishrei", "Cheshvan", "Kislev", "Tevet", "Sh'vat", "Adar", "Adar II",
}

// Kind selects the resolution rules for dates that do not exist every year.
type Kind int

const (
	// KindAnniversary covers birthdays, wedding anniversaries and anything
	// else that moves forward when its day is missing.
	KindAnniversary Kind = iota
	// KindYahrzeit stays in the original month when its day is missing.
	KindYahrzeit
)

// KindOf maps a free-form event type label onto resolution rules.
func KindOf(eventType string) Kind {
	if strings.EqualFold(strings.TrimSpace(eventType), "yahrzeit") {
		return KindYahrzeit
	}
	return KindAnniversary
}

// Date is a recurring Hebrew date. Year is the year the event first
// happened, or 0 when unknown.
type Date struct {
	Day   int
	Month int
	Year  int
}

var (
	ErrInvalidMonth = errors.New("hebdate: month must be between 1 (Nisan) and 13 (Adar II)")
	ErrInvalidDay   = errors.New("hebdate: day is out of range for month")
	ErrInvalidYear  = errors.New("hebdate: year must be positive")
)

// Validate reports whether d can name a real anniversary. Without a year
// only the absolute month length limits apply; with a year the date must
// exist in that year.
func Validate(d Date) error {
	if d.Month < Nisan || d.Month > Adar2 {
		return ErrInvalidMonth
	}
	if d.Year < 0 {
		return ErrInvalidYear
	}
	if d.Day < 1 || d.Day > 30 {
		return ErrInvalidDay
	}
	if d.Year == 0 {
		switch d.Month {
		case Iyyar, Tamuz, Elul, Tevet, Adar2:
			if d.Day > 29 {
				return ErrInvalidDay
			}
		}
		return nil
	}
	if d.Month == Adar2 && !hdate.IsLeapYear(d.Year) {
		return fmt.Errorf("%w: %d is not a leap year", ErrInvalidDay, d.Year)
	}
	if d.Day > hdate.DaysInMonth(hdate.HMonth(d.Month), d.Year) {
		return ErrInvalidDay
	}
	return nil
}

// MonthName returns the transliterated month name. Month 12 reads "Adar I"
// only when the year is known to be a leap year.
func MonthName(month, year int) string {
	if month < Nisan || month > Adar2 {
		return ""
	}
	if month == Adar1 && year > 0 && hdate.IsLeapYear(year) {
		return "Adar I"
	}
	return monthNames[month]
}

// Format renders d as "15 Nisan 5785", or "15 Nisan" without a year.
func Format(d Date) string {
	s := fmt.Sprintf("%d %s", d.Day, MonthName(d.Month, d.Year))
	if d.Year > 0 {
		s += fmt.Sprintf(" %d", d.Year)
	}
	return s
}

// YearOf returns the Hebrew year containing the calendar date of t.
func YearOf(t time.Time) int {
	return hdate.FromTime(t).Year()
}

// Anniversary returns the Gregorian date (UTC midnight) on which d is
// observed in Hebrew year hyear.
func Anniversary(d Date, kind Kind, hyear int) time.Time {
	month := d.Month
	leap := hdate.IsLeapYear(hyear)

	switch {
	case month == Adar2 && !leap:
		month = Adar1
	case month == Adar1 && leap && !(d.Year > 0 && hdate.IsLeapYear(d.Year)):
		// Plain Adar: birthdays move to Adar II, yahrzeits stay in Adar I.
		if kind != KindYahrzeit {
			month = Adar2
		}
	}

	day := d.Day
	length := hdate.DaysInMonth(hdate.HMonth(month), hyear)
	if day > length {
		last := dateOnly(hdate.New(hyear, hdate.HMonth(month), length).Gregorian())
		if kind == KindYahrzeit {
			return last
		}
		return last.AddDate(0, 0, 1)
	}
	return dateOnly(hdate.New(hyear, hdate.HMonth(month), day).Gregorian())
}

// Occurrences yields one Gregorian date per Hebrew year, starting with the
// year containing from and running for years years. Years before d.Year are
// skipped. The sequence is finite and can be ranged over repeatedly.
func Occurrences(d Date, kind Kind, from time.Time, years int) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		if years <= 0 || Validate(Date{Day: d.Day, Month: d.Month}) != nil {
			return
		}
		start := YearOf(from)
		for y := start; y < start+years; y++ {
			if d.Year > 0 && y < d.Year {
				continue
			}
			if !yield(Anniversary(d, kind, y)) {
				return
			}
		}
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

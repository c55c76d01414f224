package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"myhebrewdates/internal/hebdate"
	"myhebrewdates/internal/model"
)

const (
	maxNameLen      = 100
	maxEventTypeLen = 50
)

// CalendarInput is the owner-supplied state of a calendar and its full
// HebrewDate set.
type CalendarInput struct {
	Name        string            `json:"name"`
	Timezone    string            `json:"timezone"`
	HebrewDates []HebrewDateInput `json:"hebrew_dates"`
}

// HebrewDateInput is one child row. ID is zero for new rows.
type HebrewDateInput struct {
	ID        uint   `json:"id,omitempty"`
	Name      string `json:"name"`
	EventType string `json:"event_type"`
	Day       int    `json:"day"`
	Month     int    `json:"month"`
	Year      int    `json:"year,omitempty"`
}

// ValidationError maps input fields to messages. Field keys for children
// look like "hebrew_dates[2].day".
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "calendar: invalid input: " + strings.Join(parts, "; ")
}

// Validate checks the calendar and every HebrewDate before anything is
// written. known holds the ids of the calendar's existing children; nil
// means the calendar is new and no child may carry an id.
func Validate(in CalendarInput, known map[uint]bool) error {
	fields := map[string]string{}

	checkText(fields, "name", in.Name, maxNameLen)
	if in.Timezone == "" {
		fields["timezone"] = "required"
	} else if _, err := time.LoadLocation(in.Timezone); err != nil {
		fields["timezone"] = "unknown timezone"
	}

	seen := map[uint]bool{}
	for i, hd := range in.HebrewDates {
		prefix := fmt.Sprintf("hebrew_dates[%d].", i)
		checkText(fields, prefix+"name", hd.Name, maxNameLen)
		checkText(fields, prefix+"event_type", hd.EventType, maxEventTypeLen)

		if err := hebdate.Validate(hebdate.Date{Day: hd.Day, Month: hd.Month, Year: hd.Year}); err != nil {
			key := prefix + "day"
			switch {
			case hd.Month < hebdate.Nisan || hd.Month > hebdate.Adar2:
				key = prefix + "month"
			case hd.Year < 0:
				key = prefix + "year"
			}
			fields[key] = strings.TrimPrefix(err.Error(), "hebdate: ")
		}

		if hd.ID != 0 {
			switch {
			case !known[hd.ID]:
				fields[prefix+"id"] = "unknown hebrew date"
			case seen[hd.ID]:
				fields[prefix+"id"] = "duplicate hebrew date"
			}
			seen[hd.ID] = true
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkText(fields map[string]string, key, v string, max int) {
	switch {
	case v == "":
		fields[key] = "required"
	case utf8.RuneCountInString(v) > max:
		fields[key] = fmt.Sprintf("at most %d characters", max)
	}
}

func (in CalendarInput) trimmed() CalendarInput {
	out := CalendarInput{
		Name:        strings.TrimSpace(in.Name),
		Timezone:    strings.TrimSpace(in.Timezone),
		HebrewDates: make([]HebrewDateInput, len(in.HebrewDates)),
	}
	for i, hd := range in.HebrewDates {
		hd.Name = strings.TrimSpace(hd.Name)
		hd.EventType = strings.TrimSpace(hd.EventType)
		out.HebrewDates[i] = hd
	}
	return out
}

func (in CalendarInput) toModel() *model.Calendar {
	cal := &model.Calendar{
		Name:        in.Name,
		Timezone:    in.Timezone,
		HebrewDates: make([]model.HebrewDate, 0, len(in.HebrewDates)),
	}
	for _, hd := range in.HebrewDates {
		cal.HebrewDates = append(cal.HebrewDates, model.HebrewDate{
			ID:        hd.ID,
			Name:      hd.Name,
			EventType: hd.EventType,
			Day:       hd.Day,
			Month:     hd.Month,
			Year:      hd.Year,
		})
	}
	return cal
}

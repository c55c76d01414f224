package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	"myhebrewdates/internal/hebdate"
	"myhebrewdates/internal/model"
)

// DescriptionTrailerLen is the length of the source trailer appended to
// every event description: a newline followed by the 36-character share
// token. Parse strips exactly this many characters.
const DescriptionTrailerLen = 37

// Window bounds the occurrences written for each HebrewDate.
type Window struct {
	// From selects the first Hebrew year (the one containing From).
	From time.Time
	// Years is the number of Hebrew years to emit.
	Years int
}

// Generate builds the iCalendar document for cal and its HebrewDates.
//
// The output contains a header naming the calendar, one VTIMEZONE with the
// calendar's TZID and one all-day VEVENT per (HebrewDate, occurrence). The
// result depends only on cal and w, so regenerating an unchanged calendar
// yields identical bytes.
func Generate(cal *model.Calendar, w Window) string {
	doc := ical.NewCalendar()
	doc.SetProductId("-//" + cal.Name + "//MyHebrewDates.com//")
	doc.SetVersion("2.0")
	doc.SetMethod(ical.MethodPublish)
	doc.SetXWRCalName(cal.Name)
	doc.SetXWRTimezone(cal.Timezone)

	doc.AddTimezone(cal.Timezone)

	for _, hd := range cal.HebrewDates {
		description := hebdate.Format(hd.Date()) + sourceTrailer(cal.Token)
		for date := range hd.Occurrences(w.From, w.Years) {
			ev := doc.AddEvent(eventUID(cal.Token, hd.ID, date))
			ev.SetDtStampTime(hd.UpdatedAt)
			ev.SetSummary(hd.Summary())
			ev.SetDescription(description)
			ev.SetAllDayStartAt(date)
			ev.SetAllDayEndAt(date)
		}
	}

	return doc.Serialize()
}

func eventUID(token string, hebrewDateID uint, date time.Time) string {
	return fmt.Sprintf("%s-%d-%s", token, hebrewDateID, date.Format("20060102"))
}

func sourceTrailer(token string) string {
	return "\n" + token
}

package ics

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/model"
)

var (
	ErrEmptyFeed     = errors.New("ics: empty feed body")
	ErrMalformedFeed = errors.New("ics: malformed feed")
)

// Feed is a generated document read back for display.
type Feed struct {
	Name      string
	ProductID string
	Timezone  string
	// Events are sorted by start date.
	Events []model.Event
}

// Parse reads a document produced by Generate.
//
//   - Only VEVENT components become events; VTIMEZONE and header
//     properties fill the Feed fields.
//   - Descriptions lose their DescriptionTrailerLen-character trailer.
//   - An event without a usable DTSTART is logged and skipped.
func Parse(body string) (*Feed, error) {
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyFeed
	}

	doc, err := ical.ParseCalendar(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFeed, err)
	}

	feed := &Feed{Events: make([]model.Event, 0)}

	for _, p := range doc.CalendarProperties {
		switch ical.Property(p.IANAToken) {
		case ical.PropertyXWRCalName:
			feed.Name = p.Value
		case ical.PropertyProductId:
			feed.ProductID = p.Value
		}
	}

	for _, comp := range doc.Components {
		switch c := comp.(type) {
		case *ical.VTimezone:
			if p := c.GetProperty(ical.ComponentPropertyTzid); p != nil && feed.Timezone == "" {
				feed.Timezone = p.Value
			}
		case *ical.VEvent:
			ev, perr := parseVEvent(c)
			if perr != nil {
				appLog.Warn("ics vevent skipped", "err", perr.Error(), "uid", c.Id())
				continue
			}
			feed.Events = append(feed.Events, ev)
		}
	}

	sort.SliceStable(feed.Events, func(i, j int) bool {
		return feed.Events[i].Start.Before(feed.Events[j].Start)
	})

	return feed, nil
}

func parseVEvent(ve *ical.VEvent) (model.Event, error) {
	var out model.Event
	out.UID = ve.Id()

	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = TrimDescription(p.Value)
	}

	start, err := ve.GetAllDayStartAt()
	if err != nil {
		return out, fmt.Errorf("dtstart: %w", err)
	}
	out.Start = dateOnly(start)

	// DTEND is optional in RFC 5545; a missing one means a single day.
	out.End = out.Start
	if ve.HasProperty(ical.ComponentPropertyDtEnd) {
		end, err := ve.GetAllDayEndAt()
		if err != nil {
			return out, fmt.Errorf("dtend: %w", err)
		}
		out.End = dateOnly(end)
	}

	return out, nil
}

// TrimDescription drops the trailing DescriptionTrailerLen characters.
// Descriptions that are not longer than the trailer become empty.
func TrimDescription(s string) string {
	r := []rune(s)
	if len(r) <= DescriptionTrailerLen {
		return ""
	}
	return string(r[:len(r)-DescriptionTrailerLen])
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

package ics

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"myhebrewdates/internal/hebdate"
	"myhebrewdates/internal/model"
)

const testToken = "6f1c2f4e-8a7b-4c3d-9e2f-1a2b3c4d5e6f"

var testWindow = Window{From: time.Date(2024, time.October, 10, 0, 0, 0, 0, time.UTC), Years: 3}

func testCalendar() *model.Calendar {
	stamp := time.Date(2024, time.September, 1, 12, 0, 0, 0, time.UTC)
	return &model.Calendar{
		ID:       1,
		Token:    testToken,
		Name:     "Cohen family, Brooklyn",
		Timezone: "America/New_York",
		HebrewDates: []model.HebrewDate{
			{ID: 10, Name: "Sarah", EventType: model.EventTypeBirthday, Day: 15, Month: hebdate.Nisan, UpdatedAt: stamp},
			{ID: 11, Name: "Grandpa Moshe", EventType: model.EventTypeYahrzeit, Day: 14, Month: hebdate.Adar1, Year: 5770, UpdatedAt: stamp},
		},
	}
}

func TestGenerateParseRoundTrip(t *testing.T) {
	cal := testCalendar()
	body := Generate(cal, testWindow)

	feed, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	wantCount := 0
	for _, hd := range cal.HebrewDates {
		wantCount += len(slices.Collect(hd.Occurrences(testWindow.From, testWindow.Years)))
	}
	if wantCount != 6 {
		t.Fatalf("fixture should produce 6 occurrences, got %d", wantCount)
	}
	if len(feed.Events) != wantCount {
		t.Fatalf("parsed %d events, want %d", len(feed.Events), wantCount)
	}

	for _, hd := range cal.HebrewDates {
		for date := range hd.Occurrences(testWindow.From, testWindow.Years) {
			idx := slices.IndexFunc(feed.Events, func(e model.Event) bool {
				return e.Summary == hd.Summary() && e.Start.Equal(date)
			})
			if idx < 0 {
				t.Errorf("missing event %q on %s", hd.Summary(), date.Format(time.DateOnly))
				continue
			}
			ev := feed.Events[idx]
			if !ev.End.Equal(ev.Start) {
				t.Errorf("end %s != start %s", ev.End, ev.Start)
			}
			if want := hebdate.Format(hd.Date()); ev.Description != want {
				t.Errorf("description = %q, want %q", ev.Description, want)
			}
		}
	}

	if feed.Name != cal.Name {
		t.Errorf("feed name = %q", feed.Name)
	}
	if feed.Timezone != cal.Timezone {
		t.Errorf("feed timezone = %q", feed.Timezone)
	}
	if feed.ProductID != "-//Cohen family, Brooklyn//MyHebrewDates.com//" {
		t.Errorf("prodid = %q", feed.ProductID)
	}
}

func TestGenerateEmptyCalendar(t *testing.T) {
	cal := &model.Calendar{Token: testToken, Name: "Empty", Timezone: "Asia/Jerusalem"}
	body := Generate(cal, testWindow)

	for _, want := range []string{"BEGIN:VCALENDAR", "VERSION:2.0", "X-WR-CALNAME:Empty", "BEGIN:VTIMEZONE", "TZID:Asia/Jerusalem", "END:VCALENDAR"} {
		if !strings.Contains(body, want) {
			t.Errorf("document missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "BEGIN:VEVENT") {
		t.Errorf("empty calendar should have no events:\n%s", body)
	}

	feed, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(feed.Events) != 0 {
		t.Errorf("events = %v", feed.Events)
	}
}

func TestGenerateIsDeterministic(t *testing.T) {
	a := Generate(testCalendar(), testWindow)
	b := Generate(testCalendar(), testWindow)
	if a != b {
		t.Fatal("two generations of the same calendar differ")
	}
	if !strings.Contains(a, "DTSTART;VALUE=DATE:20250413") {
		t.Errorf("expected all-day passover birthday:\n%s", a)
	}
}

func TestParseSortsByStart(t *testing.T) {
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//MyHebrewDates.com//",
		"BEGIN:VEVENT",
		"UID:c",
		"SUMMARY:Third",
		"DTSTART;VALUE=DATE:20270101",
		"DTEND;VALUE=DATE:20270101",
		"END:VEVENT",
		"BEGIN:VTIMEZONE",
		"TZID:UTC",
		"END:VTIMEZONE",
		"BEGIN:VEVENT",
		"UID:a",
		"SUMMARY:First",
		"DTSTART;VALUE=DATE:20250101",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b",
		"SUMMARY:Second",
		"DTSTART;VALUE=DATE:20260101",
		"DTEND;VALUE=DATE:20260101",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	feed, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var got []string
	for i, ev := range feed.Events {
		got = append(got, ev.Summary)
		if i > 0 && ev.Start.Before(feed.Events[i-1].Start) {
			t.Errorf("event %d out of order", i)
		}
		if ev.Description != "" {
			t.Errorf("missing description should read as empty, got %q", ev.Description)
		}
	}
	if want := []string{"First", "Second", "Third"}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
	if !feed.Events[0].End.Equal(feed.Events[0].Start) {
		t.Error("missing DTEND should default to the start date")
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse("  \r\n"); !errors.Is(err, ErrEmptyFeed) {
		t.Errorf("empty body err = %v", err)
	}
	if _, err := Parse("BEGIN:VEVENT\r\nEND:VEVENT\r\n"); !errors.Is(err, ErrMalformedFeed) {
		t.Errorf("malformed body err = %v", err)
	}
}

func TestTrimDescription(t *testing.T) {
	trailer := "\n" + testToken
	if len([]rune(trailer)) != DescriptionTrailerLen {
		t.Fatalf("trailer length = %d", len([]rune(trailer)))
	}
	tests := map[string]string{
		"":                      "",
		"short":                 "",
		trailer:                 "",
		"15 Nisan" + trailer:    "15 Nisan",
		"י״ד אדר" + trailer:     "י״ד אדר",
		strings.Repeat("x", 40): "xxx",
	}
	for in, want := range tests {
		if got := TrimDescription(in); got != want {
			t.Errorf("TrimDescription(%q) = %q, want %q", in, got, want)
		}
	}
}

package model

import (
	"iter"
	"time"

	"myhebrewdates/internal/hebdate"
)

// Well-known event type labels. EventType is free text; these are the
// values offered by the UI.
const (
	EventTypeBirthday    = "Birthday"
	EventTypeAnniversary = "Anniversary"
	EventTypeYahrzeit    = "Yahrzeit"
	EventTypeOther       = "Other"
)

// User owns calendars.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:150;uniqueIndex;not null" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Calendar is a named collection of HebrewDates published under Token.
//
// FeedBody caches the last generated iCalendar document. FeedStale is set
// whenever the calendar or its children change and cleared when the feed
// is regenerated.
type Calendar struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Token    string `gorm:"size:36;uniqueIndex;not null" json:"token"`
	Name     string `gorm:"size:100;not null" json:"name"`
	Timezone string `gorm:"size:64;not null" json:"timezone"`
	OwnerID  uint   `gorm:"index;not null" json:"-"`

	FeedBody        *string    `gorm:"type:text" json:"-"`
	FeedStale       bool       `gorm:"not null;default:true" json:"feed_stale"`
	FeedGeneratedAt *time.Time `json:"feed_generated_at,omitempty"`

	HebrewDates []HebrewDate `gorm:"foreignKey:CalendarID;constraint:OnDelete:CASCADE" json:"hebrew_dates"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HebrewDate is a recurring event on a fixed Hebrew calendar date.
type HebrewDate struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	CalendarID uint   `gorm:"index;not null" json:"-"`
	Name       string `gorm:"size:100;not null" json:"name"`
	EventType  string `gorm:"size:50;not null" json:"event_type"`

	Day   int `gorm:"not null" json:"day"`
	Month int `gorm:"not null" json:"month"`
	// Year is the Hebrew year of the original event; 0 when unknown.
	Year int `gorm:"not null;default:0" json:"year"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Date returns the Hebrew date fields.
func (h HebrewDate) Date() hebdate.Date {
	return hebdate.Date{Day: h.Day, Month: h.Month, Year: h.Year}
}

// Summary is the event title used in feeds: "<event type> <name>".
func (h HebrewDate) Summary() string {
	return h.EventType + " " + h.Name
}

// Occurrences yields the Gregorian dates of this event for years Hebrew
// years starting with the one containing from.
func (h HebrewDate) Occurrences(from time.Time, years int) iter.Seq[time.Time] {
	return hebdate.Occurrences(h.Date(), hebdate.KindOf(h.EventType), from, years)
}

// Event is a single feed entry as read back from a generated document.
type Event struct {
	UID         string    `json:"uid"`
	Summary     string    `json:"summary"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
}

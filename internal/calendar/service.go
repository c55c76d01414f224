// Package calendar implements the calendar operations behind the HTTP
// handlers: validated create/update/delete for owners, feed generation
// with its write-through cache, the public share view and file download.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"myhebrewdates/internal/ics"
	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/model"
	"myhebrewdates/internal/store"
)

// Store is the persistence the service needs; *store.Store implements it.
type Store interface {
	ListCalendars(ctx context.Context, ownerID uint) ([]model.Calendar, error)
	CalendarForOwner(ctx context.Context, ownerID, id uint) (*model.Calendar, error)
	CalendarByToken(ctx context.Context, token string) (*model.Calendar, error)
	CreateCalendar(ctx context.Context, cal *model.Calendar) error
	UpdateCalendar(ctx context.Context, ownerID uint, cal *model.Calendar) error
	DeleteCalendar(ctx context.Context, ownerID, id uint) error
	SaveFeed(ctx context.Context, calendarID uint, body string, generatedAt time.Time) error
	CalendarsNeedingRefresh(ctx context.Context, notBefore time.Time) ([]model.Calendar, error)
}

// Options configures a Service.
type Options struct {
	// HorizonYears is the number of Hebrew years each feed covers.
	HorizonYears int
	// SiteDomain is the public host used in feed URLs.
	SiteDomain string
	// DefaultTimezone applies when an input names no timezone.
	DefaultTimezone string
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Service holds no per-request state and is safe for concurrent use.
type Service struct {
	store Store
	opts  Options
}

func NewService(st Store, opts Options) *Service {
	if opts.HorizonYears <= 0 {
		opts.HorizonYears = 10
	}
	if opts.DefaultTimezone == "" {
		opts.DefaultTimezone = "UTC"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: st, opts: opts}
}

// Links are the public addresses of a calendar.
type Links struct {
	ShareURL  string `json:"share_url"`
	FeedURL   string `json:"feed_url"`
	WebcalURL string `json:"webcal_url"`
}

// LinksFor builds the public URLs for a share token.
func (s *Service) LinksFor(token string) Links {
	return Links{
		ShareURL:  "https://" + s.opts.SiteDomain + "/" + token + "/",
		FeedURL:   "https://" + s.opts.SiteDomain + "/" + token + ".ics",
		WebcalURL: "webcal://" + s.opts.SiteDomain + "/" + token + ".ics",
	}
}

// List returns the owner's calendars.
func (s *Service) List(ctx context.Context, ownerID uint) ([]model.Calendar, error) {
	return s.store.ListCalendars(ctx, ownerID)
}

// Get returns one of the owner's calendars with its HebrewDates.
func (s *Service) Get(ctx context.Context, ownerID, id uint) (*model.Calendar, error) {
	return s.store.CalendarForOwner(ctx, ownerID, id)
}

// Create validates the whole aggregate, then stores the calendar and its
// HebrewDates in one transaction. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, ownerID uint, in CalendarInput) (*model.Calendar, error) {
	in = s.normalize(in)
	if err := Validate(in, nil); err != nil {
		return nil, err
	}

	cal := in.toModel()
	cal.OwnerID = ownerID
	if err := s.store.CreateCalendar(ctx, cal); err != nil {
		return nil, err
	}
	appLog.Info("calendar created", "owner_id", ownerID, "calendar_id", cal.ID, "hebrew_dates", len(cal.HebrewDates))
	return cal, nil
}

// Update validates the aggregate against the owner's existing calendar and
// replaces its attributes and HebrewDate set in one transaction.
func (s *Service) Update(ctx context.Context, ownerID, id uint, in CalendarInput) (*model.Calendar, error) {
	existing, err := s.store.CalendarForOwner(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	known := make(map[uint]bool, len(existing.HebrewDates))
	for _, hd := range existing.HebrewDates {
		known[hd.ID] = true
	}

	in = s.normalize(in)
	if err := Validate(in, known); err != nil {
		return nil, err
	}

	cal := in.toModel()
	cal.ID = existing.ID
	cal.OwnerID = ownerID
	if err := s.store.UpdateCalendar(ctx, ownerID, cal); err != nil {
		if errors.Is(err, store.ErrUnknownChild) {
			return nil, &ValidationError{Fields: map[string]string{"hebrew_dates": "unknown hebrew date"}}
		}
		return nil, err
	}
	appLog.Info("calendar updated", "owner_id", ownerID, "calendar_id", id, "hebrew_dates", len(cal.HebrewDates))
	return s.store.CalendarForOwner(ctx, ownerID, id)
}

// Delete removes the owner's calendar and its HebrewDates.
func (s *Service) Delete(ctx context.Context, ownerID, id uint) error {
	if err := s.store.DeleteCalendar(ctx, ownerID, id); err != nil {
		return err
	}
	appLog.Info("calendar deleted", "owner_id", ownerID, "calendar_id", id)
	return nil
}

// Generate builds cal's feed, stores it as the calendar's cached body and
// clears the stale flag. cal must carry its HebrewDates.
func (s *Service) Generate(ctx context.Context, cal *model.Calendar) (string, error) {
	now := s.opts.Now()
	body := ics.Generate(cal, ics.Window{
		From:  now.In(locationOrUTC(cal.Timezone)),
		Years: s.opts.HorizonYears,
	})

	generatedAt := now.UTC()
	if err := s.store.SaveFeed(ctx, cal.ID, body, generatedAt); err != nil {
		return "", fmt.Errorf("calendar: store feed: %w", err)
	}
	cal.FeedBody = &body
	cal.FeedStale = false
	cal.FeedGeneratedAt = &generatedAt

	appLog.Debug("feed generated", "calendar_id", cal.ID, "bytes", len(body))
	return body, nil
}

// Download is a feed file ready to be served.
type Download struct {
	Filename string
	Body     string
}

// Download regenerates the feed for token unconditionally and returns it
// as a file named "<token>.ics".
func (s *Service) Download(ctx context.Context, token string) (*Download, error) {
	cal, err := s.store.CalendarByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	body, err := s.Generate(ctx, cal)
	if err != nil {
		return nil, err
	}
	return &Download{Filename: cal.Token + ".ics", Body: body}, nil
}

// ShareView is the public, read-only rendering of a calendar.
type ShareView struct {
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Token    string `json:"token"`
	Links
	Events []model.Event `json:"events"`
	// FeedError is set when the cached feed could not be read; Events is
	// then empty.
	FeedError string `json:"feed_error,omitempty"`
}

// Share reads the calendar's cached feed back into a sorted event list.
// A missing or stale cache is regenerated first.
func (s *Service) Share(ctx context.Context, token string) (*ShareView, error) {
	cal, err := s.store.CalendarByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	view := &ShareView{
		Name:     cal.Name,
		Timezone: cal.Timezone,
		Token:    cal.Token,
		Links:    s.LinksFor(cal.Token),
		Events:   []model.Event{},
	}

	body := ""
	if cal.FeedBody != nil {
		body = *cal.FeedBody
	}
	if cal.FeedBody == nil || cal.FeedStale {
		if body, err = s.Generate(ctx, cal); err != nil {
			return nil, err
		}
	}

	feed, err := ics.Parse(body)
	if err != nil {
		appLog.Error("share view: cached feed unreadable", err, "calendar_id", cal.ID)
		view.FeedError = "calendar feed could not be read"
		return view, nil
	}
	view.Events = feed.Events
	return view, nil
}

// RefreshStale regenerates every calendar whose cache is stale, missing, or
// was built before today (UTC). Failures are logged and joined; the batch
// continues past them.
func (s *Service) RefreshStale(ctx context.Context) (int, error) {
	now := s.opts.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	cals, err := s.store.CalendarsNeedingRefresh(ctx, today)
	if err != nil {
		return 0, err
	}

	var errs []error
	refreshed := 0
	for i := range cals {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.Generate(ctx, &cals[i]); err != nil {
			appLog.Error("feed refresh failed", err, "calendar_id", cals[i].ID)
			errs = append(errs, err)
			continue
		}
		refreshed++
	}
	appLog.Info("feed refresh completed", "candidates", len(cals), "refreshed", refreshed, "failed", len(errs))
	return refreshed, errors.Join(errs...)
}

func (s *Service) normalize(in CalendarInput) CalendarInput {
	in = in.trimmed()
	if in.Timezone == "" {
		in.Timezone = s.opts.DefaultTimezone
	}
	return in
}

func locationOrUTC(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

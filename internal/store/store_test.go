package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"myhebrewdates/internal/config"
	"myhebrewdates/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func newCalendar(owner uint) *model.Calendar {
	return &model.Calendar{
		Name:     "Family",
		Timezone: "America/New_York",
		OwnerID:  owner,
		HebrewDates: []model.HebrewDate{
			{Name: "Sarah", EventType: model.EventTypeBirthday, Day: 15, Month: 1},
			{Name: "Moshe", EventType: model.EventTypeYahrzeit, Day: 3, Month: 7},
		},
	}
}

func TestCreateUserConflict(t *testing.T) {
	s := openTestStore(t)
	mustUser(t, s, "dana")
	if _, err := s.CreateUser(context.Background(), "dana", "x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if _, err := s.UserByUsername(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateAndLoadCalendar(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := mustUser(t, s, "dana")

	cal := newCalendar(owner.ID)
	if err := s.CreateCalendar(ctx, cal); err != nil {
		t.Fatalf("CreateCalendar: %v", err)
	}
	if cal.ID == 0 || cal.Token == "" {
		t.Fatalf("ids not assigned: %+v", cal)
	}

	got, err := s.CalendarForOwner(ctx, owner.ID, cal.ID)
	if err != nil {
		t.Fatalf("CalendarForOwner: %v", err)
	}
	if len(got.HebrewDates) != 2 || got.HebrewDates[0].Name != "Sarah" {
		t.Fatalf("children = %+v", got.HebrewDates)
	}
	if !got.FeedStale || got.FeedBody != nil {
		t.Errorf("new calendar should start stale without a feed")
	}

	byToken, err := s.CalendarByToken(ctx, cal.Token)
	if err != nil || byToken.ID != cal.ID {
		t.Fatalf("CalendarByToken = %v, %v", byToken, err)
	}
	if _, err := s.CalendarByToken(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bad token err = %v", err)
	}
	if _, err := s.CalendarByToken(ctx, "00000000-0000-4000-8000-000000000000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown token err = %v", err)
	}
}

func TestOwnershipIsolation(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	dana := mustUser(t, s, "dana")
	eli := mustUser(t, s, "eli")

	cal := newCalendar(dana.ID)
	if err := s.CreateCalendar(ctx, cal); err != nil {
		t.Fatal(err)
	}

	if list, err := s.ListCalendars(ctx, eli.ID); err != nil || len(list) != 0 {
		t.Errorf("eli list = %v, %v", list, err)
	}
	if _, err := s.CalendarForOwner(ctx, eli.ID, cal.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("eli get err = %v", err)
	}
	upd := &model.Calendar{ID: cal.ID, Name: "Hijacked", Timezone: "UTC"}
	if err := s.UpdateCalendar(ctx, eli.ID, upd); !errors.Is(err, ErrNotFound) {
		t.Errorf("eli update err = %v", err)
	}
	if err := s.DeleteCalendar(ctx, eli.ID, cal.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("eli delete err = %v", err)
	}

	got, err := s.CalendarForOwner(ctx, dana.ID, cal.ID)
	if err != nil || got.Name != "Family" || len(got.HebrewDates) != 2 {
		t.Fatalf("dana's calendar changed: %+v, %v", got, err)
	}
}

func TestUpdateCalendarReplacesChildren(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := mustUser(t, s, "dana")
	cal := newCalendar(owner.ID)
	if err := s.CreateCalendar(ctx, cal); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFeed(ctx, cal.ID, "BEGIN:VCALENDAR", time.Now()); err != nil {
		t.Fatal(err)
	}

	kept := cal.HebrewDates[0]
	kept.Name = "Sarah Leah"
	upd := &model.Calendar{
		ID:       cal.ID,
		Name:     "Renamed",
		Timezone: "Asia/Jerusalem",
		HebrewDates: []model.HebrewDate{
			kept,
			{Name: "Avi", EventType: model.EventTypeAnniversary, Day: 1, Month: 2},
		},
	}
	if err := s.UpdateCalendar(ctx, owner.ID, upd); err != nil {
		t.Fatalf("UpdateCalendar: %v", err)
	}

	got, err := s.CalendarForOwner(ctx, owner.ID, cal.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Renamed" || got.Timezone != "Asia/Jerusalem" {
		t.Errorf("attributes not updated: %+v", got)
	}
	if !got.FeedStale {
		t.Error("update should mark the feed stale")
	}
	if len(got.HebrewDates) != 2 {
		t.Fatalf("children = %+v", got.HebrewDates)
	}
	if got.HebrewDates[0].ID != kept.ID || got.HebrewDates[0].Name != "Sarah Leah" {
		t.Errorf("kept child = %+v", got.HebrewDates[0])
	}
	if got.HebrewDates[1].Name != "Avi" {
		t.Errorf("new child = %+v", got.HebrewDates[1])
	}

	// An empty set removes every child.
	upd = &model.Calendar{ID: cal.ID, Name: "Renamed", Timezone: "UTC"}
	if err := s.UpdateCalendar(ctx, owner.ID, upd); err != nil {
		t.Fatal(err)
	}
	if n, _ := s.CountHebrewDates(ctx, cal.ID); n != 0 {
		t.Errorf("children left = %d", n)
	}
}

func TestUpdateCalendarRollsBackOnForeignChild(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := mustUser(t, s, "dana")
	a := newCalendar(owner.ID)
	b := newCalendar(owner.ID)
	if err := s.CreateCalendar(ctx, a); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateCalendar(ctx, b); err != nil {
		t.Fatal(err)
	}

	upd := &model.Calendar{
		ID:       a.ID,
		Name:     "Should not stick",
		Timezone: "UTC",
		HebrewDates: []model.HebrewDate{
			b.HebrewDates[0],
		},
	}
	if err := s.UpdateCalendar(ctx, owner.ID, upd); !errors.Is(err, ErrUnknownChild) {
		t.Fatalf("err = %v, want ErrUnknownChild", err)
	}

	got, err := s.CalendarForOwner(ctx, owner.ID, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Family" || len(got.HebrewDates) != 2 {
		t.Errorf("transaction leaked: %+v", got)
	}
}

func TestDeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := mustUser(t, s, "dana")
	cal := newCalendar(owner.ID)
	if err := s.CreateCalendar(ctx, cal); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteCalendar(ctx, owner.ID, cal.ID); err != nil {
		t.Fatalf("DeleteCalendar: %v", err)
	}
	if n, _ := s.CountHebrewDates(ctx, cal.ID); n != 0 {
		t.Errorf("orphans = %d", n)
	}
	if _, err := s.CalendarByToken(ctx, cal.Token); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted calendar still reachable: %v", err)
	}
}

func TestCalendarsNeedingRefresh(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	owner := mustUser(t, s, "dana")

	fresh := newCalendar(owner.ID)
	old := newCalendar(owner.ID)
	never := newCalendar(owner.ID)
	for _, c := range []*model.Calendar{fresh, old, never} {
		if err := s.CreateCalendar(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	today := time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
	if err := s.SaveFeed(ctx, fresh.ID, "body", today.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveFeed(ctx, old.ID, "body", today.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}

	got, err := s.CalendarsNeedingRefresh(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	ids := map[uint]bool{}
	for _, c := range got {
		ids[c.ID] = true
	}
	if ids[fresh.ID] || !ids[old.ID] || !ids[never.ID] {
		t.Errorf("refresh set = %v", ids)
	}
	if err := s.SaveFeed(ctx, 9999, "x", today); !errors.Is(err, ErrNotFound) {
		t.Errorf("SaveFeed unknown id err = %v", err)
	}
}

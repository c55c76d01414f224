// Package store persists users, calendars and their Hebrew dates with gorm.
//
// Every calendar query that takes an owner id is scoped to that owner, so a
// calendar owned by someone else is indistinguishable from a missing one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"myhebrewdates/internal/config"
	appLog "myhebrewdates/internal/log"
	"myhebrewdates/internal/model"
)

var (
	// ErrNotFound is returned for missing rows and rows owned by another user.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("store: conflict")
	// ErrUnknownChild is returned when an update names a HebrewDate id that
	// does not belong to the calendar.
	ErrUnknownChild = errors.New("store: hebrew date does not belong to calendar")
)

// Store wraps a gorm connection.
type Store struct {
	db *gorm.DB
}

// Open connects using the configured driver and runs migrations.
//
//   - sqlite: pure-Go driver; the DSN is a file path whose parent directory
//     is created if needed.
//   - postgres: a lib/pq *sql.DB handed to gorm's postgres dialector.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	gcfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		sqlDB, oerr := sql.Open("postgres", cfg.DSN)
		if oerr != nil {
			return nil, fmt.Errorf("store: open postgres: %w", oerr)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		db, err = gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gcfg)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			if mkErr := os.MkdirAll(dir, 0o700); mkErr != nil {
				return nil, fmt.Errorf("store: create db dir: %w", mkErr)
			}
		}
		db, err = gorm.Open(sqlite.Open(cfg.DSN+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), gcfg)
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Driver, err)
	}

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	appLog.Info("store opened", "driver", cfg.Driver)
	return s, nil
}

// New wraps an existing gorm handle without migrating.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.User{}, &model.Calendar{}, &model.HebrewDate{}); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// CreateUser inserts a user with an already-hashed password.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (*model.User, error) {
	var existing int64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("store: count users: %w", err)
	}
	if existing > 0 {
		return nil, fmt.Errorf("%w: username %q taken", ErrConflict, username)
	}

	u := &model.User{Username: username, PasswordHash: passwordHash}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("store: create user: %w", err)
	}
	return u, nil
}

// UserByUsername looks up a user for credential checks.
func (s *Store) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// UserByID looks up a user from a verified token subject.
func (s *Store) UserByID(ctx context.Context, id uint) (*model.User, error) {
	var u model.User
	if err := s.db.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

// ListCalendars returns the owner's calendars ordered by name, without children.
func (s *Store) ListCalendars(ctx context.Context, ownerID uint) ([]model.Calendar, error) {
	var cals []model.Calendar
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name, id").
		Find(&cals).Error
	if err != nil {
		return nil, fmt.Errorf("store: list calendars: %w", err)
	}
	return cals, nil
}

// CalendarForOwner loads a calendar with its HebrewDates if ownerID owns it.
func (s *Store) CalendarForOwner(ctx context.Context, ownerID, id uint) (*model.Calendar, error) {
	var cal model.Calendar
	err := s.withChildren(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&cal).Error
	if err != nil {
		return nil, translate(err)
	}
	return &cal, nil
}

// CalendarByToken loads a calendar with its HebrewDates by share token.
// Tokens that are not UUIDs never reach the database.
func (s *Store) CalendarByToken(ctx context.Context, token string) (*model.Calendar, error) {
	if _, err := uuid.Parse(token); err != nil {
		return nil, ErrNotFound
	}
	var cal model.Calendar
	if err := s.withChildren(ctx).Where("token = ?", token).First(&cal).Error; err != nil {
		return nil, translate(err)
	}
	return &cal, nil
}

// CreateCalendar inserts cal and its HebrewDates in one transaction. A
// share token is assigned when cal.Token is empty.
func (s *Store) CreateCalendar(ctx context.Context, cal *model.Calendar) error {
	if cal.Token == "" {
		cal.Token = uuid.NewString()
	}
	cal.ID = 0
	cal.FeedBody = nil
	cal.FeedStale = true
	cal.FeedGeneratedAt = nil

	children := cal.HebrewDates
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(cal).Error; err != nil {
			return fmt.Errorf("store: create calendar: %w", err)
		}
		for i := range children {
			children[i].ID = 0
			children[i].CalendarID = cal.ID
			if err := tx.Create(&children[i]).Error; err != nil {
				return fmt.Errorf("store: create hebrew date: %w", err)
			}
		}
		cal.HebrewDates = children
		return nil
	})
}

// UpdateCalendar replaces the owner's calendar attributes and its full
// HebrewDate set in one transaction:
//
//   - children with an ID are updated and must already belong to the calendar
//   - children without an ID are created
//   - existing children missing from cal.HebrewDates are deleted
//
// The cached feed is marked stale.
func (s *Store) UpdateCalendar(ctx context.Context, ownerID uint, cal *model.Calendar) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Calendar{}).
			Where("id = ? AND owner_id = ?", cal.ID, ownerID).
			Updates(map[string]any{
				"name":       cal.Name,
				"timezone":   cal.Timezone,
				"feed_stale": true,
			})
		if res.Error != nil {
			return fmt.Errorf("store: update calendar: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		keep := make([]uint, 0, len(cal.HebrewDates))
		for i := range cal.HebrewDates {
			hd := &cal.HebrewDates[i]
			hd.CalendarID = cal.ID
			if hd.ID == 0 {
				if err := tx.Create(hd).Error; err != nil {
					return fmt.Errorf("store: create hebrew date: %w", err)
				}
				keep = append(keep, hd.ID)
				continue
			}
			res := tx.Model(&model.HebrewDate{}).
				Where("id = ? AND calendar_id = ?", hd.ID, cal.ID).
				Updates(map[string]any{
					"name":       hd.Name,
					"event_type": hd.EventType,
					"day":        hd.Day,
					"month":      hd.Month,
					"year":       hd.Year,
				})
			if res.Error != nil {
				return fmt.Errorf("store: update hebrew date: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: id %d", ErrUnknownChild, hd.ID)
			}
			keep = append(keep, hd.ID)
		}

		del := tx.Where("calendar_id = ?", cal.ID)
		if len(keep) > 0 {
			del = del.Where("id NOT IN ?", keep)
		}
		if err := del.Delete(&model.HebrewDate{}).Error; err != nil {
			return fmt.Errorf("store: prune hebrew dates: %w", err)
		}
		return nil
	})
}

// DeleteCalendar removes the owner's calendar and its HebrewDates.
func (s *Store) DeleteCalendar(ctx context.Context, ownerID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cal model.Calendar
		if err := tx.Select("id").Where("id = ? AND owner_id = ?", id, ownerID).First(&cal).Error; err != nil {
			return translate(err)
		}
		if err := tx.Where("calendar_id = ?", cal.ID).Delete(&model.HebrewDate{}).Error; err != nil {
			return fmt.Errorf("store: delete hebrew dates: %w", err)
		}
		if err := tx.Delete(&model.Calendar{}, cal.ID).Error; err != nil {
			return fmt.Errorf("store: delete calendar: %w", err)
		}
		return nil
	})
}

// SaveFeed stores a freshly generated document on the calendar and clears
// the stale flag.
func (s *Store) SaveFeed(ctx context.Context, calendarID uint, body string, generatedAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Calendar{}).
		Where("id = ?", calendarID).
		UpdateColumns(map[string]any{
			"feed_body":         body,
			"feed_stale":        false,
			"feed_generated_at": generatedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("store: save feed: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CalendarsNeedingRefresh returns calendars, with children, whose cached
// feed is stale, missing, or older than notBefore.
func (s *Store) CalendarsNeedingRefresh(ctx context.Context, notBefore time.Time) ([]model.Calendar, error) {
	var cals []model.Calendar
	err := s.withChildren(ctx).
		Where("feed_stale = ? OR feed_body IS NULL OR feed_generated_at IS NULL OR feed_generated_at < ?", true, notBefore).
		Order("id").
		Find(&cals).Error
	if err != nil {
		return nil, fmt.Errorf("store: calendars needing refresh: %w", err)
	}
	return cals, nil
}

// CountHebrewDates counts children of a calendar regardless of owner.
func (s *Store) CountHebrewDates(ctx context.Context, calendarID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.HebrewDate{}).Where("calendar_id = ?", calendarID).Count(&n).Error
	return n, err
}

func (s *Store) withChildren(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("HebrewDates", func(db *gorm.DB) *gorm.DB {
		return db.Order("id")
	})
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("store: %w", err)
}

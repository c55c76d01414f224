// Package schedule runs the periodic feed refresh.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "myhebrewdates/internal/log"
)

// Refresher regenerates outdated feeds. *calendar.Service implements it.
type Refresher interface {
	RefreshStale(ctx context.Context) (int, error)
}

// Scheduler triggers Refresher on a cron spec. Overlapping runs are skipped.
type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	timeout   time.Duration
}

// New parses spec (standard five-field cron syntax, evaluated in UTC) and
// registers the refresh job. timeout bounds a single run; zero means none.
func New(spec string, r Refresher, timeout time.Duration) (*Scheduler, error) {
	s := &Scheduler{refresher: r, timeout: timeout}

	logger := cronLogger{}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("schedule: invalid refresh spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("refresh scheduled", "next", e.Next.Format(time.RFC3339))
	}
}

// Stop prevents new runs and waits for a running one to finish or ctx to
// expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("refresh still running at shutdown")
	}
}

// RunOnce performs one refresh synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.refresher.RefreshStale(ctx)
}

func (s *Scheduler) run() {
	start := time.Now()
	n, err := s.RunOnce(context.Background())
	if err != nil {
		appLog.Error("scheduled refresh finished with errors", err, "refreshed", n)
		return
	}
	appLog.Debug("scheduled refresh done", "refreshed", n, "took", time.Since(start).String())
}

// cronLogger routes cron's internal logging into the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, kv ...any) {
	appLog.Debug("cron: "+msg, kv...)
}

func (cronLogger) Error(err error, msg string, kv ...any) {
	appLog.Error("cron: "+msg, err, kv...)
}

// Package scheduler wires up the cron entry that triggers the daily fetch
// run and applies the missed-trigger catch-up policy.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"jobdigest/internal/model"
)

// catchUpThreshold is how late a trigger may fire before it is treated as a
// missed alarm. A machine waking from suspend replays the trigger; if jobs
// were already fetched today the replayed run is skipped.
const catchUpThreshold = 2 * time.Hour

// TriggerFunc receives the scheduled and actual fire times so the policy
// layer can tell an on-time trigger from a late replay.
type TriggerFunc func(ctx context.Context, scheduled, actual time.Time)

type statsReader interface {
	GetDailyStats(ctx context.Context) (model.DailyStats, error)
}

// Scheduler wraps robfig/cron with a single daily entry.
type Scheduler struct {
	cron    *cron.Cron
	store   statsReader
	logger  *zap.Logger
	trigger TriggerFunc
	now     func() time.Time

	mu    sync.Mutex
	entry cron.EntryID
	next  time.Time
}

func New(store statsReader, logger *zap.Logger, trigger TriggerFunc) *Scheduler {
	return &Scheduler{
		cron:    cron.New(),
		store:   store,
		logger:  logger,
		trigger: trigger,
		now:     time.Now,
	}
}

// ScheduleDailyRun (re)registers the daily trigger at hour:minute local time
// and returns the next fire time. An existing entry is replaced.
func (s *Scheduler) ScheduleDailyRun(hour, minute int) (time.Time, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return time.Time{}, fmt.Errorf("invalid schedule time %02d:%02d", hour, minute)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry != 0 {
		s.cron.Remove(s.entry)
		s.entry = 0
	}

	spec := fmt.Sprintf("%d %d * * *", minute, hour)
	entry, err := s.cron.AddFunc(spec, s.fire)
	if err != nil {
		return time.Time{}, fmt.Errorf("schedule daily run: %w", err)
	}
	s.entry = entry
	s.next = nextOccurrence(s.now(), hour, minute)

	s.logger.Info("daily fetch scheduled",
		zap.Int("hour", hour),
		zap.Int("minute", minute),
		zap.Time("next_run", s.next),
	)
	return s.next, nil
}

// VerifyScheduleExists reports whether the daily entry is registered,
// recreating it from settings when it has gone missing. Returns true when
// the entry already existed.
func (s *Scheduler) VerifyScheduleExists(hour, minute int) (bool, error) {
	s.mu.Lock()
	exists := s.entry != 0
	s.mu.Unlock()

	if exists {
		return true, nil
	}

	s.logger.Warn("daily fetch schedule missing, recreating")
	_, err := s.ScheduleDailyRun(hour, minute)
	return false, err
}

// NextRunTime returns the next scheduled fire time, zero when nothing is
// scheduled.
func (s *Scheduler) NextRunTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entry == 0 {
		return time.Time{}
	}
	if entry := s.cron.Entry(s.entry); !entry.Next.IsZero() {
		return entry.Next
	}
	return s.next
}

// Start begins firing scheduled triggers. Entries may be added before or
// after starting.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and returns after any in-flight trigger finished.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// fire runs on every cron tick: it applies the catch-up policy and then hands
// off to the trigger callback.
func (s *Scheduler) fire() {
	actual := s.now()

	s.mu.Lock()
	scheduled := s.next
	if s.entry != 0 {
		if entry := s.cron.Entry(s.entry); !entry.Next.IsZero() {
			s.next = entry.Next
		}
	}
	s.mu.Unlock()
	if scheduled.IsZero() {
		scheduled = actual
	}

	skip, err := s.shouldSkipCatchUp(context.Background(), scheduled, actual)
	if err != nil {
		s.logger.Error("catch-up check failed", zap.Error(err))
	}
	if skip {
		return
	}

	s.trigger(context.Background(), scheduled, actual)
}

// shouldSkipCatchUp implements the missed-alarm rule: a trigger firing more
// than two hours late on a day that already fetched jobs is dropped.
func (s *Scheduler) shouldSkipCatchUp(ctx context.Context, scheduled, actual time.Time) (bool, error) {
	late := actual.Sub(scheduled)
	if late <= catchUpThreshold {
		return false, nil
	}

	stats, err := s.store.GetDailyStats(ctx)
	if err != nil {
		return false, err
	}
	if stats.JobsFetched > 0 {
		s.logger.Info("skipping late trigger, jobs already fetched today",
			zap.Duration("late_by", late),
			zap.Int("jobs_fetched", stats.JobsFetched),
		)
		return true, nil
	}

	return false, nil
}

// nextOccurrence computes the next hour:minute after now, rolling to
// tomorrow when the time already passed today.
func nextOccurrence(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

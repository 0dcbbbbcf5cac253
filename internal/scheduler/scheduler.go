// Package scheduler runs the optional daily send batch at a configured
// local time.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a scheduled task. The context is cancelled when the job's time
// budget runs out or the scheduler stops.
type Job func(ctx context.Context) error

// jobTimeout bounds a single scheduled batch. Long enough for a full
// daily quota at the maximum interval.
const jobTimeout = 12 * time.Hour

// Scheduler wraps cron with named jobs keyed by what they do.
type Scheduler struct {
	cron *cron.Cron
	jobs map[string]cron.EntryID
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		jobs: make(map[string]cron.EntryID),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// AddDailyJob schedules job once a day at timeStr ("HH:MM", local time).
// Re-adding a name replaces the previous schedule.
func (s *Scheduler) AddDailyJob(name, timeStr string, job Job) error {
	t, err := time.Parse("15:04", timeStr)
	if err != nil {
		return fmt.Errorf("invalid schedule time %q: %w", timeStr, err)
	}
	schedule := fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour())

	s.RemoveJob(name)

	entryID, err := s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()

		start := time.Now()
		s.log.Info().Str("job", name).Msg("scheduled job starting")
		if err := job(ctx); err != nil {
			s.log.Error().Str("job", name).Err(err).Msg("scheduled job failed")
			return
		}
		s.log.Info().Str("job", name).
			Dur("elapsed", time.Since(start)).Msg("scheduled job done")
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.jobs[name] = entryID
	s.log.Info().Str("job", name).Str("schedule", schedule).Msg("job scheduled")
	return nil
}

// RemoveJob unschedules a job if present.
func (s *Scheduler) RemoveJob(name string) {
	if entryID, ok := s.jobs[name]; ok {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
	}
}

// NextRun reports when the named job fires next, if scheduled.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	entryID, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

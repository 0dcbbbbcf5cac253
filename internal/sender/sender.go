// Package sender runs the per-user DM state machine and the batch loop
// over the roster: cap check, randomized wait, navigate, optional follow,
// compose, type, submit.
package sender

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"xautodm/internal/config"
	"xautodm/internal/store"
	"xautodm/internal/types"
)

// Counter is the persisted daily send counter boundary, satisfied by
// store.Store. The counter is only ever incremented after a confirmed
// send, so cancellation can never corrupt it.
type Counter interface {
	SentOn(ctx context.Context, day string) (int, error)
	IncrementSent(ctx context.Context, day string) (int, error)
}

// Sender performs single DM attempts.
type Sender struct {
	counter   Counter
	newDriver DriverFactory
	settings  config.SendConfig

	// sleep and now are injectable for tests; defaults wrap time.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
	rng   *rand.Rand
	log   zerolog.Logger
}

// New creates a Sender. newDriver is invoked once per attempt so every
// attempt runs against a fresh session acquisition.
func New(counter Counter, newDriver DriverFactory, settings config.SendConfig, log zerolog.Logger) *Sender {
	return &Sender{
		counter:   counter,
		newDriver: newDriver,
		settings:  settings,
		sleep:     sleepCtx,
		now:       time.Now,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		log:       log.With().Str("component", "sender").Logger(),
	}
}

// today returns the counter key for the current calendar day.
func (s *Sender) today() string {
	return s.now().Format(store.DayFormat)
}

// Remaining returns how many sends the daily cap still allows today.
func (s *Sender) Remaining(ctx context.Context) (int, error) {
	count, err := s.counter.SentOn(ctx, s.today())
	if err != nil {
		return 0, fmt.Errorf("read daily counter: %w", err)
	}
	left := s.settings.DailyLimit - count
	if left < 0 {
		left = 0
	}
	return left, nil
}

// SendOne runs one pass of the send state machine for entry. The returned
// status is the outcome to record: success (counter incremented), followed
// (follow done, messaging incomplete) or error. When err wraps
// ErrCancelled or ErrDailyCapReached the caller must not record any
// status change.
func (s *Sender) SendOne(ctx context.Context, entry types.RosterEntry, template string) (types.Status, error) {
	day := s.today()

	count, err := s.counter.SentOn(ctx, day)
	if err != nil {
		return types.StatusError, fmt.Errorf("read daily counter: %w", err)
	}
	if count >= s.settings.DailyLimit {
		s.log.Warn().Int("count", count).Int("limit", s.settings.DailyLimit).
			Msg("daily limit reached, refusing to send")
		return "", fmt.Errorf("%w (%d/%d)", ErrDailyCapReached, count, s.settings.DailyLimit)
	}

	message := RenderTemplate(template, entry.Nickname)
	s.log.Info().Str("handle", entry.Handle).Int("slot", count+1).
		Int("limit", s.settings.DailyLimit).Msg("starting send attempt")

	wait := RandomInterval(s.settings.IntervalMin, s.settings.IntervalMax, s.rng)
	s.log.Info().Dur("wait", wait).Msg("waiting before send")
	if err := s.sleep(ctx, wait); err != nil {
		return "", s.cancelled(err)
	}

	drv, err := s.newDriver(ctx)
	if err != nil {
		if cerr := s.cancelled(err); errors.Is(cerr, ErrCancelled) {
			return "", cerr
		}
		return types.StatusError, fmt.Errorf("acquire session: %w", err)
	}
	defer drv.Close()

	return s.drive(ctx, drv, entry, message)
}

// drive runs the browser-facing steps against an acquired driver.
func (s *Sender) drive(ctx context.Context, drv Driver, entry types.RosterEntry, message string) (types.Status, error) {
	if err := drv.NavigateProfile(ctx, entry.Handle); err != nil {
		if cerr := s.cancelled(err); errors.Is(cerr, ErrCancelled) {
			return "", cerr
		}
		return types.StatusError, err
	}

	followed := false
	if s.settings.FollowBeforeDM {
		state, err := drv.Follow(ctx, entry.Handle)
		if err != nil {
			if cerr := s.cancelled(err); errors.Is(cerr, ErrCancelled) {
				return "", cerr
			}
			return types.StatusError, err
		}
		switch state {
		case FollowClicked, AlreadyFollowing:
			// Already following counts as a completed follow step.
			followed = true
		case FollowNotFound:
			return types.StatusError, fmt.Errorf("%w for @%s", ErrFollowControlNotFound, entry.Handle)
		}
	}

	// Partial progress is never discarded: once the follow step succeeded,
	// later failures resolve to followed instead of error.
	partial := func(err error) (types.Status, error) {
		if cerr := s.cancelled(err); errors.Is(cerr, ErrCancelled) {
			return "", cerr
		}
		if followed {
			return types.StatusFollowed, err
		}
		return types.StatusError, err
	}

	if err := drv.OpenComposer(ctx); err != nil {
		return partial(err)
	}
	if err := drv.TypeMessage(ctx, message); err != nil {
		return partial(err)
	}
	if err := drv.Submit(ctx); err != nil {
		return partial(err)
	}

	newCount, err := s.counter.IncrementSent(ctx, s.today())
	if err != nil {
		// The message went out; losing the increment is worse than
		// reporting the storage failure.
		return types.StatusSuccess, fmt.Errorf("persist daily counter: %w", err)
	}

	s.log.Info().Str("handle", entry.Handle).Int("count", newCount).
		Int("limit", s.settings.DailyLimit).Msg("message sent")
	return types.StatusSuccess, nil
}

// cancelled maps context cancellation onto ErrCancelled so callers can
// distinguish operator aborts from failures. Other errors pass through.
func (s *Sender) cancelled(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return err
}

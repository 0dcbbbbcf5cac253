package sender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"xautodm/internal/roster"
	"xautodm/internal/types"
)

// interAttemptPause separates consecutive attempts on top of the
// randomized per-attempt interval, to avoid back-to-back triggering of
// platform rate limits.
const interAttemptPause = 2 * time.Second

// Result summarizes one batch run.
type Result struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Followed  int `json:"followed"`
	Errors    int `json:"errors"`
	// Stopped names why the batch ended early: "cancelled",
	// "daily limit reached", or "" for a full run.
	Stopped string `json:"stopped,omitempty"`
}

// Batch processes the selected, eligible roster entries sequentially
// through the per-user state machine. One logical worker: DMs are never
// sent concurrently.
type Batch struct {
	roster *roster.Roster
	sender *Sender
	pause  time.Duration
	log    zerolog.Logger
}

// NewBatch creates a batch orchestrator over the roster and sender.
func NewBatch(r *roster.Roster, s *Sender, log zerolog.Logger) *Batch {
	return &Batch{
		roster: r,
		sender: s,
		pause:  interAttemptPause,
		log:    log.With().Str("component", "batch").Logger(),
	}
}

// Run processes eligible entries up to the remaining daily allowance. The
// cap is re-checked before every attempt since the counter is persisted
// and could have moved. Per-user failures do not stop the batch;
// cancellation and the daily cap do. Completed attempts are never rolled
// back on cancellation, and a cancelled attempt writes no status.
func (b *Batch) Run(ctx context.Context) (Result, error) {
	var res Result

	eligible := b.roster.Eligible(b.sender.settings.SkipExisting)
	if len(eligible) == 0 {
		b.log.Info().Msg("no eligible users selected for sending")
		return res, nil
	}

	remaining, err := b.sender.Remaining(ctx)
	if err != nil {
		return res, err
	}
	if remaining == 0 {
		res.Stopped = "daily limit reached"
		return res, fmt.Errorf("%w before batch start", ErrDailyCapReached)
	}
	if len(eligible) > remaining {
		b.log.Info().Int("eligible", len(eligible)).Int("remaining", remaining).
			Msg("trimming batch to remaining daily allowance")
		eligible = eligible[:remaining]
	}

	b.log.Info().Int("targets", len(eligible)).Msg("send batch starting")

	for i, entry := range eligible {
		template := PickTemplate(b.sender.settings.Messages, b.sender.rng)
		if template == "" {
			return res, errors.New("no usable message template configured")
		}

		status, err := b.sender.SendOne(ctx, entry, template)
		switch {
		case errors.Is(err, ErrCancelled):
			b.log.Warn().Str("handle", entry.Handle).Msg("batch cancelled")
			res.Stopped = "cancelled"
			return res, err
		case errors.Is(err, ErrDailyCapReached):
			res.Stopped = "daily limit reached"
			return res, err
		}

		res.Attempted++
		if uerr := b.roster.UpdateStatus(ctx, entry.ID, status); uerr != nil {
			b.log.Error().Err(uerr).Str("handle", entry.Handle).Msg("failed to record status")
		}

		switch status {
		case types.StatusSuccess:
			res.Sent++
			b.log.Info().Str("handle", entry.Handle).Msg("send succeeded")
		case types.StatusFollowed:
			res.Followed++
			b.log.Warn().Err(err).Str("handle", entry.Handle).Msg("followed but message incomplete")
		default:
			res.Errors++
			b.log.Error().Err(err).Str("handle", entry.Handle).Msg("send failed")
		}

		if i < len(eligible)-1 {
			if err := b.sender.sleep(ctx, b.pause); err != nil {
				res.Stopped = "cancelled"
				return res, b.sender.cancelled(err)
			}
		}
	}

	b.log.Info().Int("sent", res.Sent).Int("followed", res.Followed).
		Int("errors", res.Errors).Msg("send batch finished")
	return res, nil
}

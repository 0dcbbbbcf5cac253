package sender

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xautodm/internal/roster"
	"xautodm/internal/types"
)

func newTestRoster(t *testing.T, entries ...types.RosterEntry) *roster.Roster {
	t.Helper()
	r := roster.New(nil, zerolog.Nop())
	_, _, err := r.ImportEntries(context.Background(), entries)
	require.NoError(t, err)
	return r
}

func pendingEntry(handle string) types.RosterEntry {
	return types.RosterEntry{
		Handle:   handle,
		Name:     handle,
		Nickname: handle,
		Status:   types.StatusPending,
		Selected: true,
	}
}

func statusOf(t *testing.T, r *roster.Roster, handle string) types.Status {
	t.Helper()
	for _, e := range r.Entries() {
		if e.Handle == handle {
			return e.Status
		}
	}
	t.Fatalf("no entry for %s", handle)
	return ""
}

func TestBatchSingleEntryUnderCap(t *testing.T) {
	settings := defaultSettings()
	settings.IntervalMin, settings.IntervalMax = 5, 5
	settings.DailyLimit = 1

	drv := &fakeDriver{followState: FollowClicked}
	h := newHarness(settings, drv)
	r := newTestRoster(t, pendingEntry("taro"))
	batch := NewBatch(r, h.sender, zerolog.Nop())

	res, err := batch.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Attempted: 1, Sent: 1}, res)
	assert.Equal(t, types.StatusSuccess, statusOf(t, r, "taro"))
	assert.Equal(t, 1, h.counter.counts["2026-08-29"])
	require.Len(t, h.waits, 1, "single attempt has no inter-attempt pause")
	assert.Equal(t, 5*time.Second, h.waits[0])

	// The cap is now consumed; a second batch refuses before any attempt.
	res, err = batch.Run(context.Background())
	assert.ErrorIs(t, err, ErrDailyCapReached)
	assert.Equal(t, "daily limit reached", res.Stopped)
	assert.Zero(t, res.Attempted)
}

func TestBatchTrimsToRemainingAllowance(t *testing.T) {
	settings := defaultSettings()
	settings.DailyLimit = 2

	h := newHarness(settings,
		&fakeDriver{followState: FollowClicked},
		&fakeDriver{followState: FollowClicked},
	)
	h.counter.counts["2026-08-29"] = 1

	r := newTestRoster(t, pendingEntry("a"), pendingEntry("b"), pendingEntry("c"))
	res, err := NewBatch(r, h.sender, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempted, "only the remaining allowance is attempted")
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, types.StatusSuccess, statusOf(t, r, "a"))
	assert.Equal(t, types.StatusPending, statusOf(t, r, "b"))
}

func TestBatchContinuesPastPerUserFailure(t *testing.T) {
	h := newHarness(defaultSettings(),
		&fakeDriver{navErr: errors.New("profile not found")},
		&fakeDriver{followState: FollowClicked},
	)
	r := newTestRoster(t, pendingEntry("bad"), pendingEntry("good"))

	res, err := NewBatch(r, h.sender, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Attempted: 2, Sent: 1, Errors: 1}, res)
	assert.Equal(t, types.StatusError, statusOf(t, r, "bad"))
	assert.Equal(t, types.StatusSuccess, statusOf(t, r, "good"))
}

func TestBatchCancellationWritesNoStatus(t *testing.T) {
	h := newHarness(defaultSettings())
	h.sender.sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}
	r := newTestRoster(t, pendingEntry("taro"))

	res, err := NewBatch(r, h.sender, zerolog.Nop()).Run(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "cancelled", res.Stopped)
	assert.Zero(t, res.Attempted)
	assert.Equal(t, types.StatusPending, statusOf(t, r, "taro"),
		"cancelled attempt leaves the entry untouched")
}

func TestBatchNoEligibleEntries(t *testing.T) {
	h := newHarness(defaultSettings())

	unselected := pendingEntry("taro")
	unselected.Selected = false
	done := pendingEntry("hanako")
	done.Status = types.StatusSuccess

	r := newTestRoster(t, unselected, done)
	res, err := NewBatch(r, h.sender, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, h.factory, "no session work without eligible entries")
}

func TestBatchResendsSuccessWhenNotSkippingExisting(t *testing.T) {
	settings := defaultSettings()
	settings.SkipExisting = false

	h := newHarness(settings, &fakeDriver{followState: FollowClicked})

	sent := pendingEntry("taro")
	sent.Status = types.StatusSuccess

	r := newTestRoster(t, sent)
	res, err := NewBatch(r, h.sender, zerolog.Nop()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
}

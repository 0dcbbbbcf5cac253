package sender

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xautodm/internal/config"
	"xautodm/internal/types"
)

type fakeCounter struct {
	counts  map[string]int
	readErr error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: make(map[string]int)}
}

func (c *fakeCounter) SentOn(_ context.Context, day string) (int, error) {
	return c.counts[day], c.readErr
}

func (c *fakeCounter) IncrementSent(_ context.Context, day string) (int, error) {
	c.counts[day]++
	return c.counts[day], nil
}

type fakeDriver struct {
	navErr      error
	followState FollowState
	followErr   error
	composerErr error
	typeErr     error
	submitErr   error

	navigated    string
	followCalled bool
	typed        string
	submitted    bool
	closed       bool
}

func (d *fakeDriver) NavigateProfile(_ context.Context, handle string) error {
	d.navigated = handle
	return d.navErr
}

func (d *fakeDriver) Follow(_ context.Context, handle string) (FollowState, error) {
	d.followCalled = true
	return d.followState, d.followErr
}

func (d *fakeDriver) OpenComposer(context.Context) error { return d.composerErr }

func (d *fakeDriver) TypeMessage(_ context.Context, message string) error {
	d.typed = message
	return d.typeErr
}

func (d *fakeDriver) Submit(context.Context) error {
	d.submitted = true
	return d.submitErr
}

func (d *fakeDriver) Close() { d.closed = true }

type testHarness struct {
	sender  *Sender
	counter *fakeCounter
	drivers []*fakeDriver
	factory int
	waits   []time.Duration
}

func defaultSettings() config.SendConfig {
	return config.SendConfig{
		IntervalMin:    300,
		IntervalMax:    600,
		DailyLimit:     3,
		Messages:       []string{"${nick_name}さん、はじめまして！"},
		FollowBeforeDM: true,
		SkipExisting:   true,
	}
}

// newHarness wires a Sender against scripted drivers, with instant sleeps
// recorded for inspection and a frozen clock.
func newHarness(settings config.SendConfig, drivers ...*fakeDriver) *testHarness {
	h := &testHarness{counter: newFakeCounter(), drivers: drivers}
	factory := func(context.Context) (Driver, error) {
		if h.factory >= len(h.drivers) {
			panic("driver factory called more often than scripted")
		}
		d := h.drivers[h.factory]
		h.factory++
		return d, nil
	}
	h.sender = New(h.counter, factory, settings, zerolog.Nop())
	h.sender.sleep = func(_ context.Context, d time.Duration) error {
		h.waits = append(h.waits, d)
		return nil
	}
	h.sender.now = func() time.Time {
		return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	}
	h.sender.rng = rand.New(rand.NewSource(1))
	return h
}

func entry() types.RosterEntry {
	return types.RosterEntry{
		ID:       "id-1",
		Handle:   "taro_yamada",
		Name:     "山田太郎（営業部）",
		Nickname: "山田太郎",
		Status:   types.StatusPending,
		Selected: true,
	}
}

func TestSendOneSuccess(t *testing.T) {
	drv := &fakeDriver{followState: FollowClicked}
	h := newHarness(defaultSettings(), drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "${nick_name}さん、はじめまして！")
	require.NoError(t, err)
	assert.Equal(t, types.StatusSuccess, status)

	assert.Equal(t, "taro_yamada", drv.navigated)
	assert.True(t, drv.followCalled)
	assert.Equal(t, "山田太郎さん、はじめまして！", drv.typed)
	assert.True(t, drv.submitted)
	assert.True(t, drv.closed, "driver released after attempt")
	assert.Equal(t, 1, h.counter.counts["2026-08-29"])

	require.Len(t, h.waits, 1)
	assert.GreaterOrEqual(t, h.waits[0], 300*time.Second)
	assert.LessOrEqual(t, h.waits[0], 600*time.Second)
}

func TestSendOneCapReachedBeforeBrowser(t *testing.T) {
	h := newHarness(defaultSettings())
	h.counter.counts["2026-08-29"] = 3

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrDailyCapReached)
	assert.Empty(t, status)
	assert.Zero(t, h.factory, "no session acquired once the cap is hit")
	assert.Empty(t, h.waits, "no interval wait once the cap is hit")
}

func TestSendOneCancelledDuringWait(t *testing.T) {
	h := newHarness(defaultSettings())
	h.sender.sleep = func(context.Context, time.Duration) error {
		return context.Canceled
	}

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, status)
	assert.Zero(t, h.factory)
	assert.Zero(t, h.counter.counts["2026-08-29"])
}

func TestSendOneFollowControlMissing(t *testing.T) {
	drv := &fakeDriver{followState: FollowNotFound}
	h := newHarness(defaultSettings(), drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrFollowControlNotFound)
	assert.Equal(t, types.StatusError, status)
	assert.Zero(t, h.counter.counts["2026-08-29"])
	assert.True(t, drv.closed)
}

func TestSendOneAlreadyFollowingCountsAsFollowed(t *testing.T) {
	drv := &fakeDriver{
		followState: AlreadyFollowing,
		composerErr: ErrComposerNotFound,
	}
	h := newHarness(defaultSettings(), drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrComposerNotFound)
	assert.Equal(t, types.StatusFollowed, status,
		"completed follow survives a later messaging failure")
	assert.Zero(t, h.counter.counts["2026-08-29"])
}

func TestSendOneComposerFailureWithoutFollow(t *testing.T) {
	settings := defaultSettings()
	settings.FollowBeforeDM = false
	drv := &fakeDriver{composerErr: ErrComposerNotFound}
	h := newHarness(settings, drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrComposerNotFound)
	assert.Equal(t, types.StatusError, status)
	assert.False(t, drv.followCalled, "follow step disabled")
}

func TestSendOneNavigationError(t *testing.T) {
	drv := &fakeDriver{navErr: errors.New("profile not found")}
	h := newHarness(defaultSettings(), drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrCancelled)
	assert.Equal(t, types.StatusError, status)
}

func TestSendOneCancelledMidDrive(t *testing.T) {
	drv := &fakeDriver{navErr: context.Canceled}
	h := newHarness(defaultSettings(), drv)

	status, err := h.sender.SendOne(context.Background(), entry(), "x")
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Empty(t, status, "cancelled attempts record no status")
}

func TestRemaining(t *testing.T) {
	h := newHarness(defaultSettings())
	h.counter.counts["2026-08-29"] = 2

	left, err := h.sender.Remaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	h.counter.counts["2026-08-29"] = 10
	left, err = h.sender.Remaining(context.Background())
	require.NoError(t, err)
	assert.Zero(t, left)
}

func TestRemainingResetsOnNewDay(t *testing.T) {
	h := newHarness(defaultSettings())
	h.counter.counts["2026-08-29"] = 3

	h.sender.now = func() time.Time {
		return time.Date(2026, 8, 30, 0, 0, 1, 0, time.UTC)
	}
	left, err := h.sender.Remaining(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, left, "a fresh day reads a zero counter")
}

package sender

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/rs/zerolog"
)

// FollowState is the observed state of the follow control on a profile.
type FollowState int

const (
	FollowNotFound FollowState = iota
	FollowClicked
	AlreadyFollowing
)

// Driver is the slice of browser behavior one send attempt needs. The
// production implementation drives chromedp against a session acquired for
// this attempt only; tests substitute a fake.
type Driver interface {
	NavigateProfile(ctx context.Context, handle string) error
	Follow(ctx context.Context, handle string) (FollowState, error)
	OpenComposer(ctx context.Context) error
	TypeMessage(ctx context.Context, message string) error
	Submit(ctx context.Context) error
	// Close releases the underlying session regardless of outcome.
	Close()
}

// DriverFactory produces a Driver bound to a freshly acquired session.
// Each send attempt gets its own.
type DriverFactory func(ctx context.Context) (Driver, error)

// X.com DOM selectors for the send flow
// Update these when sending breaks
const (
	profileColumnSel  = `[data-testid="primaryColumn"]`
	userNameSel       = `[data-testid="UserName"]`
	composerInputSel  = `[data-testid="dmComposerTextInput"]`
	composerButtonSel = `[data-testid="sendDMFromProfile"]`
)

const (
	profileReadyTimeout = 20 * time.Second
	secondaryTimeout    = 10 * time.Second
	composerTimeout     = 10 * time.Second
)

// clickComposerJS clicks the message affordance on a profile; the
// aria-label is the stable hook on the Japanese UI, the testid on others.
const clickComposerJS = `
	(function() {
		const byLabel = document.querySelector('[aria-label="メッセージ"]') ||
			document.querySelector('[aria-label="Message"]');
		if (byLabel) { byLabel.click(); return true; }
		const byTestId = document.querySelector('[data-testid="sendDMFromProfile"]');
		if (byTestId) { byTestId.click(); return true; }
		return false;
	})()
`

type chromedpDriver struct {
	ctx     context.Context
	release func()
	log     zerolog.Logger
}

// NewChromedpDriver wraps a live chromedp page context as a Driver.
// release is invoked on Close.
func NewChromedpDriver(chromedpCtx context.Context, release func(), log zerolog.Logger) Driver {
	return &chromedpDriver{
		ctx:     chromedpCtx,
		release: release,
		log:     log.With().Str("component", "send-driver").Logger(),
	}
}

func (d *chromedpDriver) Close() {
	if d.release != nil {
		d.release()
	}
}

// NavigateProfile loads the target's profile and waits for a complete
// load. Only the readyState wait is fatal; the finer-grained element waits
// are logged and tolerated.
func (d *chromedpDriver) NavigateProfile(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	url := "https://x.com/" + handle
	if err := chromedp.Run(d.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to profile %s: %w", url, err)
	}

	tctx, cancel := context.WithTimeout(d.ctx, profileReadyTimeout)
	err := chromedp.Run(tctx, chromedp.Poll(`document.readyState === "complete"`, nil))
	cancel()
	if err != nil {
		return fmt.Errorf("profile page did not finish loading: %w", err)
	}

	// Secondary waits: absence is logged and tolerated, not fatal.
	for _, sel := range []string{profileColumnSel, userNameSel} {
		wctx, cancel := context.WithTimeout(d.ctx, secondaryTimeout)
		err := chromedp.Run(wctx, chromedp.WaitVisible(sel, chromedp.ByQuery))
		cancel()
		if err != nil {
			d.log.Warn().Str("selector", sel).Msg("element did not appear, continuing")
		}
	}
	return nil
}

// followJS locates the follow affordance for the given handle by
// aria-label and clicks it; an already-following control is reported
// without clicking.
func followJS(handle string) string {
	return fmt.Sprintf(`
		(function(userId) {
			const byLabel = (label) => document.querySelector('[aria-label="' + label + '"]');
			const follow = byLabel('フォロー @' + userId) || byLabel('Follow @' + userId);
			if (follow) { follow.click(); return 'followed'; }
			const followBack = byLabel('フォローバック @' + userId) || byLabel('Follow back @' + userId);
			if (followBack) { followBack.click(); return 'followed'; }
			const following = byLabel('フォロー中 @' + userId) || byLabel('Following @' + userId);
			if (following) { return 'already_following'; }
			const all = document.querySelectorAll('button, [role="button"]');
			for (const btn of all) {
				const label = btn.getAttribute('aria-label') || '';
				if ((label.includes('フォロー') || label.includes('Follow')) && label.includes(userId)) {
					if (label.includes('フォロー中') || label.includes('Following')) {
						return 'already_following';
					}
					btn.click();
					return 'followed';
				}
			}
			return 'not_found';
		})(%q)
	`, handle)
}

func (d *chromedpDriver) Follow(ctx context.Context, handle string) (FollowState, error) {
	if err := ctx.Err(); err != nil {
		return FollowNotFound, err
	}

	var result string
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(followJS(handle), &result)); err != nil {
		return FollowNotFound, fmt.Errorf("inspect follow control: %w", err)
	}

	switch result {
	case "followed":
		d.log.Info().Str("handle", handle).Msg("clicked follow")
		return FollowClicked, nil
	case "already_following":
		d.log.Info().Str("handle", handle).Msg("already following")
		return AlreadyFollowing, nil
	default:
		return FollowNotFound, nil
	}
}

// OpenComposer clicks the message affordance and verifies the composer
// view was reached.
func (d *chromedpDriver) OpenComposer(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var clicked bool
	if err := chromedp.Run(d.ctx, chromedp.Evaluate(clickComposerJS, &clicked)); err != nil {
		return fmt.Errorf("click message affordance: %w", err)
	}
	if !clicked {
		return fmt.Errorf("%w: no message affordance on profile (tried aria-label and %s)",
			ErrComposerNotFound, composerButtonSel)
	}

	if err := sleepCtx(d.ctx, 3*time.Second); err != nil {
		return err
	}

	var url string
	if err := chromedp.Run(d.ctx, chromedp.Location(&url)); err != nil {
		return fmt.Errorf("read location: %w", err)
	}
	if !strings.Contains(url, "messages") {
		return fmt.Errorf("%w: landed on %s instead of composer", ErrComposerNotFound, url)
	}
	return nil
}

// TypeMessage types the message into the composer line by line with soft
// line breaks, then appends and removes a space so the host UI registers
// the change.
func (d *chromedpDriver) TypeMessage(ctx context.Context, message string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	wctx, cancel := context.WithTimeout(d.ctx, composerTimeout)
	err := chromedp.Run(wctx,
		chromedp.WaitVisible(composerInputSel, chromedp.ByQuery),
		chromedp.Click(composerInputSel, chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: composer input did not appear", ErrComposerNotFound)
		}
		return fmt.Errorf("focus composer input: %w", err)
	}

	lines := strings.Split(message, "\n")
	for i, line := range lines {
		if line != "" {
			if err := chromedp.Run(d.ctx, chromedp.KeyEvent(line)); err != nil {
				return fmt.Errorf("type message line: %w", err)
			}
		}
		if i < len(lines)-1 {
			// Soft line break; a bare Enter would submit.
			err := chromedp.Run(d.ctx,
				chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)))
			if err != nil {
				return fmt.Errorf("insert line break: %w", err)
			}
		}
	}

	// Append and remove a no-op character so the composer notices the
	// change even when its state tracking is stale.
	err = chromedp.Run(d.ctx,
		chromedp.KeyEvent(" "),
		chromedp.KeyEvent(kb.Backspace),
	)
	if err != nil {
		return fmt.Errorf("nudge composer state: %w", err)
	}
	return nil
}

// Submit sends the typed message via the platform's key-based send action.
// No confirmation is read back; success is assumed absent an error.
func (d *chromedpDriver) Submit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := chromedp.Run(d.ctx, chromedp.KeyEvent(kb.Enter)); err != nil {
		return fmt.Errorf("submit message: %w", err)
	}
	return sleepCtx(d.ctx, 2*time.Second)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

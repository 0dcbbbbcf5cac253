package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// listingTimeout bounds the primary wait for the listing container.
const listingTimeout = 15 * time.Second

// chromedpPage is the production PageDriver over a live chromedp context.
// The chromedp context descends from the operation context handed to
// session.Acquire, so cancelling the operation cancels every action here.
type chromedpPage struct {
	ctx context.Context
}

// NewPageDriver wraps a chromedp page context (from session.Acquire) as a
// PageDriver.
func NewPageDriver(chromedpCtx context.Context) PageDriver {
	return &chromedpPage{ctx: chromedpCtx}
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) WaitListing(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tctx, cancel := context.WithTimeout(p.ctx, listingTimeout)
	defer cancel()

	err := chromedp.Run(tctx, chromedp.WaitVisible(ListingContainer, chromedp.ByQuery))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s did not appear within %s",
				ErrListingNotFound, ListingContainer, listingTimeout)
		}
		return fmt.Errorf("%w: %v", ErrListingNotFound, err)
	}
	return nil
}

func (p *chromedpPage) ScanFragments(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows [][]string
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(scanJS, &rows)); err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *chromedpPage) ScrollToBottom(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(p.ctx, chromedp.Evaluate(scrollJS, nil))
}

func (p *chromedpPage) ScrollHeight(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var height int64
	if err := chromedp.Run(p.ctx, chromedp.Evaluate(heightJS, &height)); err != nil {
		return 0, err
	}
	return height, nil
}

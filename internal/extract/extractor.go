// Package extract drives the followers listing page: scan, parse, scroll,
// repeat until the page height stops growing.
package extract

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"xautodm/internal/types"
)

// ErrListingNotFound means the followers listing never appeared, usually a
// wrong URL, a logged-out session, or a page-shape change.
var ErrListingNotFound = errors.New("followers listing not found")

// PageDriver is the slice of browser behavior the extractor needs. The
// production implementation drives chromedp; tests substitute a fake.
type PageDriver interface {
	Navigate(ctx context.Context, url string) error
	// WaitListing blocks until the listing container is visible, or fails
	// with ErrListingNotFound after a bounded timeout.
	WaitListing(ctx context.Context) error
	// ScanFragments returns the visible text fragments of each clickable
	// listing element, in DOM order.
	ScanFragments(ctx context.Context) ([][]string, error)
	ScrollToBottom(ctx context.Context) error
	ScrollHeight(ctx context.Context) (int64, error)
}

// Extractor accumulates follower records from a listing page.
type Extractor struct {
	page   PageDriver
	settle time.Duration
	// maxRounds bounds the scroll loop as a safety valve; 0 means rely on
	// height-stability termination alone.
	maxRounds int
	mode      SearchMode
	keywords  []string
	log       zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxRounds caps the number of scan/scroll rounds.
func WithMaxRounds(n int) Option {
	return func(e *Extractor) { e.maxRounds = n }
}

// WithSettle overrides the post-scroll settle delay.
func WithSettle(d time.Duration) Option {
	return func(e *Extractor) { e.settle = d }
}

// WithKeywordFilter narrows results by bio keywords.
func WithKeywordFilter(mode SearchMode, keywords []string) Option {
	return func(e *Extractor) {
		e.mode = mode
		e.keywords = keywords
	}
}

// New creates an Extractor over the given page driver.
func New(page PageDriver, log zerolog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		page:   page,
		settle: 2 * time.Second,
		mode:   SearchPartial,
		log:    log.With().Str("component", "extract").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ListingURL returns the default followers listing URL for a handle.
func ListingURL(handle string) string {
	return fmt.Sprintf("https://x.com/%s/followers", handle)
}

// Run scrapes the followers listing for target. overrideURL takes
// precedence over the default followers URL when non-empty. Records are
// returned in first-discovery order, deduplicated by handle. On failure
// mid-run the records accumulated so far are returned alongside the error.
func (e *Extractor) Run(ctx context.Context, target, overrideURL string) ([]types.User, error) {
	url := overrideURL
	if url == "" {
		url = ListingURL(target)
	}

	e.log.Info().Str("url", url).Msg("starting extraction")

	if err := e.page.Navigate(ctx, url); err != nil {
		return nil, fmt.Errorf("navigate to listing: %w", err)
	}
	if err := e.page.WaitListing(ctx); err != nil {
		return nil, err
	}

	lastHeight, err := e.page.ScrollHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page height: %w", err)
	}

	var (
		users []types.User
		seen  = make(map[string]bool)
	)

	for round := 1; ; round++ {
		if e.maxRounds > 0 && round > e.maxRounds {
			e.log.Warn().Int("rounds", e.maxRounds).Msg("scroll round cap reached, stopping")
			break
		}

		rows, err := e.page.ScanFragments(ctx)
		if err != nil {
			return e.filtered(users), fmt.Errorf("scan listing: %w", err)
		}

		found := 0
		for _, fragments := range rows {
			u, ok := ParseListingItem(fragments)
			if !ok || seen[u.Handle] {
				continue
			}
			seen[u.Handle] = true
			users = append(users, u)
			found++
		}
		e.log.Debug().Int("round", round).Int("new", found).Int("total", len(users)).Msg("scan pass")

		if err := e.page.ScrollToBottom(ctx); err != nil {
			return e.filtered(users), fmt.Errorf("scroll: %w", err)
		}
		if err := sleepCtx(ctx, e.settle); err != nil {
			return e.filtered(users), err
		}

		height, err := e.page.ScrollHeight(ctx)
		if err != nil {
			return e.filtered(users), fmt.Errorf("read page height: %w", err)
		}
		if height == lastHeight {
			e.log.Info().Int("total", len(users)).Msg("page height stable, end of list")
			break
		}
		lastHeight = height
	}

	return e.filtered(users), nil
}

func (e *Extractor) filtered(users []types.User) []types.User {
	return FilterByKeywords(users, e.mode, e.keywords)
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

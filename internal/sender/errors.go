package sender

import "errors"

var (
	// ErrDailyCapReached is an expected control-flow outcome: the persisted
	// counter is at the daily limit, so the attempt stops before touching
	// the browser.
	ErrDailyCapReached = errors.New("daily send limit reached")

	// ErrFollowControlNotFound means no follow affordance matched the
	// target handle. Fatal to the attempt: it usually means the page did
	// not load the expected user.
	ErrFollowControlNotFound = errors.New("follow control not found")

	// ErrComposerNotFound means the message affordance or composer view
	// could not be reached.
	ErrComposerNotFound = errors.New("message composer not found")

	// ErrCancelled is distinct from an error outcome: the operator aborted
	// and the entry's roster status must stay unchanged.
	ErrCancelled = errors.New("send cancelled")
)

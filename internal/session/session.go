package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

// ErrConnect means neither attaching to a debugged browser nor launching a
// fresh one produced a usable session.
var ErrConnect = errors.New("could not acquire a browser session")

// Manager acquires and releases browser sessions. One manager lives for
// the whole process; each extraction run or send attempt acquires its own
// session and releases it when done.
type Manager struct {
	DebugPort int
	Headless  bool
	log       zerolog.Logger
}

// NewManager creates a session manager for the given remote-debugging port.
func NewManager(debugPort int, headless bool, log zerolog.Logger) *Manager {
	return &Manager{
		DebugPort: debugPort,
		Headless:  headless,
		log:       log.With().Str("component", "session").Logger(),
	}
}

// Session is an attached or launched browser plus its active page context.
// Ctx drives chromedp actions against the first open page.
type Session struct {
	Ctx context.Context

	// owned is true only when this manager launched the browser itself;
	// attached browsers are never closed so the operator's manual login
	// survives across operations.
	owned   bool
	cancels []context.CancelFunc
}

// Release tears the session down. The page and context are always
// detached; the browser process dies only when this manager launched it
// (cancelling its exec allocator kills the child process).
func (s *Session) Release() {
	for i := len(s.cancels) - 1; i >= 0; i-- {
		s.cancels[i]()
	}
}

// Owned reports whether releasing this session also ends the browser.
func (s *Session) Owned() bool { return s.owned }

// Acquire returns a controllable browser session: first by attaching to an
// instance already listening on the debug port, then by launching a fresh
// one with automation-friendly flags. Failures of both strategies are
// aggregated into the returned error.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	var attachErr error
	if m.debuggerReachable() {
		s, err := m.attach(ctx)
		if err == nil {
			m.log.Debug().Int("port", m.DebugPort).Msg("attached to running browser")
			return s, nil
		}
		attachErr = err
	} else {
		attachErr = fmt.Errorf("no debugger listening on port %d", m.DebugPort)
	}

	m.log.Info().AnErr("attach", attachErr).Msg("attach failed, launching fresh browser")

	s, launchErr := m.launchFresh(ctx)
	if launchErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, errors.Join(attachErr, launchErr))
	}
	return s, nil
}

// debuggerReachable probes the DevTools version endpoint.
func (m *Manager) debuggerReachable() bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://127.0.0.1:%d/json/version", m.DebugPort))
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// attach connects over CDP and binds to the first open page, creating one
// when the browser has none.
func (m *Manager) attach(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx,
		fmt.Sprintf("http://127.0.0.1:%d", m.DebugPort))

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	cancels := []context.CancelFunc{allocCancel, browserCancel}

	targets, err := chromedp.Targets(browserCtx)
	if err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("list targets: %w", err)
	}

	pageCtx := browserCtx
	if id := firstPageTarget(targets); id != "" {
		var pageCancel context.CancelFunc
		pageCtx, pageCancel = chromedp.NewContext(browserCtx, chromedp.WithTargetID(id))
		cancels = append(cancels, pageCancel)
	}

	// Force target attachment now so connection errors surface here and
	// not in the middle of an operation.
	if err := chromedp.Run(pageCtx); err != nil {
		for i := len(cancels) - 1; i >= 0; i-- {
			cancels[i]()
		}
		return nil, fmt.Errorf("attach to page: %w", err)
	}

	return &Session{Ctx: pageCtx, owned: false, cancels: cancels}, nil
}

// launchFresh starts a browser under chromedp's own allocator with the
// shared stealth options. This browser belongs to us and dies on Release.
func (m *Manager) launchFresh(ctx context.Context) (*Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, Options(m.Headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	return &Session{
		Ctx:     browserCtx,
		owned:   true,
		cancels: []context.CancelFunc{allocCancel, browserCancel},
	}, nil
}

func firstPageTarget(targets []*target.Info) target.ID {
	for _, t := range targets {
		if t.Type == "page" {
			return t.TargetID
		}
	}
	return ""
}

// LoggedIn reports whether the session carries an auth_token cookie, i.e.
// the operator has logged in manually in this browser.
func (s *Session) LoggedIn() (bool, error) {
	var found bool
	err := chromedp.Run(s.Ctx, chromedp.ActionFunc(func(cctx context.Context) error {
		cookies, err := storage.GetCookies().Do(cctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			if c.Name == "auth_token" && c.Value != "" {
				found = true
				return nil
			}
		}
		return nil
	}))
	if err != nil {
		return false, fmt.Errorf("read cookies: %w", err)
	}
	return found, nil
}

// Package app is the service layer the GUI binds to. It owns the roster,
// the session manager and the send loop, and serializes the long-running
// operations so only one browser workflow runs at a time.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"xautodm/internal/config"
	"xautodm/internal/csvio"
	"xautodm/internal/extract"
	"xautodm/internal/logging"
	"xautodm/internal/roster"
	"xautodm/internal/scheduler"
	"xautodm/internal/sender"
	"xautodm/internal/session"
	"xautodm/internal/store"
	"xautodm/internal/types"
)

// ErrBusy means another extraction or send operation is already running.
var ErrBusy = errors.New("another operation is already running")

// ErrNotLoggedIn means the controlled browser has no X session cookie.
var ErrNotLoggedIn = errors.New("browser is not logged in to x.com")

const dailySendJob = "daily-send"

// App holds the application state exposed to the GUI.
type App struct {
	mu    sync.RWMutex
	store *store.Store // immutable after creation
	users *roster.Roster
	buf   *logging.Buffer
	log   zerolog.Logger
	sched *scheduler.Scheduler

	// dataDir holds exports and the roster database; overridable in tests.
	dataDir string

	// senderFor builds the sender for send operations; a test seam, wired
	// to newSender in production.
	senderFor func(settings config.SendConfig) *sender.Sender

	// Mutable fields, replaced by ReloadConfig. Use getSnapshot() for
	// concurrent access.
	cfg      *config.Config
	sessions *session.Manager

	// runMu guards the single-flight operation slot.
	runMu   sync.Mutex
	running string
	cancel  context.CancelFunc
	opDone  chan struct{}
}

type snapshot struct {
	cfg      *config.Config
	sessions *session.Manager
}

func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{cfg: a.cfg, sessions: a.sessions}
}

// New creates the app service around an opened store.
func New(cfg *config.Config, st *store.Store, buf *logging.Buffer, log zerolog.Logger) *App {
	a := &App{
		store: st,
		users: roster.New(st, log),
		buf:   buf,
		log:   log.With().Str("component", "app").Logger(),
		sched: scheduler.New(log),
		cfg:   cfg,
	}
	a.sessions = session.NewManager(cfg.Browser.DebugPort, cfg.Browser.Headless, log)
	a.senderFor = a.newSender
	if dir, err := config.DataDir(); err == nil {
		a.dataDir = dir
	}
	return a
}

// Startup loads the persisted roster and arms the daily schedule, then
// starts the scheduler. Call once before serving the GUI.
func (a *App) Startup(ctx context.Context) error {
	if err := a.users.Load(ctx); err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	if err := a.rearmSchedule(); err != nil {
		a.log.Warn().Err(err).Msg("daily schedule not armed")
	}
	a.sched.Start()
	return nil
}

// shutdownWait bounds how long Shutdown blocks on an in-flight operation
// after cancelling it.
const shutdownWait = 10 * time.Second

// Shutdown stops the scheduler and any in-flight operation, waits for the
// operation to unwind, then closes the store. The wait matters: a batch
// goroutine mid-attempt must not race a closed database.
func (a *App) Shutdown() {
	a.StopSend()
	<-a.sched.Stop().Done()

	a.runMu.Lock()
	done := a.opDone
	a.runMu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(shutdownWait):
			a.log.Warn().Msg("operation did not stop in time, closing store anyway")
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close store")
	}
}

func (a *App) rearmSchedule() error {
	s := a.getSnapshot()
	a.sched.RemoveJob(dailySendJob)
	if s.cfg.Send.ScheduleTime == "" {
		return nil
	}
	return a.sched.AddDailyJob(dailySendJob, s.cfg.Send.ScheduleTime, func(ctx context.Context) error {
		_, err := a.runBatch(ctx)
		return err
	})
}

// begin claims the single operation slot. The returned context is
// cancelled by StopSend.
func (a *App) begin(name string) (context.Context, func(), error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running != "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrBusy, a.running)
	}
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	a.running = name
	a.cancel = cancel
	a.opDone = finished
	done := func() {
		a.runMu.Lock()
		a.running = ""
		a.cancel = nil
		a.runMu.Unlock()
		cancel()
		close(finished)
	}
	return ctx, done, nil
}

// Running names the operation in flight, or returns "" when idle.
func (a *App) Running() string {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.running
}

// StopSend cancels the operation in flight, if any. Entries mid-attempt
// keep their previous status.
func (a *App) StopSend() {
	a.runMu.Lock()
	cancel := a.cancel
	a.runMu.Unlock()
	if cancel != nil {
		a.log.Info().Msg("stop requested")
		cancel()
	}
}

// ExtractResult summarizes one follower extraction run.
type ExtractResult struct {
	Found   int    `json:"found"`
	Added   int    `json:"added"`
	Skipped int    `json:"skipped"`
	CSVPath string `json:"csvPath"`
}

// ExtractFollowers scrolls the followers listing of handle (or the
// explicit overrideURL) and merges discovered users into the roster.
// keywords, when non-empty, filter the discovered users by bio and name;
// exact requires every keyword to match, otherwise any one suffices.
func (a *App) ExtractFollowers(handle, overrideURL string, keywords []string, exact bool) (ExtractResult, error) {
	ctx, done, err := a.begin("extract")
	if err != nil {
		return ExtractResult{}, err
	}
	defer done()

	s := a.getSnapshot()
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return ExtractResult{}, err
	}
	defer sess.Release()

	if ok, err := sess.LoggedIn(); err != nil {
		a.log.Warn().Err(err).Msg("login check failed")
	} else if !ok {
		return ExtractResult{}, ErrNotLoggedIn
	}

	opts := []extract.Option{
		extract.WithMaxRounds(s.cfg.Extract.MaxScrollRounds),
		extract.WithSettle(time.Duration(s.cfg.Extract.SettleSeconds) * time.Second),
	}
	if len(keywords) > 0 {
		mode := extract.SearchPartial
		if exact {
			mode = extract.SearchExact
		}
		opts = append(opts, extract.WithKeywordFilter(mode, keywords))
	}

	url := overrideURL
	if url == "" {
		url = s.cfg.Extract.FollowerURL
	}
	ex := extract.New(extract.NewPageDriver(sess.Ctx), a.log, opts...)
	found, runErr := ex.Run(ctx, handle, url)
	return a.recordExtraction(handle, found, runErr)
}

// recordExtraction merges discovered users into the roster and writes the
// discovery CSV. A failed scrape still records whatever was accumulated
// before the failure; only then does the scrape error surface. The merge
// runs on a fresh context: a cancelled scrape must not also cancel the
// persistence of its partial results.
func (a *App) recordExtraction(label string, found []types.User, runErr error) (ExtractResult, error) {
	res := ExtractResult{Found: len(found)}

	added, skipped, err := a.users.UpsertFromExtraction(context.Background(), found)
	if err != nil {
		return res, errors.Join(runErr, err)
	}
	res.Added = added
	res.Skipped = skipped
	res.CSVPath = a.writeDiscoveryCSV(label, found)

	if runErr != nil {
		a.log.Warn().Err(runErr).Int("found", res.Found).Int("added", added).
			Msg("extraction failed, partial results kept")
		return res, runErr
	}
	a.log.Info().Int("found", res.Found).Int("added", added).
		Int("skipped", skipped).Msg("extraction finished")
	return res, nil
}

// writeDiscoveryCSV snapshots freshly discovered users next to the roster
// database. Best effort: a failed export never fails the extraction.
func (a *App) writeDiscoveryCSV(label string, users []types.User) string {
	if len(users) == 0 || a.dataDir == "" {
		return ""
	}
	if err := os.MkdirAll(a.dataDir, 0700); err != nil {
		a.log.Warn().Err(err).Msg("discovery CSV skipped")
		return ""
	}
	path := filepath.Join(a.dataDir, csvio.DiscoveryFilename(label, time.Now()))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err == nil {
		err = csvio.WriteUsers(f, users)
		f.Close()
	}
	if err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("discovery CSV failed")
		return ""
	}
	return path
}

// newSender builds a sender whose driver acquires a fresh browser session
// per attempt and releases it when the attempt closes.
func (a *App) newSender(settings config.SendConfig) *sender.Sender {
	factory := func(ctx context.Context) (sender.Driver, error) {
		s := a.getSnapshot()
		sess, err := s.sessions.Acquire(ctx)
		if err != nil {
			return nil, err
		}
		if ok, err := sess.LoggedIn(); err == nil && !ok {
			sess.Release()
			return nil, ErrNotLoggedIn
		}
		return sender.NewChromedpDriver(sess.Ctx, sess.Release, a.log), nil
	}
	return sender.New(a.store, factory, settings, a.log)
}

func (a *App) runBatch(ctx context.Context) (sender.Result, error) {
	s := a.getSnapshot()
	snd := a.senderFor(s.cfg.Send)
	batch := sender.NewBatch(a.users, snd, a.log)
	return batch.Run(ctx)
}

// SendBatch starts sending to all eligible roster entries in the
// background. Progress lands in the roster and the log buffer; StopSend
// cancels it.
func (a *App) SendBatch() error {
	ctx, done, err := a.begin("send")
	if err != nil {
		return err
	}
	go func() {
		defer done()
		res, err := a.runBatch(ctx)
		if err != nil {
			a.log.Error().Err(err).Msg("send batch failed")
			return
		}
		a.log.Info().Int("attempted", res.Attempted).Int("sent", res.Sent).
			Int("errors", res.Errors).Str("stopped", res.Stopped).
			Msg("send batch finished")
	}()
	return nil
}

// SendDirectMessage sends one DM to the roster entry with the given id.
// The configured pacing applies as for a batch: the daily cap is checked
// first and the attempt waits a randomized interval within the operator's
// bounds. The result is recorded on the entry.
func (a *App) SendDirectMessage(id string) error {
	ctx, done, err := a.begin("send-one")
	if err != nil {
		return err
	}
	defer done()

	var entry *types.RosterEntry
	for _, e := range a.users.Entries() {
		if e.ID == id {
			entry = &e
			break
		}
	}
	if entry == nil {
		return fmt.Errorf("no roster entry with id %s", id)
	}

	s := a.getSnapshot()
	settings := s.cfg.Send

	snd := a.senderFor(settings)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	template := sender.PickTemplate(settings.Messages, rng)
	if template == "" {
		return fmt.Errorf("no usable message template configured")
	}
	status, sendErr := snd.SendOne(ctx, *entry, template)
	if sendErr != nil && (errors.Is(sendErr, sender.ErrCancelled) || errors.Is(sendErr, sender.ErrDailyCapReached)) {
		return sendErr
	}
	if err := a.users.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	return sendErr
}

// LaunchBrowser starts a browser with remote debugging on the configured
// port so the operator can log in manually. Returns the executable used.
func (a *App) LaunchBrowser() (string, error) {
	s := a.getSnapshot()
	execPath, err := session.FindExecutable(s.cfg.Browser.ChromePath)
	if err != nil {
		return "", err
	}
	profile := s.cfg.Browser.ProfileDir
	if profile == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return "", err
		}
		profile = filepath.Join(dir, "browser-profile")
	}
	_, err = session.Launch(session.LaunchOptions{
		ExecPath:       execPath,
		ProfileDir:     profile,
		SeedProfileDir: s.cfg.Browser.SeedProfileDir,
		Port:           s.cfg.Browser.DebugPort,
		Headless:       s.cfg.Browser.Headless,
	})
	if err != nil {
		return "", err
	}
	a.log.Info().Str("exec", execPath).Int("port", s.cfg.Browser.DebugPort).
		Msg("browser launched")
	return execPath, nil
}

// ImportCSV merges roster entries from the CSV at path. Existing handles
// keep their state.
func (a *App) ImportCSV(path string) (added, skipped int, err error) {
	entries, err := csvio.ImportFile(path)
	if err != nil {
		return 0, 0, err
	}
	return a.users.ImportEntries(context.Background(), entries)
}

// ExportCSV writes the full roster to dir (the data directory when empty)
// and returns the file path.
func (a *App) ExportCSV(dir string) (string, error) {
	if dir == "" {
		if a.dataDir == "" {
			return "", fmt.Errorf("no data directory available for export")
		}
		dir = a.dataDir
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, csvio.SnapshotFilename(time.Now()))
	if err := csvio.ExportFile(path, a.users.Entries()); err != nil {
		return "", err
	}
	return path, nil
}

// Users returns the roster in discovery order.
func (a *App) Users() []types.RosterEntry {
	return a.users.Entries()
}

// GetStats returns roster counts by status.
func (a *App) GetStats() types.Stats {
	return a.users.Stats()
}

// SetSelected toggles whether an entry participates in send batches.
func (a *App) SetSelected(id string, selected bool) error {
	return a.users.SetSelected(context.Background(), id, selected)
}

// ClearAll wipes the roster. The daily send counter is untouched.
func (a *App) ClearAll() error {
	return a.users.ClearAll(context.Background())
}

// RemainingToday reports how many sends are left under the daily cap.
func (a *App) RemainingToday() (int, error) {
	s := a.getSnapshot()
	return a.senderFor(s.cfg.Send).Remaining(context.Background())
}

// RecentLogs returns the buffered log lines for the GUI log pane.
func (a *App) RecentLogs() []string {
	return a.buf.Lines()
}

// GetConfig returns a copy of the active configuration. Mutating it has
// no effect until the copy goes back through SaveConfig.
func (a *App) GetConfig() config.Config {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cfg := *a.cfg
	cfg.Send.Messages = append([]string(nil), a.cfg.Send.Messages...)
	return cfg
}

// SaveConfig validates, persists and applies a new configuration.
func (a *App) SaveConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}
	a.apply(cfg)
	return nil
}

// ReloadConfig reloads the configuration from disk.
func (a *App) ReloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.apply(cfg)
	return nil
}

func (a *App) apply(cfg *config.Config) {
	a.mu.Lock()
	a.cfg = cfg
	a.sessions = session.NewManager(cfg.Browser.DebugPort, cfg.Browser.Headless, a.log)
	a.mu.Unlock()

	if err := a.rearmSchedule(); err != nil {
		a.log.Warn().Err(err).Msg("daily schedule not armed")
	}
	a.log.Info().Msg("configuration applied")
}

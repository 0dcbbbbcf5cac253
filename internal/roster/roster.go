// Package roster maintains the working set of discovered users and the
// aggregate stats derived from it.
package roster

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"xautodm/internal/types"
)

// Persister is the snapshot-semantics storage boundary: reads return the
// full entry set, writes replace it.
type Persister interface {
	SaveUsers(ctx context.Context, entries []types.RosterEntry) error
	LoadUsers(ctx context.Context) ([]types.RosterEntry, error)
	ClearUsers(ctx context.Context) error
}

// Roster is the in-memory projection over the persisted entry set. All
// mutations re-derive stats and write the snapshot through.
type Roster struct {
	mu      sync.RWMutex
	entries []types.RosterEntry
	stats   types.Stats
	persist Persister
	log     zerolog.Logger
}

// New creates an empty roster backed by p. p may be nil for an
// unpersisted roster.
func New(p Persister, log zerolog.Logger) *Roster {
	return &Roster{
		persist: p,
		log:     log.With().Str("component", "roster").Logger(),
	}
}

// Load replaces the in-memory set with the persisted snapshot.
func (r *Roster) Load(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	entries, err := r.persist.LoadUsers(ctx)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
	r.stats = DeriveStats(entries)
	return nil
}

// UpsertFromExtraction promotes extracted records into the roster. Records
// whose handle is already present are skipped; existing entries keep their
// status and selection untouched. Returns how many were added and skipped.
func (r *Roster) UpsertFromExtraction(ctx context.Context, records []types.User) (added, skipped int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		known[e.Handle] = true
	}

	for _, u := range records {
		if known[u.Handle] {
			skipped++
			continue
		}
		known[u.Handle] = true
		r.entries = append(r.entries, types.RosterEntry{
			ID:       uuid.NewString(),
			Handle:   u.Handle,
			Name:     u.Name,
			Nickname: u.Nickname,
			Bio:      u.Bio,
			Status:   types.StatusPending,
			Selected: true,
		})
		added++
	}

	r.stats = DeriveStats(r.entries)
	if err := r.save(ctx); err != nil {
		return added, skipped, err
	}
	if skipped > 0 {
		r.log.Info().Int("skipped", skipped).Msg("duplicate handles skipped")
	}
	return added, skipped, nil
}

// ImportEntries merges imported entries (e.g. from CSV) by handle. Fresh
// ids are assigned so a re-imported handle never collides with an existing
// entry's identity; existing entries win.
func (r *Roster) ImportEntries(ctx context.Context, entries []types.RosterEntry) (added, skipped int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	known := make(map[string]bool, len(r.entries))
	for _, e := range r.entries {
		known[e.Handle] = true
	}

	for _, e := range entries {
		if e.Handle == "" || known[e.Handle] {
			skipped++
			continue
		}
		known[e.Handle] = true
		e.ID = uuid.NewString()
		if !e.Status.Valid() {
			e.Status = types.StatusPending
		}
		if e.Nickname == "" {
			e.Nickname = types.ExtractNickname(e.Name)
		}
		r.entries = append(r.entries, e)
		added++
	}

	r.stats = DeriveStats(r.entries)
	return added, skipped, r.save(ctx)
}

// UpdateStatus sets the status of one entry and re-derives stats.
func (r *Roster) UpdateStatus(ctx context.Context, id string, status types.Status) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Status = status
			r.stats = DeriveStats(r.entries)
			return r.save(ctx)
		}
	}
	return fmt.Errorf("no roster entry with id %s", id)
}

// SetSelected flips send-batch inclusion for one entry.
func (r *Roster) SetSelected(ctx context.Context, id string, selected bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.entries {
		if r.entries[i].ID == id {
			r.entries[i].Selected = selected
			r.stats = DeriveStats(r.entries)
			return r.save(ctx)
		}
	}
	return fmt.Errorf("no roster entry with id %s", id)
}

// Entries returns a copy of the current entry set in roster order.
func (r *Roster) Entries() []types.RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.RosterEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Eligible returns the entries a send batch may process: selected, and in
// a re-sendable status. Entries already sent successfully join only when
// skipExisting is false.
func (r *Roster) Eligible(skipExisting bool) []types.RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []types.RosterEntry
	for _, e := range r.entries {
		if !e.Selected {
			continue
		}
		switch e.Status {
		case types.StatusPending, types.StatusFollowed, types.StatusError:
			out = append(out, e)
		case types.StatusSuccess:
			if !skipExisting {
				out = append(out, e)
			}
		}
	}
	return out
}

// Stats returns the current aggregate counters.
func (r *Roster) Stats() types.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

// ClearAll empties the roster and the persisted snapshot.
func (r *Roster) ClearAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
	r.stats = types.Stats{}
	if r.persist == nil {
		return nil
	}
	return r.persist.ClearUsers(ctx)
}

// save writes the full snapshot through to storage. Callers hold the lock.
func (r *Roster) save(ctx context.Context) error {
	if r.persist == nil {
		return nil
	}
	if err := r.persist.SaveUsers(ctx, r.entries); err != nil {
		return fmt.Errorf("persist roster: %w", err)
	}
	return nil
}

// DeriveStats folds the entries into aggregate counters. Pure; recomputed
// after every mutation, never cached across writes.
func DeriveStats(entries []types.RosterEntry) types.Stats {
	s := types.Stats{Total: len(entries)}
	for _, e := range entries {
		switch e.Status {
		case types.StatusSuccess:
			s.Success++
		case types.StatusError:
			s.Error++
		case types.StatusFollowed:
			s.Followed++
		default:
			s.Pending++
		}
	}
	return s
}

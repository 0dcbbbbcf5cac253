// Package csvio implements the CSV exchange format for the user roster:
// header userId,name,nickname,profile[,status,isSend], double-quote
// escaped, import tolerant of column subsets and supersets.
package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"xautodm/internal/types"
)

var rosterHeader = []string{"userId", "name", "nickname", "profile", "status", "isSend"}

// WriteRoster writes the full roster with workflow state.
func WriteRoster(w io.Writer, entries []types.RosterEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rosterHeader); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Handle, e.Name, e.Nickname, e.Bio,
			string(e.Status), fmt.Sprintf("%t", e.Selected),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUsers writes freshly discovered users, without workflow columns.
func WriteUsers(w io.Writer, users []types.User) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(rosterHeader[:4]); err != nil {
		return err
	}
	for _, u := range users {
		if err := cw.Write([]string{u.Handle, u.Name, u.Nickname, u.Bio}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Read parses roster entries from CSV. Columns are matched by header name;
// missing status defaults to pending, missing isSend to true. Rows without
// a handle and name are dropped. IDs are left empty for the roster to
// assign.
func Read(r io.Reader) ([]types.RosterEntry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	if _, ok := col["userId"]; !ok {
		return nil, fmt.Errorf("CSV is missing the userId column")
	}

	field := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var out []types.RosterEntry
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}

		e := types.RosterEntry{
			Handle:   field(rec, "userId"),
			Name:     field(rec, "name"),
			Nickname: field(rec, "nickname"),
			Bio:      field(rec, "profile"),
			Status:   types.Status(field(rec, "status")),
			Selected: true,
		}
		if e.Handle == "" || e.Name == "" {
			continue
		}
		if !e.Status.Valid() {
			e.Status = types.StatusPending
		}
		if v := field(rec, "isSend"); v != "" {
			e.Selected = v == "true"
		}
		if e.Nickname == "" {
			e.Nickname = types.ExtractNickname(e.Name)
		}
		out = append(out, e)
	}
	return out, nil
}

// DiscoveryFilename names an export taken at discovery time:
// <date>_<time>_<label>.csv.
func DiscoveryFilename(label string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s.csv",
		now.Format("2006-01-02"), now.Format("15-04-05"), label)
}

// SnapshotFilename names a manual roster export: dm_users_<date>.csv.
func SnapshotFilename(now time.Time) string {
	return fmt.Sprintf("dm_users_%s.csv", now.Format("2006-01-02"))
}

// ExportFile writes the roster to path, creating parent directories.
func ExportFile(path string, entries []types.RosterEntry) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteRoster(f, entries)
}

// ImportFile reads roster entries from the CSV at path.
func ImportFile(path string) ([]types.RosterEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

package types

import "strings"

// Status is the workflow state of a roster entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusFollowed Status = "followed"
	StatusSuccess  Status = "success"
	StatusError    Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFollowed, StatusSuccess, StatusError:
		return true
	}
	return false
}

// User represents one follower discovered during extraction.
type User struct {
	Handle   string `json:"userId"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Bio      string `json:"profile"`
}

// RosterEntry is a follower promoted into the working set.
// ID is independent of Handle so re-importing the same handle
// never collides with an existing entry's identity.
type RosterEntry struct {
	ID       string `json:"uniqueId"`
	Handle   string `json:"userId"`
	Name     string `json:"name"`
	Nickname string `json:"nickname"`
	Bio      string `json:"profile"`
	Status   Status `json:"status"`
	Selected bool   `json:"isSend"`
}

// Stats are aggregate counters derived from the current roster.
type Stats struct {
	Total    int `json:"total"`
	Success  int `json:"success"`
	Error    int `json:"error"`
	Followed int `json:"followed"`
	Pending  int `json:"pending"`
}

// nicknameSeparators cut a display name down to its nickname.
// Display names often embed a role or group after one of these.
var nicknameSeparators = []string{"(", "（", "｜", "@"}

// ExtractNickname returns the display name truncated at the first
// separator, trimmed. Names without a separator come back trimmed whole.
// "山田太郎（営業部）" -> "山田太郎", "佐藤一郎@エンジニア" -> "佐藤一郎".
func ExtractNickname(name string) string {
	cut := len(name)
	for _, sep := range nicknameSeparators {
		if i := strings.Index(name, sep); i >= 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(name[:cut])
}

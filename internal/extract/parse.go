package extract

import (
	"strings"

	"xautodm/internal/types"
)

// relationshipMarkers are the fragments that separate the name/handle block
// from the bio text in a listing element. X renders these localized.
var relationshipMarkers = map[string]bool{
	"フォローされています": true,
	"フォロー中":      true,
	"フォローバック":    true,
	"Follows you": true,
	"Following":   true,
	"Follow back": true,
}

// strayBioPrefix is UI noise that sometimes leaks into the bio fragments.
const strayBioPrefix = "フォローバック フォローバック "

// ParseListingItem reconstructs a follower record from the text fragments
// of one listing element. Positional heuristics: the first fragment is the
// display name, a fragment starting with "@" is the handle, and everything
// after a relationship marker is bio text. Elements with no handle yield
// ok=false and are discarded.
func ParseListingItem(fragments []string) (types.User, bool) {
	if len(fragments) == 0 {
		return types.User{}, false
	}

	var (
		name   = strings.TrimSpace(fragments[0])
		handle string
		bio    strings.Builder
		inBio  bool
	)

	for i, text := range fragments {
		switch {
		case i == 0:
			// display name, already taken
		case strings.HasPrefix(text, "@"):
			if handle == "" {
				handle = strings.TrimPrefix(text, "@")
			}
		case relationshipMarkers[text]:
			inBio = true
		case inBio:
			bio.WriteString(text)
			bio.WriteString(" ")
		}
	}

	if handle == "" || name == "" {
		return types.User{}, false
	}

	profile := strings.TrimSpace(strings.TrimPrefix(bio.String(), strayBioPrefix))

	return types.User{
		Handle:   handle,
		Name:     name,
		Nickname: types.ExtractNickname(name),
		Bio:      profile,
	}, true
}

// SearchMode selects how keyword filtering combines keywords.
type SearchMode string

const (
	// SearchExact keeps users whose bio contains every keyword.
	SearchExact SearchMode = "exact"
	// SearchPartial keeps users whose bio contains any keyword.
	SearchPartial SearchMode = "partial"
)

// FilterByKeywords narrows users by bio keyword match, case-insensitive.
// An empty keyword list passes everything through.
func FilterByKeywords(users []types.User, mode SearchMode, keywords []string) []types.User {
	if len(keywords) == 0 {
		return users
	}

	out := make([]types.User, 0, len(users))
	for _, u := range users {
		bio := strings.ToLower(u.Bio)
		if matchKeywords(bio, mode, keywords) {
			out = append(out, u)
		}
	}
	return out
}

func matchKeywords(bio string, mode SearchMode, keywords []string) bool {
	if mode == SearchExact {
		for _, kw := range keywords {
			if !strings.Contains(bio, strings.ToLower(kw)) {
				return false
			}
		}
		return true
	}
	for _, kw := range keywords {
		if strings.Contains(bio, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

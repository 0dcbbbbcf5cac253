package sender

import (
	"math/rand"
	"strings"
	"time"
)

// NicknameToken is the substitution token recognized in message templates.
const NicknameToken = "${nick_name}"

// RenderTemplate substitutes the nickname token in a message template.
func RenderTemplate(template, nickname string) string {
	return strings.ReplaceAll(template, NicknameToken, nickname)
}

// PickTemplate draws one non-empty template at random. Returns "" when no
// usable template exists.
func PickTemplate(templates []string, rng *rand.Rand) string {
	valid := templates[:0:0]
	for _, t := range templates {
		if strings.TrimSpace(t) != "" {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		return ""
	}
	return valid[rng.Intn(len(valid))]
}

// RandomInterval draws a wait duration uniformly from [min, max] seconds
// inclusive.
func RandomInterval(minSec, maxSec int, rng *rand.Rand) time.Duration {
	if maxSec < minSec {
		maxSec = minSec
	}
	sec := minSec + rng.Intn(maxSec-minSec+1)
	return time.Duration(sec) * time.Second
}

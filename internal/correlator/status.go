package correlator

import (
	"regexp"
	"strings"
)

var (
	noAnswerRe = regexp.MustCompile(`^NO\s?ANSWER$`)
	answerRe   = regexp.MustCompile(`^ANSWER(ED)?$`)
)

var genericProgressStatuses = map[string]bool{
	"RINGING":     true,
	"DIALING":     true,
	"TRYING":      true,
	"PROGRESS":    true,
	"UP":          true,
	"DOWN":        true,
	"HUNGUP":      true,
	"UNKNOWN":     true,
	"EARLY MEDIA": true,
}

// normalizeStatus implements §4.3.7's token normalization.
func normalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	switch {
	case noAnswerRe.MatchString(s):
		return "NO ANSWER"
	case answerRe.MatchString(s):
		return "ANSWERED"
	default:
		return s
	}
}

// statusRank orders normalized statuses from most to least specific:
// ANSWERED always wins; an unrecognized, non-generic token is treated
// as more specific than the known generic progress states; NO ANSWER
// is the last-resort fallback; empty is absent entirely.
func statusRank(status string) int {
	switch {
	case status == "":
		return 4
	case status == "ANSWERED":
		return 0
	case status == "NO ANSWER":
		return 3
	case genericProgressStatuses[status]:
		return 2
	default:
		return 1
	}
}

// combineStatus normalizes every candidate and keeps the most
// specific one, per §4.3.7.
func combineStatus(candidates ...string) string {
	best := ""
	bestRank := 5
	for _, raw := range candidates {
		s := normalizeStatus(raw)
		if s == "" {
			continue
		}
		if r := statusRank(s); r < bestRank {
			bestRank = r
			best = s
		}
	}
	return best
}

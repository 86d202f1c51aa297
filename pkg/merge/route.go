package merge

import (
	"regexp"
	"strings"
)

var DefaultLegacyPrefixes = []string{"HAA"}

// Normaliser maps the different spellings of a route label used by timetable
// and live feeds onto one comparable key.
type Normaliser struct {
	LegacyPrefixes []string

	prefixRegex *regexp.Regexp
}

func NewNormaliser(legacyPrefixes []string) *Normaliser {
	n := &Normaliser{LegacyPrefixes: legacyPrefixes}

	var quoted []string
	for _, prefix := range legacyPrefixes {
		if prefix = strings.ToUpper(strings.TrimSpace(prefix)); prefix != "" {
			quoted = append(quoted, regexp.QuoteMeta(prefix))
		}
	}
	if len(quoted) > 0 {
		n.prefixRegex = regexp.MustCompile("^(?:" + strings.Join(quoted, "|") + ")(\\d+)$")
	}

	return n
}

var defaultNormaliser = NewNormaliser(DefaultLegacyPrefixes)

// NormaliseRoute normalises with the default legacy prefixes
func NormaliseRoute(route string) string {
	return defaultNormaliser.Normalise(route)
}

// Normalise trims and upper-cases the label, keeps only the part after the
// last ':' or '/', then drops a legacy prefix in front of a number and the
// leading zeros of numeric labels. "HAA00012", "line:12" and "012" all become
// "12".
func (n *Normaliser) Normalise(route string) string {
	route = strings.ToUpper(strings.TrimSpace(route))

	if index := strings.LastIndexAny(route, ":/"); index >= 0 {
		route = strings.TrimSpace(route[index+1:])
	}

	if n != nil && n.prefixRegex != nil {
		if match := n.prefixRegex.FindStringSubmatch(route); len(match) == 2 {
			route = match[1]
		}
	}

	if isDigits(route) {
		route = strings.TrimLeft(route, "0")
		if route == "" {
			route = "0"
		}
	}

	return route
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Package pattern synthesizes candidate local-parts from a person's
// name, maps a verified address back to the template that produced it,
// and ranks a company's learned templates ahead of the static
// generator. There is no direct teacher analogue for this package — the
// teacher only ever verifies an address it is handed, never guesses
// one — so this is built fresh in the surrounding packages' idiom.
package pattern

import (
	"sort"
	"strings"
	"time"
)

// Template is a format string over the tokens {firstName}, {lastName},
// {firstInitial}, {lastInitial} and literal punctuation.
type Template string

// Templates is the fixed, declared-order recognised template set.
// Order matters: it is the tie-break and the fallback probe order.
var Templates = []Template{
	"{firstName}.{lastName}",
	"{firstName}{lastName}",
	"{firstInitial}.{lastName}",
	"{firstInitial}{lastName}",
	"{firstName}_{lastName}",
	"{firstName}",
	"{lastName}.{firstName}",
	"{lastName}{firstName}",
	"{lastName}{firstInitial}",
	"{firstInitial}{lastInitial}",
}

// Candidate is one ranked, not-yet-probed email address.
type Candidate struct {
	Email    string
	Template Template
}

// Expand substitutes first/last (case-folded to lowercase before
// substitution) into template, then appends "@"+domain. Non-ASCII code
// points pass through the fold unchanged; only ASCII case is folded.
func Expand(tpl Template, first, last, domain string) string {
	asciiLower := func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}
	firstLower := strings.Map(asciiLower, first)
	lastLower := strings.Map(asciiLower, last)
	local := string(tpl)
	local = strings.ReplaceAll(local, "{firstName}", firstLower)
	local = strings.ReplaceAll(local, "{lastName}", lastLower)
	local = strings.ReplaceAll(local, "{firstInitial}", firstInitial(firstLower))
	local = strings.ReplaceAll(local, "{lastInitial}", firstInitial(lastLower))
	return local + "@" + domain
}

func firstInitial(s string) string {
	if s == "" {
		return ""
	}
	// Range over runes so a non-ASCII leading code point isn't sliced
	// mid-byte; the fold above is ASCII-only so this only matters for
	// names whose first character was never touched by the fold.
	for _, r := range s {
		return string(r)
	}
	return ""
}

// Derive splits email at '@' and returns the template whose expansion
// against (first, last, domain) matches the local-part exactly, trying
// templates in declared order so the first match wins deterministically.
// An email whose local-part matches no template returns the raw
// local-part and ok=false: it is not learnable, only logged.
func Derive(email, first, last string) (tpl Template, raw string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return "", email, false
	}
	local, domain := email[:at], email[at+1:]

	for _, t := range Templates {
		candidate := Expand(t, first, last, domain)
		candidateLocal := candidate[:strings.LastIndex(candidate, "@")]
		if candidateLocal == local {
			return t, local, true
		}
	}
	return "", local, false
}

// CompanyPattern is the subset of a learned Company record's pattern
// history rank needs: usage strength and recency.
type CompanyPattern struct {
	Template     Template
	UsageCount   int
	LastVerified time.Time
}

// Rank orders candidates for one person: the company's own learned
// patterns first (usage count desc, ties by last-verified desc), then,
// only when fewer than 5 learned candidates exist, the static generator
// filling in every template not already present, so each template
// appears at most once. With 5 or more learned patterns no generator
// templates are added.
func Rank(learned []CompanyPattern, first, last, domain string) []Candidate {
	sorted := make([]CompanyPattern, len(learned))
	copy(sorted, learned)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].UsageCount != sorted[j].UsageCount {
			return sorted[i].UsageCount > sorted[j].UsageCount
		}
		return sorted[i].LastVerified.After(sorted[j].LastVerified)
	})

	seen := make(map[Template]bool, len(Templates))
	candidates := make([]Candidate, 0, len(Templates))

	for _, cp := range sorted {
		if seen[cp.Template] {
			continue
		}
		seen[cp.Template] = true
		candidates = append(candidates, Candidate{
			Email:    Expand(cp.Template, first, last, domain),
			Template: cp.Template,
		})
	}

	if len(candidates) < 5 {
		for _, t := range Templates {
			if seen[t] {
				continue
			}
			seen[t] = true
			candidates = append(candidates, Candidate{
				Email:    Expand(t, first, last, domain),
				Template: t,
			})
		}
	}

	return candidates
}

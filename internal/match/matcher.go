// Package match compares a posting's required qualifications with the
// qualifications a candidate holds.
//
// Membership is decided on normalised keys: Unicode NFKC, then full case
// folding, then every whitespace run collapsed to one space and the ends
// trimmed. "  Amazon   Web Services" and "amazon web services" are the same
// qualification; "Go" and "Golang" are not.
package match

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

const noneListedSummary = "No qualifications were listed for this posting"

// Match builds the analysis for one posting. It is pure: the same inputs
// always give the same output, and neither slice is modified.
//
// Output qualifications keep the posting's spelling and source order.
// Duplicate requirements count once.
func Match(required, possessed []string) model.MatchAnalysis {
	folder := cases.Fold()

	have := make(map[string]struct{}, len(possessed))
	for _, q := range possessed {
		if k := normalize(folder, q); k != "" {
			have[k] = struct{}{}
		}
	}

	out := model.MatchAnalysis{
		MatchedQualifications: []string{},
		MissingQualifications: []string{},
	}
	seen := make(map[string]struct{}, len(required))
	for _, q := range required {
		k := normalize(folder, q)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		display := strings.Join(strings.Fields(q), " ")
		if _, ok := have[k]; ok {
			out.MatchedQualifications = append(out.MatchedQualifications, display)
		} else {
			out.MissingQualifications = append(out.MissingQualifications, display)
		}
	}

	out.TotalMatched = len(out.MatchedQualifications)
	out.TotalRequired = out.TotalMatched + len(out.MissingQualifications)
	out.Summary = Summarize(out.TotalMatched, out.TotalRequired)
	return out
}

// Summarize renders the one-line summary for the given counts.
func Summarize(matched, required int) string {
	switch {
	case required == 0:
		return noneListedSummary
	case required == 1:
		return fmt.Sprintf("%d of 1 qualification matched", matched)
	case matched == required:
		return fmt.Sprintf("All %d qualifications matched", required)
	default:
		return fmt.Sprintf("%d of %d qualifications matched", matched, required)
	}
}

// Normalize returns the comparison key for a qualification string.
func Normalize(s string) string {
	return normalize(cases.Fold(), s)
}

// cases.Caser is stateful, so callers pass their own.
func normalize(folder cases.Caser, s string) string {
	s = norm.NFKC.String(s)
	s = folder.String(s)
	return strings.Join(strings.Fields(s), " ")
}

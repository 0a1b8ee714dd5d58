package scraper

import (
	"strings"

	"github.com/elektrikmusik/linkedin-scraper/internal/match"
	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

// redFlag returns the first exclusion term found in the posting's title,
// company, or description, compared the same way qualifications are.
// It returns "" when the posting is clean.
func redFlag(p model.Posting, flags []string) string {
	if len(flags) == 0 {
		return ""
	}
	combined := match.Normalize(p.Title + " " + p.Company + " " + p.Description)
	for _, flag := range flags {
		key := match.Normalize(flag)
		if key == "" {
			continue
		}
		if strings.Contains(combined, key) {
			return flag
		}
	}
	return ""
}

package scraper

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/elektrikmusik/linkedin-scraper/internal/model"
)

// ── Selectors ───────────────────────────────────────────

const (
	listContainerSel = ".scaffold-layout__list, .jobs-search-results-list, ul.jobs-search__results-list, [data-results-list]"
	cardSel          = "[data-job-id]"
	cardTitleSel     = ".job-card-list__title, .artdeco-entity-lockup__title, .base-search-card__title"
	cardCompanySel   = ".artdeco-entity-lockup__subtitle, .job-card-container__primary-description, .base-search-card__subtitle"
	cardLocationSel  = ".job-card-container__metadata-item, .artdeco-entity-lockup__caption, .job-search-card__location"
	cardFooterSel    = ".job-card-list__footer-wrapper li, .job-card-container__footer-item"
	cardEasyApplySel = ".job-card-container__apply-method"

	detailTopCardSel    = ".job-details-jobs-unified-top-card__job-title, .jobs-unified-top-card__job-title, h1"
	detailDescSel       = "#job-details, .jobs-description__content, .jobs-description-content__text, .jobs-box__html-content, .show-more-less-html__markup"
	detailInsightSel    = ".job-details-preferences-and-skills__pill, .job-details-jobs-unified-top-card__job-insight span, .description__job-criteria-text"
	detailHirerSel      = ".hirer-card__hirer-information, .job-details-people-who-can-help__section--two-pane .display-flex"
	detailHirerNameSel  = ".jobs-poster__name strong, .hirer-card__hirer-name, strong"
	detailHirerTitleSel = ".hirer-card__hirer-job-title, .linked-area .text-body-small, .t-14"
	detailDegreeSel     = ".hirer-card__connection-degree, [class*='connection-degree']"
	detailQualSel       = ".job-details-skill-match-status-list__skill, .job-details-how-you-match__qualification, [data-qualification]"
)

var (
	errNoListing = errors.New("page has neither a results list nor job cards")
	errNoPosting = errors.New("page has neither a title nor a description")

	viewIDRe     = regexp.MustCompile(`/jobs/view/(?:[^/?]*-)?(\d+)`)
	workplaceRe  = regexp.MustCompile(`\s*\((Remote|Hybrid|On-site)\)\s*$`)
	mutualRe     = regexp.MustCompile(`(?i)(\d+\+?)\s+mutual\s+connections?`)
	spaceRe      = regexp.MustCompile(`\s+`)
	aboutTheJobR = regexp.MustCompile(`(?i)^\s*about the job\s*`)
)

var employmentTypes = []string{"Full-time", "Part-time", "Contract", "Temporary", "Internship", "Volunteer"}
var workplaceTypes = []string{"Remote", "Hybrid", "On-site"}

// ── Listing page ────────────────────────────────────────

// parseListing extracts posting summaries from a collection page. A page
// with a results list but no cards is a valid, empty page.
func parseListing(doc *goquery.Document, baseURL, collectionName string) ([]model.Posting, error) {
	cards := doc.Find(cardSel)
	if cards.Length() == 0 && doc.Find(listContainerSel).Length() == 0 {
		return nil, errNoListing
	}

	postings := make([]model.Posting, 0, cards.Length())
	seen := make(map[string]bool, cards.Length())
	cards.Each(func(_ int, card *goquery.Selection) {
		id := strings.TrimSpace(card.AttrOr("data-job-id", ""))
		if id == "" {
			if href, ok := card.Find("a[href*='/jobs/view/']").First().Attr("href"); ok {
				if m := viewIDRe.FindStringSubmatch(href); m != nil {
					id = m[1]
				}
			}
		}
		// Nested elements can repeat the card's own data-job-id.
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		postings = append(postings, parseCard(card, id, baseURL, collectionName))
	})
	return postings, nil
}

func parseCard(card *goquery.Selection, id, baseURL, collectionName string) model.Posting {
	p := model.Posting{
		JobID:      id,
		JobURL:     postingURL(baseURL, id),
		Collection: collectionName,
		Title:      firstText(card, cardTitleSel),
		Company:    firstText(card, cardCompanySel),
		PostedTime: postedTime(card),
	}
	if p.Title == "" {
		p.Title = "Unknown Title"
	}
	if p.Company == "" {
		p.Company = "Unknown Company"
	}
	if href, ok := card.Find("a[href*='/company/']").First().Attr("href"); ok {
		p.CompanyURL = absoluteURL(baseURL, href)
	}

	loc := firstText(card, cardLocationSel)
	if m := workplaceRe.FindStringSubmatch(loc); m != nil {
		p.WorkplaceType = m[1]
		loc = strings.TrimSpace(loc[:len(loc)-len(m[0])])
	}
	p.Location = loc

	card.Find(cardFooterSel).Each(func(_ int, s *goquery.Selection) {
		switch t := strings.ToLower(cleanText(s.Text())); {
		case t == "promoted":
			p.Promoted = true
		case strings.HasPrefix(t, "actively recruiting"), strings.HasPrefix(t, "actively hiring"):
			p.ActivelyHiring = true
		case strings.Contains(t, "easy apply"):
			p.EasyApply = true
		}
	})
	if card.Find(cardEasyApplySel).Length() > 0 {
		p.EasyApply = true
	}
	return p
}

func postedTime(card *goquery.Selection) string {
	t := card.Find("time").First()
	if t.Length() == 0 {
		return ""
	}
	if text := cleanText(t.Text()); text != "" {
		return text
	}
	return t.AttrOr("datetime", "")
}

// ── Posting page ────────────────────────────────────────

// parseDetail extracts the fields only shown on a posting's own page.
// Qualifications is nil when the page lists none.
func parseDetail(doc *goquery.Document, baseURL string) (*model.PostingDetail, error) {
	desc := doc.Find(detailDescSel).First()
	if desc.Length() == 0 && doc.Find(detailTopCardSel).Length() == 0 {
		return nil, errNoPosting
	}

	d := &model.PostingDetail{
		Description: aboutTheJobR.ReplaceAllString(cleanText(desc.Text()), ""),
	}

	doc.Find(detailInsightSel).Each(func(_ int, s *goquery.Selection) {
		text := cleanText(s.Text())
		if d.EmploymentType == "" {
			d.EmploymentType = matchLabel(text, employmentTypes)
		}
		if d.WorkplaceType == "" {
			d.WorkplaceType = matchLabel(text, workplaceTypes)
		}
	})

	doc.Find(detailHirerSel).Each(func(_ int, s *goquery.Selection) {
		if m, ok := parseHirer(s, baseURL); ok {
			d.HiringTeam = append(d.HiringTeam, m)
		}
	})

	d.Qualifications = qualifications(doc, desc)
	return d, nil
}

func parseHirer(s *goquery.Selection, baseURL string) (model.HiringTeamMember, bool) {
	m := model.HiringTeamMember{
		Name:             firstText(s, detailHirerNameSel),
		Title:            firstText(s, detailHirerTitleSel),
		ConnectionDegree: strings.TrimLeft(firstText(s, detailDegreeSel), "• "),
	}
	if href, ok := s.Find("a[href*='/in/']").First().Attr("href"); ok {
		m.ProfileURL = stripQuery(absoluteURL(baseURL, href))
		if m.Name == "" {
			m.Name = cleanText(s.Find("a[href*='/in/']").First().Text())
		}
	}
	if m.Name == "" {
		return m, false
	}

	text := cleanText(s.Text())
	m.IsJobPoster = strings.Contains(strings.ToLower(text), "job poster")
	if match := mutualRe.FindStringSubmatch(text); match != nil {
		m.MutualConnections = match[1]
	}
	if strings.EqualFold(m.Title, "Job poster") {
		m.Title = ""
	}
	return m, true
}

// qualifications prefers the page's explicit qualification list and falls
// back to the bullet list under a "Qualifications" or "Requirements"
// heading in the description.
func qualifications(doc *goquery.Document, desc *goquery.Selection) []string {
	var out []string
	doc.Find(detailQualSel).Each(func(_ int, s *goquery.Selection) {
		if t := cleanText(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	if len(out) > 0 || desc.Length() == 0 {
		return out
	}

	desc.Find("strong, b, h2, h3, h4").EachWithBreak(func(_ int, h *goquery.Selection) bool {
		heading := strings.ToLower(cleanText(h.Text()))
		if !strings.Contains(heading, "qualification") && !strings.Contains(heading, "requirement") {
			return true
		}
		anchor := h
		if p := h.Parent(); goquery.NodeName(h) == "strong" || goquery.NodeName(h) == "b" {
			if goquery.NodeName(p) == "p" {
				anchor = p
			}
		}
		anchor.NextAllFiltered("ul").First().Find("li").Each(func(_ int, li *goquery.Selection) {
			if t := cleanText(li.Text()); t != "" {
				out = append(out, t)
			}
		})
		return len(out) == 0
	})
	return out
}

// ── Helpers ─────────────────────────────────────────────

func firstText(s *goquery.Selection, selector string) string {
	var out string
	s.Find(selector).EachWithBreak(func(_ int, el *goquery.Selection) bool {
		out = cleanText(el.Text())
		return out == ""
	})
	return out
}

func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func matchLabel(text string, labels []string) string {
	for _, l := range labels {
		if strings.EqualFold(text, l) || strings.Contains(strings.ToLower(text), strings.ToLower(l)) {
			return l
		}
	}
	return ""
}

func absoluteURL(baseURL, href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.IsAbs() {
		return u.String()
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(u).String()
}

func stripQuery(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		return raw[:i]
	}
	return raw
}

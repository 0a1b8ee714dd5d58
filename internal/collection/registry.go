// Package collection holds the catalogue of job-board collections that can be
// scraped. The registry is built once at startup and never mutated, so it is
// safe for concurrent readers without locking.
package collection

import (
	"errors"
	"net/url"
	"strings"
)

const (
	defaultPageSize = 25
	defaultMaxPages = 10
)

// ErrNotFound is returned by Get for names missing from the registry.
var ErrNotFound = errors.New("collection not found")

// Config describes how to page through one collection.
type Config struct {
	Name     string
	Label    string
	Path     string     // listing path relative to the source base URL
	Query    url.Values // fixed query parameters sent with every page
	PageSize int        // postings per listing page
	MaxPages int
}

// Entry is the discovery view of a Config.
type Entry struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Registry maps collection names to their Config.
type Registry struct {
	byName map[string]Config
	order  []string
}

// NewRegistry builds a registry from cfgs, keeping their order for List.
// Later duplicates replace earlier ones. Zero PageSize / MaxPages fall back
// to the defaults.
func NewRegistry(cfgs ...Config) *Registry {
	r := &Registry{byName: make(map[string]Config, len(cfgs))}
	for _, c := range cfgs {
		c.Name = strings.ToLower(strings.TrimSpace(c.Name))
		if c.Name == "" {
			continue
		}
		if c.PageSize <= 0 {
			c.PageSize = defaultPageSize
		}
		if c.MaxPages <= 0 {
			c.MaxPages = defaultMaxPages
		}
		if c.Path == "" {
			c.Path = "/jobs/collections/" + c.Name + "/"
		}
		if _, dup := r.byName[c.Name]; !dup {
			r.order = append(r.order, c.Name)
		}
		r.byName[c.Name] = c
	}
	return r
}

// Default returns the built-in job-board catalogue.
func Default() *Registry {
	cfgs := make([]Config, 0, len(catalogue))
	for _, e := range catalogue {
		cfgs = append(cfgs, Config{Name: e.Name, Label: e.Label})
	}
	return NewRegistry(cfgs...)
}

// Get looks up a collection by name, case-insensitively.
func (r *Registry) Get(name string) (Config, error) {
	c, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Config{}, ErrNotFound
	}
	return c, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// List returns every collection in catalogue order.
func (r *Registry) List() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Entry{Name: name, Label: r.byName[name].Label})
	}
	return out
}

var catalogue = []Entry{
	// Core
	{"recommended", "Recommended for you"},
	{"top-applicant", "Top Applicant"},
	{"easy-apply", "Easy Apply"},
	{"hybrid", "Hybrid"},
	{"remote-jobs", "Remote"},
	{"part-time-jobs", "Part-time"},

	// Industry sectors
	{"sustainability", "Sustainability"},
	{"manufacturing", "Manufacturing"},
	{"defense-and-space", "Defense and Space"},
	{"social-impact", "Social Impact"},
	{"government", "Government"},
	{"pharmaceuticals", "Pharmaceuticals"},
	{"biotechnology", "Biotechnology"},
	{"construction", "Construction"},
	{"real-estate", "Real Estate"},
	{"restaurants", "Restaurants"},
	{"retail", "Retail"},
	{"hospitality", "Hospitality"},
	{"financial-services", "Financial Services"},
	{"transportation-and-logistics", "Transportation and Logistics"},
	{"hospitals-and-healthcare", "Hospitals and Healthcare"},
	{"food-and-beverages", "Food and Beverages"},
	{"apparel-and-fashion", "Apparel and Fashion"},
	{"museums-historical-sites-and-zoos", "Museums, Historical Sites and Zoos"},
	{"media", "Media"},
	{"publishing", "Publishing"},
	{"digital-security", "Digital Security"},

	// Professional fields
	{"human-resources", "Human Resources"},
	{"staffing-and-recruiting", "Staffing and Recruiting"},
	{"marketing-and-advertising", "Marketing and Advertising"},
	{"civil-eng", "Civil Engineering"},

	// Education
	{"higher-edu", "Higher Education"},
	{"education", "Education"},

	// Other
	{"small-business", "Small Business"},
	{"volunteer", "Volunteer"},
	{"non-profits", "Non-profits"},
	{"human-services", "Human Services"},
	{"career-growth", "Career Growth"},
	{"work-life-balance", "Work-life Balance"},
}
